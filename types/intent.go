package types

import (
	"time"

	"github.com/google/uuid"
)

// IntentDomain 意图所属领域
type IntentDomain string

const (
	DomainData          IntentDomain = "data"
	DomainCompute       IntentDomain = "compute"
	DomainCommunication IntentDomain = "communication"
	DomainCoordination  IntentDomain = "coordination"
)

// IntentPriority 意图优先级
type IntentPriority string

const (
	PriorityLow      IntentPriority = "low"
	PriorityNormal   IntentPriority = "normal"
	PriorityHigh     IntentPriority = "high"
	PriorityCritical IntentPriority = "critical"
)

// Valid reports whether p is one of the known priorities.
func (p IntentPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// IntentConstraint 意图执行约束
type IntentConstraint struct {
	Type     string `json:"type"`
	Value    any    `json:"value"`
	Required bool   `json:"required"`
}

// SemanticIntent 是待决策的语义意图。
// 决策核心只读取 ID、Action、Priority、Sender 与 Parameters。
type SemanticIntent struct {
	ID            string             `json:"id"`
	Domain        IntentDomain       `json:"domain"`
	Action        string             `json:"action"`
	Target        string             `json:"target,omitempty"`
	Parameters    map[string]any     `json:"parameters,omitempty"`
	Constraints   []IntentConstraint `json:"constraints,omitempty"`
	Priority      IntentPriority     `json:"priority"`
	Sender        string             `json:"sender"`
	Recipients    []string           `json:"recipients,omitempty"`
	Created       time.Time          `json:"created"`
	Expires       *time.Time         `json:"expires,omitempty"`
	ParentID      string             `json:"parent_id,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

// NewIntent creates an intent with a fresh id and normal priority.
func NewIntent(sender string, domain IntentDomain, action string) SemanticIntent {
	id := uuid.NewString()
	return SemanticIntent{
		ID:            id,
		Domain:        domain,
		Action:        action,
		Parameters:    make(map[string]any),
		Priority:      PriorityNormal,
		Sender:        sender,
		Created:       time.Now().UTC(),
		CorrelationID: id,
	}
}

// WithTarget sets the target of the intent.
func (i SemanticIntent) WithTarget(target string) SemanticIntent {
	i.Target = target
	return i
}

// WithParam returns a copy of the intent with one extra parameter.
func (i SemanticIntent) WithParam(key string, value any) SemanticIntent {
	params := make(map[string]any, len(i.Parameters)+1)
	for k, v := range i.Parameters {
		params[k] = v
	}
	params[key] = value
	i.Parameters = params
	return i
}

// WithPriority sets the priority.
func (i SemanticIntent) WithPriority(p IntentPriority) SemanticIntent {
	i.Priority = p
	return i
}

// WithRecipient appends a recipient.
func (i SemanticIntent) WithRecipient(recipient string) SemanticIntent {
	i.Recipients = append(append([]string(nil), i.Recipients...), recipient)
	return i
}

// WithConstraint appends an execution constraint.
func (i SemanticIntent) WithConstraint(kind string, value any, required bool) SemanticIntent {
	i.Constraints = append(append([]IntentConstraint(nil), i.Constraints...), IntentConstraint{
		Type:     kind,
		Value:    value,
		Required: required,
	})
	return i
}

// WithExpiration sets the expiration time.
func (i SemanticIntent) WithExpiration(expires time.Time) SemanticIntent {
	i.Expires = &expires
	return i
}

// WithParent links the intent to a parent intent.
func (i SemanticIntent) WithParent(parentID string) SemanticIntent {
	i.ParentID = parentID
	return i
}

// IsExpired reports whether the intent expired before now.
func (i SemanticIntent) IsExpired(now time.Time) bool {
	return i.Expires != nil && now.After(*i.Expires)
}

// Param returns a parameter value.
func (i SemanticIntent) Param(key string) (any, bool) {
	v, ok := i.Parameters[key]
	return v, ok
}

// BoolParam returns a boolean parameter, false when missing or not a bool.
func (i SemanticIntent) BoolParam(key string) bool {
	v, ok := i.Parameters[key].(bool)
	return ok && v
}
