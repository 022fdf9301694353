package consensus

import (
	"fmt"
	"strings"
	"time"
)

// RuleCategory 规则类别
type RuleCategory string

const (
	CategoryTransparency RuleCategory = "transparency"
	CategoryFairness     RuleCategory = "fairness"
	CategorySafety       RuleCategory = "safety"
	CategoryPrivacy      RuleCategory = "privacy"
	CategoryLegality     RuleCategory = "legality"
)

// Valid reports whether c is a known category.
func (c RuleCategory) Valid() bool {
	switch c {
	case CategoryTransparency, CategoryFairness, CategorySafety, CategoryPrivacy, CategoryLegality:
		return true
	}
	return false
}

// GuardrailAction 规则触发后要求的动作
type GuardrailAction string

const (
	ActionApprove         GuardrailAction = "approve"
	ActionReject          GuardrailAction = "reject"
	ActionRequireApproval GuardrailAction = "require_approval"
	ActionEscalate        GuardrailAction = "escalate"
)

// Valid reports whether a is a known action.
func (a GuardrailAction) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRequireApproval, ActionEscalate:
		return true
	}
	return false
}

const (
	minSeverity     = 1
	maxSeverity     = 10
	defaultSeverity = 5
)

// GuardrailRule 护栏规则：若干条件的合取
type GuardrailRule struct {
	ID          string          `json:"id" yaml:"id"`
	Category    RuleCategory    `json:"category" yaml:"category"`
	Conditions  []Condition     `json:"conditions" yaml:"conditions"`
	Action      GuardrailAction `json:"action" yaml:"action"`
	Description string          `json:"description" yaml:"description"`
	Severity    int             `json:"severity" yaml:"severity"`
}

// NewGuardrailRule 创建规则，严重度默认为 5
func NewGuardrailRule(id string, category RuleCategory, action GuardrailAction, description string) GuardrailRule {
	return GuardrailRule{
		ID:          id,
		Category:    category,
		Action:      action,
		Description: description,
		Severity:    defaultSeverity,
	}
}

// WithCondition 追加条件
func (r GuardrailRule) WithCondition(c Condition) GuardrailRule {
	r.Conditions = append(append([]Condition(nil), r.Conditions...), c)
	return r
}

// WithSeverity 设置严重度，截断到 [1,10]
func (r GuardrailRule) WithSeverity(severity int) GuardrailRule {
	r.Severity = clampSeverity(severity)
	return r
}

// IsViolated 至少有一个条件且全部为真时违规
func (r GuardrailRule) IsViolated(ctx map[string]any) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for _, c := range r.Conditions {
		if !c.Evaluate(ctx) {
			return false
		}
	}
	return true
}

func (r GuardrailRule) clone() GuardrailRule {
	r.Conditions = append([]Condition(nil), r.Conditions...)
	return r
}

func clampSeverity(s int) int {
	if s < minSeverity {
		return minSeverity
	}
	if s > maxSeverity {
		return maxSeverity
	}
	return s
}

// ViolationRecord 违规日志条目
type ViolationRecord struct {
	RuleID      string          `json:"rule_id"`
	Category    RuleCategory    `json:"category"`
	Timestamp   time.Time       `json:"timestamp"`
	Context     map[string]any  `json:"context"`
	ActionTaken GuardrailAction `json:"action_taken"`
}

// EthicalEvaluation 一次护栏评估的结果。RequiredAction 为空表示无要求。
type EthicalEvaluation struct {
	Passes          bool            `json:"passes"`
	Violations      []GuardrailRule `json:"violations"`
	Recommendations []string        `json:"recommendations"`
	RiskScore       float64         `json:"risk_score"`
	RequiredAction  GuardrailAction `json:"required_action,omitempty"`
}

// GuardrailStats 护栏统计
type GuardrailStats struct {
	TotalEvaluations     int                  `json:"total_evaluations"`
	ViolationsDetected   int                  `json:"violations_detected"`
	ViolationsByCategory map[RuleCategory]int `json:"violations_by_category"`
}

// EthicalGuardrail 有序规则集。单写者结构，不做内部同步。
type EthicalGuardrail struct {
	rules        []GuardrailRule
	violationLog []ViolationRecord
	stats        GuardrailStats
	now          func() time.Time
}

// NewEthicalGuardrail 创建空规则集
func NewEthicalGuardrail() *EthicalGuardrail {
	return &EthicalGuardrail{
		stats: GuardrailStats{ViolationsByCategory: make(map[RuleCategory]int)},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NewEthicalGuardrailWithDefaults 创建带三条基线规则的护栏
func NewEthicalGuardrailWithDefaults() *EthicalGuardrail {
	g := NewEthicalGuardrail()
	for _, r := range DefaultRules() {
		g.AddRule(r)
	}
	return g
}

// DefaultRules 基线规则：透明度、安全、隐私
func DefaultRules() []GuardrailRule {
	return []GuardrailRule{
		NewGuardrailRule("transparency-1", CategoryTransparency, ActionRequireApproval,
			"High-impact decisions require explanation").
			WithCondition(NewCondition("impact", OpGt, 0.8)).
			WithCondition(NewCondition("has_explanation", OpEq, false)).
			WithSeverity(7),
		NewGuardrailRule("safety-1", CategorySafety, ActionReject,
			"High-risk actions blocked").
			WithCondition(NewCondition("risk_score", OpGt, 0.9)).
			WithSeverity(10),
		NewGuardrailRule("privacy-1", CategoryPrivacy, ActionReject,
			"Sensitive data exposure blocked").
			WithCondition(NewCondition("contains_pii", OpEq, true)).
			WithSeverity(9),
	}
}

// AddRule 追加规则到评估顺序末尾
func (g *EthicalGuardrail) AddRule(rule GuardrailRule) {
	rule = rule.clone()
	rule.Severity = clampSeverity(rule.Severity)
	g.rules = append(g.rules, rule)
}

// RemoveRule 按 ID 移除规则，返回是否存在
func (g *EthicalGuardrail) RemoveRule(ruleID string) bool {
	kept := g.rules[:0]
	removed := false
	for _, r := range g.rules {
		if r.ID == ruleID {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	g.rules = kept
	return removed
}

// ReplaceRules 整体替换规则集，保留违规日志与统计
func (g *EthicalGuardrail) ReplaceRules(rules []GuardrailRule) {
	g.rules = nil
	for _, r := range rules {
		g.AddRule(r)
	}
}

// Rules 按评估顺序返回规则副本
func (g *EthicalGuardrail) Rules() []GuardrailRule {
	out := make([]GuardrailRule, len(g.rules))
	for i, r := range g.rules {
		out[i] = r.clone()
	}
	return out
}

// Evaluate 对上下文评估所有规则。
// RequiredAction 取最高严重度规则的动作，同分时先注册者胜出。
func (g *EthicalGuardrail) Evaluate(ctx map[string]any) EthicalEvaluation {
	g.stats.TotalEvaluations++

	eval := EthicalEvaluation{
		Violations:      []GuardrailRule{},
		Recommendations: []string{},
	}
	highest := 0

	for _, rule := range g.rules {
		if !rule.IsViolated(ctx) {
			continue
		}
		eval.Violations = append(eval.Violations, rule.clone())
		g.stats.ViolationsDetected++
		g.stats.ViolationsByCategory[rule.Category]++

		g.violationLog = append(g.violationLog, ViolationRecord{
			RuleID:      rule.ID,
			Category:    rule.Category,
			Timestamp:   g.now(),
			Context:     copyContext(ctx),
			ActionTaken: rule.Action,
		})

		eval.Recommendations = append(eval.Recommendations,
			fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(rule.Category)), rule.ID, rule.Description))

		if rule.Severity > highest {
			highest = rule.Severity
			eval.RequiredAction = rule.Action
		}
	}

	if len(eval.Violations) > 0 {
		eval.RiskScore = float64(highest) / 10.0
	}
	eval.Passes = len(eval.Violations) == 0
	return eval
}

// Stats 返回统计快照
func (g *EthicalGuardrail) Stats() GuardrailStats {
	byCat := make(map[RuleCategory]int, len(g.stats.ViolationsByCategory))
	for k, v := range g.stats.ViolationsByCategory {
		byCat[k] = v
	}
	return GuardrailStats{
		TotalEvaluations:     g.stats.TotalEvaluations,
		ViolationsDetected:   g.stats.ViolationsDetected,
		ViolationsByCategory: byCat,
	}
}

// Violations 返回违规日志副本
func (g *EthicalGuardrail) Violations() []ViolationRecord {
	out := make([]ViolationRecord, len(g.violationLog))
	copy(out, g.violationLog)
	return out
}

// ClearLog 清空违规日志，统计保留
func (g *EthicalGuardrail) ClearLog() {
	g.violationLog = nil
}

func copyContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
