package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/types"
)

// Format 文档格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath 按扩展名推断格式，未知扩展名按 YAML 处理
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// RuleSpec 文档中的一条规则
type RuleSpec struct {
	ID          string                    `json:"id" yaml:"id"`
	Category    consensus.RuleCategory    `json:"category" yaml:"category"`
	Action      consensus.GuardrailAction `json:"action" yaml:"action"`
	Description string                    `json:"description,omitempty" yaml:"description,omitempty"`
	// Severity 取值 1-10，省略时为 5
	Severity   int                   `json:"severity,omitempty" yaml:"severity,omitempty"`
	Conditions []consensus.Condition `json:"conditions" yaml:"conditions"`
}

// Document 策略文档
type Document struct {
	Version         string     `json:"version" yaml:"version"`
	IncludeDefaults bool       `json:"include_defaults" yaml:"include_defaults"`
	Rules           []RuleSpec `json:"rules" yaml:"rules"`
}

// Parse 解析文档并校验
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, invalidRule("failed to parse policy json", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, invalidRule("failed to parse policy yaml", err)
		}
	default:
		return nil, invalidRule(fmt.Sprintf("unsupported policy format %q", format), nil)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile 读取并解析策略文件
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	return Parse(data, FormatFromPath(path))
}

// Validate 校验规则 ID、类别、动作、严重度与条件
func (d *Document) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(d.Rules))
	for i, r := range d.Rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
		if r.ID != "" {
			if seen[r.ID] {
				errs = append(errs, fmt.Errorf("rules[%d]: duplicate rule id %q", i, r.ID))
			}
			seen[r.ID] = true
		}
	}
	if len(errs) > 0 {
		return invalidRule("invalid policy document", errors.Join(errs...))
	}
	return nil
}

// Validate 校验单条规则
func (r RuleSpec) Validate() error {
	var errs []error
	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("rule id is required"))
	}
	if !r.Category.Valid() {
		errs = append(errs, fmt.Errorf("unknown category %q", r.Category))
	}
	if !r.Action.Valid() {
		errs = append(errs, fmt.Errorf("unknown action %q", r.Action))
	}
	if r.Severity < 0 || r.Severity > 10 {
		errs = append(errs, fmt.Errorf("severity %d out of range 1-10", r.Severity))
	}
	if len(r.Conditions) == 0 {
		errs = append(errs, errors.New("at least one condition is required"))
	}
	for j, c := range r.Conditions {
		if c.Field == "" {
			errs = append(errs, fmt.Errorf("conditions[%d]: field is required", j))
		}
		if !c.Operator.Valid() {
			errs = append(errs, fmt.Errorf("conditions[%d]: unknown operator %q", j, c.Operator))
		}
	}
	return errors.Join(errs...)
}

// ToRule 转换为引擎规则
func (r RuleSpec) ToRule() consensus.GuardrailRule {
	rule := consensus.NewGuardrailRule(r.ID, r.Category, r.Action, r.Description)
	for _, c := range r.Conditions {
		rule = rule.WithCondition(c)
	}
	if r.Severity > 0 {
		rule = rule.WithSeverity(r.Severity)
	}
	return rule
}

// FromRule 引擎规则转回文档形式
func FromRule(rule consensus.GuardrailRule) RuleSpec {
	return RuleSpec{
		ID:          rule.ID,
		Category:    rule.Category,
		Action:      rule.Action,
		Description: rule.Description,
		Severity:    rule.Severity,
		Conditions:  append([]consensus.Condition(nil), rule.Conditions...),
	}
}

// ToRules 按文档顺序生成规则。IncludeDefaults 时基线规则排在最前，同 ID 由文档覆盖。
func (d *Document) ToRules() []consensus.GuardrailRule {
	rules := make([]consensus.GuardrailRule, 0, len(d.Rules)+3)
	if d.IncludeDefaults {
		own := make(map[string]bool, len(d.Rules))
		for _, r := range d.Rules {
			own[r.ID] = true
		}
		for _, r := range consensus.DefaultRules() {
			if !own[r.ID] {
				rules = append(rules, r)
			}
		}
	}
	for _, r := range d.Rules {
		rules = append(rules, r.ToRule())
	}
	return rules
}

// Marshal 按格式序列化文档
func (d *Document) Marshal(format Format) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(d, "", "  ")
	}
	return yaml.Marshal(d)
}

func invalidRule(msg string, cause error) error {
	e := types.NewError(types.ErrInvalidRule, msg).
		WithHTTPStatus(http.StatusBadRequest).
		WithComponent("policy")
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
