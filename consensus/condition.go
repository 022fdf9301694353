package consensus

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Operator 条件运算符，封闭集合
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpContains Operator = "contains"
)

// Valid reports whether op belongs to the closed operator set.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpContains:
		return true
	}
	return false
}

// Condition 针对上下文中某个字段的单个谓词。
// 条件是纯数据，可序列化、可审计。
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// NewCondition 创建条件
func NewCondition(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// Evaluate 在上下文上求值。
// 字段缺失、类型不符或运算符未知时一律返回 false。
func (c Condition) Evaluate(ctx map[string]any) bool {
	actual, ok := ctx[c.Field]
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEq:
		return valuesEqual(actual, c.Value)
	case OpNe:
		return !valuesEqual(actual, c.Value)
	case OpGt:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return okA && okB && a > b
	case OpLt:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return okA && okB && a < b
	case OpContains:
		a, okA := actual.(string)
		b, okB := c.Value.(string)
		return okA && okB && strings.Contains(a, b)
	default:
		return false
	}
}

// valuesEqual 数值按 float64 比较，其余按深度相等比较
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if _, ok := toFloat(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// toFloat 将 Go 数值类型与 json.Number 归一化为 float64
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
