package consensus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Evaluate(t *testing.T) {
	ctx := map[string]any{
		"risk":   0.95,
		"count":  3,
		"flag":   true,
		"action": "transfer funds",
		"num":    json.Number("7"),
		"tags":   []string{"a"},
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"gt true", NewCondition("risk", OpGt, 0.9), true},
		{"gt false", NewCondition("risk", OpGt, 0.99), false},
		{"lt true", NewCondition("count", OpLt, 4), true},
		{"lt mixed int float", NewCondition("count", OpLt, 3.5), true},
		{"gt json number", NewCondition("num", OpGt, 6), true},
		{"gt non numeric actual", NewCondition("action", OpGt, 1), false},
		{"gt non numeric value", NewCondition("risk", OpGt, "high"), false},
		{"eq bool", NewCondition("flag", OpEq, true), true},
		{"eq bool mismatch", NewCondition("flag", OpEq, false), false},
		{"eq numeric across kinds", NewCondition("count", OpEq, 3.0), true},
		{"eq number vs string", NewCondition("count", OpEq, "3"), false},
		{"eq string", NewCondition("action", OpEq, "transfer funds"), true},
		{"eq slice", NewCondition("tags", OpEq, []string{"a"}), true},
		{"ne true", NewCondition("action", OpNe, "read"), true},
		{"ne false", NewCondition("flag", OpNe, true), false},
		{"contains", NewCondition("action", OpContains, "funds"), true},
		{"contains miss", NewCondition("action", OpContains, "delete"), false},
		{"contains non string", NewCondition("count", OpContains, "3"), false},
		{"missing field", NewCondition("absent", OpEq, nil), false},
		{"missing field ne", NewCondition("absent", OpNe, 1), false},
		{"unknown operator", NewCondition("risk", Operator("ge"), 0.1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Evaluate(ctx))
		})
	}
}

func TestOperator_Valid(t *testing.T) {
	for _, op := range []Operator{OpEq, OpNe, OpGt, OpLt, OpContains} {
		assert.True(t, op.Valid())
	}
	assert.False(t, Operator("regex").Valid())
}

func TestGuardrailRule_IsViolated(t *testing.T) {
	rule := NewGuardrailRule("r", CategorySafety, ActionReject, "both").
		WithCondition(NewCondition("a", OpEq, true)).
		WithCondition(NewCondition("b", OpGt, 1))

	assert.True(t, rule.IsViolated(map[string]any{"a": true, "b": 2}))
	assert.False(t, rule.IsViolated(map[string]any{"a": true}))
	assert.False(t, rule.IsViolated(map[string]any{"b": 2}))
	assert.False(t, rule.IsViolated(map[string]any{"a": false, "b": 2}))

	empty := NewGuardrailRule("empty", CategorySafety, ActionReject, "never")
	assert.False(t, empty.IsViolated(map[string]any{"a": true}))
}

func TestGuardrailRule_Severity(t *testing.T) {
	rule := NewGuardrailRule("r", CategoryFairness, ActionEscalate, "")
	assert.Equal(t, 5, rule.Severity)
	assert.Equal(t, 10, rule.WithSeverity(42).Severity)
	assert.Equal(t, 1, rule.WithSeverity(0).Severity)

	g := NewEthicalGuardrail()
	g.AddRule(GuardrailRule{ID: "raw", Category: CategorySafety, Action: ActionReject, Severity: 99})
	assert.Equal(t, 10, g.Rules()[0].Severity)
}

func TestGuardrailRule_WithConditionDoesNotAlias(t *testing.T) {
	base := NewGuardrailRule("r", CategorySafety, ActionReject, "").
		WithCondition(NewCondition("a", OpEq, 1))
	left := base.WithCondition(NewCondition("b", OpEq, 2))
	right := base.WithCondition(NewCondition("c", OpEq, 3))

	assert.Len(t, base.Conditions, 1)
	assert.Equal(t, "b", left.Conditions[1].Field)
	assert.Equal(t, "c", right.Conditions[1].Field)
}

func TestDefaultRules(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	rules := g.Rules()
	require.Len(t, rules, 3)

	assert.Equal(t, "transparency-1", rules[0].ID)
	assert.Equal(t, ActionRequireApproval, rules[0].Action)
	assert.Equal(t, 7, rules[0].Severity)
	assert.Equal(t, "safety-1", rules[1].ID)
	assert.Equal(t, ActionReject, rules[1].Action)
	assert.Equal(t, 10, rules[1].Severity)
	assert.Equal(t, "privacy-1", rules[2].ID)
	assert.Equal(t, 9, rules[2].Severity)
}

func TestEvaluate_Passes(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	eval := g.Evaluate(map[string]any{"risk_score": 0.1, "impact": 0.5, "has_explanation": true, "contains_pii": false})

	assert.True(t, eval.Passes)
	assert.Empty(t, eval.Violations)
	assert.Empty(t, eval.Recommendations)
	assert.Equal(t, 0.0, eval.RiskScore)
	assert.Equal(t, GuardrailAction(""), eval.RequiredAction)
}

// 默认规则集下 risk_score 0.95 必须被拒绝
func TestEvaluate_HighRiskRejected(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	eval := g.Evaluate(map[string]any{"risk_score": 0.95})

	assert.False(t, eval.Passes)
	assert.Equal(t, ActionReject, eval.RequiredAction)
	assert.Equal(t, 1.0, eval.RiskScore)
	require.Len(t, eval.Recommendations, 1)
	assert.Equal(t, "[SAFETY] safety-1: High-risk actions blocked", eval.Recommendations[0])
}

func TestEvaluate_HighestSeverityWins(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	eval := g.Evaluate(map[string]any{
		"impact":          1.0,
		"has_explanation": false,
		"contains_pii":    true,
	})

	require.Len(t, eval.Violations, 2)
	assert.Equal(t, ActionReject, eval.RequiredAction)
	assert.InDelta(t, 0.9, eval.RiskScore, 1e-12)
}

func TestEvaluate_TieBrokenByInsertionOrder(t *testing.T) {
	g := NewEthicalGuardrail()
	g.AddRule(NewGuardrailRule("first", CategoryLegality, ActionEscalate, "").
		WithCondition(NewCondition("x", OpEq, 1)).WithSeverity(8))
	g.AddRule(NewGuardrailRule("second", CategorySafety, ActionReject, "").
		WithCondition(NewCondition("x", OpEq, 1)).WithSeverity(8))

	for i := 0; i < 5; i++ {
		eval := g.Evaluate(map[string]any{"x": 1})
		assert.Equal(t, ActionEscalate, eval.RequiredAction)
		assert.Len(t, eval.Violations, 2)
	}
}

func TestEvaluate_StatsAndLog(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	g.Evaluate(map[string]any{"risk_score": 0.95, "contains_pii": true})
	g.Evaluate(map[string]any{"risk_score": 0.1})

	stats := g.Stats()
	assert.Equal(t, 2, stats.TotalEvaluations)
	assert.Equal(t, 2, stats.ViolationsDetected)
	assert.Equal(t, 1, stats.ViolationsByCategory[CategorySafety])
	assert.Equal(t, 1, stats.ViolationsByCategory[CategoryPrivacy])

	log := g.Violations()
	require.Len(t, log, 2)
	assert.Equal(t, "safety-1", log[0].RuleID)
	assert.Equal(t, ActionReject, log[0].ActionTaken)
	assert.Equal(t, 0.95, log[0].Context["risk_score"])
	assert.False(t, log[0].Timestamp.IsZero())

	g.ClearLog()
	assert.Empty(t, g.Violations())
	assert.Equal(t, 2, g.Stats().ViolationsDetected)
}

func TestEvaluate_LogContextIsCopied(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	ctx := map[string]any{"risk_score": 0.99}
	g.Evaluate(ctx)
	ctx["risk_score"] = 0.0

	assert.Equal(t, 0.99, g.Violations()[0].Context["risk_score"])
}

func TestRemoveAndReplaceRules(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	assert.True(t, g.RemoveRule("safety-1"))
	assert.False(t, g.RemoveRule("safety-1"))

	eval := g.Evaluate(map[string]any{"risk_score": 0.99})
	assert.True(t, eval.Passes)

	g.ReplaceRules([]GuardrailRule{
		NewGuardrailRule("only", CategoryFairness, ActionEscalate, "").
			WithCondition(NewCondition("bias", OpGt, 0.5)),
	})
	rules := g.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "only", rules[0].ID)
	assert.Equal(t, 1, g.Stats().TotalEvaluations)
}

func TestRules_ReturnsCopies(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	rules := g.Rules()
	rules[1].Conditions[0].Value = 0.0
	rules[1].Severity = 1

	eval := g.Evaluate(map[string]any{"risk_score": 0.5})
	assert.True(t, eval.Passes)
	assert.Equal(t, 10, g.Rules()[1].Severity)
}

func TestStats_ReturnsCopy(t *testing.T) {
	g := NewEthicalGuardrailWithDefaults()
	g.Evaluate(map[string]any{"risk_score": 0.95})

	stats := g.Stats()
	stats.ViolationsByCategory[CategorySafety] = 100
	assert.Equal(t, 1, g.Stats().ViolationsByCategory[CategorySafety])
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, CategoryLegality.Valid())
	assert.False(t, RuleCategory("ethics").Valid())
	assert.True(t, ActionRequireApproval.Valid())
	assert.False(t, GuardrailAction("ignore").Valid())
}
