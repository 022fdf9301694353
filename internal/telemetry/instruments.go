package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/hido/consensus"
)

// MeterName 决策指标使用的 Meter 名称
const MeterName = "github.com/BaSui01/hido"

var _ consensus.Observer = (*DecisionInstruments)(nil)

// DecisionInstruments 把决策结果写入 OTel 指标，与 Prometheus 收集器并存
type DecisionInstruments struct {
	decisions   metric.Int64Counter
	confidence  metric.Float64Histogram
	duration    metric.Float64Histogram
	violations  metric.Int64Counter
	auditWrites metric.Int64Counter
}

// NewDecisionInstruments 在给定 Meter 上创建决策指标
func NewDecisionInstruments(meter metric.Meter) (*DecisionInstruments, error) {
	var (
		d   DecisionInstruments
		err error
	)
	if d.decisions, err = meter.Int64Counter("hido.decisions",
		metric.WithDescription("Decisions made by the engine"),
		metric.WithUnit("{decision}")); err != nil {
		return nil, fmt.Errorf("create decisions counter: %w", err)
	}
	if d.confidence, err = meter.Float64Histogram("hido.decision.confidence",
		metric.WithDescription("Combined decision confidence"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1)); err != nil {
		return nil, fmt.Errorf("create confidence histogram: %w", err)
	}
	if d.duration, err = meter.Float64Histogram("hido.decision.duration",
		metric.WithDescription("Time spent inside the decision engine"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if d.violations, err = meter.Int64Counter("hido.guardrail.violations",
		metric.WithDescription("Triggered guardrail rules"),
		metric.WithUnit("{violation}")); err != nil {
		return nil, fmt.Errorf("create violations counter: %w", err)
	}
	if d.auditWrites, err = meter.Int64Counter("hido.audit.writes",
		metric.WithDescription("Audit ledger writes"),
		metric.WithUnit("{write}")); err != nil {
		return nil, fmt.Errorf("create audit counter: %w", err)
	}
	return &d, nil
}

// ObserveDecision implements consensus.Observer.
func (d *DecisionInstruments) ObserveDecision(ctx context.Context, exp consensus.DecisionExplanation, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("decision.type", string(exp.Decision.DecisionType)),
		attribute.Bool("decision.escalated", exp.Decision.RequiresHumanApproval),
	)
	d.decisions.Add(ctx, 1, attrs)
	d.confidence.Record(ctx, exp.Decision.Confidence, attrs)
	d.duration.Record(ctx, elapsed.Seconds())

	for _, rule := range exp.GuardrailCheck.Violations {
		d.violations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rule.id", rule.ID),
			attribute.String("rule.category", string(rule.Category)),
		))
	}
}

// ObserveAuditWrite implements consensus.Observer.
func (d *DecisionInstruments) ObserveAuditWrite(ctx context.Context, err error) {
	d.auditWrites.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
}
