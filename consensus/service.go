package consensus

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/types"
)

// TracerName 决策 span 使用的 Tracer 名称
const TracerName = "github.com/BaSui01/hido/consensus"

// AuditSink 接收每次决策的解释记录，通常是只追加的审计账本
type AuditSink interface {
	Record(ctx context.Context, exp DecisionExplanation) error
}

// Observer 决策观测者，例如 Prometheus 收集器或 OTel 指标
type Observer interface {
	ObserveDecision(ctx context.Context, exp DecisionExplanation, elapsed time.Duration)
	ObserveAuditWrite(ctx context.Context, err error)
}

// DecideRequest 一次决策请求
type DecideRequest struct {
	Intent     types.SemanticIntent `json:"intent"`
	Candidates []string             `json:"candidates"`
	Votes      []Vote               `json:"votes"`

	// Embeddings 本次请求附带的节点嵌入，覆盖推荐器中同名节点
	Embeddings map[string][]float64 `json:"embeddings,omitempty"`
}

// ServiceOption 服务可选项
type ServiceOption func(*Service)

// WithAuditSink 设置审计汇
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(s *Service) { s.audit = sink }
}

// WithObservers 追加观测者
func WithObservers(observers ...Observer) ServiceOption {
	return func(s *Service) {
		for _, o := range observers {
			if o != nil {
				s.observers = append(s.observers, o)
			}
		}
	}
}

// WithTracer 设置追踪器，默认使用全局 TracerProvider
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithServiceLogger 设置日志
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service 以互斥锁串行化访问 DecisionEngine 的并发安全门面。
// 审计、指标、追踪与实时推送都在锁外完成。
type Service struct {
	mu     sync.Mutex
	engine *DecisionEngine

	audit     AuditSink
	observers []Observer
	tracer    trace.Tracer
	logger    *zap.Logger
	now       func() time.Time

	subMu       sync.RWMutex
	subscribers map[int]chan DecisionExplanation
	nextSubID   int
}

// NewService 创建服务
func NewService(engine *DecisionEngine, opts ...ServiceOption) *Service {
	s := &Service{
		engine:      engine,
		tracer:      otel.Tracer(TracerName),
		logger:      zap.NewNop(),
		now:         time.Now,
		subscribers: make(map[int]chan DecisionExplanation),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "consensus_service"))
	return s
}

// Decide 串行执行一次决策，随后写审计、上报观测并推送给订阅者
func (s *Service) Decide(ctx context.Context, req DecideRequest) (Decision, DecisionExplanation, error) {
	if req.Intent.ID == "" {
		return Decision{}, DecisionExplanation{}, types.NewInvalidRequestError("intent id is required")
	}
	if req.Intent.IsExpired(s.now()) {
		return Decision{}, DecisionExplanation{}, types.NewInvalidRequestError("intent " + req.Intent.ID + " has expired")
	}

	ctx, span := s.tracer.Start(ctx, "consensus.make_decision",
		trace.WithAttributes(
			attribute.String("intent.id", req.Intent.ID),
			attribute.String("intent.priority", string(req.Intent.Priority)),
			attribute.Int("candidates", len(req.Candidates)),
			attribute.Int("votes", len(req.Votes)),
		))
	defer span.End()

	intent := req.Intent
	if len(req.Embeddings) > 0 {
		intent = intent.WithParam(EmbeddingsParam, req.Embeddings)
	}

	start := time.Now()
	s.mu.Lock()
	decision, exp, err := s.engine.MakeDecision(ctx, intent, req.Candidates, req.Votes)
	s.mu.Unlock()
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("decision failed", zap.String("intent_id", req.Intent.ID), zap.Error(err))
		return Decision{}, DecisionExplanation{}, err
	}

	span.SetAttributes(
		attribute.String("decision.id", decision.ID),
		attribute.String("decision.type", string(decision.DecisionType)),
		attribute.Float64("decision.confidence", decision.Confidence),
		attribute.Bool("decision.requires_human_approval", decision.RequiresHumanApproval),
		attribute.Bool("consensus.reached", exp.VotingResult.ConsensusReached),
		attribute.Int("guardrail.violations", len(exp.GuardrailCheck.Violations)),
	)

	if s.audit != nil {
		auditErr := s.audit.Record(ctx, exp)
		if auditErr != nil {
			span.AddEvent("audit write failed")
			s.logger.Error("failed to record decision in audit trail",
				zap.String("decision_id", decision.ID),
				zap.Error(auditErr))
		}
		for _, o := range s.observers {
			o.ObserveAuditWrite(ctx, auditErr)
		}
	}

	for _, o := range s.observers {
		o.ObserveDecision(ctx, exp, elapsed)
	}
	s.publish(exp)

	s.logger.Info("decision made",
		zap.String("decision_id", decision.ID),
		zap.String("intent_id", req.Intent.ID),
		zap.String("decision_type", string(decision.DecisionType)),
		zap.String("selected_agent", decision.SelectedAgent),
		zap.Float64("confidence", decision.Confidence),
		zap.Bool("requires_human_approval", decision.RequiresHumanApproval),
		zap.Duration("elapsed", elapsed))

	return decision, exp, nil
}

// RegisterAgent 注册投票者
func (s *Service) RegisterAgent(voterID string, weight float64) VoterInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.RegisterAgent(voterID, weight)
	v, _ := s.engine.voting.Voter(voterID)
	s.logger.Info("voter registered", zap.String("voter", voterID), zap.Float64("weight", v.Weight))
	return v
}

// UnregisterAgent 注销投票者
func (s *Service) UnregisterAgent(voterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.engine.UnregisterAgent(voterID)
	if ok {
		s.logger.Info("voter unregistered", zap.String("voter", voterID))
	}
	return ok
}

// Voters 返回已注册投票者
func (s *Service) Voters() []VoterInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Voters()
}

// ByzantineTolerance 返回容错报告
func (s *Service) ByzantineTolerance() ByzantineTolerance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ByzantineTolerance()
}

// AddRule 追加护栏规则
func (s *Service) AddRule(rule GuardrailRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.AddRule(rule)
	s.logger.Info("guardrail rule added", zap.String("rule_id", rule.ID))
}

// RemoveRule 移除护栏规则
func (s *Service) RemoveRule(ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RemoveRule(ruleID)
}

// ReplaceRules 整体替换护栏规则，供策略文件热加载使用
func (s *Service) ReplaceRules(rules []GuardrailRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.ReplaceRules(rules)
	s.logger.Info("guardrail rules replaced", zap.Int("count", len(rules)))
}

// Rules 按评估顺序返回规则
func (s *Service) Rules() []GuardrailRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Rules()
}

// GuardrailStats 护栏统计
func (s *Service) GuardrailStats() GuardrailStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GuardrailStats()
}

// Violations 违规日志
func (s *Service) Violations() []ViolationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Violations()
}

// ClearViolations 清空违规日志
func (s *Service) ClearViolations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.ClearViolations()
}

// Metrics 指标快照
func (s *Service) Metrics() DecisionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Metrics()
}

// Subscribe 订阅实时决策流。缓冲区满时丢弃事件。
// 返回的取消函数会关闭通道，可重复调用。
func (s *Service) Subscribe(buffer int) (<-chan DecisionExplanation, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan DecisionExplanation, buffer)

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) publish(exp DecisionExplanation) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- exp:
		default:
			s.logger.Warn("subscriber too slow, dropping decision event",
				zap.Int("subscriber", id),
				zap.String("decision_id", exp.Decision.ID))
		}
	}
}
