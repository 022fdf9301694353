package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/recommender"
	"github.com/BaSui01/hido/types"
)

// 推荐置信度高于该阈值时才采用推荐器的首选
const recommenderPickThreshold = 0.8

// 无推荐器时参与合成的默认推荐置信度
const defaultRecommenderConfidence = 0.5

// HistoryParam 意图参数中携带时间事件的键，值为 []recommender.Event
const HistoryParam = "history"

// EmbeddingsParam 意图参数中携带节点嵌入的键，值为 map[string][]float64
const EmbeddingsParam = "embeddings"

// Decision 引擎最终输出
type Decision struct {
	ID                    string    `json:"id"`
	SelectedAgent         string    `json:"selected_agent"`
	DecisionType          VoteType  `json:"decision_type"`
	Confidence            float64   `json:"confidence"`
	Timestamp             time.Time `json:"timestamp"`
	RequiresHumanApproval bool      `json:"requires_human_approval"`
}

// DecisionExplanation 决策的审计记录，生成后不再修改
type DecisionExplanation struct {
	Decision       Decision                `json:"decision"`
	IntentID       string                  `json:"intent_id"`
	Recommendation *recommender.Prediction `json:"recommendation,omitempty"`
	VotingResult   ConsensusResult         `json:"voting_result"`
	GuardrailCheck EthicalEvaluation       `json:"guardrail_check"`
	Reasoning      string                  `json:"reasoning"`
	Factors        map[string]float64      `json:"factors"`
}

// DecisionMetrics 引擎运行指标
type DecisionMetrics struct {
	TotalDecisions     uint64  `json:"total_decisions"`
	ApprovedDecisions  uint64  `json:"approved_decisions"`
	RejectedDecisions  uint64  `json:"rejected_decisions"`
	EscalatedDecisions uint64  `json:"escalated_decisions"`
	AverageConfidence  float64 `json:"average_confidence"`
}

// EngineConfig 决策引擎配置
type EngineConfig struct {
	GNNWeight     float64      `json:"gnn_weight" yaml:"gnn_weight"`
	VotingWeight  float64      `json:"voting_weight" yaml:"voting_weight"`
	MinConfidence float64      `json:"min_confidence" yaml:"min_confidence"`
	Voting        VotingConfig `json:"voting" yaml:"voting"`

	// StrictRecommender 为 true 时推荐器错误会中止决策并返回给调用方
	StrictRecommender bool `json:"strict_recommender" yaml:"strict_recommender"`
}

// DefaultEngineConfig 默认配置：推荐 0.3、投票 0.7、最低置信度 0.5
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		GNNWeight:     0.3,
		VotingWeight:  0.7,
		MinConfidence: 0.5,
		Voting:        DefaultVotingConfig(),
	}
}

// Validate 校验配置。权重不要求和为 1。
func (c EngineConfig) Validate() error {
	if c.GNNWeight < 0 || c.GNNWeight > 1 {
		return invalidConfig(fmt.Sprintf("gnn_weight must be in [0,1], got %v", c.GNNWeight))
	}
	if c.VotingWeight < 0 || c.VotingWeight > 1 {
		return invalidConfig(fmt.Sprintf("voting_weight must be in [0,1], got %v", c.VotingWeight))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return invalidConfig(fmt.Sprintf("min_confidence must be in [0,1], got %v", c.MinConfidence))
	}
	return c.Voting.Validate()
}

// EngineOption 引擎可选项
type EngineOption func(*DecisionEngine)

// WithRecommender 注入推荐器
func WithRecommender(r recommender.Recommender) EngineOption {
	return func(e *DecisionEngine) { e.recommender = r }
}

// WithGuardrail 替换默认护栏
func WithGuardrail(g *EthicalGuardrail) EngineOption {
	return func(e *DecisionEngine) {
		if g != nil {
			e.guardrail = g
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *DecisionEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// DecisionEngine 融合投票、推荐与护栏的决策引擎。
// 单写者结构，不做内部同步。
type DecisionEngine struct {
	voting      *ByzantineVoting
	guardrail   *EthicalGuardrail
	recommender recommender.Recommender
	metrics     DecisionMetrics
	config      EngineConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewDecisionEngine 创建引擎，默认带基线护栏规则
func NewDecisionEngine(config EngineConfig, opts ...EngineOption) (*DecisionEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &DecisionEngine{
		voting:    NewByzantineVoting(config.Voting),
		guardrail: NewEthicalGuardrailWithDefaults(),
		config:    config,
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "decision_engine"))
	return e, nil
}

// Config 返回引擎配置
func (e *DecisionEngine) Config() EngineConfig {
	return e.config
}

// HasRecommender 是否配置了推荐器
func (e *DecisionEngine) HasRecommender() bool {
	return e.recommender != nil
}

// RegisterAgent 注册投票者
func (e *DecisionEngine) RegisterAgent(voterID string, weight float64) {
	e.voting.RegisterVoter(voterID, weight)
}

// UnregisterAgent 注销投票者
func (e *DecisionEngine) UnregisterAgent(voterID string) bool {
	return e.voting.UnregisterVoter(voterID)
}

// Voters 返回已注册投票者
func (e *DecisionEngine) Voters() []VoterInfo {
	return e.voting.Voters()
}

// ByzantineTolerance 返回容错报告
func (e *DecisionEngine) ByzantineTolerance() ByzantineTolerance {
	return e.voting.ByzantineTolerance()
}

// AddRule 追加护栏规则
func (e *DecisionEngine) AddRule(rule GuardrailRule) {
	e.guardrail.AddRule(rule)
}

// RemoveRule 移除护栏规则
func (e *DecisionEngine) RemoveRule(ruleID string) bool {
	return e.guardrail.RemoveRule(ruleID)
}

// ReplaceRules 整体替换护栏规则
func (e *DecisionEngine) ReplaceRules(rules []GuardrailRule) {
	e.guardrail.ReplaceRules(rules)
}

// Rules 按评估顺序返回规则
func (e *DecisionEngine) Rules() []GuardrailRule {
	return e.guardrail.Rules()
}

// GuardrailStats 护栏统计
func (e *DecisionEngine) GuardrailStats() GuardrailStats {
	return e.guardrail.Stats()
}

// Violations 护栏违规日志
func (e *DecisionEngine) Violations() []ViolationRecord {
	return e.guardrail.Violations()
}

// ClearViolations 清空违规日志
func (e *DecisionEngine) ClearViolations() {
	e.guardrail.ClearLog()
}

// Metrics 返回指标快照
func (e *DecisionEngine) Metrics() DecisionMetrics {
	return e.metrics
}

// MakeDecision 对意图执行一次完整决策。
// 否决、未达成共识、低置信度都以结果内容表达，只有严格模式下的推荐器错误才会返回 error。
func (e *DecisionEngine) MakeDecision(
	ctx context.Context,
	intent types.SemanticIntent,
	candidates []string,
	votes []Vote,
) (Decision, DecisionExplanation, error) {
	// 1. 投票
	e.voting.StartVote(intent.ID)
	for _, v := range votes {
		if err := e.voting.CastVote(v); err != nil {
			e.logger.Debug("ballot dropped",
				zap.String("intent_id", intent.ID),
				zap.String("voter", v.Voter),
				zap.Error(err))
		}
	}
	votingResult := e.voting.Tally()

	// 2. 推荐
	rec, err := e.recommend(ctx, intent, candidates)
	if err != nil {
		return Decision{}, DecisionExplanation{}, err
	}

	// 3. 护栏
	guardrailCheck := e.guardrail.Evaluate(buildGuardContext(intent, votingResult))

	// 4. 合成
	selected, decisionType, confidence, needsHuman := e.combineSignals(votingResult, rec, guardrailCheck, candidates)

	decision := Decision{
		ID:                    uuid.NewString(),
		SelectedAgent:         selected,
		DecisionType:          decisionType,
		Confidence:            confidence,
		Timestamp:             e.now(),
		RequiresHumanApproval: needsHuman,
	}

	// 5. 解释
	factors := map[string]float64{
		"voting_confidence": votingResult.Confidence,
		"guardrail_risk":    guardrailCheck.RiskScore,
	}
	if rec != nil {
		factors["recommender_confidence"] = rec.Confidence
	}

	explanation := DecisionExplanation{
		Decision:       decision,
		IntentID:       intent.ID,
		Recommendation: rec,
		VotingResult:   votingResult,
		GuardrailCheck: guardrailCheck,
		Reasoning:      generateReasoning(votingResult, rec, guardrailCheck),
		Factors:        factors,
	}

	// 6. 计量
	e.updateMetrics(decision)

	e.logger.Debug("decision made",
		zap.String("decision_id", decision.ID),
		zap.String("intent_id", intent.ID),
		zap.String("decision_type", string(decision.DecisionType)),
		zap.Float64("confidence", decision.Confidence),
		zap.Bool("requires_human_approval", decision.RequiresHumanApproval))

	return decision, explanation, nil
}

func (e *DecisionEngine) recommend(ctx context.Context, intent types.SemanticIntent, candidates []string) (*recommender.Prediction, error) {
	if e.recommender == nil {
		return nil, nil
	}

	edges := make([]recommender.Edge, 0, len(candidates))
	for _, c := range candidates {
		edges = append(edges, recommender.Edge{From: intent.Sender, To: c})
	}
	req := recommender.Request{
		NodeEmbeddings: intentEmbeddings(intent),
		Edges:          edges,
		QueryNode:      intent.Sender,
		Candidates:     append([]string(nil), candidates...),
		Events:         historyEvents(intent),
	}

	pred, err := e.recommender.Predict(ctx, req)
	if err != nil {
		if e.config.StrictRecommender {
			return nil, types.NewError(types.ErrRecommenderFailed, "recommender call failed").
				WithCause(err).
				WithHTTPStatus(502).
				WithRetryable(true).
				WithComponent("decision_engine")
		}
		e.logger.Warn("recommender failed, continuing without it",
			zap.String("intent_id", intent.ID),
			zap.Error(err))
		return nil, nil
	}
	if pred == nil {
		return nil, nil
	}
	cp := *pred
	cp.Confidence = clamp(cp.Confidence, 0, 1)
	return &cp, nil
}

// combineSignals 按优先级合成：护栏否决 > 护栏升级 > 投票与推荐加权
func (e *DecisionEngine) combineSignals(
	voting ConsensusResult,
	rec *recommender.Prediction,
	guard EthicalEvaluation,
	candidates []string,
) (string, VoteType, float64, bool) {
	first := ""
	if len(candidates) > 0 {
		first = candidates[0]
	}

	decisionType := voting.Decision
	if decisionType == "" {
		decisionType = VoteApprove
	}

	switch guard.RequiredAction {
	case ActionReject:
		return first, VoteReject, guard.RiskScore, false
	case ActionRequireApproval, ActionEscalate:
		agent := first
		if rec != nil {
			agent = rec.AgentID
		}
		return agent, decisionType, voting.Confidence, true
	}

	agent := first
	if rec != nil && rec.Confidence > recommenderPickThreshold {
		agent = rec.AgentID
	}

	recConfidence := defaultRecommenderConfidence
	if rec != nil {
		recConfidence = rec.Confidence
	}
	combined := e.config.VotingWeight*voting.Confidence + e.config.GNNWeight*recConfidence

	return agent, decisionType, combined, combined < e.config.MinConfidence
}

func (e *DecisionEngine) updateMetrics(d Decision) {
	m := &e.metrics
	m.TotalDecisions++

	switch d.DecisionType {
	case VoteApprove:
		m.ApprovedDecisions++
	case VoteReject:
		m.RejectedDecisions++
	}
	if d.RequiresHumanApproval {
		m.EscalatedDecisions++
	}

	n := float64(m.TotalDecisions)
	m.AverageConfidence = (m.AverageConfidence*(n-1) + d.Confidence) / n
}

// buildGuardContext 意图参数先拷贝，派生信号覆盖同名参数
func buildGuardContext(intent types.SemanticIntent, voting ConsensusResult) map[string]any {
	ctx := make(map[string]any, len(intent.Parameters)+6)
	for k, v := range intent.Parameters {
		ctx[k] = v
	}
	ctx["action"] = intent.Action
	ctx["domain"] = string(intent.Domain)
	ctx["risk_score"] = 1.0 - voting.Confidence
	ctx["has_explanation"] = intent.Action != ""
	ctx["contains_pii"] = intent.BoolParam("contains_pii")
	ctx["impact"] = priorityImpact(intent.Priority)
	return ctx
}

// priorityImpact 优先级到影响度的映射，未知优先级按 Normal 处理
func priorityImpact(p types.IntentPriority) float64 {
	switch p {
	case types.PriorityCritical:
		return 1.0
	case types.PriorityHigh:
		return 0.7
	case types.PriorityLow:
		return 0.3
	default:
		return 0.5
	}
}

func historyEvents(intent types.SemanticIntent) []recommender.Event {
	v, ok := intent.Param(HistoryParam)
	if !ok {
		return nil
	}
	if events, ok := v.([]recommender.Event); ok {
		return append([]recommender.Event(nil), events...)
	}
	// 经 JSON 解码的意图中 history 是 []any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var events []recommender.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil
	}
	return events
}

func intentEmbeddings(intent types.SemanticIntent) map[string][]float64 {
	v, ok := intent.Param(EmbeddingsParam)
	if !ok {
		return nil
	}
	if emb, ok := v.(map[string][]float64); ok {
		return emb
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var emb map[string][]float64
	if err := json.Unmarshal(data, &emb); err != nil {
		return nil
	}
	return emb
}

func generateReasoning(voting ConsensusResult, rec *recommender.Prediction, guard EthicalEvaluation) string {
	parts := make([]string, 0, 3)

	if voting.ConsensusReached {
		verdict := "REJECTED"
		if voting.Decision == VoteApprove {
			verdict = "APPROVED"
		}
		parts = append(parts, fmt.Sprintf("Voting: %s with %.0f%% approval (%d/%d votes)",
			verdict, voting.Confidence*100, voting.ApproveVotes, voting.TotalVoters))
	} else {
		parts = append(parts, fmt.Sprintf("Voting: No consensus (quorum not met, %d/%d voted)",
			voting.ApproveVotes+voting.RejectVotes, voting.TotalVoters))
	}

	if rec != nil {
		parts = append(parts, fmt.Sprintf("Recommender: Recommends %s with %.0f%% confidence",
			rec.AgentID, rec.Confidence*100))
	}

	if !guard.Passes {
		parts = append(parts, fmt.Sprintf("Guardrails: %d violations detected (risk: %.0f%%)",
			len(guard.Violations), guard.RiskScore*100))
	} else {
		parts = append(parts, "Guardrails: All checks passed")
	}

	return strings.Join(parts, ". ")
}
