package recommender

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/types"
)

// SimilarityConfig 相似度推荐器配置
type SimilarityConfig struct {
	Dimension       int     `json:"dimension" yaml:"dimension"`
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	DecayFactor     float64 `json:"decay_factor" yaml:"decay_factor"` // 每小时衰减率
	EventBoost      float64 `json:"event_boost" yaml:"event_boost"`
	MaxAlternatives int     `json:"max_alternatives" yaml:"max_alternatives"`
}

// DefaultSimilarityConfig 默认配置
func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		Dimension:       64,
		Temperature:     1.0,
		DecayFactor:     0.1,
		EventBoost:      0.1,
		MaxAlternatives: 3,
	}
}

// Validate 校验配置
func (c SimilarityConfig) Validate() error {
	if c.Dimension <= 0 {
		return invalidConfig(fmt.Sprintf("dimension must be positive, got %d", c.Dimension))
	}
	if c.Temperature <= 0 {
		return invalidConfig(fmt.Sprintf("temperature must be positive, got %v", c.Temperature))
	}
	if c.DecayFactor < 0 {
		return invalidConfig("decay_factor must not be negative")
	}
	if c.MaxAlternatives < 0 {
		return invalidConfig("max_alternatives must not be negative")
	}
	return nil
}

// SimilarityRecommender 基于嵌入相似度的推荐器
type SimilarityRecommender struct {
	config     SimilarityConfig
	embeddings map[string][]float64
	mu         sync.RWMutex
	logger     *zap.Logger
	now        func() time.Time
}

// NewSimilarityRecommender 创建推荐器，配置非法时立即失败
func NewSimilarityRecommender(config SimilarityConfig, logger *zap.Logger) (*SimilarityRecommender, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimilarityRecommender{
		config:     config,
		embeddings: make(map[string][]float64),
		logger:     logger.With(zap.String("component", "similarity_recommender")),
		now:        time.Now,
	}, nil
}

// SetEmbedding 登记某个节点的嵌入，维度不符时返回 INVALID_CONFIG
func (r *SimilarityRecommender) SetEmbedding(nodeID string, embedding []float64) error {
	if len(embedding) != r.config.Dimension {
		return dimensionMismatch(nodeID, len(embedding), r.config.Dimension)
	}
	cp := make([]float64, len(embedding))
	copy(cp, embedding)

	r.mu.Lock()
	r.embeddings[nodeID] = cp
	r.mu.Unlock()
	return nil
}

// RemoveEmbedding 删除节点嵌入
func (r *SimilarityRecommender) RemoveEmbedding(nodeID string) {
	r.mu.Lock()
	delete(r.embeddings, nodeID)
	r.mu.Unlock()
}

// Predict implements Recommender.
func (r *SimilarityRecommender) Predict(ctx context.Context, req Request) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Candidates) == 0 {
		return nil, types.NewError(types.ErrNoCandidates, "no candidates to rank").
			WithHTTPStatus(400).
			WithComponent("recommender")
	}

	nodes, err := r.mergeEmbeddings(req.NodeEmbeddings)
	if err != nil {
		return nil, err
	}
	updated := aggregateNeighbors(nodes, req.Edges)

	query := updated[req.QueryNode]
	if query == nil {
		query = make([]float64, r.config.Dimension)
	}
	query = r.blendEvents(query, req.Events)
	boosts := r.eventBoosts(req.Events)

	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		emb, ok := updated[c]
		if !ok {
			continue
		}
		scores = append(scores, scored{id: c, score: cosine(query, emb) + boosts[c]})
	}
	if len(scores) == 0 {
		return nil, types.NewError(types.ErrNoCandidates, "no candidate has an embedding").
			WithHTTPStatus(422).
			WithComponent("recommender")
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	raw := make([]float64, len(scores))
	for i, s := range scores {
		raw[i] = s.score / r.config.Temperature
	}
	probs := softmax(raw)

	pred := &Prediction{
		AgentID:    scores[0].id,
		Confidence: probs[0],
		Explanation: map[string]float64{
			"similarity":   scores[0].score - boosts[scores[0].id],
			"event_boost":  boosts[scores[0].id],
			"candidates":   float64(len(scores)),
			"neighborhood": float64(len(req.Edges)),
		},
	}
	for i := 1; i < len(scores) && i <= r.config.MaxAlternatives; i++ {
		pred.Alternatives = append(pred.Alternatives, Alternative{AgentID: scores[i].id, Score: probs[i]})
	}

	r.logger.Debug("prediction computed",
		zap.String("query", req.QueryNode),
		zap.String("agent_id", pred.AgentID),
		zap.Float64("confidence", pred.Confidence),
		zap.Int("scored", len(scores)))

	return pred, nil
}

// mergeEmbeddings 请求中的嵌入覆盖已登记的嵌入
func (r *SimilarityRecommender) mergeEmbeddings(extra map[string][]float64) (map[string][]float64, error) {
	r.mu.RLock()
	nodes := make(map[string][]float64, len(r.embeddings)+len(extra))
	for id, emb := range r.embeddings {
		nodes[id] = emb
	}
	r.mu.RUnlock()

	for id, emb := range extra {
		if len(emb) != r.config.Dimension {
			return nil, dimensionMismatch(id, len(emb), r.config.Dimension)
		}
		nodes[id] = emb
	}
	return nodes, nil
}

// blendEvents 将未归属候选的事件嵌入按时间衰减加权混入查询向量
func (r *SimilarityRecommender) blendEvents(query []float64, events []Event) []float64 {
	out := make([]float64, len(query))
	copy(out, query)

	now := r.now()
	for _, e := range events {
		if e.AgentID != "" || len(e.Embedding) != len(out) {
			continue
		}
		w := r.decay(e.Timestamp, now)
		for i := range out {
			out[i] += w * e.Embedding[i]
		}
	}
	return out
}

// eventBoosts 归属于候选的事件按时间衰减累加加成
func (r *SimilarityRecommender) eventBoosts(events []Event) map[string]float64 {
	boosts := make(map[string]float64)
	now := r.now()
	for _, e := range events {
		if e.AgentID == "" {
			continue
		}
		boosts[e.AgentID] += r.config.EventBoost * r.decay(e.Timestamp, now)
	}
	return boosts
}

func (r *SimilarityRecommender) decay(eventTime, reference time.Time) float64 {
	hours := math.Abs(reference.Sub(eventTime).Hours())
	return math.Exp(-r.config.DecayFactor * hours)
}

// aggregateNeighbors 一轮邻居均值聚合：h' = (h + Σ neighbors) / (1 + deg)
func aggregateNeighbors(nodes map[string][]float64, edges []Edge) map[string][]float64 {
	neighbors := make(map[string][]string)
	for _, e := range edges {
		if _, ok := nodes[e.From]; !ok {
			continue
		}
		if _, ok := nodes[e.To]; !ok {
			continue
		}
		neighbors[e.To] = append(neighbors[e.To], e.From)
	}

	out := make(map[string][]float64, len(nodes))
	for id, emb := range nodes {
		agg := make([]float64, len(emb))
		copy(agg, emb)
		ns := neighbors[id]
		for _, n := range ns {
			for i, v := range nodes[n] {
				agg[i] += v
			}
		}
		scale := 1.0 / float64(1+len(ns))
		for i := range agg {
			agg[i] *= scale
		}
		out[id] = agg
	}
	return out
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func dimensionMismatch(nodeID string, got, want int) error {
	return invalidConfig(fmt.Sprintf("embedding for %s has dimension %d, want %d", nodeID, got, want))
}

func invalidConfig(message string) error {
	return types.NewInvalidConfigError(message).WithComponent("recommender")
}
