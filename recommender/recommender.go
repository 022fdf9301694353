package recommender

import (
	"context"
	"time"
)

// Edge 有向边
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Event 带时间戳的事件。AgentID 非空时该事件归属于某个候选。
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// Request 一次预测请求
type Request struct {
	NodeEmbeddings map[string][]float64 `json:"node_embeddings,omitempty"`
	Edges          []Edge               `json:"edges,omitempty"`
	QueryNode      string               `json:"query_node"`
	Candidates     []string             `json:"candidates"`
	Events         []Event              `json:"events,omitempty"`
}

// Alternative 备选候选及其概率
type Alternative struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// Prediction 推荐结果
type Prediction struct {
	AgentID      string             `json:"agent_id"`
	Confidence   float64            `json:"confidence"`
	Alternatives []Alternative      `json:"alternatives,omitempty"`
	Explanation  map[string]float64 `json:"explanation,omitempty"`
}

// Recommender 推荐器接口
type Recommender interface {
	Predict(ctx context.Context, req Request) (*Prediction, error)
}

// Func 将普通函数适配为 Recommender
type Func func(ctx context.Context, req Request) (*Prediction, error)

// Predict implements Recommender.
func (f Func) Predict(ctx context.Context, req Request) (*Prediction, error) {
	return f(ctx, req)
}
