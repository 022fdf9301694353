// Package mocks 提供决策服务依赖的测试替身，均支持错误注入与调用记录。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/recommender"
)

// --- MockRecommender ---

// MockRecommender 返回预置推荐结果的推荐器
type MockRecommender struct {
	mu         sync.Mutex
	prediction *recommender.Prediction
	err        error
	calls      []recommender.Request
}

// NewMockRecommender 创建推荐器，默认返回 nil 结果
func NewMockRecommender() *MockRecommender {
	return &MockRecommender{}
}

// WithPrediction 设置推荐结果
func (m *MockRecommender) WithPrediction(p *recommender.Prediction) *MockRecommender {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prediction = p
	return m
}

// WithError 设置推荐错误
func (m *MockRecommender) WithError(err error) *MockRecommender {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Predict implements recommender.Recommender.
func (m *MockRecommender) Predict(ctx context.Context, req recommender.Request) (*recommender.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.prediction == nil {
		return nil, nil
	}
	p := *m.prediction
	return &p, nil
}

// Calls 返回收到的请求
func (m *MockRecommender) Calls() []recommender.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recommender.Request(nil), m.calls...)
}

// --- MockAuditSink ---

// MockAuditSink 记录所有写入的决策说明
type MockAuditSink struct {
	mu      sync.Mutex
	records []consensus.DecisionExplanation
	err     error
}

// NewMockAuditSink 创建审计接收器
func NewMockAuditSink() *MockAuditSink {
	return &MockAuditSink{}
}

// WithError 之后的每次 Record 都返回 err
func (m *MockAuditSink) WithError(err error) *MockAuditSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Record implements consensus.AuditSink.
func (m *MockAuditSink) Record(_ context.Context, exp consensus.DecisionExplanation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, exp)
	return nil
}

// Records 返回已记录的说明
func (m *MockAuditSink) Records() []consensus.DecisionExplanation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]consensus.DecisionExplanation(nil), m.records...)
}

// --- MockObserver ---

// ObservedDecision 一次决策观测
type ObservedDecision struct {
	Explanation consensus.DecisionExplanation
	Elapsed     time.Duration
}

// MockObserver 记录决策与审计写入观测
type MockObserver struct {
	mu          sync.Mutex
	decisions   []ObservedDecision
	auditErrors []error
	auditWrites int
}

// NewMockObserver 创建观测者
func NewMockObserver() *MockObserver {
	return &MockObserver{}
}

// ObserveDecision implements consensus.Observer.
func (m *MockObserver) ObserveDecision(_ context.Context, exp consensus.DecisionExplanation, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, ObservedDecision{Explanation: exp, Elapsed: elapsed})
}

// ObserveAuditWrite implements consensus.Observer.
func (m *MockObserver) ObserveAuditWrite(_ context.Context, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditWrites++
	if err != nil {
		m.auditErrors = append(m.auditErrors, err)
	}
}

// Decisions 返回观测到的决策
func (m *MockObserver) Decisions() []ObservedDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ObservedDecision(nil), m.decisions...)
}

// AuditWrites 返回审计写入次数与失败列表
func (m *MockObserver) AuditWrites() (int, []error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auditWrites, append([]error(nil), m.auditErrors...)
}
