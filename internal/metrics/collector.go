// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/consensus"
)

var _ consensus.Observer = (*Collector)(nil)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 决策指标
	decisionsTotal      *prometheus.CounterVec
	decisionConfidence  prometheus.Histogram
	decisionDuration    prometheus.Histogram
	consensusTotal      *prometheus.CounterVec
	ballotsTotal        *prometheus.CounterVec
	guardrailViolations *prometheus.CounterVec
	auditWritesTotal    *prometheus.CounterVec

	// 推荐器与策略指标
	recommenderRequests *prometheus.CounterVec
	policyReloads       *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 决策指标
	c.decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of decisions by outcome",
		},
		[]string{"decision_type", "escalated"},
	)

	c.decisionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_confidence",
			Help:      "Distribution of combined decision confidence",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	c.decisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent inside the decision engine",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	c.consensusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_total",
			Help:      "Voting rounds by whether consensus was reached",
		},
		[]string{"reached"},
	)

	c.ballotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ballots_total",
			Help:      "Counted ballots by vote type",
		},
		[]string{"vote_type"},
	)

	c.guardrailViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_violations_total",
			Help:      "Triggered guardrail rules",
		},
		[]string{"category", "action"},
	)

	c.auditWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Audit ledger writes by status",
		},
		[]string{"status"},
	)

	// 推荐器与策略指标
	c.recommenderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommender_requests_total",
			Help:      "Decisions by recommender outcome",
		},
		[]string{"status"}, // status: used, skipped
	)

	c.policyReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_reloads_total",
			Help:      "Guardrail policy reloads by status",
		},
		[]string{"status"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// ⚖️ 决策指标记录
// =============================================================================

// ObserveDecision implements consensus.Observer.
func (c *Collector) ObserveDecision(_ context.Context, exp consensus.DecisionExplanation, elapsed time.Duration) {
	d := exp.Decision
	c.decisionsTotal.WithLabelValues(string(d.DecisionType), boolLabel(d.RequiresHumanApproval)).Inc()
	c.decisionConfidence.Observe(d.Confidence)
	c.decisionDuration.Observe(elapsed.Seconds())

	vr := exp.VotingResult
	c.consensusTotal.WithLabelValues(boolLabel(vr.ConsensusReached)).Inc()
	c.ballotsTotal.WithLabelValues(string(consensus.VoteApprove)).Add(float64(vr.ApproveVotes))
	c.ballotsTotal.WithLabelValues(string(consensus.VoteReject)).Add(float64(vr.RejectVotes))
	c.ballotsTotal.WithLabelValues(string(consensus.VoteAbstain)).Add(float64(vr.AbstainVotes))

	for _, rule := range exp.GuardrailCheck.Violations {
		c.guardrailViolations.WithLabelValues(string(rule.Category), string(rule.Action)).Inc()
	}

	if exp.Recommendation != nil {
		c.recommenderRequests.WithLabelValues("used").Inc()
	} else {
		c.recommenderRequests.WithLabelValues("skipped").Inc()
	}
}

// ObserveAuditWrite implements consensus.Observer.
func (c *Collector) ObserveAuditWrite(_ context.Context, err error) {
	if err != nil {
		c.auditWritesTotal.WithLabelValues("error").Inc()
		return
	}
	c.auditWritesTotal.WithLabelValues("ok").Inc()
}

// RecordPolicyReload 记录策略重载结果
func (c *Collector) RecordPolicyReload(err error) {
	if err != nil {
		c.policyReloads.WithLabelValues("error").Inc()
		return
	}
	c.policyReloads.WithLabelValues("ok").Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
