package recommender

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/hido/types"
)

func newTestRecommender(t *testing.T, dim int) *SimilarityRecommender {
	t.Helper()
	cfg := DefaultSimilarityConfig()
	cfg.Dimension = dim
	r, err := NewSimilarityRecommender(cfg, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestSimilarityConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SimilarityConfig)
	}{
		{"zero dimension", func(c *SimilarityConfig) { c.Dimension = 0 }},
		{"zero temperature", func(c *SimilarityConfig) { c.Temperature = 0 }},
		{"negative decay", func(c *SimilarityConfig) { c.DecayFactor = -1 }},
		{"negative alternatives", func(c *SimilarityConfig) { c.MaxAlternatives = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSimilarityConfig()
			tt.mutate(&cfg)
			_, err := NewSimilarityRecommender(cfg, nil)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
		})
	}
}

func TestSimilarityRecommender_DimensionMismatchFailsFast(t *testing.T) {
	r := newTestRecommender(t, 3)

	err := r.SetEmbedding("agent-1", []float64{1, 2})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))

	_, err = r.Predict(context.Background(), Request{
		NodeEmbeddings: map[string][]float64{"agent-2": {1}},
		QueryNode:      "q",
		Candidates:     []string{"agent-2"},
	})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
}

func TestSimilarityRecommender_PicksMostSimilar(t *testing.T) {
	r := newTestRecommender(t, 3)
	require.NoError(t, r.SetEmbedding("sender", []float64{1, 0, 0}))
	require.NoError(t, r.SetEmbedding("close", []float64{0.9, 0.1, 0}))
	require.NoError(t, r.SetEmbedding("far", []float64{0, 0, 1}))
	require.NoError(t, r.SetEmbedding("mid", []float64{0.5, 0.5, 0}))

	pred, err := r.Predict(context.Background(), Request{
		QueryNode:  "sender",
		Candidates: []string{"far", "mid", "close"},
	})
	require.NoError(t, err)

	assert.Equal(t, "close", pred.AgentID)
	assert.Greater(t, pred.Confidence, 0.0)
	assert.LessOrEqual(t, pred.Confidence, 1.0)
	require.Len(t, pred.Alternatives, 2)
	assert.Equal(t, "mid", pred.Alternatives[0].AgentID)
	assert.Equal(t, "far", pred.Alternatives[1].AgentID)
}

func TestSimilarityRecommender_SkipsUnknownCandidates(t *testing.T) {
	r := newTestRecommender(t, 2)
	require.NoError(t, r.SetEmbedding("q", []float64{1, 0}))

	_, err := r.Predict(context.Background(), Request{QueryNode: "q", Candidates: []string{"ghost"}})
	assert.True(t, types.IsErrorCode(err, types.ErrNoCandidates))

	_, err = r.Predict(context.Background(), Request{QueryNode: "q"})
	assert.True(t, types.IsErrorCode(err, types.ErrNoCandidates))
}

func TestSimilarityRecommender_RequestEmbeddingsOverride(t *testing.T) {
	r := newTestRecommender(t, 2)
	require.NoError(t, r.SetEmbedding("q", []float64{1, 0}))
	require.NoError(t, r.SetEmbedding("a", []float64{1, 0}))
	require.NoError(t, r.SetEmbedding("b", []float64{0, 1}))

	pred, err := r.Predict(context.Background(), Request{
		NodeEmbeddings: map[string][]float64{"a": {0, 1}, "b": {1, 0}},
		QueryNode:      "q",
		Candidates:     []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", pred.AgentID)
}

func TestSimilarityRecommender_EventBoost(t *testing.T) {
	cfg := DefaultSimilarityConfig()
	cfg.Dimension = 2
	cfg.EventBoost = 5
	r, err := NewSimilarityRecommender(cfg, nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.SetEmbedding("q", []float64{1, 0}))
	require.NoError(t, r.SetEmbedding("a", []float64{1, 0}))
	require.NoError(t, r.SetEmbedding("b", []float64{0, 1}))

	pred, err := r.Predict(context.Background(), Request{
		QueryNode:  "q",
		Candidates: []string{"a", "b"},
		Events: []Event{
			{ID: "e1", Type: "completed", AgentID: "b", Timestamp: now.Add(-time.Minute)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", pred.AgentID)
	assert.Greater(t, pred.Explanation["event_boost"], 4.9)
}

func TestSimilarityRecommender_DecayFavorsRecentEvents(t *testing.T) {
	r := newTestRecommender(t, 2)
	now := time.Now()
	assert.Greater(t, r.decay(now.Add(-time.Minute), now), r.decay(now.Add(-48*time.Hour), now))
	assert.InDelta(t, 1.0, r.decay(now, now), 1e-12)
}

func TestSimilarityRecommender_NeighborAggregation(t *testing.T) {
	nodes := map[string][]float64{
		"a": {1, 0},
		"b": {0, 1},
	}
	out := aggregateNeighbors(nodes, []Edge{{From: "a", To: "b"}, {From: "a", To: "missing"}})
	assert.Equal(t, []float64{1, 0}, out["a"])
	assert.Equal(t, []float64{0.5, 0.5}, out["b"])
	// 原始嵌入不被修改
	assert.Equal(t, []float64{0, 1}, nodes["b"])
}

func TestSimilarityRecommender_CancelledContext(t *testing.T) {
	r := newTestRecommender(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Predict(ctx, Request{QueryNode: "q", Candidates: []string{"a"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCosineAndSoftmax(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 1}, []float64{2, 2}), 1e-12)
	assert.Equal(t, 0.0, cosine([]float64{0, 0}, []float64{1, 0}))

	probs := softmax([]float64{1, 1})
	assert.InDelta(t, 0.5, probs[0], 1e-12)
	assert.Empty(t, softmax(nil))
}

func TestProperty_SimilarityRecommender_ConfidenceBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dim := rapid.IntRange(1, 8).Draw(rt, "dim")
		n := rapid.IntRange(1, 10).Draw(rt, "candidates")

		cfg := DefaultSimilarityConfig()
		cfg.Dimension = dim
		r, err := NewSimilarityRecommender(cfg, nil)
		if err != nil {
			rt.Fatal(err)
		}

		vec := rapid.SliceOfN(rapid.Float64Range(-10, 10), dim, dim)
		if err := r.SetEmbedding("q", vec.Draw(rt, "q")); err != nil {
			rt.Fatal(err)
		}
		candidates := make([]string, n)
		for i := range candidates {
			candidates[i] = fmt.Sprintf("agent-%d", i)
			if err := r.SetEmbedding(candidates[i], vec.Draw(rt, candidates[i])); err != nil {
				rt.Fatal(err)
			}
		}

		pred, err := r.Predict(context.Background(), Request{QueryNode: "q", Candidates: candidates})
		if err != nil {
			rt.Fatal(err)
		}
		if pred.Confidence < 0 || pred.Confidence > 1 {
			rt.Fatalf("confidence out of range: %v", pred.Confidence)
		}
		if len(pred.Alternatives) > cfg.MaxAlternatives {
			rt.Fatalf("too many alternatives: %d", len(pred.Alternatives))
		}
		for _, alt := range pred.Alternatives {
			if alt.Score > pred.Confidence+1e-12 {
				rt.Fatalf("alternative %s outranks top pick", alt.AgentID)
			}
		}
	})
}
