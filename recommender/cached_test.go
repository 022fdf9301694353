package recommender

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/internal/cache"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "hido:"}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = manager.Close()
		mr.Close()
	})
	return mr, manager
}

func countingRecommender(calls *atomic.Int32, pred *Prediction, err error) Recommender {
	return Func(func(ctx context.Context, req Request) (*Prediction, error) {
		calls.Add(1)
		return pred, err
	})
}

func TestCachedRecommender_HitsCache(t *testing.T) {
	_, manager := setupTestCache(t)

	var calls atomic.Int32
	inner := countingRecommender(&calls, &Prediction{AgentID: "agent-1", Confidence: 0.9}, nil)
	rec := NewCachedRecommender(inner, manager, time.Minute, zap.NewNop())

	req := Request{QueryNode: "q", Candidates: []string{"agent-1", "agent-2"}}
	first, err := rec.Predict(context.Background(), req)
	require.NoError(t, err)
	second, err := rec.Predict(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.AgentID, second.AgentID)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestCachedRecommender_DistinctRequests(t *testing.T) {
	_, manager := setupTestCache(t)

	var calls atomic.Int32
	inner := countingRecommender(&calls, &Prediction{AgentID: "x", Confidence: 0.5}, nil)
	rec := NewCachedRecommender(inner, manager, time.Minute, nil)

	_, err := rec.Predict(context.Background(), Request{QueryNode: "q", Candidates: []string{"a"}})
	require.NoError(t, err)
	_, err = rec.Predict(context.Background(), Request{QueryNode: "q", Candidates: []string{"b"}})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedRecommender_ErrorsAreNotCached(t *testing.T) {
	_, manager := setupTestCache(t)

	var calls atomic.Int32
	inner := countingRecommender(&calls, nil, errors.New("model offline"))
	rec := NewCachedRecommender(inner, manager, time.Minute, nil)

	req := Request{QueryNode: "q", Candidates: []string{"a"}}
	_, err := rec.Predict(context.Background(), req)
	require.Error(t, err)
	_, err = rec.Predict(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedRecommender_CacheDownFallsThrough(t *testing.T) {
	mr, manager := setupTestCache(t)
	mr.Close()

	var calls atomic.Int32
	inner := countingRecommender(&calls, &Prediction{AgentID: "a", Confidence: 0.7}, nil)
	rec := NewCachedRecommender(inner, manager, time.Minute, nil)

	pred, err := rec.Predict(context.Background(), Request{QueryNode: "q", Candidates: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "a", pred.AgentID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestKey_Deterministic(t *testing.T) {
	req := Request{
		NodeEmbeddings: map[string][]float64{"b": {1}, "a": {2}},
		QueryNode:      "q",
		Candidates:     []string{"a", "b"},
	}
	k1, err := RequestKey(req)
	require.NoError(t, err)
	k2, err := RequestKey(req)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Contains(t, k1, "recommender:")
}

type countingObserver struct {
	hits, misses atomic.Int32
}

func (o *countingObserver) RecordCacheHit(string)  { o.hits.Add(1) }
func (o *countingObserver) RecordCacheMiss(string) { o.misses.Add(1) }

func TestCachedRecommender_ReportsHitsAndMisses(t *testing.T) {
	_, manager := setupTestCache(t)

	var calls atomic.Int32
	obs := &countingObserver{}
	rec := NewCachedRecommender(
		countingRecommender(&calls, &Prediction{AgentID: "agent-1", Confidence: 0.9}, nil),
		manager, time.Minute, nil,
	).WithObserver(obs)

	req := Request{QueryNode: "q", Candidates: []string{"agent-1"}}
	for i := 0; i < 3; i++ {
		_, err := rec.Predict(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), obs.misses.Load())
	assert.Equal(t, int32(2), obs.hits.Load())
}

func TestCachedRecommender_EventsBypassCache(t *testing.T) {
	mr, manager := setupTestCache(t)

	var calls atomic.Int32
	inner := countingRecommender(&calls, &Prediction{AgentID: "agent-1", Confidence: 0.9}, nil)
	rec := NewCachedRecommender(inner, manager, time.Minute, zap.NewNop())

	req := Request{
		QueryNode:  "q",
		Candidates: []string{"agent-1"},
		Events:     []Event{{ID: "e1", Type: "completed", AgentID: "agent-1", Timestamp: time.Now()}},
	}
	for i := 0; i < 2; i++ {
		_, err := rec.Predict(context.Background(), req)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, mr.Keys())
}
