package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/types"
)

type failingStore struct {
	*MemoryStore
	appendErr error
}

func (s *failingStore) Append(ctx context.Context, e Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryStore.Append(ctx, e)
}

func newLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	l, err := NewLedger(context.Background(), store, zap.NewNop())
	require.NoError(t, err)
	l.now = func() time.Time { return baseTime }
	return l
}

func TestNewLedger_NilStore(t *testing.T) {
	_, err := NewLedger(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestLedger_RecordLinksEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := newLedger(t, store)

	seq, hash := l.Head()
	assert.Equal(t, uint64(0), seq)
	assert.Equal(t, GenesisHash, hash)

	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Record(ctx, explanation(fmt.Sprintf("d%d", i), consensus.VoteApprove, false)))
	}

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, GenesisHash, entries[0].PrevHash)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.Equal(t, entries[1].Hash, entries[2].PrevHash)

	seq, hash = l.Head()
	assert.Equal(t, uint64(3), seq)
	assert.Equal(t, entries[2].Hash, hash)

	report, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Entries)
}

func TestLedger_FailedAppendKeepsHead(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	l := newLedger(t, store)
	require.NoError(t, l.Record(ctx, explanation("d1", consensus.VoteApprove, false)))
	_, head := l.Head()

	store.appendErr = errors.New("disk full")
	err := l.Record(ctx, explanation("d2", consensus.VoteApprove, false))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAuditFailed))
	assert.True(t, types.IsRetryable(err))

	seq, hash := l.Head()
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, head, hash)

	store.appendErr = nil
	require.NoError(t, l.Record(ctx, explanation("d2", consensus.VoteApprove, false)))
	_, err = l.Verify(ctx)
	assert.NoError(t, err)
}

func TestLedger_VerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		seq    uint64
		mutate func(*Entry)
		reason string
	}{
		{"payload edited", 2, func(e *Entry) { e.Confidence = 0.1 }, "entry hash mismatch"},
		{"relinked", 3, func(e *Entry) { e.PrevHash = GenesisHash }, "prev_hash does not match previous entry"},
		{"renumbered", 2, func(e *Entry) { e.Sequence = 9 }, "expected sequence 2, got 9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			l := newLedger(t, store)
			for i := 1; i <= 4; i++ {
				require.NoError(t, l.Record(ctx, explanation(fmt.Sprintf("d%d", i), consensus.VoteApprove, false)))
			}

			store.tamper(tt.seq, tt.mutate)
			report, err := l.Verify(ctx)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrChainBroken))
			assert.False(t, report.Valid)
			assert.Equal(t, tt.reason, report.Reason)
			assert.Equal(t, int(tt.seq)-1, report.Entries)
		})
	}
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := newLedger(t, store)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, l.Record(ctx, explanation(fmt.Sprintf("w%d-%d", w, i), consensus.VoteReject, false)))
			}
		}(w)
	}
	wg.Wait()

	report, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80, report.Entries)
}

func TestLedger_AsServiceSink(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := newLedger(t, store)

	engine, err := consensus.NewDecisionEngine(consensus.DefaultEngineConfig())
	require.NoError(t, err)
	svc := consensus.NewService(engine, consensus.WithAuditSink(l))
	svc.RegisterAgent("v1", 1)

	d, _, err := svc.Decide(ctx, consensus.DecideRequest{
		Intent:     testIntent(),
		Candidates: []string{"agent-a"},
		Votes:      []consensus.Vote{consensus.NewVote("v1", consensus.VoteApprove)},
	})
	require.NoError(t, err)

	e, err := store.Get(ctx, d.ID)
	require.NoError(t, err)
	exp, err := e.Explanation()
	require.NoError(t, err)
	assert.Equal(t, d.ID, exp.Decision.ID)
	assert.Equal(t, "approve", e.DecisionType)
}

func testIntent() types.SemanticIntent {
	return types.NewIntent("tester", types.DomainData, "read")
}
