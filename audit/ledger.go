package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/types"
)

var _ consensus.AuditSink = (*Ledger)(nil)

// VerifyReport 链校验结果
type VerifyReport struct {
	Entries  int    `json:"entries"`
	LastHash string `json:"last_hash"`
	Valid    bool   `json:"valid"`
	BrokenAt uint64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Ledger 哈希链审计账本，串行化追加
type Ledger struct {
	mu       sync.Mutex
	store    Store
	logger   *zap.Logger
	now      func() time.Time
	lastSeq  uint64
	lastHash string
}

// NewLedger 创建账本，从存储中恢复链尾
func NewLedger(ctx context.Context, store Store, logger *zap.Logger) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Ledger{
		store:    store,
		logger:   logger.With(zap.String("component", "audit_ledger")),
		now:      time.Now,
		lastHash: GenesisHash,
	}

	last, err := store.Last(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, auditFailed("failed to load audit chain head", err)
	default:
		l.lastSeq = last.Sequence
		l.lastHash = last.Hash
	}

	l.logger.Info("audit ledger opened",
		zap.Uint64("head_sequence", l.lastSeq),
		zap.String("head_hash", l.lastHash))
	return l, nil
}

// Store 底层存储，供查询使用
func (l *Ledger) Store() Store {
	return l.store
}

// Record 追加一条决策解释。失败时按存储中的实际链尾重新对齐。
func (l *Ledger) Record(ctx context.Context, exp consensus.DecisionExplanation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := NewEntry(exp, l.lastSeq+1, l.lastHash, l.now())
	if err != nil {
		return auditFailed("failed to build audit entry", err)
	}
	if err := l.store.Append(ctx, entry); err != nil {
		l.resyncHead(ctx)
		return auditFailed(fmt.Sprintf("failed to append audit entry %d", entry.Sequence), err)
	}

	l.lastSeq = entry.Sequence
	l.lastHash = entry.Hash
	l.logger.Debug("audit entry appended",
		zap.Uint64("sequence", entry.Sequence),
		zap.String("decision_id", entry.DecisionID),
		zap.String("hash", entry.Hash))
	return nil
}

// resyncHead 追加失败后从存储读取链尾。
// 扇出存储可能已在主后端写入记录，链尾必须跟随主后端。
func (l *Ledger) resyncHead(ctx context.Context) {
	last, err := l.store.Last(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		l.lastSeq, l.lastHash = 0, GenesisHash
	case err != nil:
		l.logger.Warn("failed to reload audit chain head", zap.Error(err))
	default:
		if last.Sequence != l.lastSeq {
			l.logger.Warn("audit chain head moved by failed append",
				zap.Uint64("previous_sequence", l.lastSeq),
				zap.Uint64("head_sequence", last.Sequence))
		}
		l.lastSeq = last.Sequence
		l.lastHash = last.Hash
	}
}

// Head 返回链尾序号与哈希
func (l *Ledger) Head() (uint64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq, l.lastHash
}

// Verify 从创世记录开始校验整条链。链断裂时返回 CHAIN_BROKEN 错误和报告。
func (l *Ledger) Verify(ctx context.Context) (VerifyReport, error) {
	return VerifyStore(ctx, l.store, 0)
}

// VerifyStore 以分页方式校验任意存储中的链
func VerifyStore(ctx context.Context, store Store, pageSize int) (VerifyReport, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	report := VerifyReport{LastHash: GenesisHash, Valid: true}
	var seq uint64
	for {
		page, err := store.List(ctx, Filter{AfterSequence: seq, Limit: pageSize})
		if err != nil {
			return report, auditFailed("failed to read audit chain", err)
		}
		for _, e := range page {
			if reason := checkLink(e, seq+1, report.LastHash); reason != "" {
				report.Valid = false
				report.BrokenAt = e.Sequence
				report.Reason = reason
				return report, types.NewError(types.ErrChainBroken,
					fmt.Sprintf("audit chain broken at sequence %d: %s", e.Sequence, reason)).
					WithHTTPStatus(http.StatusConflict).
					WithComponent("audit")
			}
			seq = e.Sequence
			report.LastHash = e.Hash
			report.Entries++
		}
		if len(page) < pageSize {
			return report, nil
		}
	}
}

func checkLink(e Entry, wantSeq uint64, wantPrev string) string {
	if e.Sequence != wantSeq {
		return fmt.Sprintf("expected sequence %d, got %d", wantSeq, e.Sequence)
	}
	if e.PrevHash != wantPrev {
		return "prev_hash does not match previous entry"
	}
	hash, err := e.ComputeHash()
	if err != nil {
		return err.Error()
	}
	if hash != e.Hash {
		return "entry hash mismatch"
	}
	return ""
}
