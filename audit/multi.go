package audit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// backfillPageSize 镜像补齐时每页读取的记录数
const backfillPageSize = 200

// MultiStore 先写主后端，再并发补齐并写入镜像；读取只走主后端
type MultiStore struct {
	primary Store
	mirrors []Store
}

// NewMultiStore 创建扇出存储，第一个参数为主后端
func NewMultiStore(primary Store, mirrors ...Store) *MultiStore {
	return &MultiStore{primary: primary, mirrors: mirrors}
}

// Append 写入主后端后同步所有镜像。
// 主后端失败时不触碰镜像；镜像失败时返回错误，但主后端已持久化该记录，
// 落后的镜像在下一次 Append 时从主后端补齐缺失的记录。
func (m *MultiStore) Append(ctx context.Context, entry Entry) error {
	if err := m.primary.Append(ctx, entry); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range m.mirrors {
		i, s := i, s
		g.Go(func() error {
			if err := m.syncMirror(gctx, s, entry); err != nil {
				return fmt.Errorf("audit mirror %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// syncMirror 补齐镜像缺失的记录后追加 entry
func (m *MultiStore) syncMirror(ctx context.Context, mirror Store, entry Entry) error {
	var have uint64
	last, err := mirror.Last(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		have = last.Sequence
	}
	if have >= entry.Sequence {
		return nil
	}

	for have+1 < entry.Sequence {
		missing, err := m.primary.List(ctx, Filter{AfterSequence: have, Limit: min(int(entry.Sequence-have-1), backfillPageSize)})
		if err != nil {
			return fmt.Errorf("read backlog from primary: %w", err)
		}
		if len(missing) == 0 {
			break
		}
		for _, e := range missing {
			if e.Sequence >= entry.Sequence {
				break
			}
			if err := mirror.Append(ctx, e); err != nil {
				return err
			}
			have = e.Sequence
		}
	}
	return mirror.Append(ctx, entry)
}

// Get 从主后端读取
func (m *MultiStore) Get(ctx context.Context, decisionID string) (Entry, error) {
	return m.primary.Get(ctx, decisionID)
}

// Last 从主后端读取
func (m *MultiStore) Last(ctx context.Context) (Entry, error) {
	return m.primary.Last(ctx)
}

// List 从主后端读取
func (m *MultiStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	return m.primary.List(ctx, filter)
}

// Count 从主后端读取
func (m *MultiStore) Count(ctx context.Context) (int64, error) {
	return m.primary.Count(ctx)
}

// Close 关闭全部后端
func (m *MultiStore) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.all() {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiStore) all() []Store {
	return append([]Store{m.primary}, m.mirrors...)
}
