package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 进程内审计存储
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []Entry
	byDecision map[string]int
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byDecision: make(map[string]int)}
}

// Append 追加记录，决策 ID 与序号都必须唯一
func (s *MemoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byDecision[entry.DecisionID]; ok {
		return fmt.Errorf("decision %s already recorded", entry.DecisionID)
	}
	if n := len(s.entries); n > 0 && entry.Sequence <= s.entries[n-1].Sequence {
		return fmt.Errorf("sequence %d not after %d", entry.Sequence, s.entries[n-1].Sequence)
	}
	s.byDecision[entry.DecisionID] = len(s.entries)
	s.entries = append(s.entries, entry)
	return nil
}

// Get 按决策 ID 查询
func (s *MemoryStore) Get(ctx context.Context, decisionID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byDecision[decisionID]
	if !ok {
		return Entry{}, notFound(decisionID)
	}
	return s.entries[i], nil
}

// Last 返回最后一条记录
func (s *MemoryStore) Last(ctx context.Context) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return s.entries[len(s.entries)-1], nil
}

// List 按序号升序过滤
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range s.entries {
		if !filter.Match(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Count 返回记录数
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Close 无资源需要释放
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
