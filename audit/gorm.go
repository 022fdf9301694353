package audit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ GORM 审计存储
// =============================================================================

// GormStore 基于 GORM 的审计存储，表结构由 internal/migration 维护
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建 GORM 存储
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "audit_gorm_store")),
	}, nil
}

// Append 插入一条记录
func (s *GormStore) Append(ctx context.Context, entry Entry) error {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("failed to insert audit entry",
			zap.Uint64("sequence", entry.Sequence),
			zap.String("decision_id", entry.DecisionID),
			zap.Error(err))
		return fmt.Errorf("insert audit entry %d: %w", entry.Sequence, err)
	}
	return nil
}

// Get 按决策 ID 查询
func (s *GormStore) Get(ctx context.Context, decisionID string) (Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("decision_id = ?", decisionID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, notFound(decisionID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query audit entry %s: %w", decisionID, err)
	}
	return e, nil
}

// Last 返回序号最大的记录
func (s *GormStore) Last(ctx context.Context) (Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Order("sequence DESC").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query last audit entry: %w", err)
	}
	return e, nil
}

// List 按条件查询
func (s *GormStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	q := s.db.WithContext(ctx).Model(&Entry{})
	if filter.DecisionType != "" {
		q = q.Where("decision_type = ?", filter.DecisionType)
	}
	if filter.EscalatedOnly {
		q = q.Where("requires_human_approval = ?", true)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.AfterSequence > 0 {
		q = q.Where("sequence > ?", filter.AfterSequence)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	entries := make([]Entry, 0)
	if err := q.Order("sequence ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// Count 返回记录数
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Close 连接由 database.PoolManager 管理，这里不关闭
func (s *GormStore) Close(ctx context.Context) error {
	return nil
}
