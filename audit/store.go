package audit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/hido/types"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("audit entry not found")

// Store 审计记录存储。实现只追加，不提供更新与删除。
type Store interface {
	// Append 追加一条记录
	Append(ctx context.Context, entry Entry) error
	// Get 按决策 ID 查询记录
	Get(ctx context.Context, decisionID string) (Entry, error)
	// Last 返回序号最大的记录，空账本返回 ErrNotFound
	Last(ctx context.Context) (Entry, error)
	// List 按序号升序返回匹配的记录
	List(ctx context.Context, filter Filter) ([]Entry, error)
	// Count 返回记录总数
	Count(ctx context.Context) (int64, error)
	// Close 释放存储持有的资源
	Close(ctx context.Context) error
}

// Filter 列表查询条件，零值表示不限制
type Filter struct {
	DecisionType  string    `json:"decision_type,omitempty"`
	EscalatedOnly bool      `json:"escalated_only,omitempty"`
	Since         time.Time `json:"since,omitempty"`
	AfterSequence uint64    `json:"after_sequence,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// Match 判断记录是否满足条件
func (f Filter) Match(e Entry) bool {
	if f.DecisionType != "" && e.DecisionType != f.DecisionType {
		return false
	}
	if f.EscalatedOnly && !e.RequiresHumanApproval {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if f.AfterSequence > 0 && e.Sequence <= f.AfterSequence {
		return false
	}
	return true
}

func notFound(decisionID string) error {
	return types.NewNotFoundError("audit entry for decision " + decisionID + " not found").
		WithCause(ErrNotFound).
		WithComponent("audit")
}

func auditFailed(msg string, cause error) error {
	return types.NewError(types.ErrAuditFailed, msg).
		WithCause(cause).
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true).
		WithComponent("audit")
}
