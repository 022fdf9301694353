package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/types"
)

// =============================================================================
// 📜 审计账本 Handler
// =============================================================================

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditLedger 审计账本，由 *audit.Ledger 实现
type AuditLedger interface {
	Store() audit.Store
	Head() (uint64, string)
	Verify(ctx context.Context) (audit.VerifyReport, error)
}

// AuditEntryResponse 单条审计记录及其解码后的决策解释
type AuditEntryResponse struct {
	Entry       audit.Entry                   `json:"entry"`
	Explanation consensus.DecisionExplanation `json:"explanation"`
}

// AuditHead 链尾
type AuditHead struct {
	Sequence uint64 `json:"sequence"`
	Hash     string `json:"hash"`
}

// AuditHandler 审计处理器
type AuditHandler struct {
	ledger AuditLedger
	logger *zap.Logger
}

// NewAuditHandler 创建审计处理器
func NewAuditHandler(ledger AuditLedger, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{ledger: ledger, logger: logger.With(zap.String("handler", "audit"))}
}

// RegisterRoutes 注册路由
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/audit", h.HandleList)
	mux.HandleFunc("GET /api/v1/audit/head", h.HandleHead)
	mux.HandleFunc("GET /api/v1/audit/verify", h.HandleVerify)
	mux.HandleFunc("GET /api/v1/audit/{decision_id}", h.HandleGet)
}

// HandleList GET /api/v1/audit?decision_type=&escalated_only=&since=&after_sequence=&limit=
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	entries, err := h.ledger.Store().List(r.Context(), filter)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	WriteSuccess(w, r, entries)
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		DecisionType:  q.Get("decision_type"),
		EscalatedOnly: q.Get("escalated_only") == "true",
	}

	if dt := consensus.VoteType(filter.DecisionType); filter.DecisionType != "" && !dt.Valid() {
		return filter, types.NewInvalidRequestError("decision_type must be one of approve, reject, abstain")
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, types.NewInvalidRequestError("since must be an RFC 3339 timestamp").WithCause(err)
		}
		filter.Since = since
	}
	if raw := q.Get("after_sequence"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, types.NewInvalidRequestError("after_sequence must be a non-negative integer").WithCause(err)
		}
		filter.AfterSequence = seq
	}

	limit, err := queryInt(r, "limit", defaultAuditLimit)
	if err != nil {
		return filter, err
	}
	if limit == 0 || limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	filter.Limit = limit
	return filter, nil
}

// HandleGet GET /api/v1/audit/{decision_id}
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.Store().Get(r.Context(), r.PathValue("decision_id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	exp, err := entry.Explanation()
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, AuditEntryResponse{Entry: entry, Explanation: exp})
}

// HandleHead GET /api/v1/audit/head
func (h *AuditHandler) HandleHead(w http.ResponseWriter, r *http.Request) {
	seq, hash := h.ledger.Head()
	WriteSuccess(w, r, AuditHead{Sequence: seq, Hash: hash})
}

// HandleVerify GET /api/v1/audit/verify。链断裂时仍返回 200，报告中 valid=false。
func (h *AuditHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Verify(r.Context())
	if err != nil && !types.IsErrorCode(err, types.ErrChainBroken) {
		WriteError(w, r, err, h.logger)
		return
	}
	if !report.Valid {
		h.logger.Warn("audit chain verification failed",
			zap.Uint64("broken_at", report.BrokenAt),
			zap.String("reason", report.Reason))
	}
	WriteSuccess(w, r, report)
}
