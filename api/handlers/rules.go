package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/policy"
	"github.com/BaSui01/hido/types"
)

// =============================================================================
// 🛡️ 护栏规则 Handler
// =============================================================================

// RuleService 护栏规则集，由 *consensus.Service 实现
type RuleService interface {
	AddRule(rule consensus.GuardrailRule)
	RemoveRule(ruleID string) bool
	Rules() []consensus.GuardrailRule
	GuardrailStats() consensus.GuardrailStats
	Violations() []consensus.ViolationRecord
	ClearViolations()
}

// RuleHandler 护栏规则处理器
type RuleHandler struct {
	service RuleService
	logger  *zap.Logger
}

// NewRuleHandler 创建规则处理器
func NewRuleHandler(service RuleService, logger *zap.Logger) *RuleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleHandler{service: service, logger: logger.With(zap.String("handler", "rules"))}
}

// RegisterRoutes 注册路由。guard 包裹变更类接口。
func (h *RuleHandler) RegisterRoutes(mux *http.ServeMux, guard Guard) {
	mux.HandleFunc("GET /api/v1/rules", h.HandleList)
	mux.Handle("POST /api/v1/rules", guard.wrap(http.HandlerFunc(h.HandleAdd)))
	mux.Handle("DELETE /api/v1/rules/{id}", guard.wrap(http.HandlerFunc(h.HandleRemove)))
	mux.HandleFunc("GET /api/v1/rules/stats", h.HandleStats)
	mux.HandleFunc("GET /api/v1/rules/violations", h.HandleViolations)
	mux.Handle("DELETE /api/v1/rules/violations", guard.wrap(http.HandlerFunc(h.HandleClearViolations)))
}

// HandleList GET /api/v1/rules，按评估顺序返回
func (h *RuleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	rules := h.service.Rules()
	specs := make([]policy.RuleSpec, 0, len(rules))
	for _, rule := range rules {
		specs = append(specs, policy.FromRule(rule))
	}
	WriteSuccess(w, r, specs)
}

// HandleAdd POST /api/v1/rules，规则追加到评估顺序末尾
func (h *RuleHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var spec policy.RuleSpec
	if err := DecodeJSONBody(w, r, &spec, h.logger); err != nil {
		return
	}
	if err := spec.Validate(); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRule, err.Error()).WithCause(err), h.logger)
		return
	}
	for _, existing := range h.service.Rules() {
		if existing.ID == spec.ID {
			WriteError(w, r, types.NewError(types.ErrInvalidRule, "rule "+spec.ID+" already exists").
				WithHTTPStatus(http.StatusConflict), h.logger)
			return
		}
	}

	rule := spec.ToRule()
	h.service.AddRule(rule)
	WriteCreated(w, r, policy.FromRule(rule))
}

// HandleRemove DELETE /api/v1/rules/{id}
func (h *RuleHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.service.RemoveRule(id) {
		WriteError(w, r, types.NewNotFoundError("rule "+id+" not found"), h.logger)
		return
	}
	h.logger.Info("guardrail rule removed", zap.String("rule_id", id))
	WriteSuccess(w, r, map[string]string{"id": id})
}

// HandleStats GET /api/v1/rules/stats
func (h *RuleHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.service.GuardrailStats())
}

// HandleViolations GET /api/v1/rules/violations?limit=N，返回最近 N 条
func (h *RuleHandler) HandleViolations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	records := h.service.Violations()
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	WriteSuccess(w, r, records)
}

// HandleClearViolations DELETE /api/v1/rules/violations
func (h *RuleHandler) HandleClearViolations(w http.ResponseWriter, r *http.Request) {
	h.service.ClearViolations()
	h.logger.Info("guardrail violation log cleared")
	WriteSuccess(w, r, map[string]bool{"cleared": true})
}
