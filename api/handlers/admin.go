package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/policy"
	"github.com/BaSui01/hido/types"
)

// =============================================================================
// 🔧 运维 Handler：配置视图与策略重载
// =============================================================================

// ConfigSource 提供脱敏后的配置，由 *config.Config 实现
type ConfigSource interface {
	Sanitized() (map[string]any, error)
}

// PolicyReloader 策略文件监听器，由 *policy.Watcher 实现
type PolicyReloader interface {
	Load() error
	Current() *policy.Document
	Stats() policy.WatcherStats
}

// PolicyStatus 策略重载结果
type PolicyStatus struct {
	Version string              `json:"version,omitempty"`
	Rules   int                 `json:"rules"`
	Stats   policy.WatcherStats `json:"stats"`
}

// AdminHandler 运维处理器。policy 为 nil 时策略接口返回 503。
type AdminHandler struct {
	config ConfigSource
	policy PolicyReloader
	logger *zap.Logger
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(config ConfigSource, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{config: config, logger: logger.With(zap.String("handler", "admin"))}
}

// WithPolicy 挂载策略监听器
func (h *AdminHandler) WithPolicy(reloader PolicyReloader) *AdminHandler {
	h.policy = reloader
	return h
}

// RegisterRoutes 注册路由，全部接口都经过 guard
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, guard Guard) {
	mux.Handle("GET /api/v1/config", guard.wrap(http.HandlerFunc(h.HandleConfig)))
	mux.Handle("GET /api/v1/policy", guard.wrap(http.HandlerFunc(h.HandlePolicyStatus)))
	mux.Handle("POST /api/v1/policy/reload", guard.wrap(http.HandlerFunc(h.HandlePolicyReload)))
}

// HandleConfig GET /api/v1/config，敏感字段以 [REDACTED] 代替
func (h *AdminHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	view, err := h.config.Sanitized()
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, view)
}

// HandlePolicyStatus GET /api/v1/policy
func (h *AdminHandler) HandlePolicyStatus(w http.ResponseWriter, r *http.Request) {
	if h.policy == nil {
		WriteError(w, r, policyDisabled(), h.logger)
		return
	}
	WriteSuccess(w, r, h.status())
}

// HandlePolicyReload POST /api/v1/policy/reload，立即重新加载策略文件。失败时保留当前规则。
func (h *AdminHandler) HandlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if h.policy == nil {
		WriteError(w, r, policyDisabled(), h.logger)
		return
	}
	if err := h.policy.Load(); err != nil {
		if _, ok := types.AsError(err); !ok {
			err = types.NewError(types.ErrInvalidRule, err.Error()).WithCause(err)
		}
		WriteError(w, r, err, h.logger)
		return
	}
	h.logger.Info("policy reloaded on request")
	WriteSuccess(w, r, h.status())
}

func (h *AdminHandler) status() PolicyStatus {
	st := PolicyStatus{Stats: h.policy.Stats()}
	if doc := h.policy.Current(); doc != nil {
		st.Version = doc.Version
		st.Rules = len(doc.ToRules())
	}
	return st
}

func policyDisabled() error {
	return types.NewError(types.ErrUnavailable, "policy file is not configured")
}
