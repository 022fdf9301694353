package handlers

import (
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/types"
)

// =============================================================================
// 🗳️ 投票者管理 Handler
// =============================================================================

// VoterService 投票者注册表，由 *consensus.Service 实现
type VoterService interface {
	RegisterAgent(voterID string, weight float64) consensus.VoterInfo
	UnregisterAgent(voterID string) bool
	Voters() []consensus.VoterInfo
	ByzantineTolerance() consensus.ByzantineTolerance
}

// RegisterVoterRequest 注册请求。Weight 省略时为 1.0。
type RegisterVoterRequest struct {
	ID     string   `json:"id"`
	Weight *float64 `json:"weight,omitempty"`
}

// VoterHandler 投票者处理器
type VoterHandler struct {
	service VoterService
	logger  *zap.Logger
}

// NewVoterHandler 创建投票者处理器
func NewVoterHandler(service VoterService, logger *zap.Logger) *VoterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoterHandler{service: service, logger: logger.With(zap.String("handler", "voters"))}
}

// RegisterRoutes 注册路由。guard 包裹变更类接口。
func (h *VoterHandler) RegisterRoutes(mux *http.ServeMux, guard Guard) {
	mux.HandleFunc("GET /api/v1/voters", h.HandleList)
	mux.Handle("POST /api/v1/voters", guard.wrap(http.HandlerFunc(h.HandleRegister)))
	mux.Handle("DELETE /api/v1/voters/{id}", guard.wrap(http.HandlerFunc(h.HandleUnregister)))
	mux.HandleFunc("GET /api/v1/voters/tolerance", h.HandleTolerance)
}

// HandleList GET /api/v1/voters
func (h *VoterHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.service.Voters())
}

// HandleRegister POST /api/v1/voters，同 ID 重复注册会替换原有权重
func (h *VoterHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req RegisterVoterRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		WriteError(w, r, types.NewInvalidRequestError("voter id is required"), h.logger)
		return
	}
	weight := 1.0
	if req.Weight != nil {
		weight = *req.Weight
		if math.IsNaN(weight) || weight < 0 || weight > 1 {
			WriteError(w, r, types.NewInvalidRequestError("weight must be in [0,1]"), h.logger)
			return
		}
	}

	info := h.service.RegisterAgent(req.ID, weight)
	WriteCreated(w, r, info)
}

// HandleUnregister DELETE /api/v1/voters/{id}
func (h *VoterHandler) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.service.UnregisterAgent(id) {
		WriteError(w, r, types.NewNotFoundError("voter "+id+" not found"), h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"id": id})
}

// HandleTolerance GET /api/v1/voters/tolerance
func (h *VoterHandler) HandleTolerance(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.service.ByzantineTolerance())
}
