package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/types"
)

// =============================================================================
// ⚖️ 决策 Handler
// =============================================================================

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// DecisionService 决策服务，由 *consensus.Service 实现
type DecisionService interface {
	Decide(ctx context.Context, req consensus.DecideRequest) (consensus.Decision, consensus.DecisionExplanation, error)
	Metrics() consensus.DecisionMetrics
	Subscribe(buffer int) (<-chan consensus.DecisionExplanation, func())
}

// DecisionResponse POST /api/v1/decisions 的响应体
type DecisionResponse struct {
	Decision    consensus.Decision            `json:"decision"`
	Explanation consensus.DecisionExplanation `json:"explanation"`
}

// StreamEvent WebSocket 推送的事件
type StreamEvent struct {
	Type        string                         `json:"type"` // ready, decision
	Timestamp   time.Time                      `json:"timestamp"`
	Explanation *consensus.DecisionExplanation `json:"explanation,omitempty"`
}

// DecisionHandler 决策处理器
type DecisionHandler struct {
	service        DecisionService
	logger         *zap.Logger
	originPatterns []string
}

// NewDecisionHandler 创建决策处理器。originPatterns 为 WebSocket 允许的跨域来源。
func NewDecisionHandler(service DecisionService, originPatterns []string, logger *zap.Logger) *DecisionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionHandler{
		service:        service,
		logger:         logger.With(zap.String("handler", "decisions")),
		originPatterns: originPatterns,
	}
}

// RegisterRoutes 注册路由
func (h *DecisionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/decisions", h.HandleDecide)
	mux.HandleFunc("GET /api/v1/decisions/metrics", h.HandleMetrics)
	mux.HandleFunc("GET /api/v1/decisions/stream", h.HandleStream)
}

// HandleDecide POST /api/v1/decisions
func (h *DecisionHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req consensus.DecideRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := normalizeDecideRequest(&req, time.Now().UTC()); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	decision, exp, err := h.service.Decide(r.Context(), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, DecisionResponse{Decision: decision, Explanation: exp})
}

// normalizeDecideRequest 补齐默认值，拒绝无法解析的选票类型
func normalizeDecideRequest(req *consensus.DecideRequest, now time.Time) error {
	req.Intent.ID = strings.TrimSpace(req.Intent.ID)
	if req.Intent.ID == "" {
		return types.NewInvalidRequestError("intent.id is required")
	}
	if req.Intent.Priority == "" {
		req.Intent.Priority = types.PriorityNormal
	}
	if req.Intent.Created.IsZero() {
		req.Intent.Created = now
	}
	for i := range req.Votes {
		v := &req.Votes[i]
		// 匿名选票交给投票层按未注册投票者丢弃
		v.Voter = strings.TrimSpace(v.Voter)
		if !v.Type.Valid() {
			return types.NewInvalidRequestError(fmt.Sprintf("votes[%d].type %q is not one of approve, reject, abstain", i, v.Type))
		}
		if v.Timestamp.IsZero() {
			v.Timestamp = now
		}
	}
	return nil
}

// HandleMetrics GET /api/v1/decisions/metrics
func (h *DecisionHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.service.Metrics())
}

// HandleStream GET /api/v1/decisions/stream，通过 WebSocket 推送每一次决策解释。
// ?escalated_only=true 只推送需要人工复核的决策。
func (h *DecisionHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	escalatedOnly := r.URL.Query().Get("escalated_only") == "true"

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, cancel := h.service.Subscribe(streamBuffer)
	defer cancel()

	// 客户端不发送数据，CloseRead 负责处理控制帧并在断开时取消 ctx
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, StreamEvent{Type: "ready", Timestamp: time.Now().UTC()}); err != nil {
		return
	}
	h.logger.Debug("decision stream opened", zap.Bool("escalated_only", escalatedOnly))

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case exp, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if escalatedOnly && !exp.Decision.RequiresHumanApproval {
				continue
			}
			evt := StreamEvent{Type: "decision", Timestamp: time.Now().UTC(), Explanation: &exp}
			if err := h.write(ctx, conn, evt); err != nil {
				h.logger.Debug("decision stream write failed", zap.Error(err))
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (h *DecisionHandler) write(ctx context.Context, conn *websocket.Conn, evt StreamEvent) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, evt)
}
