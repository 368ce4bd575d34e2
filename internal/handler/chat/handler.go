package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	ctrl   *chatService.Controller
	logger *zap.Logger
}

// New 创建聊天处理器
func New(ctrl *chatService.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ctrl: ctrl, logger: logger}
}

// SidebarResponse lists sessions newest first, the order the sidebar renders them.
type SidebarResponse struct {
	Sessions []chat.Summary `json:"sessions"`
	ActiveID string         `json:"activeId"`
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions", h.handleCreateSession)
	r.Put("/sessions/active", h.handleSelectSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
}

func (h *Handler) sidebar() SidebarResponse {
	snapshot := h.ctrl.Snapshot()

	summaries := make([]chat.Summary, 0, len(snapshot.Sessions))
	for i := len(snapshot.Sessions) - 1; i >= 0; i-- {
		summaries = append(summaries, snapshot.Sessions[i].Summary())
	}
	return SidebarResponse{Sessions: summaries, ActiveID: snapshot.ActiveID}
}

// handleListSessions 返回侧边栏状态
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sidebar())
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := h.ctrl.NewChat()

	session, err := h.ctrl.Store().Session(id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleSelectSession 切换当前会话
func (h *Handler) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := h.ctrl.SelectChat(payload.SessionID); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sidebar())
}

// handleGetSession 返回会话及完整消息记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.ctrl.Store().Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleDeleteSession 删除会话，最后一个会话不可删除
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.DeleteChat(chi.URLParam(r, "sessionID")); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sidebar())
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrCannotDeleteLastSession):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatService.ErrInvalidReference):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	default:
		h.logger.Error("unexpected chat error", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
