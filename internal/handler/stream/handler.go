package stream

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Handler streams replies for the active session via Server-Sent Events.
type Handler struct {
	ctrl   *chatService.Controller
	logger *zap.Logger
}

// New creates a new stream handler
func New(ctrl *chatService.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ctrl: ctrl, logger: logger}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP reads the prompt from the "message" query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, userMessage); err != nil {
		h.logger.Warn("stream request failed", zap.Error(err))
	}
}

// HandleStreamRequest runs one exchange on the active session, forwarding every
// fragment as a "delta" event. Event order: start, delta*, message, title?, end.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	// The session is only known once the controller has picked it up under its lock.
	started := false
	start := func(sessionID string) {
		if started {
			return
		}
		started = true
		h.sendSSE(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})
	}

	exchange, err := h.ctrl.SendMessage(ctx, userMessage, func(sessionID, fragment string) {
		start(sessionID)
		h.sendSSE(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   fragment,
		})
	})
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("reply generation failed: %v", err))
		return err
	}
	start(exchange.SessionID)

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: exchange.SessionID,
		Content:   exchange.Assistant.Content,
	})

	if exchange.TitleChanged {
		h.sendSSE(w, flusher, StreamResponse{
			Event:     "title",
			SessionID: exchange.SessionID,
			Content:   exchange.Title,
		})
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: exchange.SessionID,
		Finished:  true,
	})

	h.logger.Debug("stream completed", zap.String("session", exchange.SessionID))
	return nil
}

// sendSSE sends a Server-Sent Event
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	if err := utils.SendSSEEvent(w, flusher, response.Event, response); err != nil {
		h.logger.Warn("failed to send sse event", zap.String("event", response.Event), zap.Error(err))
	}
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event: "error",
		Error: errorMsg,
	})
}
