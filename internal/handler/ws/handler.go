package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	outboxSize   = 64
)

// Handler WebSocket聊天处理器
type Handler struct {
	ctrl        *chatService.Controller
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

// New 创建WebSocket处理器
func New(ctrl *chatService.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ctrl:        ctrl,
		logger:      logger,
		readTimeout: readTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// Inbound message types.
const (
	TypeText    = "text"
	TypeNewChat = "new_chat"
	TypeSelect  = "select"
	TypeDelete  = "delete"
)

// Outbound message types.
const (
	TypeConnected = "connected"
	TypeState     = "state"
	TypeAIDelta   = "ai_delta"
	TypeAI        = "ai"
	TypeWarning   = "warning"
	TypeError     = "error"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// client owns the single writer of one connection.
type client struct {
	conn   *websocket.Conn
	out    chan outgoingMessage
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func newOutgoing(msgType, sessionID string, data interface{}) outgoingMessage {
	return outgoingMessage{
		Type:      msgType,
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// send blocks until the writer accepts msg or the connection is gone.
func (c *client) send(msg outgoingMessage) bool {
	select {
	case c.out <- msg:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// trySend drops msg when the writer is backed up.
func (c *client) trySend(msg outgoingMessage) {
	select {
	case c.out <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("websocket outbox full, dropping message", zap.String("type", msg.Type))
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		conn:   conn,
		out:    make(chan outgoingMessage, outboxSize),
		ctx:    ctx,
		cancel: cancel,
		logger: h.logger,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	unsubscribe := h.ctrl.Subscribe(func(event chatService.Event) {
		c.trySend(newOutgoing(TypeState, event.SessionID, map[string]any{
			"event":   event,
			"sidebar": h.ctrl.Snapshot(),
		}))
	})
	defer unsubscribe()

	h.logger.Info("websocket connected", zap.String("remote", r.RemoteAddr))

	c.send(newOutgoing(TypeConnected, h.ctrl.Store().ActiveID(), h.ctrl.Snapshot()))

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	for {
		// Pongs are only processed while reading, so the deadline restarts after
		// every handled message, however long its reply took to stream.
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		h.handleMessage(c, &msg)

		if ctx.Err() != nil {
			return
		}
	}
}

func (h *Handler) handleMessage(c *client, msg *inboundMessage) {
	switch msg.Type {
	case TypeText:
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.send(newOutgoing(TypeError, "", "invalid text payload"))
			return
		}
		h.handleText(c, text.Text)
	case TypeNewChat:
		h.ctrl.NewChat()
	case TypeSelect:
		if err := h.ctrl.SelectChat(msg.SessionID); err != nil {
			h.sendStoreError(c, msg.SessionID, err)
		}
	case TypeDelete:
		if err := h.ctrl.DeleteChat(msg.SessionID); err != nil {
			h.sendStoreError(c, msg.SessionID, err)
		}
	default:
		c.send(newOutgoing(TypeError, msg.SessionID, "unsupported message type: "+msg.Type))
	}
}

func (h *Handler) handleText(c *client, text string) {
	var sessionID string

	exchange, err := h.ctrl.SendMessage(c.ctx, text, func(id, fragment string) {
		sessionID = id
		c.send(newOutgoing(TypeAIDelta, id, map[string]any{"text": fragment}))
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Warn("websocket exchange failed", zap.String("session", sessionID), zap.Error(err))
		}
		c.send(newOutgoing(TypeError, sessionID, "reply generation failed"))
		return
	}

	c.send(newOutgoing(TypeAI, exchange.SessionID, map[string]any{
		"text":         exchange.Assistant.Content,
		"isFinal":      true,
		"title":        exchange.Title,
		"titleChanged": exchange.TitleChanged,
	}))
}

func (h *Handler) sendStoreError(c *client, sessionID string, err error) {
	switch {
	case errors.Is(err, chatService.ErrCannotDeleteLastSession):
		c.send(newOutgoing(TypeWarning, sessionID, err.Error()))
	case errors.Is(err, chatService.ErrInvalidReference):
		c.send(newOutgoing(TypeError, sessionID, "session not found"))
	default:
		h.logger.Error("unexpected chat error", zap.Error(err))
		c.send(newOutgoing(TypeError, sessionID, "internal error"))
	}
}
