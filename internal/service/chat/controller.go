package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/ai"
)

// FragmentFunc receives each reply fragment as soon as it is produced, tagged with
// the session the exchange is appended to. It runs while the controller is locked.
type FragmentFunc func(sessionID, fragment string)

// Exchange is the outcome of one send.
type Exchange struct {
	SessionID string       `json:"sessionId"`
	User      chat.Message `json:"user"`
	Assistant chat.Message `json:"assistant"`
	Title     string       `json:"title"`
	// TitleChanged is true only for the first exchange of a session.
	TitleChanged bool `json:"titleChanged"`
}

// Snapshot is everything needed to render the sidebar and the active transcript.
type Snapshot struct {
	Sessions []chat.Session `json:"sessions"`
	ActiveID string         `json:"activeId"`
}

// Controller applies user actions to a Store. Mutations are serialized, so a send
// in progress blocks new chats, selection and deletion until it completes.
type Controller struct {
	mu      sync.Mutex
	store   *Store
	emitter ai.Emitter
	logger  *zap.Logger

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// NewController wires a store to a response emitter.
func NewController(store *Store, emitter ai.Emitter, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:     store,
		emitter:   emitter,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Store exposes the underlying store for read-only rendering.
func (c *Controller) Store() *Store {
	return c.store
}

// Subscribe registers fn for change events and returns a function removing it.
func (c *Controller) Subscribe(fn Listener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Controller) notify(eventType EventType, sessionID string) {
	event := Event{Type: eventType, SessionID: sessionID, ActiveID: c.store.ActiveID()}

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, fn := range c.listeners {
		fn(event)
	}
}

// Snapshot returns the current render state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{Sessions: c.store.List(), ActiveID: c.store.ActiveID()}
}

// NewChat creates an empty session and makes it active.
func (c *Controller) NewChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.store.CreateSession()
	c.logger.Info("chat created", zap.String("session", id))
	c.notify(EventSessionCreated, id)
	return id
}

// SelectChat makes id the active session.
func (c *Controller) SelectChat(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.SelectSession(id); err != nil {
		return err
	}
	c.notify(EventSessionSelected, id)
	return nil
}

// DeleteChat removes id unless it is the last chat.
func (c *Controller) DeleteChat(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.DeleteSession(id); err != nil {
		if errors.Is(err, ErrCannotDeleteLastSession) {
			c.logger.Warn("refused to delete last chat", zap.String("session", id))
		}
		return err
	}
	c.logger.Info("chat deleted", zap.String("session", id), zap.String("active", c.store.ActiveID()))
	c.notify(EventSessionDeleted, id)
	return nil
}

// SendMessage runs one exchange on the active session: the prompt is appended, the
// reply is streamed through onFragment, then appended whole. The first completed
// exchange of a session replaces its default title with one derived from the prompt.
// If streaming fails the prompt stays in the transcript and no reply is recorded.
func (c *Controller) SendMessage(ctx context.Context, prompt string, onFragment FragmentFunc) (Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID := c.store.ActiveID()

	userMsg := c.mustAppend(sessionID, chat.RoleUser, prompt)
	c.notify(EventMessageAppended, sessionID)

	title := c.mustTitle(sessionID)
	isNewChat := title == chat.DefaultTitle

	stream, err := c.emitter.Stream(ctx, prompt)
	if err != nil {
		return Exchange{}, fmt.Errorf("start reply stream: %w", err)
	}

	fragments := 0
	reply, err := ai.Collect(stream, func(fragment string) {
		fragments++
		if onFragment != nil {
			onFragment(sessionID, fragment)
		}
	})
	if err != nil {
		c.logger.Warn("reply stream failed", zap.String("session", sessionID), zap.Int("fragments", fragments), zap.Error(err))
		return Exchange{}, fmt.Errorf("read reply stream: %w", err)
	}

	assistantMsg := c.mustAppend(sessionID, chat.RoleAssistant, reply)
	c.notify(EventMessageAppended, sessionID)

	exchange := Exchange{
		SessionID: sessionID,
		User:      userMsg,
		Assistant: assistantMsg,
		Title:     title,
	}

	if isNewChat {
		exchange.Title = chat.DeriveTitle(prompt)
		exchange.TitleChanged = true
		if err := c.store.SetTitle(sessionID, exchange.Title); err != nil {
			panic(fmt.Sprintf("active session vanished during send: %v", err))
		}
		c.notify(EventTitleChanged, sessionID)
	}

	c.logger.Info("exchange completed",
		zap.String("session", sessionID),
		zap.Int("fragments", fragments),
		zap.Bool("titleChanged", exchange.TitleChanged),
	)
	return exchange, nil
}

// The active id always names a stored session and deletion waits for c.mu,
// so a lookup failure here is a broken invariant.
func (c *Controller) mustAppend(sessionID string, role chat.Role, content string) chat.Message {
	msg, err := c.store.AppendMessage(sessionID, role, content)
	if err != nil {
		panic(fmt.Sprintf("active session vanished during send: %v", err))
	}
	return msg
}

func (c *Controller) mustTitle(sessionID string) string {
	title, err := c.store.Title(sessionID)
	if err != nil {
		panic(fmt.Sprintf("active session vanished during send: %v", err))
	}
	return title
}
