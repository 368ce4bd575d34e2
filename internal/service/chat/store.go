package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

var (
	// ErrCannotDeleteLastSession is returned when deleting the only remaining session.
	ErrCannotDeleteLastSession = errors.New("cannot delete the last chat")
	// ErrInvalidReference is returned for an id that names no session.
	ErrInvalidReference = errors.New("session not found")
	// ErrInvalidRole is returned when appending a message whose role is neither user nor assistant.
	ErrInvalidRole = errors.New("invalid message role")
)

// IDFunc generates session identifiers.
type IDFunc func() string

// Store holds every chat of one interactive session and which one is active.
// The zero value is not usable; call NewStore.
type Store struct {
	mu       sync.RWMutex
	sessions *orderedmap.OrderedMap[string, *chat.Session]
	activeID string
	newID    IDFunc
	now      func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithIDFunc overrides the uuid generator.
func WithIDFunc(fn IDFunc) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns a store seeded with one empty "New Chat" session, which is active.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: orderedmap.New[string, *chat.Session](),
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.createLocked()
	return s
}

// CreateSession adds an empty session, makes it active and returns its id.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *Store) createLocked() string {
	id := s.newID()
	for {
		if _, exists := s.sessions.Get(id); !exists {
			break
		}
		id = s.newID()
	}

	s.sessions.Set(id, &chat.Session{
		ID:        id,
		Title:     chat.DefaultTitle,
		Messages:  make([]chat.Message, 0, 16),
		CreatedAt: s.now(),
	})
	s.activeID = id
	return id
}

// SelectSession makes id the active session.
func (s *Store) SelectSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions.Get(id); !ok {
		return fmt.Errorf("select %q: %w", id, ErrInvalidReference)
	}
	s.activeID = id
	return nil
}

// DeleteSession removes id. The last remaining session cannot be deleted.
// When the active session is removed, the oldest remaining one becomes active.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions.Get(id); !ok {
		return fmt.Errorf("delete %q: %w", id, ErrInvalidReference)
	}
	if s.sessions.Len() <= 1 {
		return ErrCannotDeleteLastSession
	}

	s.sessions.Delete(id)
	if s.activeID == id {
		s.activeID = s.sessions.Oldest().Key
	}
	return nil
}

// AppendMessage adds a message to the end of a transcript. Content is not validated.
func (s *Store) AppendMessage(id string, role chat.Role, content string) (chat.Message, error) {
	if !role.Valid() {
		return chat.Message{}, fmt.Errorf("append %q to %q: %w", role, id, ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.Get(id)
	if !ok {
		return chat.Message{}, fmt.Errorf("append to %q: %w", id, ErrInvalidReference)
	}

	msg := chat.Message{Role: role, Content: content, CreatedAt: s.now()}
	session.Messages = append(session.Messages, msg)
	return msg, nil
}

// Title returns the title of id.
func (s *Store) Title(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions.Get(id)
	if !ok {
		return "", fmt.Errorf("title of %q: %w", id, ErrInvalidReference)
	}
	return session.Title, nil
}

// SetTitle replaces the title of id.
func (s *Store) SetTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("set title of %q: %w", id, ErrInvalidReference)
	}
	session.Title = title
	return nil
}

// Messages returns a copy of the transcript of id.
func (s *Store) Messages(id string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("messages of %q: %w", id, ErrInvalidReference)
	}

	copied := make([]chat.Message, len(session.Messages))
	copy(copied, session.Messages)
	return copied, nil
}

// ActiveID returns the id of the active session.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Session returns a copy of id with its transcript.
func (s *Store) Session(id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions.Get(id)
	if !ok {
		return chat.Session{}, fmt.Errorf("session %q: %w", id, ErrInvalidReference)
	}
	return cloneSession(session), nil
}

// List returns every session in creation order.
func (s *Store) List() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Session, 0, s.sessions.Len())
	for pair := s.sessions.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, cloneSession(pair.Value))
	}
	return out
}

// Len reports the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions.Len()
}

func cloneSession(session *chat.Session) chat.Session {
	out := *session
	out.Messages = make([]chat.Message, len(session.Messages))
	copy(out.Messages, session.Messages)
	return out
}
