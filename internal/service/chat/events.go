package chat

// EventType names a state change the presentation layer should re-render for.
type EventType string

const (
	EventSessionCreated  EventType = "session.created"
	EventSessionSelected EventType = "session.selected"
	EventSessionDeleted  EventType = "session.deleted"
	EventMessageAppended EventType = "message.appended"
	EventTitleChanged    EventType = "title.changed"
)

// Event describes one completed mutation of the store.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	ActiveID  string    `json:"activeId"`
}

// Listener is notified after every controller mutation. Listeners run synchronously
// on the mutating goroutine and must not call back into the controller.
type Listener func(Event)
