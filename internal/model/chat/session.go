package chat

import "time"

// DefaultTitle labels a session until its first exchange completes.
const DefaultTitle = "New Chat"

// Session is one conversation thread shown in the sidebar.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is the sidebar view of a session without its transcript.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary drops the transcript.
func (s Session) Summary() Summary {
	return Summary{
		ID:           s.ID,
		Title:        s.Title,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
	}
}
