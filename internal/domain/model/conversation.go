package model

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PlaceholderContent stands in for the user's text when a message carries only
// selected context.
const PlaceholderContent = "Selected context"

// Message is one turn in a conversation. SelectedElements snapshots the
// selection at send time and is only ever set on user messages.
type Message struct {
	ID               string           `json:"id"`
	Role             string           `json:"role"`
	Content          string           `json:"content"`
	SelectedElements []ContextElement `json:"selectedElements,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// Conversation is the aggregate for one (contentType, contentID) subject.
// Messages are append-only in steady state; a failed send removes its own
// optimistic message by id. Generation is bumped on Reset so a send that
// resolves after the subject changed can discard its result.
type Conversation struct {
	ID          string
	UserID      string
	ContentType ContentType
	ContentID   string
	Period      Period

	Messages  []Message
	Selection Selection

	// SelectionErr is the standing capacity-rejection message, cleared by
	// remove/clear and by a successful send.
	SelectionErr string

	// HistoryLoadedFor guards the one-shot history load per content id.
	HistoryLoadedFor string

	Sending    bool
	LastError  string
	Generation int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewConversation(id, userID string, ct ContentType, contentID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:          id,
		UserID:      userID,
		ContentType: ct,
		ContentID:   contentID,
		Period:      PeriodDaily,
		Messages:    make([]Message, 0, 8),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (c *Conversation) Append(m Message) {
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = time.Now()
}

// RemoveMessage deletes the message with the given id. Used to roll back an
// optimistic append after a failed send.
func (c *Conversation) RemoveMessage(id string) {
	for i, m := range c.Messages {
		if m.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.UpdatedAt = time.Now()
			return
		}
	}
}

// Reset repoints the conversation at a new subject, discarding messages,
// selection and error state. The generation bump invalidates in-flight sends.
func (c *Conversation) Reset(ct ContentType, contentID string) {
	c.ContentType = ct
	c.ContentID = contentID
	c.Messages = c.Messages[:0]
	c.Selection.Clear()
	c.SelectionErr = ""
	c.LastError = ""
	c.HistoryLoadedFor = ""
	c.Sending = false
	c.Generation++
	c.UpdatedAt = time.Now()
}
