// Package session provides the conversation data model and its
// PostgreSQL-backed persistence.
//
// A Session is one conversation thread owned by a single user: a title,
// an append-only ordered sequence of messages, and a server-assigned
// last-updated timestamp. Messages are immutable once created.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Session represents a conversation session (application-level type).
type Session struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"lastUpdated"`
}

// Message represents a single conversation turn. Parts are stored as
// JSONB in the database.
type Message struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"sessionId"`
	Role           string    `json:"role"` // "user" | "model"
	Parts          []Part    `json:"parts"`
	SequenceNumber int       `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"timestamp"`
}

// Part is one content fragment of a message: plain text, an inline
// image, or both fields absent for an empty fragment. The JSON shape
// matches the wire format the inference endpoint expects.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is a base64-encoded binary payload with its MIME type.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded bytes
}

// NewUserMessage builds a user message from text plus an optional image.
// The text part always comes first, matching the order the model sees.
func NewUserMessage(sessionID uuid.UUID, text string, image *InlineData) *Message {
	parts := []Part{{Text: text}}
	if image != nil {
		parts = append(parts, Part{InlineData: image})
	}
	return &Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      RoleUser,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
}

// NewModelMessage builds a text-only model message.
func NewModelMessage(sessionID uuid.UUID, text string) *Message {
	return &Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      RoleModel,
		Parts:     []Part{{Text: text}},
		CreatedAt: time.Now(),
	}
}

// Text concatenates the text of all parts.
func (m *Message) Text() string {
	var s string
	for _, p := range m.Parts {
		s += p.Text
	}
	return s
}
