package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is reserved; no flow writes it today.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one entry of a conversation transcript.
//
// CreatedAt stays an ISO-8601 string so the value survives a storage round trip
// byte for byte.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	Pending   bool   `json:"pending,omitempty"`
}

// NewMessage stamps a fresh id and creation time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: ISONow(),
	}
}

// NewPlaceholder returns an empty assistant message awaiting its answer.
func NewPlaceholder() Message {
	msg := NewMessage(RoleAssistant, "")
	msg.Pending = true
	return msg
}

// NewID returns a transcript-unique identifier.
func NewID() string {
	return uuid.NewString()
}

// ISONow formats the current instant the way transcripts store it.
func ISONow() string {
	return FormatTime(time.Now())
}

// FormatTime renders t as UTC ISO-8601 with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseTime parses a stored createdAt value.
func ParseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
