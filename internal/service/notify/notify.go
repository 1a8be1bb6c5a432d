// Package notify carries transient notifications and transcript change events
// to whoever is watching a profile.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Type is the visual severity of a notification.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// DefaultDuration is how long a notification stays visible.
const DefaultDuration = 5 * time.Second

// Notification is a transient, user-visible message.
type Notification struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	// DurationMS is the display time in milliseconds.
	DurationMS int64 `json:"duration"`
}

// New stamps an id and the default duration.
func New(kind Type, title, message string) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Type:       kind,
		Title:      title,
		Message:    message,
		DurationMS: DefaultDuration.Milliseconds(),
	}
}

// Notifier shows notifications to one audience.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(n Notification)

// Notify calls f.
func (f Func) Notify(n Notification) {
	f(n)
}

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})
