// Package answer is the boundary to the external answering service: it sends a
// question with its conversational context and normalises whatever comes back.
package answer

import (
	"context"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
)

// Question is one request to the answering service.
type Question struct {
	Text string
	// History is the trailing context window, oldest first.
	History []chat.Message
	// UserID is sent as JSON null when nil.
	UserID     *string
	SessionID  string
	Filename   string
	MaxResults int
}

// Answer is the canonical result shape, whatever key the service used.
type Answer struct {
	Text        string
	Suggestions []string
}

// Answerer resolves a question into answer text.
type Answerer interface {
	Ask(ctx context.Context, q Question) (Answer, error)
}

// Func adapts a plain function to Answerer.
type Func func(ctx context.Context, q Question) (Answer, error)

// Ask calls f.
func (f Func) Ask(ctx context.Context, q Question) (Answer, error) {
	return f(ctx, q)
}
