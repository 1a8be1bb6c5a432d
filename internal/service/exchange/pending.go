package exchange

import (
	"fmt"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/answer"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/transcript"
)

// PendingExchange is the placeholder awaiting an answer, addressed by id.
type PendingExchange struct {
	ID    string
	store *transcript.Store
}

// Begin appends a pending assistant placeholder to store.
func Begin(store *transcript.Store) (*PendingExchange, error) {
	placeholder := chat.NewPlaceholder()
	if err := store.Append(placeholder); err != nil {
		return nil, fmt.Errorf("append placeholder: %w", err)
	}
	return &PendingExchange{ID: placeholder.ID, store: store}, nil
}

// Resolve fills the placeholder with the answer text.
func (p *PendingExchange) Resolve(text string) (chat.Message, error) {
	return p.finish(text)
}

// Reject fills the placeholder with the user-facing description of cause.
func (p *PendingExchange) Reject(cause error) (chat.Message, error) {
	return p.finish(answer.Describe(cause))
}

func (p *PendingExchange) finish(content string) (chat.Message, error) {
	if err := p.store.Resolve(p.ID, content); err != nil {
		return chat.Message{}, err
	}
	msg, ok := p.store.Find(p.ID)
	if !ok {
		return chat.Message{}, fmt.Errorf("%w: %s", transcript.ErrNotPending, p.ID)
	}
	return msg, nil
}
