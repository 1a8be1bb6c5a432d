package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/answer"
)

// ModelAnswerer answers constitution questions with a chat model chain.
type ModelAnswerer struct {
	documents document.Store
	prompts   *PromptBuilder
	chain     compose.Runnable[map[string]any, *schema.Message]
	log       zerolog.Logger
}

// NewModelAnswerer compiles the prompt/model chain around chatModel.
func NewModelAnswerer(ctx context.Context, chatModel model.BaseChatModel, documents document.Store, log zerolog.Logger) (*ModelAnswerer, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ModelAnswerer{
		documents: documents,
		prompts:   NewPromptBuilder(),
		chain:     runnable,
		log:       log,
	}, nil
}

// Ask runs the chain for q.
func (m *ModelAnswerer) Ask(ctx context.Context, q answer.Question) (answer.Answer, error) {
	input := map[string]any{
		"system":  m.prompts.SystemPrompt(m.lookupDocument(ctx, q.Filename)),
		"history": buildHistoryMessages(q.History, q.Text),
		"query":   q.Text,
	}

	response, err := m.chain.Invoke(ctx, input)
	if err != nil {
		return answer.Answer{}, fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || response.Content == "" {
		return answer.Answer{}, answer.ErrMalformedResponse
	}

	m.log.Debug().
		Str("session", q.SessionID).
		Int("length", len(response.Content)).
		Msg("generated response")
	return answer.Answer{Text: response.Content}, nil
}

func (m *ModelAnswerer) lookupDocument(ctx context.Context, filename string) *document.Document {
	if filename == "" || m.documents == nil {
		return nil
	}
	doc, ok, err := m.documents.FindByFilename(ctx, filename)
	if err != nil {
		m.log.Warn().Err(err).Str("filename", filename).Msg("document lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return &doc
}

// buildHistoryMessages maps the context window onto chat model messages. The
// window ends with the question itself, which the template adds separately.
func buildHistoryMessages(messages []chat.Message, query string) []*schema.Message {
	if n := len(messages); n > 0 && messages[n-1].Role == chat.RoleUser && messages[n-1].Content == query {
		messages = messages[:n-1]
	}
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

var _ answer.Answerer = (*ModelAnswerer)(nil)
