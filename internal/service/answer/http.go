package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// HTTPConfig describes a remote chat endpoint.
type HTTPConfig struct {
	Endpoint string
	// QuestionField is "question" for the chat endpoint, "query" for the search one.
	QuestionField string
	// Timeout is a transport-level bound; the coordinator applies its own.
	Timeout time.Duration
}

// HTTPAnswerer posts questions to the remote answering service.
type HTTPAnswerer struct {
	client   *resty.Client
	endpoint string
	field    string
	log      zerolog.Logger
}

// NewHTTPAnswerer builds a resty-backed Answerer.
func NewHTTPAnswerer(cfg HTTPConfig, log zerolog.Logger) *HTTPAnswerer {
	field := cfg.QuestionField
	if field == "" {
		field = "question"
	}

	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &HTTPAnswerer{client: client, endpoint: cfg.Endpoint, field: field, log: log}
}

// historyEntry keeps every field a string: the backend types chat_history as a
// list of string maps.
type historyEntry struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

func (a *HTTPAnswerer) payload(q Question) map[string]any {
	history := make([]historyEntry, 0, len(q.History))
	for _, msg := range q.History {
		history = append(history, historyEntry{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}

	body := map[string]any{
		a.field:        q.Text,
		"chat_history": history,
		"user_id":      q.UserID,
	}
	if q.SessionID != "" {
		body["session_id"] = q.SessionID
	}
	if q.Filename != "" {
		body["filename"] = q.Filename
	}
	if q.MaxResults > 0 {
		body["max_results"] = q.MaxResults
	}
	return body
}

// Ask sends q and normalises the reply. Every failure is a *ServiceError.
func (a *HTTPAnswerer) Ask(ctx context.Context, q Question) (Answer, error) {
	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(a.payload(q)).
		Post(a.endpoint)
	if err != nil {
		svcErr := Classify(err)
		a.log.Warn().Err(err).Str("kind", svcErr.Kind.String()).Msg("answer request failed")
		return Answer{}, svcErr
	}

	status := resp.StatusCode()
	if !resp.IsSuccess() {
		detail, message := parseErrorBody(resp.Body())
		a.log.Warn().Int("status", status).Str("detail", detail).Msg("answer service rejected request")
		return Answer{}, statusError(status, detail, message)
	}

	answer, err := Normalize(resp.Body())
	if err != nil {
		a.log.Warn().Err(err).Int("status", status).Msg("answer body unusable")
		return Answer{}, &ServiceError{Kind: KindMalformed, Status: status, Err: err}
	}

	a.log.Debug().
		Dur("latency", time.Since(start)).
		Int("length", len(answer.Text)).
		Msg("answer received")
	return answer, nil
}

// String identifies the endpoint in logs.
func (a *HTTPAnswerer) String() string {
	return fmt.Sprintf("http(%s)", a.endpoint)
}

var _ Answerer = (*HTTPAnswerer)(nil)
