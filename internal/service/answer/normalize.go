package answer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// successBody covers every response shape the answering backends emit: the
// chat endpoint answers with "response", the per-document one with "answer".
type successBody struct {
	Response    string   `json:"response"`
	Answer      string   `json:"answer"`
	Suggestions []string `json:"suggestions"`
}

// Normalize maps a 2xx body onto Answer.
func Normalize(body []byte) (Answer, error) {
	var payload successBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	text := payload.Response
	if strings.TrimSpace(text) == "" {
		text = payload.Answer
	}
	if strings.TrimSpace(text) == "" {
		return Answer{}, fmt.Errorf("%w: no response or answer field", ErrMalformedResponse)
	}

	return Answer{Text: text, Suggestions: payload.Suggestions}, nil
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// parseErrorBody extracts the human-readable detail of an error body. Structured
// details (validation error lists) are ignored.
func parseErrorBody(body []byte) (detail, message string) {
	var payload errorBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	if len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil {
			detail = strings.TrimSpace(text)
		}
	}
	return detail, strings.TrimSpace(payload.Message)
}
