package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
)

func newTestAnswerer(url string) *HTTPAnswerer {
	return NewHTTPAnswerer(HTTPConfig{Endpoint: url}, zerolog.Nop())
}

func TestHTTPAnswererSendsContext(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"L'article 1 proclame la souveraineté.","suggestions":["Et l'article 2 ?"]}`))
	}))
	defer srv.Close()

	history := []chat.Message{
		{ID: "w", Role: chat.RoleAssistant, Content: "Bonjour", CreatedAt: "2024-01-01T00:00:00.000Z"},
		{ID: "u", Role: chat.RoleUser, Content: "Article 1 ?", CreatedAt: "2024-01-01T00:00:01.000Z"},
	}
	ans, err := newTestAnswerer(srv.URL).Ask(context.Background(), Question{Text: "Article 1 ?", History: history})
	require.NoError(t, err)
	assert.Equal(t, "L'article 1 proclame la souveraineté.", ans.Text)
	assert.Equal(t, []string{"Et l'article 2 ?"}, ans.Suggestions)

	assert.Equal(t, "Article 1 ?", got["question"])
	assert.Contains(t, got, "user_id")
	assert.Nil(t, got["user_id"])

	entries, ok := got["chat_history"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	for _, field := range []string{"id", "role", "content", "createdAt"} {
		_, isString := first[field].(string)
		assert.True(t, isString, "history field %s must be a string", field)
	}
	assert.NotContains(t, first, "pending")
}

func TestHTTPAnswererQueryFieldVariant(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"answer":"Oui."}`))
	}))
	defer srv.Close()

	a := NewHTTPAnswerer(HTTPConfig{Endpoint: srv.URL, QuestionField: "query"}, zerolog.Nop())
	ans, err := a.Ask(context.Background(), Question{Text: "Existe-t-il un préambule ?", Filename: "constitution-guinee-2020.pdf", MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, "Oui.", ans.Text)
	assert.Equal(t, "Existe-t-il un préambule ?", got["query"])
	assert.NotContains(t, got, "question")
	assert.Equal(t, "constitution-guinee-2020.pdf", got["filename"])
	assert.EqualValues(t, 5, got["max_results"])
}

func TestHTTPAnswererFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   Kind
		want   string
	}{
		{name: "bad request with detail", status: 400, body: `{"detail":"Question trop courte"}`, kind: KindInvalidRequest, want: "Question trop courte"},
		{name: "bad request bare", status: 400, body: `{}`, kind: KindInvalidRequest, want: MsgInvalidRequest},
		{name: "validation list", status: 422, body: `{"detail":[{"loc":["body","question"]}]}`, kind: KindClient, want: "Erreur 422: Erreur inconnue"},
		{name: "not found message", status: 404, body: `{"message":"Introuvable"}`, kind: KindClient, want: "Erreur 404: Introuvable"},
		{name: "client detail", status: 429, body: `{"detail":"Trop de requêtes"}`, kind: KindClient, want: "Trop de requêtes"},
		{name: "server", status: 500, body: `{"detail":"boom"}`, kind: KindServer, want: MsgServer},
		{name: "bad gateway html", status: 502, body: `<html>`, kind: KindServer, want: MsgServer},
		{name: "empty success", status: 200, body: `{}`, kind: KindMalformed, want: MsgMalformed},
		{name: "non json success", status: 200, body: `ok`, kind: KindMalformed, want: MsgMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestAnswerer(srv.URL).Ask(context.Background(), Question{Text: "q"})
			require.Error(t, err)

			var svcErr *ServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tc.kind, svcErr.Kind)
			assert.Equal(t, tc.want, Describe(err))
		})
	}
}

func TestHTTPAnswererNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestAnswerer(url).Ask(context.Background(), Question{Text: "q"})
	require.Error(t, err)
	assert.Equal(t, KindNetwork, Classify(err).Kind)
	assert.Equal(t, MsgNetwork, Describe(err))
}

func TestHTTPAnswererTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestAnswerer(srv.URL).Ask(ctx, Question{Text: "q"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, Classify(err).Kind)
	assert.Equal(t, MsgTimeout, Describe(err))
}

func TestDescribeNeverLeaksRawText(t *testing.T) {
	err := errors.New("dial tcp 10.0.0.1:443: secret internals")
	assert.Equal(t, MsgUnknown, Describe(err))
	assert.Equal(t, MsgTimeout, Describe(context.DeadlineExceeded))
	assert.Equal(t, MsgMalformed, Describe(ErrMalformedResponse))
}

func TestNormalizePrefersResponse(t *testing.T) {
	ans, err := Normalize([]byte(`{"response":"r","answer":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "r", ans.Text)

	ans, err = Normalize([]byte(`{"response":"  ","answer":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", ans.Text)

	_, err = Normalize([]byte(`{"response":""}`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
