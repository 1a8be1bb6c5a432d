package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/answer"
	chatservice "github.com/zhouzirui/constitution-portal/backend/internal/service/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/storage"
)

func setupRouter(answerer answer.Answerer) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(storage.NewMemorySlot(), answerer, nil, chatservice.Options{Logger: zerolog.Nop()})
	handler := New(chatSvc, document.NewMemoryStore(document.Seed()), zerolog.Nop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func staticAnswerer(text string) answer.Answerer {
	return answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
		return answer.Answer{Text: text}, nil
	})
}

func do(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionValidDocument(t *testing.T) {
	r, _ := setupRouter(staticAnswerer("ok"))
	payload, _ := json.Marshal(map[string]string{"filename": document.Seed()[0].Filename})

	resp := do(r, http.MethodPost, "/profiles/visiteur/session", payload)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var got sessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Session.Filename != document.Seed()[0].Filename {
		t.Fatalf("unexpected filename %q", got.Session.Filename)
	}
	if len(got.Messages) != 1 || len(got.Suggestions) != 6 {
		t.Fatalf("unexpected session payload: %+v", got)
	}
}

func TestCreateSessionEmptyBody(t *testing.T) {
	r, _ := setupRouter(staticAnswerer("ok"))

	resp := do(r, http.MethodPost, "/profiles/visiteur/session", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
}

func TestCreateSessionUnknownDocument(t *testing.T) {
	r, _ := setupRouter(staticAnswerer("ok"))
	payload := []byte(`{"filename":"absent.pdf"}`)

	resp := do(r, http.MethodPost, "/profiles/visiteur/session", payload)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionInvalidProfile(t *testing.T) {
	r, _ := setupRouter(staticAnswerer("ok"))

	resp := do(r, http.MethodPost, "/profiles/a.b/session", []byte(`{}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSubmitAndReset(t *testing.T) {
	r, _ := setupRouter(staticAnswerer("Article 1 : la Guinée est une République."))

	resp := do(r, http.MethodPost, "/profiles/visiteur/messages", []byte(`{"content":"Que dit l'article 1 ?"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var submitted submitResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.Outcome != "resolved" || len(submitted.Messages) != 3 {
		t.Fatalf("unexpected submit payload: %+v", submitted)
	}
	if submitted.Reply.Content != "Article 1 : la Guinée est une République." {
		t.Fatalf("unexpected reply %q", submitted.Reply.Content)
	}

	resp = do(r, http.MethodGet, "/profiles/visiteur/messages", nil)
	var listed transcriptResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &listed)
	if len(listed.Messages) != 3 || listed.Busy {
		t.Fatalf("unexpected transcript: %+v", listed)
	}

	resp = do(r, http.MethodDelete, "/profiles/visiteur/messages", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &listed)
	if len(listed.Messages) != 1 {
		t.Fatalf("expected single welcome after reset, got %d", len(listed.Messages))
	}
}

func TestSubmitFailureReportsKind(t *testing.T) {
	r, _ := setupRouter(answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
		return answer.Answer{}, &answer.ServiceError{Kind: answer.KindServer, Status: 503}
	}))

	resp := do(r, http.MethodPost, "/profiles/visiteur/messages", []byte(`{"content":"q"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got submitResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &got)
	if got.Outcome != "failed" || got.ErrorKind != "server_error" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Reply.Content != answer.MsgServer {
		t.Fatalf("unexpected reply %q", got.Reply.Content)
	}
}

func TestSubmitEmptyContent(t *testing.T) {
	r, _ := setupRouter(staticAnswerer("ok"))

	resp := do(r, http.MethodPost, "/profiles/visiteur/messages", []byte(`{"content":"   "}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	r, _ := setupRouter(answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
		close(started)
		<-release
		return answer.Answer{Text: "ok"}, nil
	}))

	done := make(chan int, 1)
	go func() {
		done <- do(r, http.MethodPost, "/profiles/visiteur/messages", []byte(`{"content":"première"}`)).Code
	}()
	<-started

	resp := do(r, http.MethodPost, "/profiles/visiteur/messages", []byte(`{"content":"seconde"}`))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first submit expected 200, got %d", code)
	}
}
