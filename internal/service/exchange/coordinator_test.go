package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/answer"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/transcript"
	"github.com/zhouzirui/constitution-portal/backend/internal/storage"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

func newStore(t *testing.T) *transcript.Store {
	t.Helper()
	return transcript.Load(context.Background(), storage.NewMemorySlot(), chat.StorageKey, transcript.Options{})
}

func TestSubmitResolves(t *testing.T) {
	store := newStore(t)
	notifier := &recordingNotifier{}
	var got answer.Question
	answerer := answer.Func(func(_ context.Context, q answer.Question) (answer.Answer, error) {
		got = q
		return answer.Answer{Text: "Le mandat présidentiel est de six ans."}, nil
	})
	c := New(store, answerer, notifier, Options{})

	res, err := c.Submit(context.Background(), "  Quelle est la durée du mandat présidentiel ?  ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.Nil(t, res.Err)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.RoleUser, msgs[1].Role)
	assert.Equal(t, "Quelle est la durée du mandat présidentiel ?", msgs[1].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Le mandat présidentiel est de six ans.", msgs[2].Content)
	assert.False(t, msgs[2].Pending)
	assert.Equal(t, msgs[2], res.Reply)

	assert.Equal(t, "Quelle est la durée du mandat présidentiel ?", got.Text)
	require.Len(t, got.History, 2, "welcome plus the new question")
	assert.Equal(t, msgs[1].ID, got.History[1].ID)

	assert.Empty(t, notifier.all())
	assert.Equal(t, StateIdle, c.State())
}

func TestSubmitSendsSixMessageWindow(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(chat.NewMessage(chat.RoleUser, "q")))
		require.NoError(t, store.Append(chat.NewMessage(chat.RoleAssistant, "a")))
	}

	var history []chat.Message
	c := New(store, answer.Func(func(_ context.Context, q answer.Question) (answer.Answer, error) {
		history = q.History
		return answer.Answer{Text: "ok"}, nil
	}), nil, Options{})

	_, err := c.Submit(context.Background(), "dernière question")
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, "dernière question", history[5].Content)
	for _, m := range history {
		assert.False(t, m.Pending)
	}
}

func TestSubmitTimeout(t *testing.T) {
	store := newStore(t)
	notifier := &recordingNotifier{}
	answerer := answer.Func(func(ctx context.Context, _ answer.Question) (answer.Answer, error) {
		<-ctx.Done()
		return answer.Answer{}, ctx.Err()
	})
	c := New(store, answerer, notifier, Options{Timeout: 20 * time.Millisecond})

	res, err := c.Submit(context.Background(), "question lente")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Err)
	assert.Equal(t, answer.KindTimeout, res.Err.Kind)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Délai d'attente dépassé. Veuillez réessayer.", msgs[2].Content)
	assert.False(t, msgs[2].Pending)

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TypeError, sent[0].Type)
	assert.Equal(t, "Erreur de communication", sent[0].Title)
	assert.Equal(t, msgs[2].Content, sent[0].Message)
}

func TestSubmitFailureNeverShowsRawError(t *testing.T) {
	store := newStore(t)
	answerer := answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
		return answer.Answer{}, errors.New("panic: nil map in handler.go:42")
	})
	c := New(store, answerer, nil, Options{})

	res, err := c.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "q", msgs[1].Content)
	assert.Equal(t, answer.MsgUnknown, msgs[2].Content)
	assert.NotContains(t, msgs[2].Content, "handler.go")
}

func TestSubmitServerDetail(t *testing.T) {
	store := newStore(t)
	answerer := answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
		return answer.Answer{}, &answer.ServiceError{Kind: answer.KindInvalidRequest, Status: 400, Detail: "Question hors sujet"}
	})
	c := New(store, answerer, nil, Options{})

	res, err := c.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Question hors sujet", res.Reply.Content)
}

func TestSubmitBusyIsNoop(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	answerer := answer.Func(func(ctx context.Context, _ answer.Question) (answer.Answer, error) {
		calls.Add(1)
		close(started)
		<-release
		return answer.Answer{Text: "réponse"}, nil
	})
	c := New(store, answerer, nil, Options{})

	done := make(chan Result, 1)
	go func() {
		res, err := c.Submit(context.Background(), "première")
		assert.NoError(t, err)
		done <- res
	}()
	<-started

	assert.True(t, c.Busy())
	assert.Equal(t, StateAwaitingResponse, c.State())
	before := store.Len()

	_, err := c.Submit(context.Background(), "seconde")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, before, store.Len())

	close(release)
	res := <-done
	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 3, store.Len())
	assert.False(t, c.Busy())
}

func TestRescopeOnlyWhenIdle(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var filenames []string
	var mu sync.Mutex
	answerer := answer.Func(func(_ context.Context, q answer.Question) (answer.Answer, error) {
		mu.Lock()
		filenames = append(filenames, q.Filename)
		mu.Unlock()
		started <- struct{}{}
		<-release
		return answer.Answer{Text: "réponse"}, nil
	})
	c := New(store, answerer, nil, Options{Filename: "constitution-guinee-2010.pdf"})
	assert.Equal(t, "constitution-guinee-2010.pdf", c.Filename())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Submit(context.Background(), "première")
		assert.NoError(t, err)
	}()
	<-started

	assert.ErrorIs(t, c.Rescope("constitution-guinee-2020.pdf"), ErrBusy)
	assert.Equal(t, "constitution-guinee-2010.pdf", c.Filename())

	close(release)
	<-done
	require.NoError(t, c.Rescope("constitution-guinee-2020.pdf"))
	_, err := c.Submit(context.Background(), "seconde")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"constitution-guinee-2010.pdf", "constitution-guinee-2020.pdf"}, filenames)
}

func TestSubmitEmptyInput(t *testing.T) {
	store := newStore(t)
	c := New(store, answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
		t.Fatal("answerer must not be called")
		return answer.Answer{}, nil
	}), nil, Options{})

	_, err := c.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 1, store.Len())
}

func TestSubmitAfterResetIsDiscarded(t *testing.T) {
	store := newStore(t)
	c := New(store, answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
		store.Reset()
		return answer.Answer{Text: "trop tard"}, nil
	}), nil, Options{})

	_, err := c.Submit(context.Background(), "q")
	assert.ErrorIs(t, err, ErrDiscarded)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, chat.WelcomeText, store.Messages()[0].Content)
	assert.Equal(t, StateIdle, c.State())
}

func TestPendingResolvesOnce(t *testing.T) {
	store := newStore(t)
	pending, err := Begin(store)
	require.NoError(t, err)

	msg, err := pending.Resolve("une fois")
	require.NoError(t, err)
	assert.Equal(t, "une fois", msg.Content)

	_, err = pending.Reject(errors.New("later"))
	assert.ErrorIs(t, err, transcript.ErrNotPending)
	assert.Equal(t, "une fois", store.Messages()[1].Content)
}

func TestSubmitOverHTTPAcceptsAnswerKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"Les droits fondamentaux incluent..."}`))
	}))
	defer srv.Close()

	store := newStore(t)
	answerer := answer.NewHTTPAnswerer(answer.HTTPConfig{Endpoint: srv.URL}, zerolog.Nop())
	c := New(store, answerer, notify.Discard, Options{})

	_, err := c.Submit(context.Background(), "Quels sont les droits fondamentaux ?")
	require.NoError(t, err)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.RoleUser, msgs[1].Role)
	assert.Equal(t, "Quels sont les droits fondamentaux ?", msgs[1].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[2].Role)
	assert.False(t, msgs[2].Pending)
	assert.Equal(t, "Les droits fondamentaux incluent...", msgs[2].Content)
}

func TestSubmitOverHTTPNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := newStore(t)
	notifier := &recordingNotifier{}
	answerer := answer.NewHTTPAnswerer(answer.HTTPConfig{Endpoint: url}, zerolog.Nop())
	c := New(store, answerer, notifier, Options{})

	res, err := c.Submit(context.Background(), "Question ?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, answer.MsgNetwork, msgs[2].Content)
	require.Len(t, notifier.all(), 1)
}
