// Package exchange runs one question/answer round trip at a time against a
// transcript.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/answer"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/transcript"
)

var (
	ErrBusy       = errors.New("an exchange is already in flight")
	ErrEmptyInput = errors.New("empty input")
	// ErrDiscarded means the transcript was reset before the answer arrived.
	ErrDiscarded = errors.New("exchange discarded by transcript reset")
)

const (
	DefaultHistoryWindow = 6
	DefaultTimeout       = 45 * time.Second

	// FailureTitle heads the notification raised when an exchange fails.
	FailureTitle = "Erreur de communication"
)

// State is the coordinator's position in the exchange lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "idle"
	}
}

// Outcome is how a finished exchange ended.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeFailed   Outcome = "failed"
)

// Options tune a Coordinator. Zero values take the defaults.
type Options struct {
	HistoryWindow int
	Timeout       time.Duration
	UserID        *string
	SessionID     string
	Filename      string
	MaxResults    int
	Logger        zerolog.Logger
}

// Result describes a finished exchange.
type Result struct {
	Outcome Outcome
	// Reply is the resolved assistant message, holding either the answer or
	// the user-facing failure text.
	Reply chat.Message
	// Err is the classified failure, nil when resolved.
	Err *answer.ServiceError
}

// Coordinator drives exchanges for one transcript. At most one exchange is in
// flight per Coordinator.
type Coordinator struct {
	mu    sync.Mutex
	state State
	// filename scopes questions to one document; guarded by mu.
	filename string

	store    *transcript.Store
	answerer answer.Answerer
	notifier notify.Notifier
	opts     Options
	log      zerolog.Logger
}

// New wires a coordinator. A nil notifier discards notifications.
func New(store *transcript.Store, answerer answer.Answerer, notifier notify.Notifier, opts Options) *Coordinator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Coordinator{
		store:    store,
		answerer: answerer,
		notifier: notifier,
		opts:     opts,
		filename: opts.Filename,
		log:      opts.Logger,
	}
}

// Filename returns the document the coordinator's questions are scoped to.
func (c *Coordinator) Filename() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filename
}

// Rescope points later questions at filename. It fails with ErrBusy while an
// exchange is in flight.
func (c *Coordinator) Rescope(filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	c.filename = filename
	return nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether an exchange is in flight.
func (c *Coordinator) Busy() bool {
	return c.State() != StateIdle
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// acquire moves Idle to Sending and returns the document scope of the new
// exchange, or reports that an exchange is in flight.
func (c *Coordinator) acquire() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return "", false
	}
	c.state = StateSending
	return c.filename, true
}

// Submit sends input as the next question. Empty input and a busy coordinator
// return an error without touching the transcript. A failed answer is not an
// error: it is written into the transcript and reported through Result.
func (c *Coordinator) Submit(ctx context.Context, input string) (Result, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return Result{}, ErrEmptyInput
	}
	filename, ok := c.acquire()
	if !ok {
		return Result{}, ErrBusy
	}
	defer c.setState(StateIdle)

	if err := c.store.Append(chat.NewMessage(chat.RoleUser, text)); err != nil {
		return Result{}, fmt.Errorf("append question: %w", err)
	}
	pending, err := Begin(c.store)
	if err != nil {
		return Result{}, err
	}
	c.setState(StateAwaitingResponse)

	question := answer.Question{
		Text:       text,
		History:    c.store.Window(c.opts.HistoryWindow),
		UserID:     c.opts.UserID,
		SessionID:  c.opts.SessionID,
		Filename:   filename,
		MaxResults: c.opts.MaxResults,
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	ans, askErr := c.answerer.Ask(callCtx, question)
	if askErr != nil {
		svcErr := answer.Classify(askErr)
		reply, err := pending.Reject(askErr)
		if err != nil {
			return Result{}, c.discarded(err)
		}
		c.notifier.Notify(notify.New(notify.TypeError, FailureTitle, reply.Content))
		c.log.Warn().
			Err(askErr).
			Str("kind", svcErr.Kind.String()).
			Dur("latency", time.Since(start)).
			Msg("exchange failed")
		return Result{Outcome: OutcomeFailed, Reply: reply, Err: svcErr}, nil
	}

	reply, err := pending.Resolve(ans.Text)
	if err != nil {
		return Result{}, c.discarded(err)
	}
	c.log.Info().
		Int("history", len(question.History)).
		Dur("latency", time.Since(start)).
		Msg("exchange resolved")
	return Result{Outcome: OutcomeResolved, Reply: reply}, nil
}

func (c *Coordinator) discarded(err error) error {
	if errors.Is(err, transcript.ErrNotPending) {
		c.log.Info().Msg("answer arrived after reset, dropped")
		return ErrDiscarded
	}
	return err
}
