package chat

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/answer"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/exchange"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/transcript"
	"github.com/zhouzirui/constitution-portal/backend/internal/storage"
)

var (
	ErrProfileRequired = errors.New("profile id is required")
	ErrInvalidProfile  = errors.New("profile id must be 1-64 letters, digits, '-' or '_'")
	ErrSessionNotFound = errors.New("session not found")
)

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Options tune the conversations a Service opens.
type Options struct {
	HistoryWindow int
	Timeout       time.Duration
	MaxResults    int
	Logger        zerolog.Logger
}

// Conversation is the live state of one profile. Its Coordinator lives as long
// as the conversation, so every exchange on Transcript shares one busy gate.
type Conversation struct {
	Session     chat.Session
	Transcript  *transcript.Store
	Coordinator *exchange.Coordinator
}

// Service keeps one transcript and one exchange coordinator per profile.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Conversation

	slot     storage.Slot
	answerer answer.Answerer
	hub      *notify.Hub
	opts     Options
	log      zerolog.Logger
}

// NewService serves conversations persisted in slot. hub may be nil.
func NewService(slot storage.Slot, answerer answer.Answerer, hub *notify.Hub, opts Options) *Service {
	return &Service{
		sessions: make(map[string]*Conversation),
		slot:     slot,
		answerer: answerer,
		hub:      hub,
		opts:     opts,
		log:      opts.Logger,
	}
}

func checkProfile(profileID string) error {
	if profileID == "" {
		return ErrProfileRequired
	}
	if !profilePattern.MatchString(profileID) {
		return ErrInvalidProfile
	}
	return nil
}

// CreateSession opens the conversation of profileID, restoring its stored
// transcript. Calling it again returns the live session; a different filename
// rescopes the coordinator, failing with exchange.ErrBusy while it is in flight.
func (s *Service) CreateSession(ctx context.Context, profileID, filename string) (chat.Session, error) {
	if err := checkProfile(profileID); err != nil {
		return chat.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.sessions[profileID]; ok {
		if conv.Session.Filename != filename {
			if err := conv.Coordinator.Rescope(filename); err != nil {
				return chat.Session{}, err
			}
			conv.Session.Filename = filename
		}
		return conv.Session, nil
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
	}
	log := s.log.With().Str("profile", profileID).Logger()
	store := transcript.Load(ctx, storage.Namespaced(s.slot, "profile:"+profileID), chat.StorageKey, transcript.Options{Logger: log})
	if s.hub != nil {
		hub := s.hub
		store.OnChange(func(messages []chat.Message) {
			hub.PublishTranscript(profileID, messages)
		})
	}

	s.sessions[profileID] = &Conversation{
		Session:     session,
		Transcript:  store,
		Coordinator: s.newCoordinator(store, session),
	}
	log.Info().Str("session", session.ID).Int("messages", store.Len()).Msg("session opened")
	return session, nil
}

// Open returns the live session of profileID, creating it unscoped when absent.
func (s *Service) Open(ctx context.Context, profileID string) (chat.Session, error) {
	if session, err := s.GetSession(ctx, profileID); err == nil {
		return session, nil
	} else if !errors.Is(err, ErrSessionNotFound) {
		return chat.Session{}, err
	}
	return s.CreateSession(ctx, profileID, "")
}

func (s *Service) newCoordinator(store *transcript.Store, session chat.Session) *exchange.Coordinator {
	var notifier notify.Notifier = notify.Discard
	if s.hub != nil {
		notifier = s.hub.For(session.ProfileID)
	}
	return exchange.New(store, s.answerer, notifier, exchange.Options{
		HistoryWindow: s.opts.HistoryWindow,
		Timeout:       s.opts.Timeout,
		SessionID:     session.ID,
		Filename:      session.Filename,
		MaxResults:    s.opts.MaxResults,
		Logger:        s.log.With().Str("profile", session.ProfileID).Logger(),
	})
}

// Conversation returns the open conversation of profileID.
func (s *Service) Conversation(profileID string) (*Conversation, error) {
	if err := checkProfile(profileID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.sessions[profileID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

// GetSession retrieves the session of profileID.
func (s *Service) GetSession(_ context.Context, profileID string) (chat.Session, error) {
	conv, err := s.Conversation(profileID)
	if err != nil {
		return chat.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conv.Session, nil
}

// LoadTranscript returns the messages of profileID in display order.
func (s *Service) LoadTranscript(_ context.Context, profileID string) ([]chat.Message, error) {
	conv, err := s.Conversation(profileID)
	if err != nil {
		return nil, err
	}
	return conv.Transcript.Messages(), nil
}

// Submit runs one exchange for profileID.
func (s *Service) Submit(ctx context.Context, profileID, content string) (exchange.Result, error) {
	conv, err := s.Conversation(profileID)
	if err != nil {
		return exchange.Result{}, err
	}
	return conv.Coordinator.Submit(ctx, content)
}

// Reset clears the transcript of profileID back to the welcome message.
func (s *Service) Reset(_ context.Context, profileID string) ([]chat.Message, error) {
	conv, err := s.Conversation(profileID)
	if err != nil {
		return nil, err
	}
	conv.Transcript.Reset()
	return conv.Transcript.Messages(), nil
}

// Busy reports whether profileID has an exchange in flight.
func (s *Service) Busy(profileID string) bool {
	conv, err := s.Conversation(profileID)
	if err != nil {
		return false
	}
	return conv.Coordinator.Busy()
}

// Suggestions lists the quick questions offered with a fresh transcript.
func (s *Service) Suggestions() []string {
	return chat.QuickQuestions()
}
