package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/storage"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrDuplicateID    = errors.New("message id already used")
	ErrNotPending     = errors.New("message is not a pending placeholder")
)

// Options tune a Store. The zero value is usable.
type Options struct {
	// Seed builds the single message of a fresh or cleared transcript.
	Seed func() chat.Message
	// WriteTimeout bounds one persist call.
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Store owns the ordered messages of one conversation and mirrors every
// mutation into a durable slot.
type Store struct {
	mu        sync.RWMutex
	slot      storage.Slot
	key       string
	messages  []chat.Message
	usedIDs   map[string]struct{}
	seed      func() chat.Message
	timeout   time.Duration
	log       zerolog.Logger
	observers []func([]chat.Message)
	// notifyMu keeps observer deliveries in mutation order.
	notifyMu sync.Mutex
}

// Load restores the transcript stored under key. Any problem reading or decoding
// the slot falls back to a seeded transcript; Load itself never fails.
// A failed slot read keeps the seed in memory only, so the stored transcript
// survives until the next mutation.
func Load(ctx context.Context, slot storage.Slot, key string, opts Options) *Store {
	s := newStore(slot, key, opts)

	raw, ok, err := slot.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("transcript slot unavailable, seeding in memory")
		s.replace([]chat.Message{s.seed()})
		return s
	}

	messages, err := decode(raw, ok)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("transcript unreadable, seeding")
		s.replace([]chat.Message{s.seed()})
		s.Persist()
		return s
	}
	if messages == nil {
		s.log.Debug().Str("key", key).Msg("no stored transcript, seeding")
		s.replace([]chat.Message{s.seed()})
		s.Persist()
		return s
	}

	s.replace(messages)
	return s
}

func newStore(slot storage.Slot, key string, opts Options) *Store {
	seed := opts.Seed
	if seed == nil {
		seed = chat.Welcome
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		slot:    slot,
		key:     key,
		seed:    seed,
		timeout: timeout,
		log:     opts.Logger,
	}
}

// decode returns nil messages when the slot holds nothing usable.
func decode(raw []byte, ok bool) ([]chat.Message, error) {
	if !ok {
		return nil, nil
	}

	var messages []chat.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	if err := validate(messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func validate(messages []chat.Message) error {
	seen := make(map[string]struct{}, len(messages))
	for i, msg := range messages {
		if err := checkMessage(msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if _, dup := seen[msg.ID]; dup {
			return fmt.Errorf("message %d: %w", i, ErrDuplicateID)
		}
		seen[msg.ID] = struct{}{}
	}
	return nil
}

func checkMessage(msg chat.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidMessage)
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}
	if _, err := chat.ParseTime(msg.CreatedAt); err != nil {
		return fmt.Errorf("%w: createdAt %q", ErrInvalidMessage, msg.CreatedAt)
	}
	return nil
}

// replace swaps the whole message list. Ids from earlier lifetimes stay reserved.
func (s *Store) replace(messages []chat.Message) {
	if s.usedIDs == nil {
		s.usedIDs = make(map[string]struct{}, len(messages))
	}
	s.messages = messages
	for _, msg := range messages {
		s.usedIDs[msg.ID] = struct{}{}
	}
}

// OnChange registers fn to receive a snapshot after every mutation.
func (s *Store) OnChange(fn func([]chat.Message)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Messages returns a copy of the transcript in display order.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Window returns up to n trailing messages, skipping unresolved placeholders.
func (s *Store) Window(n int) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Message, 0, n)
	for i := len(s.messages) - 1; i >= 0 && len(out) < n; i-- {
		if s.messages[i].Pending {
			continue
		}
		out = append(out, s.messages[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Find returns the message with id.
func (s *Store) Find(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.messages[idx], true
	}
	return chat.Message{}, false
}

// Append adds msg at the end of the transcript.
func (s *Store) Append(msg chat.Message) error {
	if msg.CreatedAt == "" {
		msg.CreatedAt = chat.ISONow()
	}
	if err := checkMessage(msg); err != nil {
		return err
	}

	s.mu.Lock()
	if _, used := s.usedIDs[msg.ID]; used {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
	}
	s.usedIDs[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	s.commitLocked()
	return nil
}

// Patch carries the fields a pending message may change.
type Patch struct {
	Content string
	Pending bool
}

// UpdateLast applies patch to the most recent pending message matching pred.
// It reports whether a message was updated.
func (s *Store) UpdateLast(pred func(chat.Message) bool, patch Patch) bool {
	s.mu.Lock()
	idx := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Pending && pred(s.messages[i]) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[idx].Content = patch.Content
	s.messages[idx].Pending = patch.Pending
	s.commitLocked()
	return true
}

// Resolve fills the pending message id with content and clears its pending flag.
// A message resolves at most once.
func (s *Store) Resolve(id, content string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 || !s.messages[idx].Pending {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	s.messages[idx].Content = content
	s.messages[idx].Pending = false
	s.commitLocked()
	return nil
}

// Reset replaces the transcript with one fresh welcome message.
func (s *Store) Reset() {
	msg := s.seed()

	s.mu.Lock()
	for {
		if _, used := s.usedIDs[msg.ID]; !used {
			break
		}
		msg.ID = chat.NewID()
	}
	s.usedIDs[msg.ID] = struct{}{}
	s.messages = []chat.Message{msg}
	s.commitLocked()
}

// Persist writes the whole transcript to the slot in one call. Write failures
// are logged and dropped so the mutation path never fails on storage.
func (s *Store) Persist() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.persist(s.snapshotLocked())
}

func (s *Store) persist(snapshot []chat.Message) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		s.log.Error().Err(err).Msg("encode transcript")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.slot.Set(ctx, s.key, raw); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("persist transcript failed")
	}
}

// commitLocked persists the current transcript, releases s.mu and then notifies
// observers. Observers must not mutate the store.
func (s *Store) commitLocked() {
	snapshot := s.snapshotLocked()
	s.persist(snapshot)
	observers := slices.Clone(s.observers)

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, fn := range observers {
		fn(append([]chat.Message(nil), snapshot...))
	}
}

func (s *Store) indexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []chat.Message {
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
