package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
)

// EventKind distinguishes what an Event carries.
type EventKind string

const (
	EventTranscript   EventKind = "transcript"
	EventNotification EventKind = "notification"
)

// Event is one push to a profile's subscribers.
type Event struct {
	Kind         EventKind      `json:"type"`
	ProfileID    string         `json:"profileId"`
	Messages     []chat.Message `json:"messages,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

const defaultBuffer = 16

// Hub fans events out to per-profile subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Event
	nextID uint64
	buffer int
	log    zerolog.Logger
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[uint64]chan Event),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a listener for profileID. The returned cancel func closes
// the channel and is safe to call more than once.
func (h *Hub) Subscribe(profileID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[profileID] == nil {
		h.subs[profileID] = make(map[uint64]chan Event)
	}
	h.subs[profileID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[profileID], id)
			if len(h.subs[profileID]) == 0 {
				delete(h.subs, profileID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports how many listeners profileID has.
func (h *Hub) Subscribers(profileID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[profileID])
}

// Publish delivers ev to every subscriber of ev.ProfileID.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs[ev.ProfileID] {
		select {
		case ch <- ev:
		default:
			h.log.Debug().
				Str("profile", ev.ProfileID).
				Uint64("subscriber", id).
				Str("event", string(ev.Kind)).
				Msg("subscriber full, event dropped")
		}
	}
}

// PublishTranscript pushes a transcript snapshot.
func (h *Hub) PublishTranscript(profileID string, messages []chat.Message) {
	h.Publish(Event{Kind: EventTranscript, ProfileID: profileID, Messages: messages})
}

// For returns a Notifier that publishes to profileID.
func (h *Hub) For(profileID string) Notifier {
	return Func(func(n Notification) {
		h.Publish(Event{Kind: EventNotification, ProfileID: profileID, Notification: &n})
	})
}
