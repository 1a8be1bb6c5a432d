package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	chatService "github.com/zhouzirui/constitution-portal/backend/internal/service/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
	"github.com/zhouzirui/constitution-portal/backend/pkg/utils"
)

const defaultKeepAlive = 15 * time.Second

// Handler pushes transcript changes and notifications via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	hub       *notify.Hub
	keepAlive time.Duration
	log       zerolog.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, hub *notify.Hub, log zerolog.Logger) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		hub:       hub,
		keepAlive: defaultKeepAlive,
		log:       log,
	}
}

// RegisterRoutes registers the event stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles/{profileID}/events", h.handleEvents)
}

// Snapshot is the first event of every stream.
type Snapshot struct {
	ProfileID string         `json:"profileId"`
	Messages  []chat.Message `json:"messages"`
	Busy      bool           `json:"busy"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	if _, err := h.chatSvc.Open(ctx, profileID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, cancel := h.hub.Subscribe(profileID)
	defer cancel()

	messages, err := h.chatSvc.LoadTranscript(ctx, profileID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "snapshot", Snapshot{
		ProfileID: profileID,
		Messages:  messages,
		Busy:      h.chatSvc.Busy(profileID),
	}); err != nil {
		return
	}

	log := h.log.With().Str("profile", profileID).Logger()
	log.Debug().Msg("event stream opened")
	defer log.Debug().Msg("event stream closed")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
				log.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}
