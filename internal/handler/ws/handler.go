package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	chatservice "github.com/zhouzirui/constitution-portal/backend/internal/service/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/exchange"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
	"github.com/zhouzirui/constitution-portal/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler WebSocket对话处理器
type Handler struct {
	chatSvc  *chatservice.Service
	hub      *notify.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, hub *notify.Hub, log zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		hub:     hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles/{profileID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type askData struct {
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	ProfileID string `json:"profileId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	if _, err := h.chatSvc.Open(r.Context(), profileID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("profile", profileID).Logger()
	log.Debug().Msg("websocket connected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	events, unsubscribe := h.hub.Subscribe(profileID)
	defer unsubscribe()

	out := make(chan outgoingMessage, 8)
	writerDone := h.startWriter(ctx, cancel, conn, profileID, events, out, log)

	messages, err := h.chatSvc.LoadTranscript(ctx, profileID)
	if err != nil {
		log.Error().Err(err).Msg("load transcript")
		return
	}
	send(ctx, out, outgoingMessage{Type: "connected", ProfileID: profileID, Data: map[string]any{
		"messages": messages,
		"busy":     h.chatSvc.Busy(profileID),
	}})

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(ctx, profileID, msg, out)
	}

	cancel()
	<-writerDone
	log.Debug().Msg("websocket closed")
}

func (h *Handler) handleMessage(ctx context.Context, profileID string, msg inboundMessage, out chan<- outgoingMessage) {
	switch msg.Type {
	case "ask":
		var data askData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			send(ctx, out, errorMessage("invalid ask payload"))
			return
		}
		// Transcript changes reach the client through the hub; only the
		// outcome and refusals are sent directly. The exchange outlives the
		// connection.
		go func() {
			result, err := h.chatSvc.Submit(context.WithoutCancel(ctx), profileID, data.Content)
			if err != nil {
				send(ctx, out, errorMessage(describe(err)))
				return
			}
			payload := map[string]any{"outcome": result.Outcome, "reply": result.Reply}
			if result.Err != nil {
				payload["errorKind"] = result.Err.Kind.String()
			}
			send(ctx, out, outgoingMessage{Type: "result", ProfileID: profileID, Data: payload})
		}()
	case "reset":
		if _, err := h.chatSvc.Reset(ctx, profileID); err != nil {
			send(ctx, out, errorMessage(describe(err)))
		}
	default:
		send(ctx, out, errorMessage("unsupported message type: "+msg.Type))
	}
}

// startWriter runs writeLoop in its own goroutine. Once the writer stops, ctx is
// cancelled and conn closed so the read loop and pending sends unblock.
func (h *Handler) startWriter(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, profileID string, events <-chan notify.Event, out <-chan outgoingMessage, log zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer conn.Close()
		defer cancel()
		h.writeLoop(ctx, conn, profileID, events, out, log)
	}()
	return done
}

// writeLoop owns every write to conn.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, profileID string, events <-chan notify.Event, out <-chan outgoingMessage, log zerolog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().Unix()
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !write(outgoingMessage{Type: string(ev.Kind), ProfileID: profileID, Data: ev}) {
				return
			}
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func send(ctx context.Context, out chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func errorMessage(message string) outgoingMessage {
	return outgoingMessage{Type: "error", Data: map[string]string{"message": message}}
}

func describe(err error) string {
	switch {
	case errors.Is(err, exchange.ErrBusy):
		return "an answer is still pending"
	case errors.Is(err, exchange.ErrEmptyInput):
		return "content is required"
	case errors.Is(err, exchange.ErrDiscarded):
		return "conversation was cleared before the answer arrived"
	default:
		return err.Error()
	}
}
