package chat

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
	chatService "github.com/zhouzirui/constitution-portal/backend/internal/service/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/exchange"
	"github.com/zhouzirui/constitution-portal/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc   *chatService.Service
	documents document.Store
	log       zerolog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, documents document.Store, log zerolog.Logger) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		documents: documents,
		log:       log,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/profiles/{profileID}", func(r chi.Router) {
		r.Post("/session", h.handleCreateSession)
		r.Get("/messages", h.handleListMessages)
		r.Post("/messages", h.handleSubmit)
		r.Delete("/messages", h.handleReset)
	})
}

type sessionResponse struct {
	Session     chat.Session   `json:"session"`
	Messages    []chat.Message `json:"messages"`
	Suggestions []string       `json:"suggestions"`
	Busy        bool           `json:"busy"`
}

type transcriptResponse struct {
	Messages []chat.Message `json:"messages"`
	Busy     bool           `json:"busy"`
}

type submitResponse struct {
	Outcome  exchange.Outcome `json:"outcome"`
	Reply    chat.Message     `json:"reply"`
	Messages []chat.Message   `json:"messages"`
	// ErrorKind classifies a failed exchange.
	ErrorKind string `json:"errorKind,omitempty"`
}

// handleCreateSession 创建或恢复会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	var payload struct {
		Filename string `json:"filename"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Filename != "" {
		_, ok, err := h.documents.FindByFilename(r.Context(), payload.Filename)
		if err != nil {
			h.log.Error().Err(err).Msg("document lookup failed")
			utils.RespondError(w, http.StatusBadGateway, "document catalog unavailable")
			return
		}
		if !ok {
			utils.RespondError(w, http.StatusBadRequest, "document not found")
			return
		}
	}

	session, err := h.chatSvc.CreateSession(r.Context(), profileID, payload.Filename)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	messages, err := h.chatSvc.LoadTranscript(r.Context(), profileID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{
		Session:     session,
		Messages:    messages,
		Suggestions: h.chatSvc.Suggestions(),
		Busy:        h.chatSvc.Busy(profileID),
	})
}

// ensureSession opens the profile lazily so clients may skip POST /session.
func (h *Handler) ensureSession(ctx context.Context, profileID string) error {
	_, err := h.chatSvc.Open(ctx, profileID)
	return err
}

// handleListMessages 返回对话记录
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	if err := h.ensureSession(r.Context(), profileID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), profileID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcriptResponse{Messages: messages, Busy: h.chatSvc.Busy(profileID)})
}

// handleSubmit 发送问题并等待回答
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.ensureSession(r.Context(), profileID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	// The exchange finishes and lands in the transcript even if the caller
	// disconnects.
	result, err := h.chatSvc.Submit(context.WithoutCancel(r.Context()), profileID, payload.Content)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), profileID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	resp := submitResponse{Outcome: result.Outcome, Reply: result.Reply, Messages: messages}
	if result.Err != nil {
		resp.ErrorKind = result.Err.Kind.String()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleReset 清空对话
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	if err := h.ensureSession(r.Context(), profileID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	messages, err := h.chatSvc.Reset(r.Context(), profileID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcriptResponse{Messages: messages, Busy: h.chatSvc.Busy(profileID)})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrProfileRequired), errors.Is(err, chatService.ErrInvalidProfile):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, exchange.ErrEmptyInput):
		utils.RespondError(w, http.StatusBadRequest, "content is required")
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exchange.ErrBusy):
		utils.RespondError(w, http.StatusConflict, "an answer is still pending")
	case errors.Is(err, exchange.ErrDiscarded):
		utils.RespondError(w, http.StatusConflict, "conversation was cleared before the answer arrived")
	default:
		h.log.Error().Err(err).Msg("chat request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
