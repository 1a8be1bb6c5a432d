package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/handler/chat"
	documentHandler "github.com/zhouzirui/constitution-portal/backend/internal/handler/document"
	"github.com/zhouzirui/constitution-portal/backend/internal/handler/stream"
	"github.com/zhouzirui/constitution-portal/backend/internal/handler/ws"
	"github.com/zhouzirui/constitution-portal/backend/internal/logger"
	middlewarePkg "github.com/zhouzirui/constitution-portal/backend/internal/middleware"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
	chatService "github.com/zhouzirui/constitution-portal/backend/internal/service/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/download"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
	"github.com/zhouzirui/constitution-portal/backend/pkg/utils"
)

// Deps groups what the HTTP layer needs.
type Deps struct {
	Documents      document.Store
	Files          documentHandler.FileLocator
	Downloads      *download.Helper
	Chat           *chatService.Service
	Hub            *notify.Hub
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.AccessLog(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	documentH := documentHandler.New(deps.Documents, deps.Files, deps.Downloads, logger.Component(deps.Logger, "documents"))
	chatH := chat.New(deps.Chat, deps.Documents, logger.Component(deps.Logger, "chat"))
	streamH := stream.New(deps.Chat, deps.Hub, logger.Component(deps.Logger, "stream"))
	wsH := ws.New(deps.Chat, deps.Hub, logger.Component(deps.Logger, "ws"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		documentH.RegisterRoutes(api)
		chatH.RegisterRoutes(api)
		streamH.RegisterRoutes(api)
		wsH.RegisterRoutes(api)
	})

	return r
}
