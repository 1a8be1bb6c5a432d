package document

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/download"
	"github.com/zhouzirui/constitution-portal/backend/pkg/utils"
)

// FileLocator resolves the file endpoint URL of a document.
type FileLocator interface {
	FileURL(filename string) string
}

// Handler 文档目录的HTTP处理器
type Handler struct {
	documents document.Store
	files     FileLocator
	downloads *download.Helper
	log       zerolog.Logger
}

// New 创建文档处理器
func New(documents document.Store, files FileLocator, downloads *download.Helper, log zerolog.Logger) *Handler {
	return &Handler{
		documents: documents,
		files:     files,
		downloads: downloads,
		log:       log,
	}
}

// RegisterRoutes 注册文档相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/documents", h.handleListDocuments)
	r.Get("/documents/{filename}", h.handleView)
	r.Get("/documents/{filename}/download", h.handleDownload)
}

// handleListDocuments 列出所有文档
func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list documents failed")
		utils.RespondError(w, http.StatusBadGateway, "document catalog unavailable")
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	utils.RespondJSON(w, http.StatusOK, docs)
}

func (h *Handler) lookup(ctx context.Context, w http.ResponseWriter, filename string) (document.Document, bool) {
	doc, ok, err := h.documents.FindByFilename(ctx, filename)
	if err != nil {
		h.log.Error().Err(err).Str("filename", filename).Msg("document lookup failed")
		utils.RespondError(w, http.StatusBadGateway, "document catalog unavailable")
		return document.Document{}, false
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "document not found")
		return document.Document{}, false
	}
	return doc, true
}

// handleView 在页面内展示文档
func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookup(r.Context(), w, chi.URLParam(r, "filename"))
	if !ok {
		return
	}

	blob, err := h.downloads.CreateObjectURL(r.Context(), h.files.FileURL(doc.Filename))
	if err != nil {
		h.respondFetchError(w, err)
		return
	}
	defer h.downloads.Release(blob)

	content, err := h.downloads.Open(blob)
	if err != nil {
		h.respondFetchError(w, err)
		return
	}
	defer content.Close()

	saver := download.ResponseSaver{W: w, Inline: true}
	if err := saver.Save(r.Context(), content, blob, doc.Filename); err != nil {
		h.log.Warn().Err(err).Str("filename", doc.Filename).Msg("inline view interrupted")
	}
}

// handleDownload 以原始文件名下载文档
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookup(r.Context(), w, chi.URLParam(r, "filename"))
	if !ok {
		return
	}

	err := h.downloads.With(download.ResponseSaver{W: w}).DownloadFromURL(r.Context(), h.files.FileURL(doc.Filename), doc.Filename)
	if err == nil {
		return
	}

	var statusErr *download.StatusError
	if errors.As(err, &statusErr) || !headersSent(w) {
		h.respondFetchError(w, err)
		return
	}
	h.log.Warn().Err(err).Str("filename", doc.Filename).Msg("download interrupted")
}

func (h *Handler) respondFetchError(w http.ResponseWriter, err error) {
	var statusErr *download.StatusError
	if errors.As(err, &statusErr) {
		status := http.StatusBadGateway
		if statusErr.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, statusErr.Error())
		return
	}
	h.log.Error().Err(err).Msg("file fetch failed")
	utils.RespondError(w, http.StatusBadGateway, "Échec du téléchargement")
}

// headersSent reports whether a saver already committed the response.
func headersSent(w http.ResponseWriter) bool {
	return w.Header().Get("Content-Disposition") != ""
}
