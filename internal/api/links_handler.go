package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tmpshare/internal/middleware"
	"tmpshare/internal/repository"
	"tmpshare/internal/service"
)

// LinkHandler 管理文件的分享链接。
type LinkHandler struct {
	links  *service.LinkService
	logger *zap.Logger
}

func NewLinkHandler(links *service.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{links: links, logger: logger.Named("api")}
}

func (h *LinkHandler) RegisterRoutes(r chi.Router) {
	r.Post("/files/{id}/link", h.Create)
	r.Get("/files/{id}/links", h.List)
	r.Delete("/files/{id}/link/{linkId}", h.Delete)
}

type createLinkRequest struct {
	Hours int `json:"hours"`
}

type createLinkResponse struct {
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())
	if identity == nil {
		writeServiceError(w, r, h.logger, service.ErrUnauthenticated)
		return
	}

	var req createLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid duration")
		return
	}

	link, err := h.links.Create(r.Context(), identity, chi.URLParam(r, "id"), req.Hours)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, createLinkResponse{Link: link.ID, ExpiresAt: link.ExpiresAt})
}

type listLinksResponse struct {
	Links []repository.LinkRecord `json:"links"`
}

func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.ListForFile(r.Context(), middleware.IdentityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if links == nil {
		links = []repository.LinkRecord{}
	}
	writeJSON(w, http.StatusOK, listLinksResponse{Links: links})
}

func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.links.Delete(r.Context(), middleware.IdentityFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "linkId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
