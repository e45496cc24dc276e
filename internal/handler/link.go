package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linkden/linkden/internal/auth"
	"github.com/linkden/linkden/internal/handler/dto"
	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/service"
)

// LinkService is the service surface the link handlers need.
// *service.LinkService implements it.
type LinkService interface {
	CreateLink(ctx context.Context, input service.CreateLinkInput) (*model.Link, error)
	GetLink(ctx context.Context, id string) (*model.Link, error)
	ListLinks(ctx context.Context, input service.ListLinksInput) (*service.ListLinksOutput, error)
	UpdateLink(ctx context.Context, input service.UpdateLinkInput) (*model.Link, error)
	DeleteLink(ctx context.Context, id string, actor *auth.Identity) error
	GetStats(ctx context.Context, id string, from, to time.Time, actor *auth.Identity) (*service.LinkStats, error)
	BaseURL() string
}

// LinkHandler handles link management requests.
type LinkHandler struct {
	svc    LinkService
	logger *slog.Logger
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(svc LinkService, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/v1/links.
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	link, err := h.svc.CreateLink(r.Context(), service.CreateLinkInput{
		Slug:         req.Slug,
		TargetURL:    req.TargetURL,
		RedirectType: req.RedirectType,
		ExpiresAt:    req.ExpiresAt,
		Owner:        auth.IdentityFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// Get handles GET /api/v1/links/{id}.
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.GetLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if !canView(auth.IdentityFromContext(r.Context()), link) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to view this link")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// List handles GET /api/v1/links.
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	out, err := h.svc.ListLinks(r.Context(), service.ListLinksInput{
		Owner:  auth.IdentityFromContext(r.Context()),
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkListResponse(out.Links, h.svc.BaseURL(), out.NextCursor, out.HasMore))
}

// Update handles PATCH /api/v1/links/{id}.
func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateLinkRequest
	// Second decode pass distinguishes absent expires_at from null.
	var raw map[string]json.RawMessage
	body := json.NewDecoder(r.Body)
	if err := body.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	merged, _ := json.Marshal(raw)
	if err := json.Unmarshal(merged, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if v, ok := raw["expires_at"]; ok && string(v) == "null" {
		req.ClearExpiry = true
	}

	link, err := h.svc.UpdateLink(r.Context(), service.UpdateLinkInput{
		ID:           chi.URLParam(r, "id"),
		TargetURL:    req.TargetURL,
		RedirectType: req.RedirectType,
		ExpiresAt:    req.ExpiresAt,
		ClearExpiry:  req.ClearExpiry,
		IsActive:     req.IsActive,
		Actor:        auth.IdentityFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// Delete handles DELETE /api/v1/links/{id}. Deleting a link takes its
// click events and rollups with it.
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteLink(r.Context(), chi.URLParam(r, "id"), auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/links/{id}/stats.
// Defaults to the trailing 30 days when no range is given.
func (h *LinkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -29)

	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", "from must be YYYY-MM-DD")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", "to must be YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "to must not precede from")
		return
	}

	stats, err := h.svc.GetStats(r.Context(), chi.URLParam(r, "id"), from, to, auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToStatsResponse(stats.Link, stats.Daily, stats.Summary, from, to))
}

// writeServiceError maps service errors onto the API error envelope.
func (h *LinkHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSlug):
		writeError(w, http.StatusBadRequest, "INVALID_SLUG", "slug must be 1-32 characters of A-Z, a-z, 0-9, _ or -")
	case errors.Is(err, service.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "INVALID_TARGET", "target URL is not acceptable")
	case errors.Is(err, service.ErrTargetTooLong):
		writeError(w, http.StatusBadRequest, "INVALID_TARGET", "target URL is too long")
	case errors.Is(err, service.ErrExpiresInPast):
		writeError(w, http.StatusBadRequest, "INVALID_EXPIRY", "expires_at must be in the future")
	case errors.Is(err, service.ErrInvalidRedirectType):
		writeError(w, http.StatusBadRequest, "INVALID_REDIRECT_TYPE", "redirect_type must be 301 or 302")
	case errors.Is(err, service.ErrSlugTaken):
		writeError(w, http.StatusConflict, "SLUG_TAKEN", "slug is already in use")
	case errors.Is(err, service.ErrSlugSpaceExhausted):
		writeError(w, http.StatusServiceUnavailable, "SLUG_SPACE_EXHAUSTED", "could not allocate a slug, retry")
	case errors.Is(err, service.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "link not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed")
	case errors.Is(err, service.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage unavailable, retry")
	default:
		h.logger.Error("link handler error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}

func canView(identity *auth.Identity, link *model.Link) bool {
	if identity == nil {
		return false
	}
	return identity.IsAdmin() || identity.UserID == link.OwnerID
}
