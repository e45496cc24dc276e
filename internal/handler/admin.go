package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linkden/linkden/internal/auth"
	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/safety"
	"github.com/linkden/linkden/internal/service"
)

// DomainListStore manages the safety gate's domain lists.
// *repository.Repository implements it.
type DomainListStore interface {
	AddDenylistDomain(ctx context.Context, domain, reason string) error
	AddAllowlistDomain(ctx context.Context, domain, note string) error
	ListDenylistDomains(ctx context.Context) ([]*model.DomainListEntry, error)
	ListAllowlistDomains(ctx context.Context) ([]*model.DomainListEntry, error)
}

// SafetyRechecker re-verdicts a stored link.
// *service.LinkService implements it.
type SafetyRechecker interface {
	RecheckLink(ctx context.Context, id string, actor *auth.Identity) (*model.Link, error)
}

// AdminHandler handles admin-only provisioning endpoints.
type AdminHandler struct {
	store     DomainListStore
	rechecker SafetyRechecker
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(store DomainListStore, rechecker SafetyRechecker, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:     store,
		rechecker: rechecker,
		logger:    logger,
	}
}

// DomainRequest represents the body for adding a domain to a list.
type DomainRequest struct {
	Domain string `json:"domain"`
	Note   string `json:"note,omitempty"`
}

// DomainListResponse wraps list entries.
type DomainListResponse struct {
	Data []*model.DomainListEntry `json:"data"`
}

// AddDenylistDomain handles POST /api/v1/admin/denylist.
// New verdicts see the entry immediately; existing links keep their
// stored status until rechecked.
func (h *AdminHandler) AddDenylistDomain(w http.ResponseWriter, r *http.Request) {
	h.addDomain(w, r, h.store.AddDenylistDomain)
}

// AddAllowlistDomain handles POST /api/v1/admin/allowlist.
func (h *AdminHandler) AddAllowlistDomain(w http.ResponseWriter, r *http.Request) {
	h.addDomain(w, r, h.store.AddAllowlistDomain)
}

// ListDenylist handles GET /api/v1/admin/denylist.
func (h *AdminHandler) ListDenylist(w http.ResponseWriter, r *http.Request) {
	h.listDomains(w, r, h.store.ListDenylistDomains)
}

// ListAllowlist handles GET /api/v1/admin/allowlist.
func (h *AdminHandler) ListAllowlist(w http.ResponseWriter, r *http.Request) {
	h.listDomains(w, r, h.store.ListAllowlistDomains)
}

// RecheckLink handles POST /api/v1/admin/links/{id}/recheck.
// Re-runs the safety gate so list changes reach existing links.
func (h *AdminHandler) RecheckLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.rechecker.RecheckLink(r.Context(), chi.URLParam(r, "id"), auth.IdentityFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLinkNotFound):
			writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "link not found")
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
		default:
			h.logger.Error("link recheck failed", "link_id", chi.URLParam(r, "id"), "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"link_id":       link.ID,
		"safety_status": link.SafetyStatus,
		"safety_tags":   link.SafetyTags,
	})
}

func (h *AdminHandler) addDomain(w http.ResponseWriter, r *http.Request, add func(ctx context.Context, domain, note string) error) {
	var req DomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	domain, err := safety.NormalizeDomain(req.Domain)
	if err != nil || domain == "" {
		writeError(w, http.StatusBadRequest, "INVALID_DOMAIN", "domain is not valid")
		return
	}

	if err := add(r.Context(), domain, req.Note); err != nil {
		h.logger.Error("domain list insert failed", "domain", domain, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"domain": domain})
}

func (h *AdminHandler) listDomains(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]*model.DomainListEntry, error)) {
	entries, err := list(r.Context())
	if err != nil {
		h.logger.Error("domain list read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		return
	}
	if entries == nil {
		entries = []*model.DomainListEntry{}
	}

	writeJSON(w, http.StatusOK, DomainListResponse{Data: entries})
}
