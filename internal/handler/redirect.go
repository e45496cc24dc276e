package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linkden/linkden/internal/clicks"
	"github.com/linkden/linkden/internal/service"
)

// Resolver resolves slugs to redirect decisions.
// *service.LinkService implements it.
type Resolver interface {
	Resolve(ctx context.Context, slug string) (*service.RedirectDecision, error)
}

// ClickSink accepts click events without blocking.
// *clicks.Recorder implements it.
type ClickSink interface {
	Record(c clicks.Click) bool
}

// RedirectHandler handles redirect requests.
type RedirectHandler struct {
	resolver Resolver
	sink     ClickSink
	logger   *slog.Logger
}

// NewRedirectHandler creates a new RedirectHandler.
func NewRedirectHandler(resolver Resolver, sink ClickSink, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{
		resolver: resolver,
		sink:     sink,
		logger:   logger,
	}
}

// Redirect handles GET /{slug}.
//
// Every terminal outcome, redirect or denial, emits a click event; the
// emit never delays or fails the response.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	rawSlug := chi.URLParam(r, "slug")
	start := time.Now()

	decision, err := h.resolver.Resolve(r.Context(), rawSlug)
	duration := time.Since(start)

	if err != nil {
		h.handleResolveError(w, r, rawSlug, err, duration)
		return
	}

	h.recordClick(r, decision.Link.ID, decision.HTTPStatus, decision.Audit)

	h.logger.Info("redirect",
		"slug", rawSlug,
		"status", decision.HTTPStatus,
		"cache_hit", decision.CacheHit,
		"audit", decision.Audit,
		"duration_ms", float64(duration.Microseconds())/1000,
	)

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Cache-Control", "private, max-age=0")

	http.Redirect(w, r, decision.TargetURL, decision.HTTPStatus)
}

// handleResolveError answers denial outcomes and records the ones that
// concern an existing link.
func (h *RedirectHandler) handleResolveError(w http.ResponseWriter, r *http.Request, rawSlug string, err error, duration time.Duration) {
	var status int
	var code, message string
	record := false

	switch {
	case errors.Is(err, service.ErrLinkNotFound):
		status, code, message = http.StatusNotFound, "LINK_NOT_FOUND", "link not found"
	case errors.Is(err, service.ErrLinkInactive):
		status, code, message = http.StatusGone, "LINK_INACTIVE", "link is inactive"
		record = true
	case errors.Is(err, service.ErrLinkExpired):
		status, code, message = http.StatusGone, "LINK_EXPIRED", "link has expired"
		record = true
	case errors.Is(err, service.ErrLinkBlocked):
		status, code, message = http.StatusForbidden, "LINK_BLOCKED", "link is blocked"
		record = true
	case errors.Is(err, service.ErrStorageUnavailable):
		status, code, message = http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "temporarily unavailable, retry"
		w.Header().Set("Retry-After", "1")
	default:
		h.logger.Error("redirect error", "slug", rawSlug, "error", err)
		status, code, message = http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}

	if record {
		// Denials of real links still count toward their stats.
		var deniedErr *service.DeniedError
		if errors.As(err, &deniedErr) && deniedErr.Link != nil {
			h.recordClick(r, deniedErr.Link.ID, status, false)
		}
	}

	h.logger.Info("redirect denied",
		"slug", rawSlug,
		"status", status,
		"code", code,
		"duration_ms", float64(duration.Microseconds())/1000,
	)

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=0")
	writeError(w, status, code, message)
}

// recordClick feeds one outcome into the click pipeline.
func (h *RedirectHandler) recordClick(r *http.Request, linkID string, status int, audit bool) {
	if h.sink == nil {
		return
	}
	h.sink.Record(clicks.Click{
		LinkID:      linkID,
		TS:          time.Now().UTC(),
		IP:          getClientIP(r),
		UserAgent:   r.Header.Get("User-Agent"),
		Referrer:    r.Header.Get("Referer"),
		CountryCode: r.Header.Get("X-Country-Code"),
		HTTPStatus:  status,
		Audit:       audit,
	})
}

// getClientIP extracts the client IP address from the request.
func getClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
