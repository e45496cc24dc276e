// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linkden/linkden/internal/auth"
	"github.com/linkden/linkden/internal/cache"
	"github.com/linkden/linkden/internal/metrics"
	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/repository"
	"github.com/linkden/linkden/internal/safety"
	"github.com/linkden/linkden/internal/slug"
)

// Service errors.
var (
	ErrInvalidSlug         = slug.ErrInvalidSlug
	ErrSlugTaken           = errors.New("slug already taken")
	ErrSlugSpaceExhausted  = errors.New("could not allocate a free slug")
	ErrInvalidTarget       = errors.New("invalid target URL")
	ErrTargetTooLong       = errors.New("target URL too long")
	ErrExpiresInPast       = errors.New("expires_at must be in the future")
	ErrInvalidRedirectType = errors.New("invalid redirect type")
	ErrLinkNotFound        = errors.New("link not found")
	ErrLinkInactive        = errors.New("link is inactive")
	ErrLinkExpired         = errors.New("link is expired")
	ErrLinkBlocked         = errors.New("link is blocked")
	ErrForbidden           = errors.New("not allowed to modify this link")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

const (
	maxTargetLength = 2048
	maxSlugAttempts = 3
)

// LinkStore is the persistence surface the service needs.
// *repository.Repository implements it.
type LinkStore interface {
	CreateLink(ctx context.Context, link *model.Link) error
	GetLinkByID(ctx context.Context, id string) (*model.Link, error)
	GetLinkBySlug(ctx context.Context, s string) (*model.Link, error)
	ListLinks(ctx context.Context, filter repository.LinkFilter, cursor string, limit int) ([]*model.Link, string, error)
	UpdateLink(ctx context.Context, link *model.Link) error
	UpdateLinkSafety(ctx context.Context, id string, status model.SafetyStatus, tags []string, checkedAt time.Time) error
	DeleteLink(ctx context.Context, id string) error
}

// StatsStore reads daily rollups. *repository.Repository implements it.
type StatsStore interface {
	GetDailyStats(ctx context.Context, linkID string, from, to time.Time) ([]*model.LinkStatsDaily, error)
	GetStatsSummary(ctx context.Context, linkID string, from, to time.Time) (*model.StatsSummary, error)
}

// LinkCache is the hot-path cache surface. *cache.Cache implements it.
// A nil cache is valid; the resolver then reads straight from the store.
type LinkCache interface {
	GetLink(ctx context.Context, s string) (*model.CachedLink, error)
	SetLink(ctx context.Context, link *model.Link) error
	DeleteLink(ctx context.Context, s string) error
	IsNegativelyCached(ctx context.Context, s string) (bool, error)
	SetNegativeCache(ctx context.Context, s string) error
}

// SafetyEvaluator classifies target URLs and re-verdicts stored
// links. *safety.Gate implements it.
type SafetyEvaluator interface {
	Evaluate(ctx context.Context, targetURL string) (safety.Verdict, error)
	Recheck(ctx context.Context, link *model.Link) (safety.Verdict, error)
}

// Options holds the injected policy knobs for the service.
type Options struct {
	AllowedSchemes []string
	// StrictSafety denies resolution for links that are not yet safe.
	// Default false: pending/suspicious links resolve fail-open with
	// the click event tagged for audit.
	StrictSafety  bool
	LookupTimeout time.Duration
	BaseURL       string
}

// LinkService handles link business logic.
type LinkService struct {
	store   LinkStore
	stats   StatsStore
	cache   LinkCache
	gate    SafetyEvaluator
	opts    Options
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewLinkService creates a new LinkService.
func NewLinkService(store LinkStore, stats StatsStore, linkCache LinkCache, gate SafetyEvaluator, opts Options, recorder metrics.Recorder, logger *slog.Logger) *LinkService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &LinkService{
		store:   store,
		stats:   stats,
		cache:   linkCache,
		gate:    gate,
		opts:    opts,
		metrics: recorder,
		logger:  logger.With("component", "service.link"),
	}
}

// CreateLinkInput defines input for creating a link.
type CreateLinkInput struct {
	Slug         string // optional; generated when empty
	TargetURL    string
	RedirectType int
	ExpiresAt    *time.Time
	Owner        *auth.Identity
}

// CreateLink allocates a slug and creates the link.
// The safety gate runs synchronously before the insert; the link is
// created carrying its verdict, even when that verdict is pending.
func (s *LinkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	if err := s.validateTarget(input.TargetURL); err != nil {
		return nil, err
	}

	redirectType := model.RedirectPermanent // 301 unless asked otherwise
	if input.RedirectType != 0 {
		redirectType = model.RedirectType(input.RedirectType)
		if !redirectType.IsValid() {
			return nil, ErrInvalidRedirectType
		}
	}

	if input.ExpiresAt != nil && input.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiresInPast
	}

	if input.Owner == nil || input.Owner.UserID == "" {
		return nil, ErrForbidden
	}

	verdict, err := s.gate.Evaluate(ctx, input.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("safety evaluation: %w", err)
	}

	now := time.Now().UTC()
	link := &model.Link{
		ID:            ulid.Make().String(),
		TargetURL:     input.TargetURL,
		OwnerID:       input.Owner.UserID,
		IsActive:      true,
		ExpiresAt:     input.ExpiresAt,
		RedirectType:  redirectType,
		SafetyStatus:  verdict.Status,
		SafetyTags:    verdict.Tags,
		LastCheckedAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if input.Slug != "" {
		// Requested slug: validate and take exactly one shot. A
		// collision is the caller's to resolve, not ours to retry.
		if err := slug.Validate(input.Slug); err != nil {
			return nil, err
		}
		link.Slug = input.Slug
		if err := s.store.CreateLink(ctx, link); err != nil {
			if errors.Is(err, repository.ErrSlugTaken) {
				return nil, ErrSlugTaken
			}
			return nil, fmt.Errorf("create link: %w", err)
		}
	} else {
		// Generated slug: the store's uniqueness constraint arbitrates
		// collisions; regenerate a bounded number of times.
		if err := s.createWithGeneratedSlug(ctx, link); err != nil {
			return nil, err
		}
	}

	s.metrics.IncLinkCreated()

	return link, nil
}

// createWithGeneratedSlug retries generation on collision.
func (s *LinkService) createWithGeneratedSlug(ctx context.Context, link *model.Link) error {
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		generated, err := slug.Generate()
		if err != nil {
			return fmt.Errorf("generate slug: %w", err)
		}

		link.Slug = generated
		err = s.store.CreateLink(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrSlugTaken) {
			continue
		}
		return fmt.Errorf("create link: %w", err)
	}
	return ErrSlugSpaceExhausted
}

// GetLink retrieves a link by ID.
func (s *LinkService) GetLink(ctx context.Context, id string) (*model.Link, error) {
	link, err := s.store.GetLinkByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	return link, nil
}

// ListLinksInput defines input for listing links.
type ListLinksInput struct {
	Owner  *auth.Identity
	Cursor string
	Limit  int
}

// ListLinksOutput defines output for listing links.
type ListLinksOutput struct {
	Links      []*model.Link
	NextCursor string
	HasMore    bool
}

// ListLinks retrieves a paginated list of the caller's links.
func (s *LinkService) ListLinks(ctx context.Context, input ListLinksInput) (*ListLinksOutput, error) {
	if input.Owner == nil || input.Owner.UserID == "" {
		return nil, ErrForbidden
	}
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	links, nextCursor, err := s.store.ListLinks(ctx, repository.LinkFilter{OwnerID: input.Owner.UserID}, input.Cursor, input.Limit)
	if err != nil {
		return nil, err
	}

	return &ListLinksOutput{
		Links:      links,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// UpdateLinkInput defines input for updating a link.
type UpdateLinkInput struct {
	ID           string
	TargetURL    *string
	RedirectType *int
	ExpiresAt    *time.Time
	ClearExpiry  bool // If true, set expires_at to nil
	IsActive     *bool
	Actor        *auth.Identity
}

// UpdateLink updates a link's mutable fields.
// Only the owning user or an admin may mutate; a changed target is
// re-evaluated by the safety gate before the update lands.
func (s *LinkService) UpdateLink(ctx context.Context, input UpdateLinkInput) (*model.Link, error) {
	link, err := s.GetLink(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if err := checkOwnership(link, input.Actor); err != nil {
		return nil, err
	}

	targetChanged := false
	if input.TargetURL != nil && *input.TargetURL != link.TargetURL {
		if err := s.validateTarget(*input.TargetURL); err != nil {
			return nil, err
		}
		link.TargetURL = *input.TargetURL
		targetChanged = true
	}

	if input.RedirectType != nil {
		redirectType := model.RedirectType(*input.RedirectType)
		if !redirectType.IsValid() {
			return nil, ErrInvalidRedirectType
		}
		link.RedirectType = redirectType
	}

	if input.ClearExpiry {
		link.ExpiresAt = nil
	} else if input.ExpiresAt != nil {
		if input.ExpiresAt.Before(time.Now()) {
			return nil, ErrExpiresInPast
		}
		link.ExpiresAt = input.ExpiresAt
	}

	if input.IsActive != nil {
		link.IsActive = *input.IsActive
	}

	if err := s.store.UpdateLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if targetChanged {
		verdict, err := s.gate.Evaluate(ctx, link.TargetURL)
		if err != nil {
			return nil, fmt.Errorf("safety evaluation: %w", err)
		}
		checkedAt := time.Now().UTC()
		if err := s.store.UpdateLinkSafety(ctx, link.ID, verdict.Status, verdict.Tags, checkedAt); err != nil {
			return nil, err
		}
		link.SafetyStatus = verdict.Status
		link.SafetyTags = verdict.Tags
		link.LastCheckedAt = &checkedAt
	}

	s.metrics.IncLinkUpdated()

	s.invalidateCache(ctx, link.Slug)

	return link, nil
}

// DeleteLink removes a link along with its click events and rollups.
func (s *LinkService) DeleteLink(ctx context.Context, id string, actor *auth.Identity) error {
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return err
	}

	if err := checkOwnership(link, actor); err != nil {
		return err
	}

	if err := s.store.DeleteLink(ctx, id); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrLinkNotFound
		}
		return err
	}

	s.metrics.IncLinkDeleted()

	s.invalidateCache(ctx, link.Slug)

	return nil
}

// RecheckLink re-runs the safety gate against a link's current target
// and persists the fresh verdict. Admin only: rechecking is how a
// denylist update reaches links verdicted before it.
func (s *LinkService) RecheckLink(ctx context.Context, id string, actor *auth.Identity) (*model.Link, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	link, err := s.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.gate.Recheck(ctx, link); err != nil {
		return nil, fmt.Errorf("recheck link: %w", err)
	}

	s.invalidateCache(ctx, link.Slug)

	return link, nil
}

// LinkStats bundles rollups and their summary for a date range.
type LinkStats struct {
	Link    *model.Link
	Daily   []*model.LinkStatsDaily
	Summary *model.StatsSummary
}

// GetStats returns daily rollups for a link over [from, to].
func (s *LinkService) GetStats(ctx context.Context, id string, from, to time.Time, actor *auth.Identity) (*LinkStats, error) {
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := checkOwnership(link, actor); err != nil {
		return nil, err
	}

	daily, err := s.stats.GetDailyStats(ctx, id, from, to)
	if err != nil {
		return nil, err
	}

	summary, err := s.stats.GetStatsSummary(ctx, id, from, to)
	if err != nil {
		return nil, err
	}

	return &LinkStats{Link: link, Daily: daily, Summary: summary}, nil
}

// BaseURL returns the configured base URL.
func (s *LinkService) BaseURL() string {
	return s.opts.BaseURL
}

// checkOwnership allows the owning user or an admin.
func checkOwnership(link *model.Link, actor *auth.Identity) error {
	if actor == nil {
		return ErrForbidden
	}
	if actor.IsAdmin() || actor.UserID == link.OwnerID {
		return nil
	}
	return ErrForbidden
}

// validateTarget validates a target URL against the configured schemes.
func (s *LinkService) validateTarget(target string) error {
	if target == "" {
		return ErrInvalidTarget
	}

	if len(target) > maxTargetLength {
		return ErrTargetTooLong
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return ErrInvalidTarget
	}

	schemeOK := false
	for _, scheme := range s.opts.AllowedSchemes {
		if parsed.Scheme == scheme {
			schemeOK = true
			break
		}
	}
	if !schemeOK {
		return ErrInvalidTarget
	}

	if parsed.Host == "" {
		return ErrInvalidTarget
	}

	return nil
}

// invalidateCache drops a slug from the cache, logging on failure.
// Eventual consistency is acceptable here.
func (s *LinkService) invalidateCache(ctx context.Context, slugStr string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteLink(ctx, slugStr); err != nil {
		s.logger.Warn("cache invalidation failed", "slug", slugStr, "error", err)
	}
}

var _ LinkCache = (*cache.Cache)(nil)
