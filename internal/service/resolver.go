package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linkden/linkden/internal/cache"
	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/repository"
	"github.com/linkden/linkden/internal/slug"
)

// RedirectDecision is the resolver's answer for a resolvable slug.
type RedirectDecision struct {
	Link       *model.Link
	TargetURL  string
	HTTPStatus int
	// Audit marks a fail-open resolution of a link whose safety status
	// is not yet safe; the click event carries the flag.
	Audit    bool
	CacheHit bool
}

// DeniedError reports a denial for a link that does exist, carrying
// the link so the denial can still be recorded as a click.
type DeniedError struct {
	Reason error
	Link   *model.Link
}

func (e *DeniedError) Error() string { return e.Reason.Error() }

func (e *DeniedError) Unwrap() error { return e.Reason }

func denied(link *model.Link, reason error) error {
	return &DeniedError{Reason: reason, Link: link}
}

// Resolve maps a slug to a redirect decision.
//
// The checks run in a fixed order: existence, then is_active, then
// expiry, then safety status. The first failing check decides the
// outcome; a link that is both inactive and blocked reports inactive.
func (s *LinkService) Resolve(ctx context.Context, rawSlug string) (*RedirectDecision, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveResolveDuration(time.Since(start))
	}()

	if err := slug.Validate(rawSlug); err != nil {
		// An invalid slug can never name a link.
		s.metrics.IncResolveOutcome("not_found")
		return nil, ErrLinkNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()

	link, cacheHit, err := s.lookup(ctx, rawSlug)
	if err != nil {
		switch {
		case errors.Is(err, ErrLinkNotFound):
			s.metrics.IncResolveOutcome("not_found")
			return nil, ErrLinkNotFound
		case errors.Is(err, context.DeadlineExceeded):
			s.metrics.IncResolveOutcome("unavailable")
			return nil, ErrStorageUnavailable
		default:
			s.metrics.IncResolveOutcome("unavailable")
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	if !link.IsActive {
		s.metrics.IncResolveOutcome("inactive")
		return nil, denied(link, ErrLinkInactive)
	}

	if link.IsExpired() {
		// Expired entries are useless in the cache; drop eagerly so the
		// negative path stays cheap.
		s.invalidateCache(ctx, link.Slug)
		s.metrics.IncResolveOutcome("expired")
		return nil, denied(link, ErrLinkExpired)
	}

	audit := false
	switch link.SafetyStatus {
	case model.SafetyBlocked:
		s.metrics.IncResolveOutcome("blocked")
		return nil, denied(link, ErrLinkBlocked)
	case model.SafetySafe:
	default:
		// Pending or suspicious. Fail open unless strict mode denies.
		if s.opts.StrictSafety {
			s.metrics.IncResolveOutcome("blocked")
			return nil, denied(link, ErrLinkBlocked)
		}
		audit = true
	}

	s.metrics.IncResolveOutcome("redirect")

	return &RedirectDecision{
		Link:       link,
		TargetURL:  link.TargetURL,
		HTTPStatus: int(link.RedirectType),
		Audit:      audit,
		CacheHit:   cacheHit,
	}, nil
}

// lookup reads cache first, falling back to the store and backfilling.
// Cache failures degrade to store reads; only store failures surface.
func (s *LinkService) lookup(ctx context.Context, rawSlug string) (*model.Link, bool, error) {
	if s.cache != nil {
		cached, err := s.cache.GetLink(ctx, rawSlug)
		if err == nil {
			s.metrics.IncResolveCacheHit()
			return cached.ToLink(), true, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			negative, negErr := s.cache.IsNegativelyCached(ctx, rawSlug)
			if negErr == nil && negative {
				s.metrics.IncResolveCacheHit()
				return nil, true, ErrLinkNotFound
			}
		} else {
			s.logger.Warn("cache read failed", "slug", rawSlug, "error", err)
		}
		s.metrics.IncResolveCacheMiss()
	}

	link, err := s.store.GetLinkBySlug(ctx, rawSlug)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			if s.cache != nil {
				if negErr := s.cache.SetNegativeCache(ctx, rawSlug); negErr != nil {
					s.logger.Warn("negative cache write failed", "slug", rawSlug, "error", negErr)
				}
			}
			return nil, false, ErrLinkNotFound
		}
		return nil, false, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetLink(ctx, link); cacheErr != nil {
			s.logger.Warn("cache backfill failed", "slug", rawSlug, "error", cacheErr)
		}
	}

	return link, false, nil
}
