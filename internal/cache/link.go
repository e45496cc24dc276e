package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/slug"
)

// Cache key prefixes and TTLs.
const (
	linkKeyPrefix     = "link:"
	negCacheKeySuffix = ":neg"

	// DefaultLinkTTL is the TTL for cached link data.
	DefaultLinkTTL = 24 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// linkKey builds the cache key for a slug. Keys use the folded form so
// that PROMO1 and promo1 hit the same entry.
func linkKey(s string) string {
	return linkKeyPrefix + slug.Fold(s)
}

// GetLink retrieves a link from cache by slug.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetLink(ctx context.Context, s string) (*model.CachedLink, error) {
	result, err := c.client.HGetAll(ctx, linkKey(s)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedLink{
		ID:           result["id"],
		Slug:         result["slug"],
		TargetURL:    result["target_url"],
		OwnerID:      result["owner_id"],
		RedirectType: result["redirect_type"],
		IsActive:     result["is_active"],
		ExpiresAt:    result["expires_at"],
		SafetyStatus: result["safety_status"],
		SafetyTags:   result["safety_tags"],
		UpdatedAt:    result["updated_at"],
	}

	return cached, nil
}

// SetLink stores a link in cache under its folded slug.
func (c *Cache) SetLink(ctx context.Context, link *model.Link) error {
	key := linkKey(link.Slug)
	cached := link.ToCachedLink()

	ttl := DefaultLinkTTL
	if link.ExpiresAt != nil {
		expiresIn := time.Until(*link.ExpiresAt)
		if expiresIn <= 0 {
			c.client.Del(ctx, key, key+negCacheKeySuffix)
			return nil
		}
		if expiresIn < ttl {
			ttl = expiresIn
		}
	}

	fields := map[string]any{
		"id":            cached.ID,
		"slug":          cached.Slug,
		"target_url":    cached.TargetURL,
		"owner_id":      cached.OwnerID,
		"redirect_type": cached.RedirectType,
		"is_active":     cached.IsActive,
		"safety_status": cached.SafetyStatus,
		"updated_at":    cached.UpdatedAt,
	}

	// Only set optional fields if they have values
	if cached.ExpiresAt != "" {
		fields["expires_at"] = cached.ExpiresAt
	}
	if cached.SafetyTags != "" {
		fields["safety_tags"] = cached.SafetyTags
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}

	// Remove negative cache if exists
	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteLink removes a link from cache.
func (c *Cache) DeleteLink(ctx context.Context, s string) error {
	key := linkKey(s)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete link from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a slug is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, s string) (bool, error) {
	exists, err := c.client.Exists(ctx, linkKey(s)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a slug as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, s string) error {
	err := c.client.SetEx(ctx, linkKey(s)+negCacheKeySuffix, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}

// IsNil reports whether the error is the redis nil-reply sentinel.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
