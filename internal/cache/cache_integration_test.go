package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/testutil"
)

func newCacheTestEnv(t *testing.T) (context.Context, *Cache) {
	t.Helper()

	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	c, err := New(ctx, redisURL, 10, 2)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	return ctx, c
}

func TestIntegrationCache_LinkRoundTrip(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	link := testutil.NewTestLink(t, "owner-1", "CachedSlug")
	link.SafetyStatus = model.SafetySafe
	link.SafetyTags = []string{"allowlisted"}

	if err := c.SetLink(ctx, link); err != nil {
		t.Fatalf("set link: %v", err)
	}

	// Lookup folds case.
	cached, err := c.GetLink(ctx, "cachedslug")
	if err != nil {
		t.Fatalf("get link: %v", err)
	}

	got := cached.ToLink()
	if got.ID != link.ID || got.TargetURL != link.TargetURL {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.SafetyStatus != model.SafetySafe {
		t.Fatalf("expected safe, got %s", got.SafetyStatus)
	}
	if got.RedirectType != link.RedirectType {
		t.Fatalf("expected redirect type %d, got %d", link.RedirectType, got.RedirectType)
	}
}

func TestIntegrationCache_Miss(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	if _, err := c.GetLink(ctx, "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestIntegrationCache_NegativeCache(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	negative, err := c.IsNegativelyCached(ctx, "ghost")
	if err != nil {
		t.Fatalf("check negative: %v", err)
	}
	if negative {
		t.Fatal("fresh slug should not be negatively cached")
	}

	if err := c.SetNegativeCache(ctx, "ghost"); err != nil {
		t.Fatalf("set negative: %v", err)
	}

	negative, err = c.IsNegativelyCached(ctx, "GHOST")
	if err != nil {
		t.Fatalf("check negative: %v", err)
	}
	if !negative {
		t.Fatal("slug should be negatively cached after miss")
	}
}

func TestIntegrationCache_ExpiredLinkNotStored(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	past := time.Now().Add(-time.Minute)
	link := testutil.NewTestLinkWithExpiry(t, "owner-1", "expired1", past)

	if err := c.SetLink(ctx, link); err != nil {
		t.Fatalf("set link: %v", err)
	}

	if _, err := c.GetLink(ctx, "expired1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired link should not be cached, got %v", err)
	}
}

func TestIntegrationCache_CreateRateLimit(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	allowedCount := 0
	for i := 0; i < 5; i++ {
		result, err := c.CheckCreateRateLimit(ctx, "owner-1", 3)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if result.Allowed {
			allowedCount++
		}
	}

	// Burst equals the per-minute budget.
	if allowedCount != 3 {
		t.Fatalf("expected 3 allowed, got %d", allowedCount)
	}

	// A different owner gets a fresh bucket.
	result, err := c.CheckCreateRateLimit(ctx, "owner-2", 3)
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if !result.Allowed {
		t.Fatal("other owner should not share the bucket")
	}
}
