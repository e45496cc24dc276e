// Package testutil provides helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/linkden/linkden/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 640640

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// migrationOrder mirrors the FK dependency chain: users before links,
// links before analytics.
var migrationOrder = []string{
	"000001_users",
	"000002_links",
	"000003_analytics",
	"000004_domain_lists",
}

// ResetSchema tears down and reapplies every migration.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	for i := len(migrationOrder) - 1; i >= 0; i-- {
		if err := applySQL(ctx, pool, filepath.Join(root, "migrations", migrationOrder[i]+".down.sql")); err != nil {
			return err
		}
	}
	for _, name := range migrationOrder {
		if err := applySQL(ctx, pool, filepath.Join(root, "migrations", name+".up.sql")); err != nil {
			return err
		}
	}

	return nil
}

func applySQL(ctx context.Context, pool *pgxpool.Pool, path string) error {
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", "..")), nil
}

// UniqueSlug returns a slug that will not collide across test runs.
func UniqueSlug(prefix string) string {
	s := prefix + ulid.Make().String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}

// NewTestUser creates a test user with sensible defaults.
func NewTestUser(t testing.TB, email string) *model.User {
	t.Helper()
	return &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$dGVzdHNhbHQ$dGVzdGhhc2g",
		Role:         model.RoleEditor,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewTestLink creates a test link owned by ownerID.
func NewTestLink(t testing.TB, ownerID, slug string) *model.Link {
	t.Helper()
	now := time.Now().UTC()
	return &model.Link{
		ID:           ulid.Make().String(),
		Slug:         slug,
		TargetURL:    "https://example.com/" + slug,
		OwnerID:      ownerID,
		IsActive:     true,
		RedirectType: model.RedirectTemporary,
		SafetyStatus: model.SafetyPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestLinkWithExpiry creates a test link with an expiry time.
func NewTestLinkWithExpiry(t testing.TB, ownerID, slug string, expiresAt time.Time) *model.Link {
	t.Helper()
	link := NewTestLink(t, ownerID, slug)
	link.ExpiresAt = &expiresAt
	return link
}

// NewTestClickEvent creates a click event for a link at ts.
func NewTestClickEvent(t testing.TB, linkID string, ts time.Time, ipHash string) *model.ClickEvent {
	t.Helper()
	return &model.ClickEvent{
		ID:         ulid.Make().String(),
		LinkID:     linkID,
		TS:         ts,
		IPHash:     ipHash,
		HTTPStatus: 301,
	}
}
