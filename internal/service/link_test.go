package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkden/linkden/internal/auth"
	"github.com/linkden/linkden/internal/metrics"
	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/repository"
	"github.com/linkden/linkden/internal/safety"
	"github.com/linkden/linkden/internal/slug"
)

// fakeStore is an in-memory LinkStore keyed by folded slug, mirroring
// the database's case-insensitive uniqueness.
type fakeStore struct {
	mu      sync.Mutex
	byID    map[string]*model.Link
	bySlug  map[string]*model.Link
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:   make(map[string]*model.Link),
		bySlug: make(map[string]*model.Link),
	}
}

func (f *fakeStore) CreateLink(_ context.Context, link *model.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("connection refused")
	}
	key := slug.Fold(link.Slug)
	if _, exists := f.bySlug[key]; exists {
		return repository.ErrSlugTaken
	}
	clone := *link
	f.byID[link.ID] = &clone
	f.bySlug[key] = &clone
	return nil
}

func (f *fakeStore) GetLinkByID(_ context.Context, id string) (*model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	clone := *link
	return &clone, nil
}

func (f *fakeStore) GetLinkBySlug(_ context.Context, s string) (*model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	link, ok := f.bySlug[slug.Fold(s)]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	clone := *link
	return &clone, nil
}

func (f *fakeStore) ListLinks(_ context.Context, filter repository.LinkFilter, _ string, limit int) ([]*model.Link, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var links []*model.Link
	for _, link := range f.byID {
		if filter.OwnerID != "" && link.OwnerID != filter.OwnerID {
			continue
		}
		clone := *link
		links = append(links, &clone)
		if len(links) == limit {
			break
		}
	}
	return links, "", nil
}

func (f *fakeStore) UpdateLink(_ context.Context, link *model.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[link.ID]
	if !ok {
		return repository.ErrLinkNotFound
	}
	*stored = *link
	return nil
}

func (f *fakeStore) UpdateLinkSafety(_ context.Context, id string, status model.SafetyStatus, tags []string, checkedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[id]
	if !ok {
		return repository.ErrLinkNotFound
	}
	stored.SafetyStatus = status
	stored.SafetyTags = tags
	stored.LastCheckedAt = &checkedAt
	return nil
}

func (f *fakeStore) DeleteLink(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.byID[id]
	if !ok {
		return repository.ErrLinkNotFound
	}
	delete(f.byID, id)
	delete(f.bySlug, slug.Fold(link.Slug))
	return nil
}

// fakeGate returns a canned verdict based on the target host.
type fakeGate struct{}

func (fakeGate) Evaluate(_ context.Context, targetURL string) (safety.Verdict, error) {
	switch {
	case strings.Contains(targetURL, "evil.example"):
		return safety.Verdict{Status: model.SafetyBlocked, Tags: []string{safety.TagDenylisted}}, nil
	case strings.Contains(targetURL, "trusted.example"):
		return safety.Verdict{Status: model.SafetySafe, Tags: []string{safety.TagAllowlisted}}, nil
	default:
		return safety.Verdict{Status: model.SafetyPending}, nil
	}
}

func (g fakeGate) Recheck(ctx context.Context, link *model.Link) (safety.Verdict, error) {
	verdict, err := g.Evaluate(ctx, link.TargetURL)
	if err != nil {
		return safety.Verdict{}, err
	}
	link.SafetyStatus = verdict.Status
	link.SafetyTags = verdict.Tags
	now := time.Now().UTC()
	link.LastCheckedAt = &now
	return verdict, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(strings.Builder), &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(store *fakeStore, opts Options) *LinkService {
	if opts.AllowedSchemes == nil {
		opts.AllowedSchemes = []string{"http", "https"}
	}
	if opts.LookupTimeout == 0 {
		opts.LookupTimeout = time.Second
	}
	return NewLinkService(store, nil, nil, fakeGate{}, opts, metrics.NewInMemory(), testLogger())
}

func owner(id string) *auth.Identity {
	return &auth.Identity{UserID: id, Role: model.RoleEditor}
}

func admin() *auth.Identity {
	return &auth.Identity{UserID: "admin-user", Role: model.RoleAdmin}
}

func TestCreateLink_GeneratedSlug(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		TargetURL: "https://example.com/page",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)

	assert.Len(t, link.Slug, slug.GeneratedLength)
	assert.NoError(t, slug.Validate(link.Slug))
	assert.Equal(t, model.RedirectPermanent, link.RedirectType)
	assert.Equal(t, model.SafetyPending, link.SafetyStatus)
	assert.True(t, link.IsActive)
	assert.NotEmpty(t, link.ID)
}

func TestCreateLink_RequestedSlug(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Slug:         "My_Link-1",
		TargetURL:    "https://example.com",
		RedirectType: 302,
		Owner:        owner("u1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "My_Link-1", link.Slug)
	assert.Equal(t, model.RedirectTemporary, link.RedirectType)
}

func TestCreateLink_SlugTakenCaseInsensitive(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	ctx := context.Background()

	_, err := svc.CreateLink(ctx, CreateLinkInput{
		Slug:      "Promo",
		TargetURL: "https://example.com/a",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)

	_, err = svc.CreateLink(ctx, CreateLinkInput{
		Slug:      "promo",
		TargetURL: "https://example.com/b",
		Owner:     owner("u2"),
	})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestCreateLink_InvalidInput(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name    string
		input   CreateLinkInput
		wantErr error
	}{
		{
			name:    "empty target",
			input:   CreateLinkInput{TargetURL: "", Owner: owner("u1")},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "disallowed scheme",
			input:   CreateLinkInput{TargetURL: "ftp://example.com/file", Owner: owner("u1")},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "javascript scheme",
			input:   CreateLinkInput{TargetURL: "javascript:alert(1)", Owner: owner("u1")},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "no host",
			input:   CreateLinkInput{TargetURL: "https://", Owner: owner("u1")},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "target too long",
			input:   CreateLinkInput{TargetURL: "https://example.com/" + strings.Repeat("x", maxTargetLength), Owner: owner("u1")},
			wantErr: ErrTargetTooLong,
		},
		{
			name:    "bad slug characters",
			input:   CreateLinkInput{Slug: "has space", TargetURL: "https://example.com", Owner: owner("u1")},
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "slug too long",
			input:   CreateLinkInput{Slug: strings.Repeat("a", 33), TargetURL: "https://example.com", Owner: owner("u1")},
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "expiry in past",
			input:   CreateLinkInput{TargetURL: "https://example.com", ExpiresAt: &past, Owner: owner("u1")},
			wantErr: ErrExpiresInPast,
		},
		{
			name:    "bad redirect type",
			input:   CreateLinkInput{TargetURL: "https://example.com", RedirectType: 307, Owner: owner("u1")},
			wantErr: ErrInvalidRedirectType,
		},
		{
			name:    "no owner",
			input:   CreateLinkInput{TargetURL: "https://example.com", ExpiresAt: &future},
			wantErr: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateLink(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateLink_BlockedVerdictStored(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		TargetURL: "https://evil.example/phish",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SafetyBlocked, link.SafetyStatus)
	assert.Contains(t, link.SafetyTags, safety.TagDenylisted)
}

// exhaustedStore rejects every insert as a collision.
type exhaustedStore struct{ *fakeStore }

func (e *exhaustedStore) CreateLink(context.Context, *model.Link) error {
	return repository.ErrSlugTaken
}

func TestCreateLink_SlugSpaceExhausted(t *testing.T) {
	store := &exhaustedStore{newFakeStore()}
	svc := NewLinkService(store, nil, nil, fakeGate{}, Options{
		AllowedSchemes: []string{"https"},
		LookupTimeout:  time.Second,
	}, metrics.NewNoop(), testLogger())

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		TargetURL: "https://example.com",
		Owner:     owner("u1"),
	})
	assert.ErrorIs(t, err, ErrSlugSpaceExhausted)
}

func TestCreateLink_ConcurrentSameSlug(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Options{})

	const goroutines = 16
	var wg sync.WaitGroup
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateLink(context.Background(), CreateLinkInput{
				Slug:      "contested",
				TargetURL: "https://example.com",
				Owner:     owner("u1"),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrSlugTaken)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestResolve_AfterCreate(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		TargetURL:    "https://trusted.example/docs",
		RedirectType: 302,
		Owner:        owner("u1"),
	})
	require.NoError(t, err)

	decision, err := svc.Resolve(ctx, link.Slug)
	require.NoError(t, err)
	assert.Equal(t, "https://trusted.example/docs", decision.TargetURL)
	assert.Equal(t, 302, decision.HTTPStatus)
	assert.False(t, decision.Audit)
}

func TestResolve_CaseInsensitiveSlug(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	ctx := context.Background()

	_, err := svc.CreateLink(ctx, CreateLinkInput{
		Slug:      "CamelCase",
		TargetURL: "https://trusted.example",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)

	decision, err := svc.Resolve(ctx, "camelcase")
	require.NoError(t, err)
	assert.Equal(t, "https://trusted.example", decision.TargetURL)
}

func TestResolve_Outcomes(t *testing.T) {
	past := time.Now().Add(-time.Minute)

	tests := []struct {
		name    string
		mutate  func(*model.Link)
		opts    Options
		wantErr error
	}{
		{
			name:    "inactive",
			mutate:  func(l *model.Link) { l.IsActive = false },
			wantErr: ErrLinkInactive,
		},
		{
			name:    "expired",
			mutate:  func(l *model.Link) { l.ExpiresAt = &past },
			wantErr: ErrLinkExpired,
		},
		{
			name:    "blocked",
			mutate:  func(l *model.Link) { l.SafetyStatus = model.SafetyBlocked },
			wantErr: ErrLinkBlocked,
		},
		{
			name: "inactive wins over blocked",
			mutate: func(l *model.Link) {
				l.IsActive = false
				l.SafetyStatus = model.SafetyBlocked
			},
			wantErr: ErrLinkInactive,
		},
		{
			name: "expired wins over blocked",
			mutate: func(l *model.Link) {
				l.ExpiresAt = &past
				l.SafetyStatus = model.SafetyBlocked
			},
			wantErr: ErrLinkExpired,
		},
		{
			name:    "pending denied under strict safety",
			mutate:  func(l *model.Link) { l.SafetyStatus = model.SafetyPending },
			opts:    Options{StrictSafety: true},
			wantErr: ErrLinkBlocked,
		},
		{
			name:    "suspicious denied under strict safety",
			mutate:  func(l *model.Link) { l.SafetyStatus = model.SafetySuspicious },
			opts:    Options{StrictSafety: true},
			wantErr: ErrLinkBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestService(store, tt.opts)
			ctx := context.Background()

			link, err := svc.CreateLink(ctx, CreateLinkInput{
				TargetURL: "https://trusted.example",
				Owner:     owner("u1"),
			})
			require.NoError(t, err)

			stored := store.byID[link.ID]
			tt.mutate(stored)

			_, err = svc.Resolve(ctx, link.Slug)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolve_PendingFailsOpenWithAudit(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		TargetURL: "https://unknown.example",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)
	require.Equal(t, model.SafetyPending, link.SafetyStatus)

	decision, err := svc.Resolve(ctx, link.Slug)
	require.NoError(t, err)
	assert.True(t, decision.Audit)
	assert.Equal(t, "https://unknown.example", decision.TargetURL)
}

func TestResolve_NotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})

	_, err := svc.Resolve(context.Background(), "missing1")
	assert.ErrorIs(t, err, ErrLinkNotFound)

	// Malformed slugs are indistinguishable from absent ones.
	_, err = svc.Resolve(context.Background(), "bad slug!")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestResolve_StorageUnavailable(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Options{})

	store.failing = true

	_, err := svc.Resolve(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestUpdateLink_Ownership(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Options{})
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		TargetURL: "https://example.com",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)

	inactive := false

	_, err = svc.UpdateLink(ctx, UpdateLinkInput{ID: link.ID, IsActive: &inactive, Actor: owner("intruder")})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.UpdateLink(ctx, UpdateLinkInput{ID: link.ID, IsActive: &inactive, Actor: admin()})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = svc.Resolve(ctx, link.Slug)
	assert.ErrorIs(t, err, ErrLinkInactive)
}

func TestUpdateLink_TargetChangeReevaluatesSafety(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Options{})
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		TargetURL: "https://trusted.example",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)
	require.Equal(t, model.SafetySafe, link.SafetyStatus)

	newTarget := "https://evil.example/swap"
	updated, err := svc.UpdateLink(ctx, UpdateLinkInput{ID: link.ID, TargetURL: &newTarget, Actor: owner("u1")})
	require.NoError(t, err)
	assert.Equal(t, model.SafetyBlocked, updated.SafetyStatus)

	_, err = svc.Resolve(ctx, link.Slug)
	assert.ErrorIs(t, err, ErrLinkBlocked)
}

func TestUpdateLink_ClearExpiry(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	ctx := context.Background()
	soon := time.Now().Add(time.Hour)

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		TargetURL: "https://example.com",
		ExpiresAt: &soon,
		Owner:     owner("u1"),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateLink(ctx, UpdateLinkInput{ID: link.ID, ClearExpiry: true, Actor: owner("u1")})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
}

func TestDeleteLink(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Options{})
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		TargetURL: "https://example.com",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)

	err = svc.DeleteLink(ctx, link.ID, owner("intruder"))
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.DeleteLink(ctx, link.ID, owner("u1"))
	require.NoError(t, err)

	_, err = svc.GetLink(ctx, link.ID)
	assert.ErrorIs(t, err, ErrLinkNotFound)

	_, err = svc.Resolve(ctx, link.Slug)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestRecheckLink(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Options{})
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{
		TargetURL: "https://unknown.example",
		Owner:     owner("u1"),
	})
	require.NoError(t, err)
	require.Equal(t, model.SafetyPending, link.SafetyStatus)

	_, err = svc.RecheckLink(ctx, link.ID, owner("u1"))
	assert.ErrorIs(t, err, ErrForbidden)

	// fakeGate now sees the domain as denylisted.
	store.byID[link.ID].TargetURL = "https://evil.example"

	rechecked, err := svc.RecheckLink(ctx, link.ID, admin())
	require.NoError(t, err)
	assert.Equal(t, model.SafetyBlocked, rechecked.SafetyStatus)
}

func TestListLinks_ScopedToOwner(t *testing.T) {
	svc := newTestService(newFakeStore(), Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateLink(ctx, CreateLinkInput{TargetURL: "https://example.com", Owner: owner("u1")})
		require.NoError(t, err)
	}
	_, err := svc.CreateLink(ctx, CreateLinkInput{TargetURL: "https://example.com", Owner: owner("u2")})
	require.NoError(t, err)

	out, err := svc.ListLinks(ctx, ListLinksInput{Owner: owner("u1"), Limit: 10})
	require.NoError(t, err)
	assert.Len(t, out.Links, 3)
}
