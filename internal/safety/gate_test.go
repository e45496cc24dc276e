package safety

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkden/linkden/internal/model"
)

// fakeLists is an in-memory Lists implementation.
type fakeLists struct {
	deny  map[string]bool
	allow map[string]bool
}

func (f *fakeLists) DomainInDenylist(_ context.Context, domain string) (bool, error) {
	return f.deny[domain], nil
}

func (f *fakeLists) DomainInAllowlist(_ context.Context, domain string) (bool, error) {
	return f.allow[domain], nil
}

// fakeStore records the last persisted verdict.
type fakeStore struct {
	id        string
	status    model.SafetyStatus
	tags      []string
	checkedAt time.Time
}

func (f *fakeStore) UpdateLinkSafety(_ context.Context, id string, status model.SafetyStatus, tags []string, checkedAt time.Time) error {
	f.id = id
	f.status = status
	f.tags = tags
	f.checkedAt = checkedAt
	return nil
}

func newTestGate(lists *fakeLists, store Store) *Gate {
	policy := Policy{
		AllowedSchemes:     []string{"http", "https"},
		DenyPrivateTargets: true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(lists, store, policy, logger)
}

func TestEvaluate(t *testing.T) {
	lists := &fakeLists{
		deny:  map[string]bool{"evil.test": true},
		allow: map[string]bool{"good.test": true},
	}
	gate := newTestGate(lists, &fakeStore{})
	ctx := context.Background()

	tests := []struct {
		name       string
		target     string
		wantStatus model.SafetyStatus
		wantTag    string
	}{
		{"denylisted", "https://evil.test/page", model.SafetyBlocked, TagDenylisted},
		{"denylisted_case_insensitive", "https://EVIL.test/x", model.SafetyBlocked, TagDenylisted},
		{"allowlisted", "https://good.test/", model.SafetySafe, TagAllowlisted},
		{"unknown_domain", "https://unknown.test/path", model.SafetyPending, ""},
		{"bad_scheme", "ftp://unknown.test/file", model.SafetySuspicious, TagBadScheme},
		{"javascript_scheme", "javascript:alert(1)", model.SafetySuspicious, TagMalformedURL},
		{"no_host", "https://", model.SafetySuspicious, TagMalformedURL},
		{"loopback_ip", "http://127.0.0.1:8080/admin", model.SafetySuspicious, TagPrivateTarget},
		{"private_ip", "http://10.0.0.5/", model.SafetySuspicious, TagPrivateTarget},
		{"link_local", "http://169.254.169.254/latest/meta-data", model.SafetySuspicious, TagPrivateTarget},
		{"localhost_name", "http://localhost/", model.SafetySuspicious, TagPrivateTarget},
		{"ipv6_loopback", "http://[::1]/", model.SafetySuspicious, TagPrivateTarget},
		{"public_ip", "http://93.184.216.34/", model.SafetyPending, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			verdict, err := gate.Evaluate(ctx, test.target)
			require.NoError(t, err)
			assert.Equal(t, test.wantStatus, verdict.Status)
			if test.wantTag != "" {
				assert.Contains(t, verdict.Tags, test.wantTag)
			} else {
				assert.Empty(t, verdict.Tags)
			}
		})
	}
}

func TestEvaluateDenylistBeatsBadScheme(t *testing.T) {
	// Policy order: the denylist verdict wins even when the URL would
	// also fail structural checks.
	lists := &fakeLists{deny: map[string]bool{"evil.test": true}, allow: map[string]bool{}}
	gate := newTestGate(lists, &fakeStore{})

	verdict, err := gate.Evaluate(context.Background(), "gopher://evil.test/thing")
	require.NoError(t, err)
	assert.Equal(t, model.SafetyBlocked, verdict.Status)
}

func TestEvaluatePrivateTargetsAllowedWhenPolicyPermits(t *testing.T) {
	lists := &fakeLists{deny: map[string]bool{}, allow: map[string]bool{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := New(lists, &fakeStore{}, Policy{
		AllowedSchemes:     []string{"http", "https"},
		DenyPrivateTargets: false,
	}, logger)

	verdict, err := gate.Evaluate(context.Background(), "http://127.0.0.1/internal")
	require.NoError(t, err)
	assert.Equal(t, model.SafetyPending, verdict.Status)
}

func TestRecheckPersistsVerdict(t *testing.T) {
	lists := &fakeLists{deny: map[string]bool{"evil.test": true}, allow: map[string]bool{}}
	store := &fakeStore{}
	gate := newTestGate(lists, store)

	link := &model.Link{
		ID:           "link-1",
		TargetURL:    "https://evil.test/page",
		SafetyStatus: model.SafetyPending,
	}

	verdict, err := gate.Recheck(context.Background(), link)
	require.NoError(t, err)

	assert.Equal(t, model.SafetyBlocked, verdict.Status)
	assert.Equal(t, "link-1", store.id)
	assert.Equal(t, model.SafetyBlocked, store.status)
	assert.Contains(t, store.tags, TagDenylisted)
	assert.False(t, store.checkedAt.IsZero())

	// The in-memory link reflects the new verdict as well.
	assert.Equal(t, model.SafetyBlocked, link.SafetyStatus)
	require.NotNil(t, link.LastCheckedAt)
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"lowercase", "Example.COM", "example.com"},
		{"trailing_dot", "example.com.", "example.com"},
		{"punycode", "xn--bcher-kva.example", "bücher.example"},
		{"ip_literal", "192.168.1.1", "192.168.1.1"},
		{"ipv6_literal", "::1", "::1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := NormalizeDomain(test.host)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}

	_, err := NormalizeDomain("")
	assert.Error(t, err)
}
