// Package safety evaluates link targets against domain policy.
//
// Evaluation runs synchronously at link creation and on explicit
// recheck; it never sits on the redirect path, which reads the verdict
// already stored on the link.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/linkden/linkden/internal/model"
)

// Tags attached alongside verdicts.
const (
	TagDenylisted    = "denylisted"
	TagAllowlisted   = "allowlisted"
	TagBadScheme     = "bad-scheme"
	TagMalformedURL  = "malformed-url"
	TagPrivateTarget = "private-target"
)

// Lists is the read-only view of the domain allow/deny lists.
type Lists interface {
	DomainInDenylist(ctx context.Context, domain string) (bool, error)
	DomainInAllowlist(ctx context.Context, domain string) (bool, error)
}

// Store persists verdicts onto links during recheck.
type Store interface {
	UpdateLinkSafety(ctx context.Context, id string, status model.SafetyStatus, tags []string, checkedAt time.Time) error
}

// Policy holds the configured URL rules.
type Policy struct {
	// AllowedSchemes is the closed set of acceptable URL schemes.
	AllowedSchemes []string
	// DenyPrivateTargets marks targets that point at loopback, private
	// or link-local addresses as suspicious.
	DenyPrivateTargets bool
}

// Gate evaluates target URLs.
type Gate struct {
	lists  Lists
	store  Store
	policy Policy
	logger *slog.Logger
}

// New creates a Gate.
func New(lists Lists, store Store, policy Policy, logger *slog.Logger) *Gate {
	return &Gate{
		lists:  lists,
		store:  store,
		policy: policy,
		logger: logger.With("component", "safety.gate"),
	}
}

// Verdict is the outcome of evaluating a target URL.
type Verdict struct {
	Status model.SafetyStatus
	Tags   []string
}

// Evaluate classifies a target URL.
//
// Policy order: denylisted domain wins over everything, then allowlist,
// then structural checks (scheme, private address), then pending for
// anything an external reputation check would have to settle.
func (g *Gate) Evaluate(ctx context.Context, targetURL string) (Verdict, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Host == "" {
		return Verdict{Status: model.SafetySuspicious, Tags: []string{TagMalformedURL}}, nil
	}

	domain, err := NormalizeDomain(parsed.Hostname())
	if err != nil {
		return Verdict{Status: model.SafetySuspicious, Tags: []string{TagMalformedURL}}, nil
	}

	denied, err := g.lists.DomainInDenylist(ctx, domain)
	if err != nil {
		return Verdict{}, fmt.Errorf("denylist lookup: %w", err)
	}
	if denied {
		return Verdict{Status: model.SafetyBlocked, Tags: []string{TagDenylisted}}, nil
	}

	allowed, err := g.lists.DomainInAllowlist(ctx, domain)
	if err != nil {
		return Verdict{}, fmt.Errorf("allowlist lookup: %w", err)
	}
	if allowed {
		return Verdict{Status: model.SafetySafe, Tags: []string{TagAllowlisted}}, nil
	}

	if !g.schemeAllowed(parsed.Scheme) {
		return Verdict{Status: model.SafetySuspicious, Tags: []string{TagBadScheme}}, nil
	}

	if g.policy.DenyPrivateTargets && isPrivateTarget(parsed.Hostname()) {
		return Verdict{Status: model.SafetySuspicious, Tags: []string{TagPrivateTarget}}, nil
	}

	// Unknown domain: deferred to an external reputation check.
	return Verdict{Status: model.SafetyPending, Tags: nil}, nil
}

// Recheck re-evaluates a link's target and persists the verdict along
// with last_checked_at. Idempotent; callable any time.
func (g *Gate) Recheck(ctx context.Context, link *model.Link) (Verdict, error) {
	verdict, err := g.Evaluate(ctx, link.TargetURL)
	if err != nil {
		return Verdict{}, err
	}

	checkedAt := time.Now().UTC()
	if err := g.store.UpdateLinkSafety(ctx, link.ID, verdict.Status, verdict.Tags, checkedAt); err != nil {
		return Verdict{}, fmt.Errorf("persist safety verdict: %w", err)
	}

	if verdict.Status != link.SafetyStatus {
		g.logger.Info("safety status changed",
			"link_id", link.ID,
			"from", string(link.SafetyStatus),
			"to", string(verdict.Status),
		)
	}

	link.SafetyStatus = verdict.Status
	link.SafetyTags = verdict.Tags
	link.LastCheckedAt = &checkedAt

	return verdict, nil
}

func (g *Gate) schemeAllowed(scheme string) bool {
	scheme = strings.ToLower(scheme)
	for _, allowed := range g.policy.AllowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// NormalizeDomain case-folds a hostname and decodes punycode so that
// xn-- spoofs compare equal to their unicode form in the lists.
func NormalizeDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return "", fmt.Errorf("empty host")
	}

	// IP literals have no punycode form.
	if _, err := netip.ParseAddr(host); err == nil {
		return host, nil
	}

	decoded, err := idna.Lookup.ToUnicode(host)
	if err != nil {
		return "", fmt.Errorf("decode host %q: %w", host, err)
	}

	return decoded, nil
}

// isPrivateTarget reports whether the host is a literal address (or a
// well-known local name) inside loopback, private or link-local ranges.
// Hostnames are not resolved here; DNS-based evasion is the external
// reputation check's problem.
func isPrivateTarget(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
