package repository

import (
	"context"
	"fmt"

	"github.com/linkden/linkden/internal/model"
)

// Domain list tables are small and read-mostly; the safety gate
// consults them on creation and recheck, never on the redirect path.

// DomainInDenylist reports whether a normalized domain is denylisted.
func (r *Repository) DomainInDenylist(ctx context.Context, domain string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM domain_denylist WHERE domain = $1)`, domain,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check denylist: %w", err)
	}
	return exists, nil
}

// DomainInAllowlist reports whether a normalized domain is allowlisted.
func (r *Repository) DomainInAllowlist(ctx context.Context, domain string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM domain_allowlist WHERE domain = $1)`, domain,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check allowlist: %w", err)
	}
	return exists, nil
}

// AddDenylistDomain inserts a denylist entry; duplicates are ignored.
func (r *Repository) AddDenylistDomain(ctx context.Context, domain, reason string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO domain_denylist (domain, reason) VALUES ($1, $2) ON CONFLICT (domain) DO NOTHING`,
		domain, nullableString(reason),
	)
	if err != nil {
		return fmt.Errorf("add denylist domain: %w", err)
	}
	return nil
}

// AddAllowlistDomain inserts an allowlist entry; duplicates are ignored.
func (r *Repository) AddAllowlistDomain(ctx context.Context, domain, note string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO domain_allowlist (domain, note) VALUES ($1, $2) ON CONFLICT (domain) DO NOTHING`,
		domain, nullableString(note),
	)
	if err != nil {
		return fmt.Errorf("add allowlist domain: %w", err)
	}
	return nil
}

// ListDenylistDomains returns all denylist entries.
func (r *Repository) ListDenylistDomains(ctx context.Context) ([]*model.DomainListEntry, error) {
	return r.listDomains(ctx, `SELECT id, domain, COALESCE(reason, ''), created_at FROM domain_denylist ORDER BY domain`)
}

// ListAllowlistDomains returns all allowlist entries.
func (r *Repository) ListAllowlistDomains(ctx context.Context) ([]*model.DomainListEntry, error) {
	return r.listDomains(ctx, `SELECT id, domain, COALESCE(note, ''), created_at FROM domain_allowlist ORDER BY domain`)
}

func (r *Repository) listDomains(ctx context.Context, query string) ([]*model.DomainListEntry, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var entries []*model.DomainListEntry
	for rows.Next() {
		var entry model.DomainListEntry
		if err := rows.Scan(&entry.ID, &entry.Domain, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan domain entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
