package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linkden/linkden/internal/model"
	"github.com/linkden/linkden/internal/slug"
)

// Common errors for link repository operations.
var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrSlugTaken     = errors.New("slug already taken")
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

const linkColumns = `id, slug, target_url, owner_id, is_active, expires_at, redirect_type,
	       safety_status, safety_tags, last_checked_at, created_at, updated_at`

// CreateLink inserts a new link.
// The unique index on lower(slug) is the single serialization point for
// slug allocation: of two concurrent creates for the same folded slug,
// exactly one succeeds and the other gets ErrSlugTaken.
func (r *Repository) CreateLink(ctx context.Context, link *model.Link) error {
	query := `
		INSERT INTO links (id, slug, target_url, owner_id, is_active, expires_at, redirect_type,
		                   safety_status, safety_tags, last_checked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	tags, err := json.Marshal(tagsOrEmpty(link.SafetyTags))
	if err != nil {
		return fmt.Errorf("marshal safety tags: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		link.ID,
		link.Slug,
		link.TargetURL,
		link.OwnerID,
		link.IsActive,
		link.ExpiresAt,
		int(link.RedirectType),
		string(link.SafetyStatus),
		tags,
		link.LastCheckedAt,
		link.CreatedAt,
		link.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

// GetLinkByID retrieves a link by its ID.
func (r *Repository) GetLinkByID(ctx context.Context, id string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by ID: %w", err)
	}

	return link, nil
}

// GetLinkBySlug retrieves a link by its case-folded slug.
// This is the hot path for redirects.
func (r *Repository) GetLinkBySlug(ctx context.Context, s string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE lower(slug) = $1`

	link, err := scanLink(r.pool.QueryRow(ctx, query, slug.Fold(s)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by slug: %w", err)
	}

	return link, nil
}

// LinkFilter defines filters for listing links.
type LinkFilter struct {
	OwnerID       string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// PaginationCursor represents decoded cursor for pagination.
type PaginationCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ListLinks retrieves a paginated list of links.
func (r *Repository) ListLinks(ctx context.Context, filter LinkFilter, cursor string, limit int) ([]*model.Link, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := `SELECT ` + linkColumns + ` FROM links WHERE owner_id = $1`
	args := []any{filter.OwnerID}
	argIndex := 2

	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	if filter.CreatedAfter != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}

	if filter.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating links: %w", err)
	}

	var nextCursor string
	if len(links) > limit {
		links = links[:limit]
		lastLink := links[len(links)-1]
		nextCursor = encodeCursor(&PaginationCursor{
			ID:        lastLink.ID,
			CreatedAt: lastLink.CreatedAt,
		})
	}

	return links, nextCursor, nil
}

// UpdateLink updates a link's owner-mutable fields.
func (r *Repository) UpdateLink(ctx context.Context, link *model.Link) error {
	query := `
		UPDATE links
		SET target_url = $2, is_active = $3, expires_at = $4, redirect_type = $5, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		link.ID,
		link.TargetURL,
		link.IsActive,
		link.ExpiresAt,
		int(link.RedirectType),
	)

	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// UpdateLinkSafety persists a safety verdict on a link.
// Only the safety gate writes these columns.
func (r *Repository) UpdateLinkSafety(ctx context.Context, id string, status model.SafetyStatus, tags []string, checkedAt time.Time) error {
	query := `
		UPDATE links
		SET safety_status = $2, safety_tags = $3, last_checked_at = $4, updated_at = NOW()
		WHERE id = $1
	`

	tagsJSON, err := json.Marshal(tagsOrEmpty(tags))
	if err != nil {
		return fmt.Errorf("marshal safety tags: %w", err)
	}

	result, err := r.pool.Exec(ctx, query, id, string(status), tagsJSON, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to update link safety: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// DeleteLink removes a link. Click events and daily rollups go with it
// via ON DELETE CASCADE.
func (r *Repository) DeleteLink(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// SlugExists checks if a case-folded slug is already taken.
func (r *Repository) SlugExists(ctx context.Context, s string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM links WHERE lower(slug) = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, slug.Fold(s)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}

	return exists, nil
}

// scanLink scans a single row into a Link model.
func scanLink(row pgx.Row) (*model.Link, error) {
	var (
		link         model.Link
		redirectType int
		status       string
		tagsJSON     []byte
	)

	err := row.Scan(
		&link.ID,
		&link.Slug,
		&link.TargetURL,
		&link.OwnerID,
		&link.IsActive,
		&link.ExpiresAt,
		&redirectType,
		&status,
		&tagsJSON,
		&link.LastCheckedAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.RedirectType = model.RedirectType(redirectType)
	link.SafetyStatus = model.SafetyStatus(status)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &link.SafetyTags); err != nil {
			return nil, fmt.Errorf("unmarshal safety tags: %w", err)
		}
	}
	if len(link.SafetyTags) == 0 {
		link.SafetyTags = nil
	}

	return &link, nil
}

// tagsOrEmpty normalizes a nil tag slice to an empty JSON array.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// encodeCursor encodes pagination cursor to base64.
func encodeCursor(cursor *PaginationCursor) string {
	data, _ := json.Marshal(cursor)
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor decodes base64 pagination cursor.
func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var cursor PaginationCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
