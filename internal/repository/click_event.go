package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkden/linkden/internal/model"
)

// InsertClickEvents bulk-inserts click events in a single batch round trip.
// ON CONFLICT DO NOTHING makes re-delivery of the same event ID harmless.
func (r *Repository) InsertClickEvents(ctx context.Context, events []*model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO click_events (id, link_id, ts, ip_hash, ua_hash, referrer_domain, country_code, http_status, audit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.LinkID,
			event.TS,
			nullableString(event.IPHash),
			nullableString(event.UAHash),
			nullableString(event.ReferrerDomain),
			nullableString(event.CountryCode),
			event.HTTPStatus,
			event.Audit,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// AggregateDay recomputes daily rollups for every link with at least one
// click event on the given UTC date and upserts them, replacing any
// prior value. Running it twice for the same date is a no-op the second
// time unless new events arrived in between.
func (r *Repository) AggregateDay(ctx context.Context, date time.Time) (int, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	// One statement: totals are recomputed from the raw events, never
	// incremented, so the upsert is idempotent by construction.
	query := `
		INSERT INTO link_stats_daily (link_id, date, clicks, unique_ips)
		SELECT link_id, $1::date, COUNT(*), COUNT(DISTINCT ip_hash)
		FROM click_events
		WHERE ts >= $2 AND ts < $3
		GROUP BY link_id
		ON CONFLICT (link_id, date) DO UPDATE SET
			clicks = EXCLUDED.clicks,
			unique_ips = EXCLUDED.unique_ips
	`

	result, err := r.pool.Exec(ctx, query, start, start, end)
	if err != nil {
		return 0, fmt.Errorf("aggregate day %s: %w", start.Format("2006-01-02"), err)
	}

	return int(result.RowsAffected()), nil
}

// GetDailyStats retrieves rollups for a link within a date range, newest first.
func (r *Repository) GetDailyStats(ctx context.Context, linkID string, from, to time.Time) ([]*model.LinkStatsDaily, error) {
	query := `
		SELECT link_id, date, clicks, unique_ips
		FROM link_stats_daily
		WHERE link_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC
	`

	rows, err := r.pool.Query(ctx, query, linkID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*model.LinkStatsDaily
	for rows.Next() {
		var stat model.LinkStatsDaily
		if err := rows.Scan(&stat.LinkID, &stat.Date, &stat.Clicks, &stat.UniqueIPs); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, &stat)
	}

	return stats, rows.Err()
}

// GetStatsSummary sums rollups for a link over a date range.
func (r *Repository) GetStatsSummary(ctx context.Context, linkID string, from, to time.Time) (*model.StatsSummary, error) {
	query := `
		SELECT COALESCE(SUM(clicks), 0), COALESCE(SUM(unique_ips), 0), COUNT(*)
		FROM link_stats_daily
		WHERE link_id = $1 AND date >= $2 AND date <= $3
	`

	var summary model.StatsSummary
	err := r.pool.QueryRow(ctx, query, linkID, from, to).Scan(
		&summary.TotalClicks,
		&summary.UniqueVisitors,
		&summary.Days,
	)
	if err != nil {
		return nil, fmt.Errorf("query stats summary: %w", err)
	}

	return &summary, nil
}

// CountClickEvents counts raw events for a link on a UTC date.
// Used by integration tests and operational checks, not the hot path.
func (r *Repository) CountClickEvents(ctx context.Context, linkID string, date time.Time) (int64, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM click_events WHERE link_id = $1 AND ts >= $2 AND ts < $3`,
		linkID, start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count click events: %w", err)
	}

	return count, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
