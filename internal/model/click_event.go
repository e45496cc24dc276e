// Package model defines domain entities for the application.
package model

import "time"

// ClickEvent represents a single recorded resolution outcome.
// IP and user-agent are stored as keyed hashes only; the raw values
// never reach storage.
type ClickEvent struct {
	ID             string    `json:"id"`      // ULID (time-sortable)
	LinkID         string    `json:"link_id"` // FK to links.id
	TS             time.Time `json:"ts"`      // resolution time, not insert time
	IPHash         string    `json:"ip_hash,omitempty"`
	UAHash         string    `json:"ua_hash,omitempty"`
	ReferrerDomain string    `json:"referrer_domain,omitempty"`
	CountryCode    string    `json:"country_code,omitempty"` // ISO 3166-1 alpha-2
	HTTPStatus     int       `json:"http_status"`            // outcome: 301/302/403/404/410
	Audit          bool      `json:"audit"`                  // resolved fail-open on a non-safe link
}

// LinkStatsDaily is the per-link daily rollup produced by aggregation.
// It is overwritten wholesale on each aggregation run, never incremented.
type LinkStatsDaily struct {
	LinkID    string    `json:"link_id"`
	Date      time.Time `json:"date"` // UTC date, time component zeroed
	Clicks    int64     `json:"clicks"`
	UniqueIPs int64     `json:"unique_ips"`
}

// StatsSummary aggregates rollups over a date range for API responses.
type StatsSummary struct {
	TotalClicks    int64 `json:"total_clicks"`
	UniqueVisitors int64 `json:"unique_visitors"`
	Days           int   `json:"days"`
}
