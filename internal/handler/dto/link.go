// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/linkden/linkden/internal/model"
)

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	TargetURL    string     `json:"target_url"`
	Slug         string     `json:"slug,omitempty"`
	RedirectType int        `json:"redirect_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// UpdateLinkRequest represents the request body for updating a link.
// A literal null for expires_at clears the expiry, which is why the
// field is decoded in two steps by the handler.
type UpdateLinkRequest struct {
	TargetURL    *string    `json:"target_url,omitempty"`
	RedirectType *int       `json:"redirect_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ClearExpiry  bool       `json:"-"`
	IsActive     *bool      `json:"is_active,omitempty"`
}

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	ID           string     `json:"id"`
	Slug         string     `json:"slug"`
	ShortURL     string     `json:"short_url"`
	TargetURL    string     `json:"target_url"`
	RedirectType int        `json:"redirect_type"`
	IsActive     bool       `json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Status       string     `json:"status"`
	SafetyStatus string     `json:"safety_status"`
	SafetyTags   []string   `json:"safety_tags,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// LinkListResponse represents a paginated list of links.
type LinkListResponse struct {
	Data       []LinkResponse `json:"data"`
	Pagination *Pagination    `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// DailyStats is one day's rollup for a link.
type DailyStats struct {
	Date      string `json:"date"`
	Clicks    int64  `json:"clicks"`
	UniqueIPs int64  `json:"unique_ips"`
}

// StatsResponse represents the stats endpoint payload.
type StatsResponse struct {
	LinkID         string       `json:"link_id"`
	Slug           string       `json:"slug"`
	From           string       `json:"from"`
	To             string       `json:"to"`
	TotalClicks    int64        `json:"total_clicks"`
	UniqueVisitors int64        `json:"unique_visitors"`
	Daily          []DailyStats `json:"daily"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToLinkResponse converts a Link model to LinkResponse DTO.
func ToLinkResponse(link *model.Link, baseURL string) *LinkResponse {
	return &LinkResponse{
		ID:           link.ID,
		Slug:         link.Slug,
		ShortURL:     baseURL + "/" + link.Slug,
		TargetURL:    link.TargetURL,
		RedirectType: int(link.RedirectType),
		IsActive:     link.IsActive,
		ExpiresAt:    link.ExpiresAt,
		Status:       string(link.Status()),
		SafetyStatus: string(link.SafetyStatus),
		SafetyTags:   link.SafetyTags,
		CreatedAt:    link.CreatedAt,
		UpdatedAt:    link.UpdatedAt,
	}
}

// ToLinkListResponse converts a slice of Link models to LinkListResponse.
func ToLinkListResponse(links []*model.Link, baseURL string, nextCursor string, hasMore bool) *LinkListResponse {
	responses := make([]LinkResponse, len(links))
	for i, link := range links {
		responses[i] = *ToLinkResponse(link, baseURL)
	}
	return &LinkListResponse{
		Data: responses,
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    hasMore,
		},
	}
}

// ToStatsResponse converts rollups into the stats payload.
func ToStatsResponse(link *model.Link, daily []*model.LinkStatsDaily, summary *model.StatsSummary, from, to time.Time) *StatsResponse {
	days := make([]DailyStats, len(daily))
	for i, d := range daily {
		days[i] = DailyStats{
			Date:      d.Date.Format(time.DateOnly),
			Clicks:    d.Clicks,
			UniqueIPs: d.UniqueIPs,
		}
	}

	resp := &StatsResponse{
		LinkID: link.ID,
		Slug:   link.Slug,
		From:   from.Format(time.DateOnly),
		To:     to.Format(time.DateOnly),
		Daily:  days,
	}
	if summary != nil {
		resp.TotalClicks = summary.TotalClicks
		resp.UniqueVisitors = summary.UniqueVisitors
	}
	return resp
}
