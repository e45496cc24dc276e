// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"strings"
	"time"
)

// SafetyStatus is the safety verdict attached to a link's target URL.
type SafetyStatus string

const (
	SafetyPending    SafetyStatus = "pending"
	SafetySafe       SafetyStatus = "safe"
	SafetyBlocked    SafetyStatus = "blocked"
	SafetySuspicious SafetyStatus = "suspicious"
)

// IsValid checks if the safety status is a known variant.
func (s SafetyStatus) IsValid() bool {
	switch s {
	case SafetyPending, SafetySafe, SafetyBlocked, SafetySuspicious:
		return true
	}
	return false
}

// RedirectType represents the HTTP redirect status code.
type RedirectType int

const (
	RedirectPermanent RedirectType = 301
	RedirectTemporary RedirectType = 302
)

// IsValid checks if the redirect type is valid.
func (r RedirectType) IsValid() bool {
	return r == RedirectPermanent || r == RedirectTemporary
}

// LinkStatus represents the computed lifecycle status of a link.
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusExpired  LinkStatus = "expired"
	LinkStatusInactive LinkStatus = "inactive"
)

// Link represents a shortened URL entity.
// The slug is stored as the owner requested it; uniqueness and lookups
// always go through the case-folded form.
type Link struct {
	ID            string       `json:"id"`
	Slug          string       `json:"slug"`
	TargetURL     string       `json:"target_url"`
	OwnerID       string       `json:"owner_id"`
	IsActive      bool         `json:"is_active"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	RedirectType  RedirectType `json:"redirect_type"`
	SafetyStatus  SafetyStatus `json:"safety_status"`
	SafetyTags    []string     `json:"safety_tags,omitempty"`
	LastCheckedAt *time.Time   `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Status computes the current lifecycle status of the link.
func (l *Link) Status() LinkStatus {
	if !l.IsActive {
		return LinkStatusInactive
	}
	if l.IsExpired() {
		return LinkStatusExpired
	}
	return LinkStatusActive
}

// IsExpired returns true if the link has passed its expiry time.
func (l *Link) IsExpired() bool {
	return l.ExpiresAt != nil && time.Now().After(*l.ExpiresAt)
}

// CachedLink represents link data stored in Redis cache.
// Uses string types for Redis hash compatibility.
type CachedLink struct {
	ID           string `redis:"id"`
	Slug         string `redis:"slug"`
	TargetURL    string `redis:"target_url"`
	OwnerID      string `redis:"owner_id"`
	RedirectType string `redis:"redirect_type"`
	IsActive     string `redis:"is_active"`     // "1" or "0"
	ExpiresAt    string `redis:"expires_at"`    // Unix timestamp or empty
	SafetyStatus string `redis:"safety_status"`
	SafetyTags   string `redis:"safety_tags"` // comma-separated
	UpdatedAt    string `redis:"updated_at"`  // Unix timestamp
}

// ToLink converts CachedLink to the Link domain model.
func (c *CachedLink) ToLink() *Link {
	link := &Link{
		ID:           c.ID,
		Slug:         c.Slug,
		TargetURL:    c.TargetURL,
		OwnerID:      c.OwnerID,
		IsActive:     c.IsActive == "1",
		SafetyStatus: SafetyStatus(c.SafetyStatus),
	}

	if c.RedirectType == "301" {
		link.RedirectType = RedirectPermanent
	} else {
		link.RedirectType = RedirectTemporary
	}

	if !link.SafetyStatus.IsValid() {
		link.SafetyStatus = SafetyPending
	}

	if c.SafetyTags != "" {
		link.SafetyTags = strings.Split(c.SafetyTags, ",")
	}

	if c.ExpiresAt != "" {
		if ts, err := strconv.ParseInt(c.ExpiresAt, 10, 64); err == nil {
			t := time.Unix(ts, 0)
			link.ExpiresAt = &t
		}
	}

	if c.UpdatedAt != "" {
		if ts, err := strconv.ParseInt(c.UpdatedAt, 10, 64); err == nil {
			link.UpdatedAt = time.Unix(ts, 0)
		}
	}

	return link
}

// ToCachedLink converts a Link to its Redis hash representation.
func (l *Link) ToCachedLink() *CachedLink {
	cached := &CachedLink{
		ID:           l.ID,
		Slug:         l.Slug,
		TargetURL:    l.TargetURL,
		OwnerID:      l.OwnerID,
		RedirectType: strconv.Itoa(int(l.RedirectType)),
		IsActive:     boolToString(l.IsActive),
		SafetyStatus: string(l.SafetyStatus),
		SafetyTags:   strings.Join(l.SafetyTags, ","),
		UpdatedAt:    strconv.FormatInt(l.UpdatedAt.Unix(), 10),
	}

	if l.ExpiresAt != nil {
		cached.ExpiresAt = strconv.FormatInt(l.ExpiresAt.Unix(), 10)
	}

	return cached
}

// boolToString converts boolean to "1" or "0".
func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
