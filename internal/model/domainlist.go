// Package model defines domain entities for the application.
package model

import "time"

// DomainListEntry is a row in the domain allowlist or denylist.
// Domains are stored normalized (lowercase, no port, unicode form).
type DomainListEntry struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
