// Package model defines domain entities for the application.
package model

import "time"

// UserRole controls what a user may do with links they do not own.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleEditor UserRole = "editor"
)

// IsValid checks if the role is a known variant.
func (r UserRole) IsValid() bool {
	return r == RoleAdmin || r == RoleEditor
}

// User owns links. Authentication happens outside this service; the
// record exists as a foreign-key target and for admin provisioning.
// Email uniqueness is case-insensitive.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}
