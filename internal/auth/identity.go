// Package auth carries the caller identity established by the external
// authentication layer. Session and credential handling live outside
// this service; requests arrive already authenticated.
package auth

import (
	"context"

	"github.com/linkden/linkden/internal/model"
)

// Identity is the authenticated caller of an API request.
type Identity struct {
	UserID string
	Role   model.UserRole
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "identity"

// ContextWithIdentity adds an Identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns nil if not present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// UserIDFromContext is a convenience function to get the user ID.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.UserID
}
