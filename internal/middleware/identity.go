package middleware

import (
	"net/http"

	"github.com/linkden/linkden/internal/auth"
	"github.com/linkden/linkden/internal/model"
)

// Headers set by the authenticating reverse proxy in front of the API.
const (
	AuthUserHeader = "X-Auth-User"
	AuthRoleHeader = "X-Auth-Role"
)

// Identity lifts the proxy-asserted user headers into an auth.Identity
// on the request context. Requests without the headers pass through
// anonymous; RequireIdentity gates the endpoints that need one.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(AuthUserHeader)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		role := model.UserRole(r.Header.Get(AuthRoleHeader))
		if !role.IsValid() {
			role = model.RoleEditor
		}

		ctx := auth.ContextWithIdentity(r.Context(), &auth.Identity{
			UserID: userID,
			Role:   role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests that carry no identity with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IdentityFromContext(r.Context()) == nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin identities with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.IdentityFromContext(r.Context())
		if identity == nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if !identity.IsAdmin() {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
