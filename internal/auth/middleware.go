// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"stocktrack/internal/errs"
	"stocktrack/internal/web"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware validates the bearer token and attaches the resolved
// identity (role plus capability set) to the request context.
func Middleware(tm *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				web.JSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid authorization header"})
				return
			}

			identity, err := tm.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				web.JSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the authenticated identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Require wraps a handler with a capability predicate. Requests whose
// identity fails the predicate are rejected before engine logic runs.
func Require(pred func(Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := FromContext(r.Context())
			if !ok {
				web.JSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}
			if !pred(identity) {
				web.Error(w, errs.Forbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Common capability predicates.
func CanCheckout(id Identity) bool    { return id.Caps.CanCheckout }
func CanManageItems(id Identity) bool { return id.Caps.CanManageItems }
func CanManageUsers(id Identity) bool { return id.Caps.CanManageUsers }
func ElevatedRole(id Identity) bool   { return id.Elevated() }
