package auth

import (
	"net/http"
	"slices"
)

// RequireRole lets the request through only when the caller has one of roles.
// Admins pass every check.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusForbidden, "no principal in context")
				return
			}
			if p.Role != RoleAdmin && !slices.Contains(roles, p.Role) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
