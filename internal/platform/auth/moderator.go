package auth

import (
	"context"
	"net/http"
	"strings"
)

// IsModerator reports whether the context carries a moderator (or admin)
// role.
func IsModerator(ctx context.Context) bool {
	role, _ := RoleFromContext(ctx)
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "moderator", "admin":
		return true
	default:
		return false
	}
}

// RequireModerator allows the request only if RequireUser already injected a
// moderator (or admin) role into the context.
func RequireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsModerator(r.Context()) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
