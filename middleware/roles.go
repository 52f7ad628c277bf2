package middleware

import (
	"net/http"

	tokens "github.com/markstack/tokens"
)

// RequireRoles returns middleware that validates the bearer token like [Guard]
// and then rejects the request with 403 unless the validated claims carry
// every listed role.
func RequireRoles(service *tokens.TokenService, roles ...string) func(http.Handler) http.Handler {
	guard := Guard(service)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := ValidationResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if !result.Claims.HasRole(role) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		}))
	}
}
