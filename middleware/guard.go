package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	tokens "github.com/markstack/tokens"
)

type validationResultContextKey struct{}

// ValidationResultFromContext recovers the validation result injected by
// [Guard] for the current request.
func ValidationResultFromContext(ctx context.Context) (*tokens.ValidationResult, bool) {
	res, ok := ctx.Value(validationResultContextKey{}).(*tokens.ValidationResult)
	return res, ok
}

// Guard returns middleware that rejects requests without a valid bearer
// access token. Validated claims are injected into the request context for
// downstream handlers.
func Guard(service *tokens.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			result := service.ValidateToken(token, time.Now())
			if !result.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), validationResultContextKey{}, &result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
