package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

var accountKey contextKey

// AccountID returns the authenticated account ID from the request context.
func AccountID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountKey).(string)
	return id, ok
}

// WithAccountID returns a context carrying an authenticated account ID.
// Exposed for tests that exercise handlers without the middleware.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey, accountID)
}

// Middleware verifies the Authorization bearer token and injects the
// resolved account ID into the request context. Requests without a valid
// token are rejected with 401.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		accountID, err := s.VerifyToken(token)
		if err != nil {
			writeError(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
	})
}
