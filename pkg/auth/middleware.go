package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const middlewareLogPrefix = "auth:middleware"

// AuthPathSuffix marks the login route that bypasses token checks.
const AuthPathSuffix = "/security/auth"

type ctxKey struct{}

// ContextWithUser returns ctx carrying the authenticated user id.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFromContext returns the user id stored by the middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a bearer token (401) or with an invalid
// one (403). Paths ending in AuthPathSuffix pass through untouched.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, AuthPathSuffix) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		claims, err := m.ValidateToken(token)
		if err != nil {
			slog.Info(fmt.Sprintf("%s - %v", middlewareLogPrefix, err))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), claims.UserID)))
	})
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter for clients that cannot set headers (EventSource).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
