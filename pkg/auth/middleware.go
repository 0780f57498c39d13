package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware authenticates HTTP requests and injects the resolved user
// into the request context. Requests without a valid credential get a
// 401 JSON response.
func Middleware(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)

			user, err := authenticator.Authenticate(r.Context(), credential)
			if err != nil {
				logger.Warn("authentication failed",
					"path", r.URL.Path,
					"remote", r.RemoteAddr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			ctx := WithUser(r.Context(), user)
			if credential != "" {
				ctx = WithToken(ctx, credential)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractCredential pulls the credential from the Authorization header
// (Bearer scheme) or the X-API-Key header.
func extractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return h
	}
	return r.Header.Get("X-API-Key")
}
