package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"ndsregistry/pkg/requestcontext"
)

// RequireAPIKey gates machine-to-machine calls on a shared credential. The
// check runs before any store access; a mismatch or absent header rejects
// with 401 and nothing else executes.
func RequireAPIKey(expectedKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "api key mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"ok":false,"error":"unauthorized"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
