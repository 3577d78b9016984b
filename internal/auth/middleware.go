package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/concierge/internal/httputil"
)

// Middleware returns a chi middleware that authenticates transport requests via Bearer token.
func Middleware(store KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <transport-key>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <transport-key>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty transport key")
				return
			}

			if _, err := ParseKey(token); err != nil {
				slog.Warn("auth failed: malformed transport key", "key_prefix", safePrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid transport key")
				return
			}

			keyHash := HashKey(token)
			meta, err := store.Lookup(r.Context(), keyHash)
			if err != nil {
				slog.Error("key lookup failed", "error", err, "key_prefix", KeyPrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if meta == nil {
				slog.Warn("auth failed: key not found", "key_prefix", KeyPrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid transport key")
				return
			}

			info := &AuthInfo{
				KeyID:      meta.ID,
				InstanceID: meta.InstanceID,
				Name:       meta.Name,
				RPMLimit:   meta.RPMLimit,
			}

			ctx := ContextWithAuth(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// safePrefix returns a safe-to-log prefix of a key (never the full key).
func safePrefix(key string) string {
	if len(key) > 20 {
		return key[:20] + "..."
	}
	return key
}
