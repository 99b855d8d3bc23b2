package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/ashureev/points-bridge/internal/api"
)

// RelaySecretHeader carries the shared secret on relayed interactions.
const RelaySecretHeader = "X-Relay-Secret"

// RelaySecret rejects requests whose RelaySecretHeader does not match
// secret. An empty secret disables the check.
func RelaySecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			slog.Warn("Relay secret not configured, relay endpoint is unauthenticated")
			return next
		}
		want := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(RelaySecretHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				slog.Warn("Relay request rejected", "ip", r.RemoteAddr)
				api.Error(w, http.StatusUnauthorized, "invalid relay secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
