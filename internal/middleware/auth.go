package middleware

import (
	"crypto/subtle"
	"net/http"

	"forgebot/pkg/apierror"
)

// APIKeyAuth requires the X-API-Key header to match the configured key.
// An empty configured key disables the check (development mode).
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				apiErr := apierror.Unauthorized("invalid or missing API key")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(apiErr.StatusCode)
				w.Write(apiErr.ToJSON())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
