package middleware

import (
	"net/http"

	"chatproxy/internal/services"
)

// RequestID makes sure every request carries a usable X-Request-ID, replacing
// a missing or unsafe one with a fresh UUID, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := services.RequestIDOrNew(r.Header.Get("X-Request-ID"))
		r.Header.Set("X-Request-ID", id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
