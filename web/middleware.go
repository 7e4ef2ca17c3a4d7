package web

import (
	"errors"
	"log/slog"
	"net/http"
)

// NotificationMaxBodySize bounds the webhook payload; real notifications are
// a few hundred bytes.
const NotificationMaxBodySize = 16 << 10 // 16 KB

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// handleMaxBytesError checks if an error is due to the request body being
// too large and, if so, answers with 413.
func handleMaxBytesError(w http.ResponseWriter, r *http.Request, err error, maxBytes int64) bool {
	if err == nil {
		return false
	}
	var maxBytesErr *http.MaxBytesError
	if !errors.As(err, &maxBytesErr) {
		return false
	}

	slog.Warn("Request body size limit exceeded",
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
		"path", r.URL.Path,
		"max_bytes", maxBytes)
	http.Error(w, "Request body exceeds maximum allowed size", http.StatusRequestEntityTooLarge)
	return true
}
