package middleware

import (
	"net/http"
	"time"
)

// WriteDeadline replaces the server-wide write timeout for the wrapped
// routes. Generation handlers debit coins before they respond, so the
// connection must outlive the slowest generation. d <= 0 clears the deadline.
func WriteDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var deadline time.Time
			if d > 0 {
				deadline = time.Now().Add(d)
			}
			// Recorders and some wrappers do not support deadlines.
			_ = http.NewResponseController(w).SetWriteDeadline(deadline)
			next.ServeHTTP(w, r)
		})
	}
}
