package middleware

import (
	"net/http"

	"github.com/ragdesk/ragdesk/internal/api"
)

// MaxBodyBytes caps the request body at limit bytes. Oversized uploads are
// rejected with 413 before any handler reads the body. A limit of zero or
// less disables the cap.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Content-Length of -1 means the length is unknown, so only the
			// declared sizes can be rejected up front. MaxBytesReader still
			// enforces the cap for chunked bodies.
			if r.ContentLength != -1 && r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body exceeds the upload limit")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
