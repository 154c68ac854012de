package security

import (
	"net/http"
	"strconv"
)

// MaxBodySizeMiddleware limits request bodies to maxKB kilobytes. A declared
// Content-Length over the limit is refused up front with 413; undeclared
// bodies are cut off by http.MaxBytesReader and fail to decode.
func MaxBodySizeMiddleware(maxKB int) func(http.Handler) http.Handler {
	limit := int64(maxKB) * 1024

	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				reject(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					"Request body exceeds "+strconv.FormatInt(limit, 10)+" bytes")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
