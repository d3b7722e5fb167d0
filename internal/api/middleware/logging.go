package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"cashback/pkg/logger"
)

// RequestLogger writes one structured line per request. Server errors are
// logged at error level, client errors at info.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			rw := wrapResponseWriter(w)
			next.ServeHTTP(rw, r)

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       routePattern(r),
				"status":      rw.statusCode,
				"duration_ms": time.Since(startTime).Milliseconds(),
				"request_id":  chimw.GetReqID(r.Context()),
				"remote_addr": r.RemoteAddr,
			}

			switch {
			case rw.statusCode >= 500:
				log.ErrorContext(r.Context(), "HTTP request failed", fields)
			case rw.statusCode >= 400:
				log.InfoContext(r.Context(), "HTTP request rejected", fields)
			default:
				log.DebugContext(r.Context(), "HTTP request served", fields)
			}
		})
	}
}
