// Package middleware holds the HTTP middleware wrapped around the MCP HTTP transport:
// request logging with request ids, timeouts and panic recovery.
package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/httpx"
	"github.com/tansive/minima-mcp/internal/common/logtrace"
	"github.com/tansive/minima-mcp/internal/common/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id, taken from the incoming X-Request-ID header
// when the client sent one, and logs the request and its outcome.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewID("req")
		}
		ctx := logtrace.WithRequestID(r.Context(), requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)
		w.Header().Set(RequestIDHeader, requestID)

		log.Ctx(ctx).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_ip", r.RemoteAddr).
			Str("proto", r.Proto).
			Msg("incoming request")

		rw := httpx.NewResponseWriter(w)
		defer func() {
			log.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.Status()).
				Int64("bytes", rw.Bytes()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}
