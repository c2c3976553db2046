package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/httpx"
)

// SetTimeout bounds a request's context to timeout and answers 504 when the handler has
// not replied by then. Not for streaming routes.
func SetTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{header: make(http.Header)}
			done := make(chan struct{})
			go func() {
				defer func() {
					if p := recover(); p != nil {
						log.Ctx(ctx).Error().Interface("panic", p).Msg("panic in handler")
						tw.status = http.StatusInternalServerError
					}
					close(done)
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				for k, v := range tw.header {
					w.Header()[k] = v
				}
				if tw.status == 0 {
					tw.status = http.StatusOK
				}
				w.WriteHeader(tw.status)
				w.Write(tw.body)
			case <-ctx.Done():
				log.Ctx(ctx).Error().Dur("timeout", timeout).Msg("request timed out")
				httpx.ErrRequestTimeout().Send(w)
			}
		})
	}
}

// timeoutWriter buffers the handler's reply so a late handler never races the timeout
// reply on the real writer.
type timeoutWriter struct {
	header http.Header
	status int
	body   []byte
}

func (t *timeoutWriter) Header() http.Header { return t.header }

func (t *timeoutWriter) WriteHeader(code int) {
	if t.status == 0 {
		t.status = code
	}
}

func (t *timeoutWriter) Write(b []byte) (int, error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	t.body = append(t.body, b...)
	return len(b), nil
}
