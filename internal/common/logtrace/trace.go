package logtrace

import (
	"context"

	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

var ErrInvalidLevel = apperrors.New("invalid log level")

type requestIDKey struct{}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, _ := ctx.Value(requestIDKey{}).(string)
	return r
}
