package syncer

import (
	"context"

	"s3mirror/internal/models"
)

// FetchFunc performs one physical download attempt and returns the number
// of bytes written.
type FetchFunc func(ctx context.Context) (int64, error)

// WithRetry runs fn and, if it fails with a connection reset, runs it exactly
// once more. The second result is returned as is, even if it is another reset.
func WithRetry(ctx context.Context, fn FetchFunc) (int64, error) {
	n, err := fn(ctx)
	if err == nil || !models.IsTransient(err) {
		return n, err
	}
	if ctx.Err() != nil {
		return n, err
	}
	return fn(ctx)
}
