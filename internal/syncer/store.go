package syncer

import (
	"context"
	"io"
	"time"

	"s3mirror/internal/models"
)

// Store is a remote file store the engine can mirror from.
//
// List returns the complete listing of path, following any pagination the
// backend does. Hierarchical stores return only the immediate children of
// path; flat stores return every object under it.
//
// Fetch streams the object behind entry into dst and returns the number of
// bytes written. A connection reset must be reported as a transient
// *models.FetchError.
type Store interface {
	List(ctx context.Context, path string) ([]models.RemoteEntry, error)
	Fetch(ctx context.Context, entry models.RemoteEntry, dst io.WriterAt) (int64, error)
}

type Options struct {
	// MaxDepth is the deepest directory level, counted from the root's
	// immediate children, that is still listed.
	MaxDepth int
	// MaxFileSize is the exclusive upper bound for downloadable files.
	MaxFileSize int64
	// Concurrency caps the number of List and Fetch calls in flight.
	Concurrency int
	// OpTimeout bounds a single List or Fetch call. Zero disables it.
	OpTimeout time.Duration
	// Strict makes a failed subdirectory listing fail the whole run.
	Strict bool
}

func DefaultOptions() Options {
	return Options{
		MaxDepth:    4,
		MaxFileSize: DefaultMaxFileSize,
		Concurrency: 8,
		OpTimeout:   10 * time.Minute,
	}
}
