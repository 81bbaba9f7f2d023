package syncer

import (
	"time"

	"s3mirror/internal/models"
)

// StaleTolerance absorbs precision lost when a timestamp round-trips between
// the remote store and the local filesystem.
const StaleTolerance = time.Millisecond

// IsStale reports whether the local copy must be (re)downloaded.
func IsStale(local models.LocalFileStat, remote time.Time) bool {
	if !local.Exists {
		return true
	}
	diff := local.ModTime.Sub(remote)
	if diff < 0 {
		diff = -diff
	}
	return diff > StaleTolerance
}
