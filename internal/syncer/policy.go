package syncer

import (
	"fmt"

	"s3mirror/pkg/utils"
)

// DefaultMaxFileSize is the largest size that is never attempted. Without
// resumable downloads a failed transfer restarts from zero.
const DefaultMaxFileSize int64 = 1 << 30

// IsEligible reports whether a file of the given size may be downloaded.
// A non-positive limit falls back to DefaultMaxFileSize.
func IsEligible(size, limit int64) bool {
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	return size < limit
}

func tooLargeReason(size int64) string {
	return fmt.Sprintf("file too large: %s", utils.FormatBytes(size))
}
