package metadata

import "time"

// isStale reports whether data last refreshed at last has aged past the
// threshold. A nil last means the item has never been refreshed and is
// always stale. Age exactly equal to the threshold is still fresh.
func isStale(last *time.Time, threshold time.Duration, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) > threshold
}
