package filter

import (
	"time"
)

// deadlines without a clock time are open until the end of that day, plus
// a margin for portals that publish in another timezone
const deadlineGrace = 2 * 24 * time.Hour

// IsDeadlineStale reports whether the application deadline has passed.
// A missing deadline is never stale.
func IsDeadlineStale(deadline *time.Time, now time.Time) bool {
	if deadline == nil || deadline.IsZero() {
		return false
	}
	//future deadlines and today's are still open
	return now.Sub(*deadline) > deadlineGrace
}
