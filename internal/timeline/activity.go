package timeline

import (
	"strconv"
	"time"

	"playamap/internal/model"
)

// ActiveEvents returns the events with at least one occurrence containing
// instant, in input order.
func ActiveEvents(instant time.Time, events []model.Event) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if IsActive(instant, ev) {
			out = append(out, ev)
		}
	}
	return out
}

// IsActive reports whether any occurrence of ev contains instant. Events
// without occurrences are never active.
func IsActive(instant time.Time, ev model.Event) bool {
	_, ok := CurrentOccurrence(instant, ev)
	return ok
}

// CurrentOccurrence returns the first occurrence, in stored order, that
// contains instant.
func CurrentOccurrence(instant time.Time, ev model.Event) (model.Occurrence, bool) {
	for _, occ := range ev.Occurrences {
		if occ.Contains(instant) {
			return occ, true
		}
	}
	return model.Occurrence{}, false
}

// CountLabel renders the "N events happening now" status line.
func CountLabel(n int) string {
	if n == 1 {
		return "1 event happening now"
	}
	return strconv.Itoa(n) + " events happening now"
}
