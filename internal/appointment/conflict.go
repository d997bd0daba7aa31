package appointment

import (
	"time"

	"github.com/google/uuid"
)

// FindConflict applies the legacy clash rule: a candidate start conflicts
// with an existing active appointment when the distance between the two
// starts is strictly less than the existing appointment's duration. The
// candidate's own duration is not considered, so this is not an interval
// overlap test.
func FindConflict(existing []Appointment, start time.Time, exclude *uuid.UUID) (*Appointment, bool) {
	for i := range existing {
		a := &existing[i]
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if !a.Status.Active() {
			continue
		}
		delta := a.ScheduledAt.Sub(start)
		if delta < 0 {
			delta = -delta
		}
		if delta.Minutes() < float64(a.DurationMinutes) {
			return a, true
		}
	}
	return nil, false
}

// dayBounds returns the calendar day containing t in loc as [start, end).
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
