package scheduler

import (
	"time"

	"github.com/ternarybob/fieldsync/internal/models"
)

// activeHoursMinute is the minute past the window's opening hour that
// snapped runs land on, so a burst of users whose windows open together
// does not all fire at :00.
const activeHoursMinute = 30

// NextRun computes the run after base: base plus the interval, snapped
// forward to the next window opening when it lands outside active hours.
// The result is always strictly after base.
func NextRun(base time.Time, interval time.Duration, window *models.ActiveHours) time.Time {
	next := base.Add(interval)
	if window == nil {
		return next
	}
	return snapToWindow(next, *window)
}

// snapToWindow returns t unchanged when it falls inside the window,
// otherwise the next occurrence of the window's opening half hour.
func snapToWindow(t time.Time, window models.ActiveHours) time.Time {
	if window.Contains(t.Hour()) {
		return t
	}

	opening := time.Date(t.Year(), t.Month(), t.Day(),
		window.Start, activeHoursMinute, 0, 0, t.Location())
	if !opening.After(t) {
		opening = opening.AddDate(0, 0, 1)
	}
	return opening
}

// RepairOverdue advances next forward in interval steps until it passes
// now, re-snapping into the window at each step. A schedule that sat
// disabled (or a process that slept) for days converges in at most
// ceil(deficit/interval)+1 steps instead of firing a backlog of
// catch-up runs.
func RepairOverdue(next, now time.Time, interval time.Duration, window *models.ActiveHours) time.Time {
	if interval <= 0 {
		return next
	}
	for !next.After(now) {
		next = NextRun(next, interval, window)
	}
	return next
}
