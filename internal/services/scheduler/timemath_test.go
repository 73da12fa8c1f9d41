package scheduler

import (
	"testing"
	"time"

	"github.com/ternarybob/fieldsync/internal/models"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestNextRunNoWindow(t *testing.T) {
	base := at(1, 14, 0)
	got := NextRun(base, 90*time.Minute, nil)
	want := at(1, 15, 30)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunInsideWindow(t *testing.T) {
	window := &models.ActiveHours{Start: 6, End: 22}
	got := NextRun(at(1, 10, 15), time.Hour, window)
	want := at(1, 11, 15)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v (no snap inside window)", got, want)
	}
}

func TestNextRunSnapsPastMidnight(t *testing.T) {
	// Finishing at 23:45 with a 1h interval and a 6..22 window lands at
	// 00:45, which snaps to the next 06:30.
	window := &models.ActiveHours{Start: 6, End: 22}
	got := NextRun(at(1, 23, 45), time.Hour, window)
	want := at(2, 6, 30)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunSnapsAfterWindowClose(t *testing.T) {
	window := &models.ActiveHours{Start: 6, End: 22}
	got := NextRun(at(1, 21, 30), time.Hour, window)
	want := at(2, 6, 30)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunBeforeWindowOpensSameDay(t *testing.T) {
	window := &models.ActiveHours{Start: 6, End: 22}
	got := NextRun(at(1, 2, 0), time.Hour, window)
	want := at(1, 6, 30)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunStrictlyFuture(t *testing.T) {
	window := &models.ActiveHours{Start: 6, End: 22}
	bases := []time.Time{
		at(1, 0, 0), at(1, 5, 59), at(1, 6, 30), at(1, 21, 59), at(1, 23, 45),
	}
	for _, base := range bases {
		for _, interval := range []time.Duration{15 * time.Minute, time.Hour, 26 * time.Hour} {
			got := NextRun(base, interval, window)
			if !got.After(base) {
				t.Errorf("NextRun(%v, %v) = %v is not strictly after base", base, interval, got)
			}
		}
	}
}

func TestRepairOverdueCatchesUp(t *testing.T) {
	// Ten hours overdue at a two hour interval: the repaired next run is
	// in the future after bounded steps, with no backlog of fires.
	next := at(1, 2, 0)
	now := at(1, 12, 0)
	got := RepairOverdue(next, now, 2*time.Hour, nil)
	want := at(1, 14, 0)
	if !got.Equal(want) {
		t.Errorf("RepairOverdue = %v, want %v", got, want)
	}
}

func TestRepairOverdueBoundedSteps(t *testing.T) {
	// Days of deficit still converge; the result is strictly future and
	// aligned to the interval grid or the window opening.
	window := &models.ActiveHours{Start: 6, End: 22}
	next := at(1, 6, 30)
	now := at(8, 13, 0)
	got := RepairOverdue(next, now, 3*time.Hour, window)
	if !got.After(now) {
		t.Errorf("RepairOverdue = %v, want strictly after %v", got, now)
	}
	if got.Sub(now) > 24*time.Hour {
		t.Errorf("RepairOverdue = %v, overshot more than a day past %v", got, now)
	}
}

func TestRepairOverdueAlreadyFuture(t *testing.T) {
	next := at(1, 18, 0)
	now := at(1, 12, 0)
	got := RepairOverdue(next, now, time.Hour, nil)
	if !got.Equal(next) {
		t.Errorf("RepairOverdue = %v, want untouched %v", got, next)
	}
}

func TestRepairOverdueZeroInterval(t *testing.T) {
	next := at(1, 2, 0)
	got := RepairOverdue(next, at(1, 12, 0), 0, nil)
	if !got.Equal(next) {
		t.Errorf("RepairOverdue with zero interval = %v, want untouched", got)
	}
}
