package scheduler

import (
	"time"

	"github.com/taskhive/backend/internal/models"
)

// NextOccurrence computes when a recurring scheduled task fires next, keeping
// the original time-of-day. Returns nil for one-shot tasks.
// Monthly advances one calendar month, clamped to the target month's length
// (Jan 31 -> Feb 28/29).
func NextOccurrence(scheduledTime time.Time, recurrence models.Recurrence) *time.Time {
	var next time.Time
	switch recurrence {
	case models.RecurrenceDaily:
		next = scheduledTime.AddDate(0, 0, 1)
	case models.RecurrenceWeekly:
		next = scheduledTime.AddDate(0, 0, 7)
	case models.RecurrenceMonthly:
		next = addMonthClamped(scheduledTime)
	default:
		return nil
	}
	return &next
}

func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
