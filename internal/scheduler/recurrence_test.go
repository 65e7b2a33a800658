package scheduler

import (
	"testing"
	"time"

	"github.com/taskhive/backend/internal/models"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextOccurrenceOnce(t *testing.T) {
	if next := NextOccurrence(at(2026, time.March, 10, 9, 30), models.RecurrenceOnce); next != nil {
		t.Fatalf("one-shot task got next occurrence %v", next)
	}
}

func TestNextOccurrenceDailyKeepsTimeOfDay(t *testing.T) {
	next := NextOccurrence(at(2026, time.March, 10, 9, 30), models.RecurrenceDaily)
	if next == nil {
		t.Fatal("daily task got no next occurrence")
	}
	if want := at(2026, time.March, 11, 9, 30); !next.Equal(want) {
		t.Fatalf("daily next = %v, want %v", next, want)
	}
}

func TestNextOccurrenceWeekly(t *testing.T) {
	next := NextOccurrence(at(2026, time.December, 29, 17, 0), models.RecurrenceWeekly)
	if want := at(2027, time.January, 5, 17, 0); next == nil || !next.Equal(want) {
		t.Fatalf("weekly next = %v, want %v", next, want)
	}
}

func TestNextOccurrenceMonthly(t *testing.T) {
	cases := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"plain", at(2026, time.March, 15, 8, 0), at(2026, time.April, 15, 8, 0)},
		{"jan 31 clamps to feb 28", at(2026, time.January, 31, 8, 0), at(2026, time.February, 28, 8, 0)},
		{"jan 31 leap year clamps to feb 29", at(2028, time.January, 31, 8, 0), at(2028, time.February, 29, 8, 0)},
		{"may 31 clamps to jun 30", at(2026, time.May, 31, 23, 59), at(2026, time.June, 30, 23, 59)},
		{"dec rolls into next year", at(2026, time.December, 10, 6, 15), at(2027, time.January, 10, 6, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := NextOccurrence(tc.from, models.RecurrenceMonthly)
			if next == nil || !next.Equal(tc.want) {
				t.Fatalf("monthly next = %v, want %v", next, tc.want)
			}
		})
	}
}

func TestNextOccurrenceAlwaysAdvances(t *testing.T) {
	from := at(2026, time.January, 31, 12, 0)
	for _, r := range []models.Recurrence{models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly} {
		next := NextOccurrence(from, r)
		if next == nil || !next.After(from) {
			t.Errorf("%s: next %v does not advance past %v", r, next, from)
		}
	}
}
