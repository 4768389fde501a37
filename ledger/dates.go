package ledger

import (
	"time"
)

// =============================================================================
// DATE ARITHMETIC
// =============================================================================
//
// Two month models coexist on purpose:
//   - Calendar months (AddMonths): contract end dates, due dates.
//   - 30-day months (MonthsElapsed30Day): "how many payments should exist
//     by now". Expected counts have always been computed this way and the
//     schedules depend on it.
// Do not unify them.

// Day truncates a time to midnight UTC. All business dates are day
// granular.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func Today() time.Time {
	return Day(time.Now().UTC())
}

// AddMonths advances by calendar months (Go's AddDate normalization:
// Jan 31 + 1 month = Mar 2/3).
func AddMonths(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, n, 0)
}

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// MonthsElapsed30Day counts elapsed 30-day months since a start date.
// Negative spans count as zero.
func MonthsElapsed30Day(from, to time.Time) int {
	days := DaysBetween(from, to)
	if days < 0 {
		return 0
	}
	return days / 30
}

// EndOfMonth returns the last day of the month containing t.
func EndOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// SameMonth reports whether two dates fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
