/*
schedule.go - Due dates, overdue detection, and collection priority

PURPOSE:
  Derives where every active contract stands against its payment
  calendar: when the next installment is due, how many installments
  should have been made by now, and how far behind the account is.

TWO CLOCKS:
  The next due date moves in calendar months from the delivery date.
  The expected-payments count uses 30-day months (see dates.go). Both
  are long-standing behavior; reports depend on each where it is used.
*/
package ledger

import (
	"sort"
	"time"
)

type DueClass string

const (
	ClassOverdue DueClass = "overdue"  // next due date already passed
	ClassDueSoon DueClass = "due_soon" // due within 7 days
	ClassCurrent DueClass = "current"
)

// DueSoonWindowDays is how far ahead a due date counts as "due soon".
const DueSoonWindowDays = 7

// ScheduleInput is the minimum a contract needs to be scheduled. Works
// for itemized rows and legacy customers alike.
type ScheduleInput struct {
	CustomerID   CustomerID
	CustomerName string
	Contact      string
	Delivery     time.Time
	Monthly      Money
	Term         int
	PaymentsMade int
}

// Schedule is the derived standing of one contract.
type Schedule struct {
	Input ScheduleInput

	NextDueDate      time.Time
	ExpectedPayments int // per the 30-day rule
	OverdueCount     int
	OverdueAmount    Money
	DaysUntilDue     int // negative once overdue
	DaysOverdue      int // zero unless overdue
	Class            DueClass
}

// BuildSchedule derives one contract's schedule as of a reference day.
func BuildSchedule(in ScheduleInput, asOf time.Time) Schedule {
	asOf = Day(asOf)

	nextDue := AddMonths(in.Delivery, in.PaymentsMade+1)
	expected := MonthsElapsed30Day(in.Delivery, asOf) + 1

	overdueCount := expected - in.PaymentsMade
	if overdueCount < 0 {
		overdueCount = 0
	}

	daysUntil := DaysBetween(asOf, nextDue)
	daysOverdue := 0
	if daysUntil < 0 {
		daysOverdue = -daysUntil
	}

	class := ClassCurrent
	switch {
	case daysUntil < 0:
		class = ClassOverdue
	case daysUntil <= DueSoonWindowDays:
		class = ClassDueSoon
	}

	return Schedule{
		Input:            in,
		NextDueDate:      nextDue,
		ExpectedPayments: expected,
		OverdueCount:     overdueCount,
		OverdueAmount:    in.Monthly.MulInt(overdueCount),
		DaysUntilDue:     daysUntil,
		DaysOverdue:      daysOverdue,
		Class:            class,
	}
}

// BuildSchedules derives a batch and returns it in collection priority
// order.
func BuildSchedules(inputs []ScheduleInput, asOf time.Time) []Schedule {
	schedules := make([]Schedule, 0, len(inputs))
	for _, in := range inputs {
		schedules = append(schedules, BuildSchedule(in, asOf))
	}
	SortByPriority(schedules)
	return schedules
}

// SortByPriority orders schedules for collection work: most missed
// installments first, then longest overdue. Sorts in place.
func SortByPriority(schedules []Schedule) {
	sort.SliceStable(schedules, func(i, j int) bool {
		a, b := schedules[i], schedules[j]
		if a.OverdueCount != b.OverdueCount {
			return a.OverdueCount > b.OverdueCount
		}
		return a.DaysOverdue > b.DaysOverdue
	})
}
