package ledger_test

import (
	"testing"
	"time"

	"github.com/arjen/billing-engine/ledger"
)

func scheduleInput(delivery time.Time, monthly float64, term, made int) ledger.ScheduleInput {
	return ledger.ScheduleInput{
		CustomerID:   1,
		CustomerName: "Dela Cruz",
		Delivery:     delivery,
		Monthly:      money(monthly),
		Term:         term,
		PaymentsMade: made,
	}
}

func TestBuildSchedule_OverdueAfterNinetyDays(t *testing.T) {
	// GIVEN: Delivered 90 days ago, 500/month, only 2 payments made
	// WHEN: Building the schedule
	// THEN: 4 payments expected (90/30 + 1), 2 overdue, 1000 overdue amount

	asOf := ledger.NewDate(2026, time.June, 30)
	delivery := asOf.AddDate(0, 0, -90)

	s := ledger.BuildSchedule(scheduleInput(delivery, 500, 12, 2), asOf)

	if s.ExpectedPayments != 4 {
		t.Errorf("expected 4 expected payments, got %d", s.ExpectedPayments)
	}
	if s.OverdueCount != 2 {
		t.Errorf("expected 2 overdue, got %d", s.OverdueCount)
	}
	if !s.OverdueAmount.Equal(money(1000)) {
		t.Errorf("expected 1000 overdue amount, got %s", s.OverdueAmount)
	}
	// The two clocks can disagree: the 30-day rule already counts this
	// account 2 behind, while the calendar next-due (Jul 1) is still a day
	// ahead of asOf.
	if s.Class != ledger.ClassDueSoon {
		t.Errorf("expected due_soon classification, got %s", s.Class)
	}
}

func TestBuildSchedule_NextDueAdvancesByPaymentsMade(t *testing.T) {
	// nextDue = delivery + (made+1) calendar months
	delivery := ledger.NewDate(2026, time.January, 15)
	asOf := ledger.NewDate(2026, time.February, 1)

	s := ledger.BuildSchedule(scheduleInput(delivery, 500, 12, 3), asOf)
	want := ledger.NewDate(2026, time.May, 15)
	if !s.NextDueDate.Equal(want) {
		t.Errorf("expected next due %s, got %s", want, s.NextDueDate)
	}
}

func TestBuildSchedule_AheadOfScheduleHasNoOverdue(t *testing.T) {
	// GIVEN: More payments made than the 30-day rule expects
	// THEN: Overdue count floors at zero

	asOf := ledger.NewDate(2026, time.June, 30)
	delivery := asOf.AddDate(0, 0, -35) // expects 2

	s := ledger.BuildSchedule(scheduleInput(delivery, 500, 12, 5), asOf)
	if s.OverdueCount != 0 {
		t.Errorf("expected 0 overdue for ahead-of-schedule account, got %d", s.OverdueCount)
	}
	if !s.OverdueAmount.IsZero() {
		t.Errorf("expected zero overdue amount, got %s", s.OverdueAmount)
	}
}

func TestBuildSchedule_DueSoonWindow(t *testing.T) {
	delivery := ledger.NewDate(2026, time.January, 10)
	// One payment made: next due = March 10.
	in := scheduleInput(delivery, 500, 12, 1)

	s := ledger.BuildSchedule(in, ledger.NewDate(2026, time.March, 5))
	if s.Class != ledger.ClassDueSoon {
		t.Errorf("expected due_soon 5 days out, got %s", s.Class)
	}
	if s.DaysUntilDue != 5 {
		t.Errorf("expected 5 days until due, got %d", s.DaysUntilDue)
	}

	s = ledger.BuildSchedule(in, ledger.NewDate(2026, time.February, 1))
	if s.Class != ledger.ClassCurrent {
		t.Errorf("expected current well before due, got %s", s.Class)
	}

	s = ledger.BuildSchedule(in, ledger.NewDate(2026, time.March, 15))
	if s.Class != ledger.ClassOverdue {
		t.Errorf("expected overdue past due date, got %s", s.Class)
	}
	if s.DaysOverdue != 5 {
		t.Errorf("expected 5 days overdue, got %d", s.DaysOverdue)
	}
}

func TestBuildSchedules_PriorityOrder(t *testing.T) {
	// GIVEN: Accounts with different overdue counts and ages
	// WHEN: Building the batch
	// THEN: Most missed installments first; ties broken by days overdue

	asOf := ledger.NewDate(2026, time.June, 30)
	current := scheduleInput(asOf.AddDate(0, 0, -20), 500, 12, 1)
	current.CustomerID = 1
	twoBehind := scheduleInput(asOf.AddDate(0, 0, -90), 500, 12, 2)
	twoBehind.CustomerID = 2
	fourBehind := scheduleInput(asOf.AddDate(0, 0, -150), 500, 12, 2)
	fourBehind.CustomerID = 3

	schedules := ledger.BuildSchedules([]ledger.ScheduleInput{current, twoBehind, fourBehind}, asOf)

	if schedules[0].Input.CustomerID != 3 {
		t.Errorf("expected customer 3 first, got %d", schedules[0].Input.CustomerID)
	}
	if schedules[1].Input.CustomerID != 2 {
		t.Errorf("expected customer 2 second, got %d", schedules[1].Input.CustomerID)
	}
	if schedules[2].Input.CustomerID != 1 {
		t.Errorf("expected customer 1 last, got %d", schedules[2].Input.CustomerID)
	}
}

// =============================================================================
// DATE ARITHMETIC
// =============================================================================

func TestAddMonths_CalendarNormalization(t *testing.T) {
	// Go's AddDate normalization: Jan 31 + 1 month rolls into March.
	got := ledger.AddMonths(ledger.NewDate(2026, time.January, 31), 1)
	want := ledger.NewDate(2026, time.March, 3)
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestMonthsElapsed30Day(t *testing.T) {
	from := ledger.NewDate(2026, time.January, 1)
	if got := ledger.MonthsElapsed30Day(from, from.AddDate(0, 0, 29)); got != 0 {
		t.Errorf("expected 0 under 30 days, got %d", got)
	}
	if got := ledger.MonthsElapsed30Day(from, from.AddDate(0, 0, 90)); got != 3 {
		t.Errorf("expected 3 at 90 days, got %d", got)
	}
	if got := ledger.MonthsElapsed30Day(from, from.AddDate(0, 0, -5)); got != 0 {
		t.Errorf("expected 0 for negative span, got %d", got)
	}
}

func TestEndOfMonth(t *testing.T) {
	got := ledger.EndOfMonth(ledger.NewDate(2026, time.February, 10))
	if !got.Equal(ledger.NewDate(2026, time.February, 28)) {
		t.Errorf("expected Feb 28, got %s", got)
	}
	got = ledger.EndOfMonth(ledger.NewDate(2024, time.February, 1))
	if !got.Equal(ledger.NewDate(2024, time.February, 29)) {
		t.Errorf("expected leap-year Feb 29, got %s", got)
	}
}
