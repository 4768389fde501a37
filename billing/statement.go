/*
statement.go - Monthly billing status and per-item payment schedules

PURPOSE:
  The customer-facing views of the ledger. Monthly billing answers "is
  this month settled"; the payment schedule lays a contract's term out
  as rows and matches actual payments to them chronologically.

SCHEDULE MATCHING:
  Payments fill slots in ledger order, one per installment row. Slots
  without a payment are PENDING, or OVERDUE once their due date has
  passed. The running balance is carried through paid rows only; unpaid
  rows show no balance.
*/
package billing

import (
	"context"
	"time"

	"github.com/arjen/billing-engine/ledger"
)

// =============================================================================
// MONTHLY BILLING
// =============================================================================

type MonthStatus string

const (
	MonthPaid    MonthStatus = "paid"
	MonthPartial MonthStatus = "partial"
	MonthOverdue MonthStatus = "overdue"
	MonthUnpaid  MonthStatus = "unpaid"
)

type MonthlyBilling struct {
	Year      int
	Month     time.Month
	DueDate   time.Time // last day of the month
	AmountDue ledger.Money
	Paid      ledger.Money // cash received in the month, rebates excluded
	Status    MonthStatus
}

// MonthlyBilling computes one month's standing for a customer.
func (s *Service) MonthlyBilling(ctx context.Context, id ledger.CustomerID, year int, month time.Month) (*MonthlyBilling, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.ActiveItems(ctx, c)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}

	due := ledger.ZeroMoney()
	for _, it := range items {
		due = due.Add(it.MonthlyDue)
	}

	bucket := ledger.NewDate(year, month, 1)
	paid := ledger.ZeroMoney()
	for _, p := range payments {
		if ledger.SameMonth(p.Date, bucket) {
			paid = paid.Add(p.Amount)
		}
	}

	dueDate := ledger.EndOfMonth(bucket)
	status := MonthUnpaid
	switch {
	case due.IsPositive() && !paid.LessThan(due):
		status = MonthPaid
	case paid.IsPositive():
		status = MonthPartial
	case dueDate.Before(ledger.Day(s.now())):
		status = MonthOverdue
	}

	return &MonthlyBilling{
		Year:      year,
		Month:     month,
		DueDate:   dueDate,
		AmountDue: due,
		Paid:      paid,
		Status:    status,
	}, nil
}

// =============================================================================
// PAYMENT SCHEDULE
// =============================================================================

type SlotStatus string

const (
	SlotPaid    SlotStatus = "PAID"
	SlotOverdue SlotStatus = "OVERDUE"
	SlotPending SlotStatus = "PENDING"
)

type ScheduleRow struct {
	Number  int // 1-based installment number
	DueDate time.Time
	Status  SlotStatus
	Payment *ledger.Payment // set on PAID rows
	Balance *ledger.Money   // running balance, PAID rows only
}

type PaymentSchedule struct {
	Item ledger.Item
	Rows []ScheduleRow
	// Remaining is set when the last payment only partially covered its
	// installment (more than a cent short).
	Remaining *ledger.Money
}

// partialTolerance keeps rounding noise from producing a remaining row.
var partialTolerance = ledger.MustParseMoney("0.01")

// BuildPaymentSchedule lays out a contract's installments and fills them
// with the given payments in ledger order. Pure; callers choose which
// payments belong to the item.
func BuildPaymentSchedule(it ledger.Item, payments []ledger.Payment, asOf time.Time) PaymentSchedule {
	ordered := make([]ledger.Payment, len(payments))
	copy(ordered, payments)
	ledger.SortPayments(ordered)

	today := ledger.Day(asOf)
	contract := ledger.ContractAmount(it)
	balance := contract

	rows := make([]ScheduleRow, 0, it.TermMonths)
	for i := 0; i < it.TermMonths; i++ {
		row := ScheduleRow{
			Number:  i + 1,
			DueDate: ledger.AddMonths(it.ContractStart, i+1),
		}
		if i < len(ordered) {
			p := ordered[i]
			balance = balance.Sub(p.Deduction()).ClampZero()
			b := balance
			row.Status = SlotPaid
			row.Payment = &p
			row.Balance = &b
		} else if row.DueDate.Before(today) {
			row.Status = SlotOverdue
		} else {
			row.Status = SlotPending
		}
		rows = append(rows, row)
	}

	schedule := PaymentSchedule{Item: it, Rows: rows}
	if n := len(ordered); n > 0 && n <= it.TermMonths {
		last := ordered[n-1]
		shortfall := it.MonthlyDue.Sub(last.Deduction())
		if last.Deduction().IsPositive() && shortfall.GreaterThan(partialTolerance) {
			schedule.Remaining = &shortfall
		}
	}
	return schedule
}

// ItemSchedules builds the payment schedule for each of a customer's
// active items. A lone item sees the whole ledger; with several items
// each schedule uses only the payments linked to it.
func (s *Service) ItemSchedules(ctx context.Context, id ledger.CustomerID) ([]PaymentSchedule, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.ActiveItems(ctx, c)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}

	asOf := s.now()
	schedules := make([]PaymentSchedule, 0, len(items))
	for _, it := range items {
		relevant := payments
		if len(items) > 1 {
			relevant = nil
			for _, p := range payments {
				if p.ItemID != nil && *p.ItemID == it.ID {
					relevant = append(relevant, p)
				}
			}
		}
		schedules = append(schedules, BuildPaymentSchedule(it, relevant, asOf))
	}
	return schedules, nil
}

// DueReport derives the due-date schedule for every active customer,
// sorted by collection priority.
func (s *Service) DueReport(ctx context.Context) ([]ledger.Schedule, error) {
	customers, err := s.store.ListCustomers(ctx, ledger.CustomerActive)
	if err != nil {
		return nil, err
	}
	inputs := make([]ledger.ScheduleInput, 0, len(customers))
	for _, c := range customers {
		payments, err := s.store.ListPayments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, ledger.ScheduleInput{
			CustomerID:   c.ID,
			CustomerName: c.Name,
			Contact:      c.Contact,
			Delivery:     c.DateDelivered,
			Monthly:      c.MonthlyDue,
			Term:         c.Term,
			PaymentsMade: len(payments),
		})
	}
	return ledger.BuildSchedules(inputs, s.now()), nil
}
