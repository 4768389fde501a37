/*
replay.go - Running-balance replay over the payment ledger

PURPOSE:
  The exact balance of a contract is never stored. It is derived by
  replaying payments in a deterministic order and subtracting each
  deduction (cash + rebate) from the contract amount.

ORDERING:
  (payment_date, id) ascending. Same-day payments resolve by insertion
  order, so replays are stable across processes.
*/
package ledger

import (
	"sort"
)

// SortPayments orders a slice in replay order: payment date ascending,
// then id ascending. Sorts in place.
func SortPayments(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		da, db := Day(a.Date), Day(b.Date)
		if !da.Equal(db) {
			return da.Before(db)
		}
		return a.ID < b.ID
	})
}

// ReplayStep is the state of the balance after one payment applied.
type ReplayStep struct {
	Payment Payment
	Balance Money // after this payment, clamped at zero
}

// RunningBalance replays payments against a contract amount. The input
// slice is not modified; payments are copied and sorted internally.
// Overpayment clamps at zero and stays there.
func RunningBalance(contract Money, payments []Payment) (final Money, steps []ReplayStep) {
	ordered := make([]Payment, len(payments))
	copy(ordered, payments)
	SortPayments(ordered)

	balance := contract
	steps = make([]ReplayStep, 0, len(ordered))
	for _, p := range ordered {
		balance = balance.Sub(p.Deduction()).ClampZero()
		steps = append(steps, ReplayStep{Payment: p, Balance: balance})
	}
	return balance, steps
}

// TotalDeductions sums amount + rebate over a set of payments.
func TotalDeductions(payments []Payment) Money {
	total := ZeroMoney()
	for _, p := range payments {
		total = total.Add(p.Deduction())
	}
	return total
}

// TotalCash sums amount only, excluding rebates. This is what the
// customer's cached payments column holds.
func TotalCash(payments []Payment) Money {
	total := ZeroMoney()
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
