/*
allocation.go - Distributing general payments across a customer's items

PURPOSE:
  Payments may be linked to a specific item or recorded against the
  customer as a whole. This file turns the mixed ledger into per-item
  balances and a customer-level summary that always agree with each
  other.

ALGORITHM:
  1. Partition payments into per-item sums and one general pool, each
     counted as amount + rebate.
  2. proportion = item contract / sum of active contracts (1 when the
     total is zero).
  3. With several items and a positive pool, each item is credited
     pool * proportion. A lone item takes the whole pool, and its
     balance is replayed exactly over every payment instead of
     approximated.
  4. remaining = max(0, contract - totalPaid), rounded to a whole unit.
     The customer aggregate is the sum of the ROUNDED item balances so
     the summary always matches the detail rows.

PROGRESS:
  monthsPaid = floor(totalPaid / monthlyDue), clamped to [0, term].
  Crediting more money never lowers monthsPaid.
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// ItemBreakdown is one item's share of the customer ledger.
type ItemBreakdown struct {
	Item             Item
	ContractAmount   Money
	DirectPaid       Money           // payments linked to this item (incl. rebates)
	AllocatedGeneral Money           // share of the general pool
	TotalPaid        Money
	Proportion       decimal.Decimal // of the active contract total
	Remaining        Money           // whole-unit rounded, never negative
	MonthsPaid       int
	PaymentsLeft     int
	ProgressPercent  float64
}

// CustomerSummary aggregates the breakdowns.
type CustomerSummary struct {
	TotalContract  Money
	TotalPaid      Money
	TotalRemaining Money // sum of rounded item balances
	GeneralPool    Money
	PaymentCount   int
	AveragePayment Money
}

// Allocate derives per-item breakdowns and the customer summary from the
// active items and the full payment ledger. Items not in active status
// are skipped. Pure: no inputs are mutated.
func Allocate(items []Item, payments []Payment) ([]ItemBreakdown, CustomerSummary) {
	active := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Status == ItemActive {
			active = append(active, it)
		}
	}

	direct := make(map[ItemID]Money, len(active))
	general := ZeroMoney()
	for _, p := range payments {
		if p.ItemID != nil {
			direct[*p.ItemID] = direct[*p.ItemID].Add(p.Deduction())
		} else {
			general = general.Add(p.Deduction())
		}
	}

	totalContract := ZeroMoney()
	for _, it := range active {
		totalContract = totalContract.Add(ContractAmount(it))
	}

	breakdowns := make([]ItemBreakdown, 0, len(active))
	totalRemaining := ZeroMoney()
	totalPaid := ZeroMoney()

	for _, it := range active {
		contract := ContractAmount(it)

		proportion := decimal.NewFromInt(1)
		if !totalContract.IsZero() {
			proportion = contract.Value.Div(totalContract.Value)
		}

		allocated := ZeroMoney()
		if general.IsPositive() {
			if len(active) == 1 {
				allocated = general
			} else {
				allocated = general.Mul(proportion)
			}
		}

		paid := direct[it.ID].Add(allocated)

		var remaining Money
		if len(active) == 1 {
			// Every payment belongs to this item: replay exactly.
			exact, _ := RunningBalance(contract, payments)
			remaining = exact
		} else {
			remaining = contract.Sub(paid).ClampZero()
		}
		remaining = remaining.RoundWhole().ClampZero()

		months := MonthsCovered(paid, it.MonthlyDue, it.TermMonths)
		progress := 0.0
		if it.TermMonths > 0 {
			progress = float64(months) / float64(it.TermMonths) * 100
		}

		breakdowns = append(breakdowns, ItemBreakdown{
			Item:             it,
			ContractAmount:   contract,
			DirectPaid:       direct[it.ID],
			AllocatedGeneral: allocated,
			TotalPaid:        paid,
			Proportion:       proportion,
			Remaining:        remaining,
			MonthsPaid:       months,
			PaymentsLeft:     it.TermMonths - months,
			ProgressPercent:  progress,
		})
		totalRemaining = totalRemaining.Add(remaining)
		totalPaid = totalPaid.Add(paid)
	}

	avg := ZeroMoney()
	if len(payments) > 0 {
		avg = TotalCash(payments).Div(decimal.NewFromInt(int64(len(payments))))
	}

	return breakdowns, CustomerSummary{
		TotalContract:  totalContract,
		TotalPaid:      totalPaid,
		TotalRemaining: totalRemaining,
		GeneralPool:    general,
		PaymentCount:   len(payments),
		AveragePayment: avg,
	}
}

// MonthsCovered converts money paid into whole monthly installments,
// clamped to the contract term. A zero monthly due covers nothing.
func MonthsCovered(paid, monthly Money, term int) int {
	if !monthly.IsPositive() || term < 0 {
		return 0
	}
	months := int(paid.Value.Div(monthly.Value).IntPart())
	if months < 0 {
		return 0
	}
	if months > term {
		return term
	}
	return months
}

// CustomerRemaining is the one-number answer for "does this customer
// still owe anything": the summary aggregate over their active items.
func CustomerRemaining(items []Item, payments []Payment) Money {
	_, summary := Allocate(items, payments)
	return summary.TotalRemaining
}
