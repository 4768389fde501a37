/*
valuation.go - Contract valuation and opportunistic self-healing

PURPOSE:
  One place that answers "what is the total contract amount of this
  purchase". Everything downstream (balances, allocation, schedules)
  starts from these numbers.

FORMULAS:
  Installment item:  monthly * term + downpayment - rebate
  Cash item:         price - rebate ("good as cash": no financing)
  Legacy customer:   monthly * term + downpayment (rebates NOT folded in;
                     historical totals were stored this way and rebates
                     are applied as payment-side deductions instead)

SELF-HEALING:
  Stored totals drift (manual edits, old import bugs). Reads recompute
  the formula and overwrite any stored value more than one cent off,
  logging a warning. Drift never fails a read.
*/
package ledger

import (
	"log"
	"strconv"
)

// DriftTolerance is the maximum stored-vs-computed difference that is
// left alone.
var DriftTolerance = MustParseMoney("0.01")

// ContractAmount computes the authoritative contract total for an item.
func ContractAmount(it Item) Money {
	if it.Source == SourceLegacy {
		return LegacyContractAmount(it.MonthlyDue, it.TermMonths, it.Downpayment)
	}
	if it.GoodAsCash {
		return it.OriginalPrice.Sub(it.Rebate)
	}
	return it.MonthlyDue.MulInt(it.TermMonths).Add(it.Downpayment).Sub(it.Rebate)
}

// LegacyContractAmount is the pre-itemization formula. Rebates stay out.
func LegacyContractAmount(monthly Money, term int, downpayment Money) Money {
	return monthly.MulInt(term).Add(downpayment)
}

// HealContractTotal recomputes an item's contract total and reports
// whether the stored value needs to be rewritten. Callers persist the
// returned item when healed is true.
func HealContractTotal(it Item) (healed Item, changed bool) {
	computed := ContractAmount(it)
	if it.ContractTotal.Sub(computed).Abs().GreaterThan(DriftTolerance) {
		log.Printf("[Valuation] healing contract total for item %d: stored %s, computed %s",
			it.ID, it.ContractTotal, computed)
		it.ContractTotal = computed
		return it, true
	}
	return it, false
}

// HealCustomerAmount does the same for a legacy customer's cached total.
func HealCustomerAmount(c Customer) (healed Customer, changed bool) {
	computed := LegacyContractAmount(c.MonthlyDue, c.Term, c.Downpayment)
	if c.Amount.Sub(computed).Abs().GreaterThan(DriftTolerance) {
		log.Printf("[Valuation] healing contract amount for customer %d: stored %s, computed %s",
			c.ID, c.Amount, computed)
		c.Amount = computed
		return c, true
	}
	return c, false
}

// PaymentTermLabel renders a term for display. One-month (or shorter)
// contracts are settled up front, same as cash sales.
func PaymentTermLabel(it Item) string {
	if it.GoodAsCash || it.TermMonths <= 1 {
		return "Pay in Full"
	}
	return monthsLabel(it.TermMonths)
}

func monthsLabel(n int) string {
	if n == 1 {
		return "1 month"
	}
	return strconv.Itoa(n) + " months"
}
