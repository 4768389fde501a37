/*
Package ledger provides the core billing engine for installment sales.

PURPOSE:
  This package contains the types and algorithms that turn a loosely
  constrained set of payment records into one consistent answer about what
  a customer owes: contract valuation, running-balance replay, allocation
  of unlinked payments across items, due-date scheduling, and the
  transaction-number system.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal currency amount (never floats)
  - Customer: an account holder with legacy single-item contract fields
  - Item: one individually tracked purchase (itemized or legacy synthetic)
  - Payment: an entry in the payment ledger, optionally linked to an Item
  - HistoryRecord: the immutable snapshot written on archival

DESIGN PRINCIPLES:
  1. Precision: shopspring/decimal for all currency arithmetic
  2. Tolerant reads: stored derived values are recomputed and healed on
     read rather than trusted
  3. Pure derivation: balances, allocations, and schedules are computed
     from rows, never mutated in place

SEE ALSO:
  - valuation.go: contract amount formulas and self-healing
  - replay.go: running-balance replay
  - allocation.go: general-payment distribution across items
  - schedule.go: due dates and overdue classification
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal currency amount
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money        { return Money{Value: decimal.NewFromFloat(value)} }
func MoneyFromInt(value int64) Money      { return Money{Value: decimal.NewFromInt(value)} }
func ZeroMoney() Money                    { return Money{Value: decimal.Zero} }

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money             { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money             { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money   { return Money{Value: m.Value.Mul(s)} }
func (m Money) MulInt(n int) Money            { return Money{Value: m.Value.Mul(decimal.NewFromInt(int64(n)))} }
func (m Money) Div(s decimal.Decimal) Money   { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                    { return Money{Value: m.Value.Neg()} }
func (m Money) Abs() Money                    { return Money{Value: m.Value.Abs()} }
func (m Money) IsZero() bool                  { return m.Value.IsZero() }
func (m Money) IsNegative() bool              { return m.Value.IsNegative() }
func (m Money) IsPositive() bool              { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool            { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool      { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool         { return m.Value.LessThan(o.Value) }
func (m Money) LessOrEqual(o Money) bool      { return m.Value.LessThanOrEqual(o.Value) }

// RoundWhole rounds to the nearest whole currency unit (half up). Balance
// displays use whole units; entry and storage keep two fraction digits.
func (m Money) RoundWhole() Money { return Money{Value: m.Value.Round(0)} }

// ClampZero floors a balance at zero. Overpayment never produces a
// negative balance.
func (m Money) ClampZero() Money {
	if m.Value.IsNegative() {
		return ZeroMoney()
	}
	return m
}

func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

func (m Money) String() string { return m.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID int64
type ItemID int64
type PaymentID int64
type HistoryID int64

// =============================================================================
// CUSTOMER
// =============================================================================

type CustomerStatus string

const (
	CustomerActive    CustomerStatus = "active"
	CustomerFullyPaid CustomerStatus = "fully_paid"
	CustomerPulledOut CustomerStatus = "pulled_out"
)

// MaxActiveItems is the business cap on concurrently active items per
// customer.
const MaxActiveItems = 3

// Customer is an account holder. The contract fields (Item, MonthlyDue,
// Term, Rebates, Downpayment, Amount) describe the legacy single-item
// contract used before purchases were itemized; customers with Item rows
// ignore them for valuation but keep them populated for old reports.
type Customer struct {
	ID            CustomerID
	Name          string
	Address       string
	Contact       string
	DateDelivered time.Time

	Item        string // legacy "name model" text, split on last space
	MonthlyDue  Money
	Term        int // months
	Rebates     Money
	Amount      Money // cached total contract amount
	Payments    Money // cached sum of amount_paid (rebates excluded)
	Downpayment Money

	Status         CustomerStatus
	CompletionDate *time.Time
	CreatedAt      time.Time
}

// ItemName returns everything before the last space of the legacy item
// text.
func (c Customer) ItemName() string {
	name, _ := SplitItemText(c.Item)
	return name
}

// ItemModel returns everything after the last space of the legacy item
// text.
func (c Customer) ItemModel() string {
	_, model := SplitItemText(c.Item)
	return model
}

// SplitItemText splits a combined "name model" string on its last space.
func SplitItemText(text string) (name, model string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.LastIndex(text, " ")
	if i < 0 {
		return text, ""
	}
	return strings.TrimSpace(text[:i]), strings.TrimSpace(text[i+1:])
}

// =============================================================================
// ITEM - One tracked purchase (itemized row or legacy synthetic)
// =============================================================================

type ItemStatus string

const (
	ItemActive    ItemStatus = "active"
	ItemCompleted ItemStatus = "completed"
	ItemPulledOut ItemStatus = "pulled_out"
)

// ItemSource discriminates real item rows from stand-ins synthesized out
// of a legacy Customer's contract fields. Both variants flow through the
// same valuation, balance, and progress code.
type ItemSource string

const (
	SourceItemized ItemSource = "itemized"
	SourceLegacy   ItemSource = "legacy"
)

type Item struct {
	ID         ItemID
	CustomerID CustomerID
	Source     ItemSource

	Name          string
	Model         string
	OriginalPrice Money // cash price
	Downpayment   Money
	GoodAsCash    bool // cash sale instead of installment
	Rebate        Money
	MonthlyDue    Money
	TermMonths    int
	ContractTotal Money // cached; healed on read when it drifts

	PurchaseDate      time.Time
	ContractStart     time.Time
	ContractEnd       time.Time
	FirstDueDate      time.Time
	Status            ItemStatus
	CreatedAt         time.Time
}

// SyntheticItem builds the legacy stand-in for a customer without
// itemized rows. Rebates stay OUT of the synthetic contract total; legacy
// data applied them downstream and stored totals reflect that.
func SyntheticItem(c Customer) Item {
	name, model := SplitItemText(c.Item)
	return Item{
		ID:            ItemID(c.ID),
		CustomerID:    c.ID,
		Source:        SourceLegacy,
		Name:          name,
		Model:         model,
		OriginalPrice: c.MonthlyDue.MulInt(c.Term),
		Downpayment:   c.Downpayment,
		Rebate:        c.Rebates,
		MonthlyDue:    c.MonthlyDue,
		TermMonths:    c.Term,
		ContractTotal: c.MonthlyDue.MulInt(c.Term).Add(c.Downpayment),
		PurchaseDate:  c.DateDelivered,
		ContractStart: c.DateDelivered,
		ContractEnd:   AddMonths(c.DateDelivered, c.Term),
		FirstDueDate:  AddMonths(c.DateDelivered, 1),
		Status:        ItemActive,
	}
}

// =============================================================================
// PAYMENT - Append-only ledger entry
// =============================================================================

type Payment struct {
	ID         PaymentID
	CustomerID CustomerID
	ItemID     *ItemID // nil = general payment, allocated across items

	PaymentNumber     int    // per-customer sequence, 1-based
	TransactionNumber string // globally unique, see txnumber.go
	Date              time.Time
	Amount            Money
	Method            string
	HasRebate         bool
	Rebate            Money
	Notes             string // required, never empty
	RecordedBy        string // empty = system
	CreatedAt         time.Time
}

// Deduction is the amount a payment takes off a balance: cash collected
// plus any rebate granted with it.
func (p Payment) Deduction() Money { return p.Amount.Add(p.Rebate) }

// IsGeneral reports whether the payment is unlinked and subject to
// proportional allocation.
func (p Payment) IsGeneral() bool { return p.ItemID == nil }

// =============================================================================
// HISTORY RECORD - Immutable archival snapshot
// =============================================================================

type FinalStatus string

const (
	FinalFullyPaid FinalStatus = "fully_paid"
	FinalPulledOut FinalStatus = "pulled_out"
)

// HistoryRecord captures a customer (or single item) at the moment it
// left the active set.
//
// TotalPayments holds TOTAL CASH PAID (rebates excluded) for fully-paid
// archivals but REMAINING BALANCE for pull-outs. The asymmetry is
// inherited from years of stored history rows and must not be unified.
type HistoryRecord struct {
	ID                 HistoryID
	OriginalCustomerID CustomerID
	CustomerName       string
	Address            string
	Contact            string
	DateDelivered      time.Time
	CompletionDate     time.Time
	TotalAmount        Money // contract amount
	TotalPayments      Money // see note above
	FinalStatus        FinalStatus
	ItemName           string
	ItemModel          string
	TransactionNumber  string
	CompletedBy        string
	Term               int
	ArchivedAt         time.Time
}
