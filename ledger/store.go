/*
store.go - Persistence interfaces

PURPOSE:
  The engine computes; stores remember. This file defines the contract
  implementations must satisfy. Two implementations exist:
  - ledger/store/memory.go: in-memory, for tests and demos
  - store/sqlite: production persistence

TRANSACTIONS:
  Stores that can group writes atomically implement TxStore. Archival
  (history insert + status flip) requires it; other callers degrade to
  sequential writes when the store cannot provide one.
*/
package ledger

import (
	"context"
)

// HistoryStats summarizes the archive per final status.
type HistoryStats struct {
	Count int
	Total Money // sum of the total_payments column, whatever each row means by it
}

type Store interface {
	// Customers
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id CustomerID) (*Customer, error)
	UpdateCustomer(ctx context.Context, c *Customer) error
	DeleteCustomer(ctx context.Context, id CustomerID) error
	// ListCustomers filters by status; empty status returns everyone.
	ListCustomers(ctx context.Context, status CustomerStatus) ([]Customer, error)

	// Items
	CreateItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	UpdateItem(ctx context.Context, it *Item) error
	ListItems(ctx context.Context, customerID CustomerID) ([]Item, error)
	DeleteItemsByCustomer(ctx context.Context, customerID CustomerID) error

	// Payments
	// CreatePayment returns ErrDuplicateTransactionNumber (wrapped in a
	// ConstraintError) when the transaction number is taken.
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	DeletePayment(ctx context.Context, id PaymentID) error
	ListPayments(ctx context.Context, customerID CustomerID) ([]Payment, error)
	DeletePaymentsByCustomer(ctx context.Context, customerID CustomerID) error
	// MaxPaymentNumber returns the highest per-customer payment number,
	// zero when the customer has no payments.
	MaxPaymentNumber(ctx context.Context, customerID CustomerID) (int, error)
	// MaxTransactionSeq returns the highest numeric suffix among payment
	// transaction numbers sharing a month prefix, zero when none parse.
	MaxTransactionSeq(ctx context.Context, prefix string) (int, error)
	TransactionNumberExists(ctx context.Context, txn string) (bool, error)
	// SumPayments totals amount_paid (rebates excluded) for the cached
	// customer column.
	SumPayments(ctx context.Context, customerID CustomerID) (Money, error)

	// History
	CreateHistory(ctx context.Context, h *HistoryRecord) error
	GetHistory(ctx context.Context, id HistoryID) (*HistoryRecord, error)
	DeleteHistory(ctx context.Context, id HistoryID) error
	ListHistory(ctx context.Context) ([]HistoryRecord, error)
	HistoryExists(ctx context.Context, originalCustomerID CustomerID) (bool, error)
	DeleteHistoryByCustomer(ctx context.Context, originalCustomerID CustomerID) error
	HistoryStatsByStatus(ctx context.Context) (map[FinalStatus]HistoryStats, error)

	Close() error
}

// TxStore groups writes atomically. The callback's store routes every
// call through one underlying transaction; returning an error rolls the
// whole group back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
