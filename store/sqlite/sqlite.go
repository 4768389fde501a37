/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  customers: Account holders with their legacy contract fields
  items:     Itemized purchases (one row per tracked item)
  payments:  The append-mostly payment ledger
  history:   Immutable archival snapshots (fully paid / pulled out)

INDEXES:
  - idx_payments_unique_txn: Global transaction number uniqueness.
    Violations surface as ledger.ConstraintError so the payment service
    can retry with the next sequence value.
  - idx_payments_customer_date: Running-balance replay (hot path)
  - idx_history_original_customer: Fully-paid idempotency check

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MONEY AND DATES:
  Currency amounts are stored as decimal TEXT, never REAL. Business
  dates are stored as 'YYYY-MM-DD'; row timestamps as RFC3339.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arjen/billing-engine/ledger"
)

const dayFormat = "2006-01-02"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One pooled connection: the store serializes with its own mutex, and
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Customers (account holders; contract fields are the legacy
	-- pre-itemization single-item contract)
	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT,
		contact TEXT,
		date_delivered TEXT NOT NULL,
		item TEXT,
		monthly_due TEXT NOT NULL DEFAULT '0',
		term INTEGER NOT NULL DEFAULT 0,
		rebates TEXT NOT NULL DEFAULT '0',
		amount TEXT NOT NULL DEFAULT '0',
		payments TEXT NOT NULL DEFAULT '0',
		downpayment TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		completion_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_status
		ON customers(status);

	-- Itemized purchases
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		source TEXT NOT NULL DEFAULT 'itemized',
		name TEXT NOT NULL,
		model TEXT,
		original_price TEXT NOT NULL DEFAULT '0',
		downpayment TEXT NOT NULL DEFAULT '0',
		good_as_cash BOOLEAN NOT NULL DEFAULT FALSE,
		rebate TEXT NOT NULL DEFAULT '0',
		monthly_due TEXT NOT NULL DEFAULT '0',
		term_months INTEGER NOT NULL DEFAULT 0,
		contract_total TEXT NOT NULL DEFAULT '0',
		purchase_date TEXT NOT NULL,
		contract_start TEXT NOT NULL,
		contract_end TEXT NOT NULL,
		first_due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_customer
		ON items(customer_id);

	-- Payment ledger
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		item_id INTEGER REFERENCES items(id),
		payment_number INTEGER NOT NULL,
		transaction_number TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		method TEXT,
		has_rebate BOOLEAN NOT NULL DEFAULT FALSE,
		rebate_amount TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL,
		recorded_by TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: Transaction numbers are globally unique and never reused.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_unique_txn
		ON payments(transaction_number);

	-- Replay order is (payment_date, id); this index serves the hot path.
	CREATE INDEX IF NOT EXISTS idx_payments_customer_date
		ON payments(customer_id, payment_date, id);

	-- Archival snapshots
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_customer_id INTEGER NOT NULL,
		customer_name TEXT NOT NULL,
		address TEXT,
		contact TEXT,
		date_delivered TEXT NOT NULL,
		completion_date TEXT NOT NULL,
		total_amount TEXT NOT NULL DEFAULT '0',
		total_payments TEXT NOT NULL DEFAULT '0',
		final_status TEXT NOT NULL,
		item_name TEXT,
		item_model TEXT,
		transaction_number TEXT,
		completed_by TEXT,
		term INTEGER NOT NULL DEFAULT 0,
		archived_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_original_customer
		ON history(original_customer_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerColumns = `id, name, address, contact, date_delivered, item,
	monthly_due, term, rebates, amount, payments, downpayment, status,
	completion_date, created_at`

func (s *Store) CreateCustomer(ctx context.Context, c *ledger.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createCustomer(ctx, s.db, c)
}

func createCustomer(ctx context.Context, q dbtx, c *ledger.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO customers (name, address, contact, date_delivered, item,
			monthly_due, term, rebates, amount, payments, downpayment, status,
			completion_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Address, c.Contact, c.DateDelivered.Format(dayFormat), c.Item,
		c.MonthlyDue.String(), c.Term, c.Rebates.String(), c.Amount.String(),
		c.Payments.String(), c.Downpayment.String(), string(c.Status),
		nullDay(c.CompletionDate), c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = ledger.CustomerID(id)
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCustomer(ctx, s.db, id)
}

func getCustomer(ctx context.Context, q dbtx, id ledger.CustomerID) (*ledger.Customer, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: int64(id)}
	}
	return c, err
}

func (s *Store) UpdateCustomer(ctx context.Context, c *ledger.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateCustomer(ctx, s.db, c)
}

func updateCustomer(ctx context.Context, q dbtx, c *ledger.Customer) error {
	res, err := q.ExecContext(ctx, `
		UPDATE customers SET name = ?, address = ?, contact = ?,
			date_delivered = ?, item = ?, monthly_due = ?, term = ?,
			rebates = ?, amount = ?, payments = ?, downpayment = ?,
			status = ?, completion_date = ?
		WHERE id = ?`,
		c.Name, c.Address, c.Contact, c.DateDelivered.Format(dayFormat), c.Item,
		c.MonthlyDue.String(), c.Term, c.Rebates.String(), c.Amount.String(),
		c.Payments.String(), c.Downpayment.String(), string(c.Status),
		nullDay(c.CompletionDate), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "customer", ID: int64(c.ID)})
}

func (s *Store) DeleteCustomer(ctx context.Context, id ledger.CustomerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteCustomer(ctx, s.db, id)
}

func deleteCustomer(ctx context.Context, q dbtx, id ledger.CustomerID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "customer", ID: int64(id)})
}

func (s *Store) ListCustomers(ctx context.Context, status ledger.CustomerStatus) ([]ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCustomers(ctx, s.db, status)
}

func listCustomers(ctx context.Context, q dbtx, status ledger.CustomerStatus) ([]ledger.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (*ledger.Customer, error) {
	var c ledger.Customer
	var delivered, createdAt string
	var monthly, rebates, amount, payments, downpayment string
	var address, contact, item, completion sql.NullString
	var status string

	err := row.Scan(&c.ID, &c.Name, &address, &contact, &delivered, &item,
		&monthly, &c.Term, &rebates, &amount, &payments, &downpayment,
		&status, &completion, &createdAt)
	if err != nil {
		return nil, err
	}
	c.Address = address.String
	c.Contact = contact.String
	c.Item = item.String
	c.DateDelivered = parseDay(delivered)
	c.MonthlyDue = ledger.MustParseMoney(monthly)
	c.Rebates = ledger.MustParseMoney(rebates)
	c.Amount = ledger.MustParseMoney(amount)
	c.Payments = ledger.MustParseMoney(payments)
	c.Downpayment = ledger.MustParseMoney(downpayment)
	c.Status = ledger.CustomerStatus(status)
	if completion.Valid {
		d := parseDay(completion.String)
		c.CompletionDate = &d
	}
	c.CreatedAt = parseStamp(createdAt)
	return &c, nil
}

// =============================================================================
// ITEMS
// =============================================================================

const itemColumns = `id, customer_id, source, name, model, original_price,
	downpayment, good_as_cash, rebate, monthly_due, term_months,
	contract_total, purchase_date, contract_start, contract_end,
	first_due_date, status, created_at`

func (s *Store) CreateItem(ctx context.Context, it *ledger.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createItem(ctx, s.db, it)
}

func createItem(ctx context.Context, q dbtx, it *ledger.Item) error {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO items (customer_id, source, name, model, original_price,
			downpayment, good_as_cash, rebate, monthly_due, term_months,
			contract_total, purchase_date, contract_start, contract_end,
			first_due_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.CustomerID, string(it.Source), it.Name, it.Model,
		it.OriginalPrice.String(), it.Downpayment.String(), it.GoodAsCash,
		it.Rebate.String(), it.MonthlyDue.String(), it.TermMonths,
		it.ContractTotal.String(), it.PurchaseDate.Format(dayFormat),
		it.ContractStart.Format(dayFormat), it.ContractEnd.Format(dayFormat),
		it.FirstDueDate.Format(dayFormat), string(it.Status),
		it.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	it.ID = ledger.ItemID(id)
	return nil
}

func (s *Store) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q dbtx, id ledger.ItemID) (*ledger.Item, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "item", ID: int64(id)}
	}
	return it, err
}

func (s *Store) UpdateItem(ctx context.Context, it *ledger.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateItem(ctx, s.db, it)
}

func updateItem(ctx context.Context, q dbtx, it *ledger.Item) error {
	res, err := q.ExecContext(ctx, `
		UPDATE items SET source = ?, name = ?, model = ?, original_price = ?,
			downpayment = ?, good_as_cash = ?, rebate = ?, monthly_due = ?,
			term_months = ?, contract_total = ?, purchase_date = ?,
			contract_start = ?, contract_end = ?, first_due_date = ?, status = ?
		WHERE id = ?`,
		string(it.Source), it.Name, it.Model, it.OriginalPrice.String(),
		it.Downpayment.String(), it.GoodAsCash, it.Rebate.String(),
		it.MonthlyDue.String(), it.TermMonths, it.ContractTotal.String(),
		it.PurchaseDate.Format(dayFormat), it.ContractStart.Format(dayFormat),
		it.ContractEnd.Format(dayFormat), it.FirstDueDate.Format(dayFormat),
		string(it.Status), it.ID)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "item", ID: int64(it.ID)})
}

func (s *Store) ListItems(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listItems(ctx, s.db, customerID)
}

func listItems(ctx context.Context, q dbtx, customerID ledger.CustomerID) ([]ledger.Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE customer_id = ? ORDER BY id`,
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *Store) DeleteItemsByCustomer(ctx context.Context, customerID ledger.CustomerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteItemsByCustomer(ctx, s.db, customerID)
}

func deleteItemsByCustomer(ctx context.Context, q dbtx, customerID ledger.CustomerID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM items WHERE customer_id = ?`, customerID)
	return err
}

func scanItem(row scanner) (*ledger.Item, error) {
	var it ledger.Item
	var source, status string
	var model sql.NullString
	var price, down, rebate, monthly, total string
	var purchase, start, end, firstDue, createdAt string

	err := row.Scan(&it.ID, &it.CustomerID, &source, &it.Name, &model, &price,
		&down, &it.GoodAsCash, &rebate, &monthly, &it.TermMonths, &total,
		&purchase, &start, &end, &firstDue, &status, &createdAt)
	if err != nil {
		return nil, err
	}
	it.Source = ledger.ItemSource(source)
	it.Model = model.String
	it.OriginalPrice = ledger.MustParseMoney(price)
	it.Downpayment = ledger.MustParseMoney(down)
	it.Rebate = ledger.MustParseMoney(rebate)
	it.MonthlyDue = ledger.MustParseMoney(monthly)
	it.ContractTotal = ledger.MustParseMoney(total)
	it.PurchaseDate = parseDay(purchase)
	it.ContractStart = parseDay(start)
	it.ContractEnd = parseDay(end)
	it.FirstDueDate = parseDay(firstDue)
	it.Status = ledger.ItemStatus(status)
	it.CreatedAt = parseStamp(createdAt)
	return &it, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, customer_id, item_id, payment_number,
	transaction_number, payment_date, amount_paid, method, has_rebate,
	rebate_amount, notes, recorded_by, created_at`

func (s *Store) CreatePayment(ctx context.Context, p *ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPayment(ctx, s.db, p)
}

func createPayment(ctx context.Context, q dbtx, p *ledger.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	var itemID sql.NullInt64
	if p.ItemID != nil {
		itemID = sql.NullInt64{Int64: int64(*p.ItemID), Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO payments (customer_id, item_id, payment_number,
			transaction_number, payment_date, amount_paid, method, has_rebate,
			rebate_amount, notes, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.CustomerID, itemID, p.PaymentNumber, p.TransactionNumber,
		p.Date.Format(dayFormat), p.Amount.String(), nullString(p.Method),
		p.HasRebate, p.Rebate.String(), p.Notes, nullString(p.RecordedBy),
		p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConstraintError{TransactionNumber: p.TransactionNumber}
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = ledger.PaymentID(id)
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(ctx, s.db, id)
}

func getPayment(ctx context.Context, q dbtx, id ledger.PaymentID) (*ledger.Payment, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "payment", ID: int64(id)}
	}
	return p, err
}

func (s *Store) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePayment(ctx, s.db, id)
}

func deletePayment(ctx context.Context, q dbtx, id ledger.PaymentID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "payment", ID: int64(id)})
}

func (s *Store) ListPayments(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPayments(ctx, s.db, customerID)
}

func listPayments(ctx context.Context, q dbtx, customerID ledger.CustomerID) ([]ledger.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE customer_id = ?
		ORDER BY payment_date, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePaymentsByCustomer(ctx context.Context, customerID ledger.CustomerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePaymentsByCustomer(ctx, s.db, customerID)
}

func deletePaymentsByCustomer(ctx context.Context, q dbtx, customerID ledger.CustomerID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM payments WHERE customer_id = ?`, customerID)
	return err
}

func (s *Store) MaxPaymentNumber(ctx context.Context, customerID ledger.CustomerID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maxPaymentNumber(ctx, s.db, customerID)
}

func maxPaymentNumber(ctx context.Context, q dbtx, customerID ledger.CustomerID) (int, error) {
	var max sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT MAX(payment_number) FROM payments WHERE customer_id = ?`,
		customerID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

func (s *Store) MaxTransactionSeq(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maxTransactionSeq(ctx, s.db, prefix)
}

func maxTransactionSeq(ctx context.Context, q dbtx, prefix string) (int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT transaction_number FROM payments WHERE transaction_number LIKE ?`,
		prefix+"%")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var txn string
		if err := rows.Scan(&txn); err != nil {
			return 0, err
		}
		if !strings.HasPrefix(txn, prefix) {
			continue
		}
		// Only the four-digit %04d sequence shape counts. Clock-fallback
		// suffixes are six time digits and must not feed the sequence.
		suffix := txn[len(prefix):]
		if len(suffix) != 4 {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, rows.Err()
}

func (s *Store) TransactionNumberExists(ctx context.Context, txn string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionNumberExists(ctx, s.db, txn)
}

func transactionNumberExists(ctx context.Context, q dbtx, txn string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE transaction_number = ?`, txn).Scan(&count)
	return count > 0, err
}

func (s *Store) SumPayments(ctx context.Context, customerID ledger.CustomerID) (ledger.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumPayments(ctx, s.db, customerID)
}

func sumPayments(ctx context.Context, q dbtx, customerID ledger.CustomerID) (ledger.Money, error) {
	// Amounts are decimal TEXT; summing in Go avoids SQLite float math.
	rows, err := q.QueryContext(ctx,
		`SELECT amount_paid FROM payments WHERE customer_id = ?`, customerID)
	if err != nil {
		return ledger.ZeroMoney(), err
	}
	defer rows.Close()

	total := ledger.ZeroMoney()
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return ledger.ZeroMoney(), err
		}
		total = total.Add(ledger.MustParseMoney(amount))
	}
	return total, rows.Err()
}

func scanPayment(row scanner) (*ledger.Payment, error) {
	var p ledger.Payment
	var itemID sql.NullInt64
	var method, recordedBy sql.NullString
	var date, amount, rebate, createdAt string

	err := row.Scan(&p.ID, &p.CustomerID, &itemID, &p.PaymentNumber,
		&p.TransactionNumber, &date, &amount, &method, &p.HasRebate, &rebate,
		&p.Notes, &recordedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	if itemID.Valid {
		id := ledger.ItemID(itemID.Int64)
		p.ItemID = &id
	}
	p.Date = parseDay(date)
	p.Amount = ledger.MustParseMoney(amount)
	p.Method = method.String
	p.Rebate = ledger.MustParseMoney(rebate)
	p.RecordedBy = recordedBy.String
	p.CreatedAt = parseStamp(createdAt)
	return &p, nil
}

// =============================================================================
// HISTORY
// =============================================================================

const historyColumns = `id, original_customer_id, customer_name, address,
	contact, date_delivered, completion_date, total_amount, total_payments,
	final_status, item_name, item_model, transaction_number, completed_by,
	term, archived_at`

func (s *Store) CreateHistory(ctx context.Context, h *ledger.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createHistory(ctx, s.db, h)
}

func createHistory(ctx context.Context, q dbtx, h *ledger.HistoryRecord) error {
	if h.ArchivedAt.IsZero() {
		h.ArchivedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO history (original_customer_id, customer_name, address,
			contact, date_delivered, completion_date, total_amount,
			total_payments, final_status, item_name, item_model,
			transaction_number, completed_by, term, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.OriginalCustomerID, h.CustomerName, h.Address, h.Contact,
		h.DateDelivered.Format(dayFormat), h.CompletionDate.Format(dayFormat),
		h.TotalAmount.String(), h.TotalPayments.String(), string(h.FinalStatus),
		nullString(h.ItemName), nullString(h.ItemModel),
		nullString(h.TransactionNumber), nullString(h.CompletedBy), h.Term,
		h.ArchivedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = ledger.HistoryID(id)
	return nil
}

func (s *Store) GetHistory(ctx context.Context, id ledger.HistoryID) (*ledger.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHistory(ctx, s.db, id)
}

func getHistory(ctx context.Context, q dbtx, id ledger.HistoryID) (*ledger.HistoryRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "history", ID: int64(id)}
	}
	return h, err
}

func (s *Store) DeleteHistory(ctx context.Context, id ledger.HistoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteHistory(ctx, s.db, id)
}

func deleteHistory(ctx context.Context, q dbtx, id ledger.HistoryID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "history", ID: int64(id)})
}

func (s *Store) ListHistory(ctx context.Context) ([]ledger.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHistory(ctx, s.db)
}

func listHistory(ctx context.Context, q dbtx) ([]ledger.HistoryRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (s *Store) HistoryExists(ctx context.Context, originalCustomerID ledger.CustomerID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return historyExists(ctx, s.db, originalCustomerID)
}

func historyExists(ctx context.Context, q dbtx, originalCustomerID ledger.CustomerID) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history WHERE original_customer_id = ?`,
		originalCustomerID).Scan(&count)
	return count > 0, err
}

func (s *Store) DeleteHistoryByCustomer(ctx context.Context, originalCustomerID ledger.CustomerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteHistoryByCustomer(ctx, s.db, originalCustomerID)
}

func deleteHistoryByCustomer(ctx context.Context, q dbtx, originalCustomerID ledger.CustomerID) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM history WHERE original_customer_id = ?`, originalCustomerID)
	return err
}

func (s *Store) HistoryStatsByStatus(ctx context.Context) (map[ledger.FinalStatus]ledger.HistoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return historyStatsByStatus(ctx, s.db)
}

func historyStatsByStatus(ctx context.Context, q dbtx) (map[ledger.FinalStatus]ledger.HistoryStats, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT final_status, total_payments FROM history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[ledger.FinalStatus]ledger.HistoryStats)
	for rows.Next() {
		var status, total string
		if err := rows.Scan(&status, &total); err != nil {
			return nil, err
		}
		st := out[ledger.FinalStatus(status)]
		st.Count++
		st.Total = st.Total.Add(ledger.MustParseMoney(total))
		out[ledger.FinalStatus(status)] = st
	}
	return out, rows.Err()
}

func scanHistory(row scanner) (*ledger.HistoryRecord, error) {
	var h ledger.HistoryRecord
	var address, contact, itemName, itemModel, txn, completedBy sql.NullString
	var delivered, completion, totalAmount, totalPayments, status, archivedAt string

	err := row.Scan(&h.ID, &h.OriginalCustomerID, &h.CustomerName, &address,
		&contact, &delivered, &completion, &totalAmount, &totalPayments,
		&status, &itemName, &itemModel, &txn, &completedBy, &h.Term, &archivedAt)
	if err != nil {
		return nil, err
	}
	h.Address = address.String
	h.Contact = contact.String
	h.DateDelivered = parseDay(delivered)
	h.CompletionDate = parseDay(completion)
	h.TotalAmount = ledger.MustParseMoney(totalAmount)
	h.TotalPayments = ledger.MustParseMoney(totalPayments)
	h.FinalStatus = ledger.FinalStatus(status)
	h.ItemName = itemName.String
	h.ItemModel = itemModel.String
	h.TransactionNumber = txn.String
	h.CompletedBy = completedBy.String
	h.ArchivedAt = parseStamp(archivedAt)
	return &h, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes Store calls through one *sql.Tx. No locking: the WithTx
// caller already holds the write lock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateCustomer(ctx context.Context, c *ledger.Customer) error {
	return createCustomer(ctx, ts.tx, c)
}
func (ts *txStore) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	return getCustomer(ctx, ts.tx, id)
}
func (ts *txStore) UpdateCustomer(ctx context.Context, c *ledger.Customer) error {
	return updateCustomer(ctx, ts.tx, c)
}
func (ts *txStore) DeleteCustomer(ctx context.Context, id ledger.CustomerID) error {
	return deleteCustomer(ctx, ts.tx, id)
}
func (ts *txStore) ListCustomers(ctx context.Context, status ledger.CustomerStatus) ([]ledger.Customer, error) {
	return listCustomers(ctx, ts.tx, status)
}
func (ts *txStore) CreateItem(ctx context.Context, it *ledger.Item) error {
	return createItem(ctx, ts.tx, it)
}
func (ts *txStore) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return getItem(ctx, ts.tx, id)
}
func (ts *txStore) UpdateItem(ctx context.Context, it *ledger.Item) error {
	return updateItem(ctx, ts.tx, it)
}
func (ts *txStore) ListItems(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Item, error) {
	return listItems(ctx, ts.tx, customerID)
}
func (ts *txStore) DeleteItemsByCustomer(ctx context.Context, customerID ledger.CustomerID) error {
	return deleteItemsByCustomer(ctx, ts.tx, customerID)
}
func (ts *txStore) CreatePayment(ctx context.Context, p *ledger.Payment) error {
	return createPayment(ctx, ts.tx, p)
}
func (ts *txStore) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return getPayment(ctx, ts.tx, id)
}
func (ts *txStore) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	return deletePayment(ctx, ts.tx, id)
}
func (ts *txStore) ListPayments(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Payment, error) {
	return listPayments(ctx, ts.tx, customerID)
}
func (ts *txStore) DeletePaymentsByCustomer(ctx context.Context, customerID ledger.CustomerID) error {
	return deletePaymentsByCustomer(ctx, ts.tx, customerID)
}
func (ts *txStore) MaxPaymentNumber(ctx context.Context, customerID ledger.CustomerID) (int, error) {
	return maxPaymentNumber(ctx, ts.tx, customerID)
}
func (ts *txStore) MaxTransactionSeq(ctx context.Context, prefix string) (int, error) {
	return maxTransactionSeq(ctx, ts.tx, prefix)
}
func (ts *txStore) TransactionNumberExists(ctx context.Context, txn string) (bool, error) {
	return transactionNumberExists(ctx, ts.tx, txn)
}
func (ts *txStore) SumPayments(ctx context.Context, customerID ledger.CustomerID) (ledger.Money, error) {
	return sumPayments(ctx, ts.tx, customerID)
}
func (ts *txStore) CreateHistory(ctx context.Context, h *ledger.HistoryRecord) error {
	return createHistory(ctx, ts.tx, h)
}
func (ts *txStore) GetHistory(ctx context.Context, id ledger.HistoryID) (*ledger.HistoryRecord, error) {
	return getHistory(ctx, ts.tx, id)
}
func (ts *txStore) DeleteHistory(ctx context.Context, id ledger.HistoryID) error {
	return deleteHistory(ctx, ts.tx, id)
}
func (ts *txStore) ListHistory(ctx context.Context) ([]ledger.HistoryRecord, error) {
	return listHistory(ctx, ts.tx)
}
func (ts *txStore) HistoryExists(ctx context.Context, originalCustomerID ledger.CustomerID) (bool, error) {
	return historyExists(ctx, ts.tx, originalCustomerID)
}
func (ts *txStore) DeleteHistoryByCustomer(ctx context.Context, originalCustomerID ledger.CustomerID) error {
	return deleteHistoryByCustomer(ctx, ts.tx, originalCustomerID)
}
func (ts *txStore) HistoryStatsByStatus(ctx context.Context) (map[ledger.FinalStatus]ledger.HistoryStats, error) {
	return historyStatsByStatus(ctx, ts.tx)
}
func (ts *txStore) Close() error { return nil }

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDay(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dayFormat), Valid: true}
}

func parseDay(s string) time.Time {
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
