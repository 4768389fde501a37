// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arjen/billing-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	c  core
}

// core holds the actual state, lock-free. Memory adds locking; the
// transactional view reuses core directly under the outer lock.
type core struct {
	customers  map[ledger.CustomerID]ledger.Customer
	items      map[ledger.ItemID]ledger.Item
	payments   map[ledger.PaymentID]ledger.Payment
	history    map[ledger.HistoryID]ledger.HistoryRecord
	txnNumbers map[string]ledger.PaymentID

	nextCustomer ledger.CustomerID
	nextItem     ledger.ItemID
	nextPayment  ledger.PaymentID
	nextHistory  ledger.HistoryID
}

func NewMemory() *Memory {
	return &Memory{c: newCore()}
}

func newCore() core {
	return core{
		customers:  make(map[ledger.CustomerID]ledger.Customer),
		items:      make(map[ledger.ItemID]ledger.Item),
		payments:   make(map[ledger.PaymentID]ledger.Payment),
		history:    make(map[ledger.HistoryID]ledger.HistoryRecord),
		txnNumbers: make(map[string]ledger.PaymentID),
	}
}

func (c core) clone() core {
	out := newCore()
	for k, v := range c.customers {
		out.customers[k] = v
	}
	for k, v := range c.items {
		out.items[k] = v
	}
	for k, v := range c.payments {
		out.payments[k] = v
	}
	for k, v := range c.history {
		out.history[k] = v
	}
	for k, v := range c.txnNumbers {
		out.txnNumbers[k] = v
	}
	out.nextCustomer = c.nextCustomer
	out.nextItem = c.nextItem
	out.nextPayment = c.nextPayment
	out.nextHistory = c.nextHistory
	return out
}

// -----------------------------------------------------------------------------
// Customers
// -----------------------------------------------------------------------------

func (c *core) createCustomer(cu *ledger.Customer) error {
	c.nextCustomer++
	cu.ID = c.nextCustomer
	if cu.CreatedAt.IsZero() {
		cu.CreatedAt = time.Now().UTC()
	}
	c.customers[cu.ID] = *cu
	return nil
}

func (c *core) getCustomer(id ledger.CustomerID) (*ledger.Customer, error) {
	cu, ok := c.customers[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: int64(id)}
	}
	out := cu
	return &out, nil
}

func (c *core) updateCustomer(cu *ledger.Customer) error {
	if _, ok := c.customers[cu.ID]; !ok {
		return &ledger.NotFoundError{Kind: "customer", ID: int64(cu.ID)}
	}
	c.customers[cu.ID] = *cu
	return nil
}

func (c *core) deleteCustomer(id ledger.CustomerID) error {
	if _, ok := c.customers[id]; !ok {
		return &ledger.NotFoundError{Kind: "customer", ID: int64(id)}
	}
	delete(c.customers, id)
	return nil
}

func (c *core) listCustomers(status ledger.CustomerStatus) ([]ledger.Customer, error) {
	var out []ledger.Customer
	for _, cu := range c.customers {
		if status == "" || cu.Status == status {
			out = append(out, cu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Items
// -----------------------------------------------------------------------------

func (c *core) createItem(it *ledger.Item) error {
	c.nextItem++
	it.ID = c.nextItem
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	c.items[it.ID] = *it
	return nil
}

func (c *core) getItem(id ledger.ItemID) (*ledger.Item, error) {
	it, ok := c.items[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "item", ID: int64(id)}
	}
	out := it
	return &out, nil
}

func (c *core) updateItem(it *ledger.Item) error {
	if _, ok := c.items[it.ID]; !ok {
		return &ledger.NotFoundError{Kind: "item", ID: int64(it.ID)}
	}
	c.items[it.ID] = *it
	return nil
}

func (c *core) listItems(customerID ledger.CustomerID) ([]ledger.Item, error) {
	var out []ledger.Item
	for _, it := range c.items {
		if it.CustomerID == customerID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *core) deleteItemsByCustomer(customerID ledger.CustomerID) error {
	for id, it := range c.items {
		if it.CustomerID == customerID {
			delete(c.items, id)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Payments
// -----------------------------------------------------------------------------

func (c *core) createPayment(p *ledger.Payment) error {
	if p.TransactionNumber != "" {
		if _, taken := c.txnNumbers[p.TransactionNumber]; taken {
			return &ledger.ConstraintError{TransactionNumber: p.TransactionNumber}
		}
	}
	c.nextPayment++
	p.ID = c.nextPayment
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	c.payments[p.ID] = *p
	if p.TransactionNumber != "" {
		c.txnNumbers[p.TransactionNumber] = p.ID
	}
	return nil
}

func (c *core) getPayment(id ledger.PaymentID) (*ledger.Payment, error) {
	p, ok := c.payments[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "payment", ID: int64(id)}
	}
	out := p
	return &out, nil
}

func (c *core) deletePayment(id ledger.PaymentID) error {
	p, ok := c.payments[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "payment", ID: int64(id)}
	}
	delete(c.txnNumbers, p.TransactionNumber)
	delete(c.payments, id)
	return nil
}

func (c *core) listPayments(customerID ledger.CustomerID) ([]ledger.Payment, error) {
	var out []ledger.Payment
	for _, p := range c.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	ledger.SortPayments(out)
	return out, nil
}

func (c *core) deletePaymentsByCustomer(customerID ledger.CustomerID) error {
	for id, p := range c.payments {
		if p.CustomerID == customerID {
			delete(c.txnNumbers, p.TransactionNumber)
			delete(c.payments, id)
		}
	}
	return nil
}

func (c *core) maxPaymentNumber(customerID ledger.CustomerID) (int, error) {
	max := 0
	for _, p := range c.payments {
		if p.CustomerID == customerID && p.PaymentNumber > max {
			max = p.PaymentNumber
		}
	}
	return max, nil
}

func (c *core) maxTransactionSeq(prefix string) (int, error) {
	max := 0
	for txn := range c.txnNumbers {
		if !strings.HasPrefix(txn, prefix) {
			continue
		}
		// Only four-digit sequence suffixes count; clock-fallback time
		// suffixes are six digits and must not feed the sequence.
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
	return max, nil
}

func (c *core) transactionNumberExists(txn string) (bool, error) {
	_, ok := c.txnNumbers[txn]
	return ok, nil
}

func (c *core) sumPayments(customerID ledger.CustomerID) (ledger.Money, error) {
	total := ledger.ZeroMoney()
	for _, p := range c.payments {
		if p.CustomerID == customerID {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

func (c *core) createHistory(h *ledger.HistoryRecord) error {
	c.nextHistory++
	h.ID = c.nextHistory
	if h.ArchivedAt.IsZero() {
		h.ArchivedAt = time.Now().UTC()
	}
	c.history[h.ID] = *h
	return nil
}

func (c *core) getHistory(id ledger.HistoryID) (*ledger.HistoryRecord, error) {
	h, ok := c.history[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "history", ID: int64(id)}
	}
	out := h
	return &out, nil
}

func (c *core) deleteHistory(id ledger.HistoryID) error {
	if _, ok := c.history[id]; !ok {
		return &ledger.NotFoundError{Kind: "history", ID: int64(id)}
	}
	delete(c.history, id)
	return nil
}

func (c *core) listHistory() ([]ledger.HistoryRecord, error) {
	var out []ledger.HistoryRecord
	for _, h := range c.history {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *core) historyExists(originalCustomerID ledger.CustomerID) (bool, error) {
	for _, h := range c.history {
		if h.OriginalCustomerID == originalCustomerID {
			return true, nil
		}
	}
	return false, nil
}

func (c *core) deleteHistoryByCustomer(originalCustomerID ledger.CustomerID) error {
	for id, h := range c.history {
		if h.OriginalCustomerID == originalCustomerID {
			delete(c.history, id)
		}
	}
	return nil
}

func (c *core) historyStatsByStatus() (map[ledger.FinalStatus]ledger.HistoryStats, error) {
	out := make(map[ledger.FinalStatus]ledger.HistoryStats)
	for _, h := range c.history {
		s := out[h.FinalStatus]
		s.Count++
		s.Total = s.Total.Add(h.TotalPayments)
		out[h.FinalStatus] = s
	}
	return out, nil
}

// =============================================================================
// LOCKED WRAPPERS - Memory implements ledger.TxStore
// =============================================================================

func (m *Memory) CreateCustomer(_ context.Context, cu *ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.createCustomer(cu)
}

func (m *Memory) GetCustomer(_ context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.getCustomer(id)
}

func (m *Memory) UpdateCustomer(_ context.Context, cu *ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.updateCustomer(cu)
}

func (m *Memory) DeleteCustomer(_ context.Context, id ledger.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.deleteCustomer(id)
}

func (m *Memory) ListCustomers(_ context.Context, status ledger.CustomerStatus) ([]ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.listCustomers(status)
}

func (m *Memory) CreateItem(_ context.Context, it *ledger.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.createItem(it)
}

func (m *Memory) GetItem(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.getItem(id)
}

func (m *Memory) UpdateItem(_ context.Context, it *ledger.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.updateItem(it)
}

func (m *Memory) ListItems(_ context.Context, customerID ledger.CustomerID) ([]ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.listItems(customerID)
}

func (m *Memory) DeleteItemsByCustomer(_ context.Context, customerID ledger.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.deleteItemsByCustomer(customerID)
}

func (m *Memory) CreatePayment(_ context.Context, p *ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.createPayment(p)
}

func (m *Memory) GetPayment(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.getPayment(id)
}

func (m *Memory) DeletePayment(_ context.Context, id ledger.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.deletePayment(id)
}

func (m *Memory) ListPayments(_ context.Context, customerID ledger.CustomerID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.listPayments(customerID)
}

func (m *Memory) DeletePaymentsByCustomer(_ context.Context, customerID ledger.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.deletePaymentsByCustomer(customerID)
}

func (m *Memory) MaxPaymentNumber(_ context.Context, customerID ledger.CustomerID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.maxPaymentNumber(customerID)
}

func (m *Memory) MaxTransactionSeq(_ context.Context, prefix string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.maxTransactionSeq(prefix)
}

func (m *Memory) TransactionNumberExists(_ context.Context, txn string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.transactionNumberExists(txn)
}

func (m *Memory) SumPayments(_ context.Context, customerID ledger.CustomerID) (ledger.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.sumPayments(customerID)
}

func (m *Memory) CreateHistory(_ context.Context, h *ledger.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.createHistory(h)
}

func (m *Memory) GetHistory(_ context.Context, id ledger.HistoryID) (*ledger.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.getHistory(id)
}

func (m *Memory) DeleteHistory(_ context.Context, id ledger.HistoryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.deleteHistory(id)
}

func (m *Memory) ListHistory(_ context.Context) ([]ledger.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.listHistory()
}

func (m *Memory) HistoryExists(_ context.Context, originalCustomerID ledger.CustomerID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.historyExists(originalCustomerID)
}

func (m *Memory) DeleteHistoryByCustomer(_ context.Context, originalCustomerID ledger.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.deleteHistoryByCustomer(originalCustomerID)
}

func (m *Memory) HistoryStatsByStatus(_ context.Context) (map[ledger.FinalStatus]ledger.HistoryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c.historyStatsByStatus()
}

func (m *Memory) Close() error { return nil }

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn against a view of the store under one lock.
// On error the pre-transaction snapshot is restored.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.c.clone()

	if err := fn(&memView{c: &m.c}); err != nil {
		m.c = snapshot
		return err
	}
	return nil
}

// memView routes Store calls to the core without locking; the WithTx
// caller already holds the write lock.
type memView struct {
	c *core
}

func (v *memView) CreateCustomer(_ context.Context, cu *ledger.Customer) error { return v.c.createCustomer(cu) }
func (v *memView) GetCustomer(_ context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	return v.c.getCustomer(id)
}
func (v *memView) UpdateCustomer(_ context.Context, cu *ledger.Customer) error { return v.c.updateCustomer(cu) }
func (v *memView) DeleteCustomer(_ context.Context, id ledger.CustomerID) error {
	return v.c.deleteCustomer(id)
}
func (v *memView) ListCustomers(_ context.Context, status ledger.CustomerStatus) ([]ledger.Customer, error) {
	return v.c.listCustomers(status)
}
func (v *memView) CreateItem(_ context.Context, it *ledger.Item) error { return v.c.createItem(it) }
func (v *memView) GetItem(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return v.c.getItem(id)
}
func (v *memView) UpdateItem(_ context.Context, it *ledger.Item) error { return v.c.updateItem(it) }
func (v *memView) ListItems(_ context.Context, customerID ledger.CustomerID) ([]ledger.Item, error) {
	return v.c.listItems(customerID)
}
func (v *memView) DeleteItemsByCustomer(_ context.Context, customerID ledger.CustomerID) error {
	return v.c.deleteItemsByCustomer(customerID)
}
func (v *memView) CreatePayment(_ context.Context, p *ledger.Payment) error { return v.c.createPayment(p) }
func (v *memView) GetPayment(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return v.c.getPayment(id)
}
func (v *memView) DeletePayment(_ context.Context, id ledger.PaymentID) error {
	return v.c.deletePayment(id)
}
func (v *memView) ListPayments(_ context.Context, customerID ledger.CustomerID) ([]ledger.Payment, error) {
	return v.c.listPayments(customerID)
}
func (v *memView) DeletePaymentsByCustomer(_ context.Context, customerID ledger.CustomerID) error {
	return v.c.deletePaymentsByCustomer(customerID)
}
func (v *memView) MaxPaymentNumber(_ context.Context, customerID ledger.CustomerID) (int, error) {
	return v.c.maxPaymentNumber(customerID)
}
func (v *memView) MaxTransactionSeq(_ context.Context, prefix string) (int, error) {
	return v.c.maxTransactionSeq(prefix)
}
func (v *memView) TransactionNumberExists(_ context.Context, txn string) (bool, error) {
	return v.c.transactionNumberExists(txn)
}
func (v *memView) SumPayments(_ context.Context, customerID ledger.CustomerID) (ledger.Money, error) {
	return v.c.sumPayments(customerID)
}
func (v *memView) CreateHistory(_ context.Context, h *ledger.HistoryRecord) error {
	return v.c.createHistory(h)
}
func (v *memView) GetHistory(_ context.Context, id ledger.HistoryID) (*ledger.HistoryRecord, error) {
	return v.c.getHistory(id)
}
func (v *memView) DeleteHistory(_ context.Context, id ledger.HistoryID) error {
	return v.c.deleteHistory(id)
}
func (v *memView) ListHistory(_ context.Context) ([]ledger.HistoryRecord, error) {
	return v.c.listHistory()
}
func (v *memView) HistoryExists(_ context.Context, originalCustomerID ledger.CustomerID) (bool, error) {
	return v.c.historyExists(originalCustomerID)
}
func (v *memView) DeleteHistoryByCustomer(_ context.Context, originalCustomerID ledger.CustomerID) error {
	return v.c.deleteHistoryByCustomer(originalCustomerID)
}
func (v *memView) HistoryStatsByStatus(_ context.Context) (map[ledger.FinalStatus]ledger.HistoryStats, error) {
	return v.c.historyStatsByStatus()
}
func (v *memView) Close() error { return nil }
