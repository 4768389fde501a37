/*
service.go - Payment and account operations on top of the ledger engine

PURPOSE:
  Wraps the pure ledger computations with the stateful operations a
  billing clerk performs: creating and editing accounts, adding items,
  recording payments, and (admin only) deleting payments.

INVARIANTS:
  1. Payments land only on active customers, with a positive amount and
     a non-empty note. Anything else is rejected before any write.
  2. Every payment gets a per-customer payment number (max+1) and a
     globally unique transaction number. Uniqueness collisions retry
     with the next sequence value, bounded, then fall back to a
     clock-based suffix. The caller never sees the collision when the
     fallback succeeds.
  3. After any payment write or delete, the customer's cached payments
     column is recomputed as sum(amount_paid) - rebates excluded.
  4. Every successful payment triggers the fully-paid check
     (completion.go).

EXAMPLE:
  svc := billing.NewService(store)
  p, err := svc.RecordPayment(ctx, billing.PaymentRequest{
      CustomerID: 12,
      Amount:     ledger.NewMoney(1500),
      Notes:      "August installment",
  })

SEE ALSO:
  - completion.go: fully-paid detection and archival
  - statement.go: monthly billing status and payment schedules
*/
package billing

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/arjen/billing-engine/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store ledger.Store
	// txStore is non-nil when the store supports atomic groups; archival
	// requires it, everything else degrades gracefully.
	txStore ledger.TxStore

	// now is swappable for tests.
	now func() time.Time
}

func NewService(store ledger.Store) *Service {
	s := &Service{store: store, now: time.Now}
	if ts, ok := store.(ledger.TxStore); ok {
		s.txStore = ts
	}
	return s
}

// NewServiceWithClock pins the service's notion of "now". Used by tests
// and backfill tooling.
func NewServiceWithClock(store ledger.Store, now func() time.Time) *Service {
	s := NewService(store)
	s.now = now
	return s
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerRequest carries the editable account fields. Contract totals
// are always derived, never accepted from the caller.
type CustomerRequest struct {
	Name          string
	Address       string
	Contact       string
	DateDelivered time.Time
	Item          string
	MonthlyDue    ledger.Money
	Term          int
	Rebates       ledger.Money
	Downpayment   ledger.Money
}

func (r CustomerRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if r.Term < 0 {
		return &ledger.ValidationError{Field: "term", Message: "cannot be negative"}
	}
	if r.MonthlyDue.IsNegative() {
		return &ledger.ValidationError{Field: "monthly_due", Message: "cannot be negative"}
	}
	return nil
}

// CreateCustomer opens an account. The cached contract amount is derived
// from the legacy formula; itemized purchases are added separately.
func (s *Service) CreateCustomer(ctx context.Context, req CustomerRequest) (*ledger.Customer, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	c := &ledger.Customer{
		Name:          strings.TrimSpace(req.Name),
		Address:       strings.TrimSpace(req.Address),
		Contact:       strings.TrimSpace(req.Contact),
		DateDelivered: ledger.Day(req.DateDelivered),
		Item:          strings.TrimSpace(req.Item),
		MonthlyDue:    req.MonthlyDue,
		Term:          req.Term,
		Rebates:       req.Rebates,
		Downpayment:   req.Downpayment,
		Amount:        ledger.LegacyContractAmount(req.MonthlyDue, req.Term, req.Downpayment),
		Payments:      ledger.ZeroMoney(),
		Status:        ledger.CustomerActive,
	}
	if err := s.store.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	log.Printf("[Accounts] created customer %d (%s)", c.ID, c.Name)
	return c, nil
}

// UpdateCustomer edits account fields and re-derives the cached contract
// amount from the new contract terms.
func (s *Service) UpdateCustomer(ctx context.Context, id ledger.CustomerID, req CustomerRequest) (*ledger.Customer, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = strings.TrimSpace(req.Name)
	c.Address = strings.TrimSpace(req.Address)
	c.Contact = strings.TrimSpace(req.Contact)
	c.DateDelivered = ledger.Day(req.DateDelivered)
	c.Item = strings.TrimSpace(req.Item)
	c.MonthlyDue = req.MonthlyDue
	c.Term = req.Term
	c.Rebates = req.Rebates
	c.Downpayment = req.Downpayment
	c.Amount = ledger.LegacyContractAmount(req.MonthlyDue, req.Term, req.Downpayment)
	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCustomer loads an account, healing its cached contract amount when
// it has drifted from the formula. Only legacy accounts (no itemized
// rows) are healed; itemized accounts derive totals from their items.
func (s *Service) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if healed, changed := ledger.HealCustomerAmount(*c); changed {
			if err := s.store.UpdateCustomer(ctx, &healed); err != nil {
				log.Printf("[Accounts] could not persist healed amount for customer %d: %v", id, err)
			} else {
				c = &healed
			}
		}
	}
	return c, nil
}

// =============================================================================
// ITEMS
// =============================================================================

type ItemRequest struct {
	Name          string
	Model         string
	OriginalPrice ledger.Money
	Downpayment   ledger.Money
	GoodAsCash    bool
	Rebate        ledger.Money
	MonthlyDue    ledger.Money
	TermMonths    int
	PurchaseDate  time.Time
}

// AddItem attaches a purchase to a customer. At most
// ledger.MaxActiveItems items may be active at once.
func (s *Service) AddItem(ctx context.Context, customerID ledger.CustomerID, req ItemRequest) (*ledger.Item, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if req.TermMonths < 0 {
		return nil, &ledger.ValidationError{Field: "term_months", Message: "cannot be negative"}
	}
	c, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.Status != ledger.CustomerActive {
		return nil, ledger.ErrCustomerInactive
	}
	items, err := s.store.ListItems(ctx, customerID)
	if err != nil {
		return nil, err
	}
	activeCount := 0
	for _, it := range items {
		if it.Status == ledger.ItemActive {
			activeCount++
		}
	}
	if activeCount >= ledger.MaxActiveItems {
		return nil, ledger.ErrItemLimit
	}

	purchase := ledger.Day(req.PurchaseDate)
	if req.PurchaseDate.IsZero() {
		purchase = ledger.Day(s.now())
	}
	it := &ledger.Item{
		CustomerID:    customerID,
		Source:        ledger.SourceItemized,
		Name:          strings.TrimSpace(req.Name),
		Model:         strings.TrimSpace(req.Model),
		OriginalPrice: req.OriginalPrice,
		Downpayment:   req.Downpayment,
		GoodAsCash:    req.GoodAsCash,
		Rebate:        req.Rebate,
		MonthlyDue:    req.MonthlyDue,
		TermMonths:    req.TermMonths,
		PurchaseDate:  purchase,
		ContractStart: purchase,
		ContractEnd:   ledger.AddMonths(purchase, req.TermMonths),
		FirstDueDate:  ledger.AddMonths(purchase, 1),
		Status:        ledger.ItemActive,
	}
	it.ContractTotal = ledger.ContractAmount(*it)
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	log.Printf("[Accounts] added item %d (%s %s) to customer %d", it.ID, it.Name, it.Model, customerID)
	return it, nil
}

// ActiveItems returns the customer's active items, substituting the
// legacy synthetic item for customers that predate itemization. Cached
// contract totals are healed on the way out.
func (s *Service) ActiveItems(ctx context.Context, c *ledger.Customer) ([]ledger.Item, error) {
	items, err := s.store.ListItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []ledger.Item{ledger.SyntheticItem(*c)}, nil
	}
	active := items[:0]
	for _, it := range items {
		if it.Status != ledger.ItemActive {
			continue
		}
		if healed, changed := ledger.HealContractTotal(it); changed {
			if err := s.store.UpdateItem(ctx, &healed); err != nil {
				log.Printf("[Accounts] could not persist healed total for item %d: %v", it.ID, err)
			} else {
				it = healed
			}
		}
		active = append(active, it)
	}
	return active, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentRequest struct {
	CustomerID        ledger.CustomerID
	ItemID            *ledger.ItemID // nil = general payment
	Amount            ledger.Money
	Date              time.Time // zero = today
	Method            string
	HasRebate         bool
	Rebate            ledger.Money
	Notes             string
	TransactionNumber string // optional, normally generated
	RecordedBy        string
}

// RecordPayment validates, numbers, and persists a payment, then
// refreshes the customer's cached total and runs the fully-paid check.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (*ledger.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if strings.TrimSpace(req.Notes) == "" {
		return nil, &ledger.ValidationError{Field: "notes", Message: "required"}
	}
	c, err := s.store.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if c.Status != ledger.CustomerActive {
		return nil, ledger.ErrCustomerInactive
	}
	if req.ItemID != nil {
		it, err := s.store.GetItem(ctx, *req.ItemID)
		if err != nil {
			return nil, err
		}
		if it.CustomerID != req.CustomerID {
			return nil, &ledger.ValidationError{Field: "item_id", Message: "item belongs to a different customer"}
		}
	}

	date := ledger.Day(req.Date)
	if req.Date.IsZero() {
		date = ledger.Day(s.now())
	}
	number, err := s.store.MaxPaymentNumber(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	rebate := ledger.ZeroMoney()
	if req.HasRebate {
		rebate = req.Rebate
	}
	p := &ledger.Payment{
		CustomerID:        req.CustomerID,
		ItemID:            req.ItemID,
		PaymentNumber:     number + 1,
		TransactionNumber: strings.TrimSpace(req.TransactionNumber),
		Date:              date,
		Amount:            req.Amount,
		Method:            strings.TrimSpace(req.Method),
		HasRebate:         req.HasRebate,
		Rebate:            rebate,
		Notes:             strings.TrimSpace(req.Notes),
		RecordedBy:        req.RecordedBy,
	}

	if p.TransactionNumber != "" {
		// Caller-supplied numbers are used as-is; a collision surfaces.
		if err := s.store.CreatePayment(ctx, p); err != nil {
			return nil, err
		}
	} else if err := s.createWithGeneratedNumber(ctx, p); err != nil {
		return nil, err
	}

	if err := s.refreshCachedPayments(ctx, req.CustomerID); err != nil {
		return nil, err
	}
	log.Printf("[Payments] recorded %s for customer %d: %s", p.TransactionNumber, p.CustomerID, p.Amount)

	if err := s.CheckFullyPaid(ctx, req.CustomerID, p.TransactionNumber); err != nil {
		// The payment itself succeeded; archival problems are reported but
		// do not undo it.
		log.Printf("[Payments] fully-paid check failed for customer %d: %v", req.CustomerID, err)
	}
	return p, nil
}

// createWithGeneratedNumber assigns TXN-YYYY-MM-NNNN numbers, retrying
// past uniqueness collisions up to the attempt bound, then switching to
// the clock-based fallback. The month bucket is the payment's own date,
// so back-dated payments sequence in their month, not the current one.
func (s *Service) createWithGeneratedNumber(ctx context.Context, p *ledger.Payment) error {
	prefix := ledger.PaymentMonthPrefix(p.Date)
	seq, err := s.store.MaxTransactionSeq(ctx, prefix)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < ledger.MaxTransactionAttempts; attempt++ {
		seq++
		p.TransactionNumber = ledger.PaymentTransactionNumber(p.Date, seq)
		err := s.store.CreatePayment(ctx, p)
		if err == nil {
			return nil
		}
		if !ledger.IsRetryable(err) {
			return err
		}
		log.Printf("[Payments] transaction number %s taken, retrying", p.TransactionNumber)
	}
	p.TransactionNumber = ledger.ClockFallbackNumber(p.Date, s.now())
	return s.store.CreatePayment(ctx, p)
}

// DeletePayment removes a payment row (admin correction) and refreshes
// the customer's cached total.
func (s *Service) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePayment(ctx, id); err != nil {
		return err
	}
	if err := s.refreshCachedPayments(ctx, p.CustomerID); err != nil {
		return err
	}
	log.Printf("[Payments] deleted payment %d (%s) for customer %d", id, p.TransactionNumber, p.CustomerID)
	return nil
}

// refreshCachedPayments recomputes the customer's cached payments column
// from the ledger. Rebates are deductions, not cash, so they stay out.
func (s *Service) refreshCachedPayments(ctx context.Context, id ledger.CustomerID) error {
	total, err := s.store.SumPayments(ctx, id)
	if err != nil {
		return err
	}
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	c.Payments = total
	return s.store.UpdateCustomer(ctx, c)
}

// Breakdown computes the customer's per-item breakdowns and summary from
// the current ledger.
func (s *Service) Breakdown(ctx context.Context, id ledger.CustomerID) ([]ledger.ItemBreakdown, ledger.CustomerSummary, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, ledger.CustomerSummary{}, err
	}
	items, err := s.ActiveItems(ctx, c)
	if err != nil {
		return nil, ledger.CustomerSummary{}, err
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, ledger.CustomerSummary{}, err
	}
	breakdowns, summary := ledger.Allocate(items, payments)
	return breakdowns, summary, nil
}
