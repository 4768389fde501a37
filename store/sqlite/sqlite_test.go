/*
sqlite_test.go - Round-trip and constraint tests against :memory: databases

Tests for:
- Customer round trips and status filtering
- Transaction number uniqueness surfacing as retryable errors
- Sequence scanning (clock-fallback suffixes excluded)
- Transactional rollback via WithTx
- History stats aggregation
*/
package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arjen/billing-engine/ledger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCustomer(t *testing.T, s *Store) *ledger.Customer {
	t.Helper()
	c := &ledger.Customer{
		Name:          "Dela Cruz",
		Address:       "123 Rizal St",
		Contact:       "0917-000-0000",
		DateDelivered: time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC),
		Item:          "Refrigerator RF-2000",
		MonthlyDue:    ledger.NewMoney(1000),
		Term:          12,
		Rebates:       ledger.ZeroMoney(),
		Amount:        ledger.NewMoney(12000),
		Payments:      ledger.ZeroMoney(),
		Downpayment:   ledger.ZeroMoney(),
		Status:        ledger.CustomerActive,
	}
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	return c
}

func seedPayment(t *testing.T, s *Store, customerID ledger.CustomerID, number int, txn string, amount, rebate float64) *ledger.Payment {
	t.Helper()
	p := &ledger.Payment{
		CustomerID:        customerID,
		PaymentNumber:     number,
		TransactionNumber: txn,
		Date:              time.Date(2026, time.August, number, 0, 0, 0, 0, time.UTC),
		Amount:            ledger.NewMoney(amount),
		HasRebate:         rebate > 0,
		Rebate:            ledger.NewMoney(rebate),
		Notes:             "installment",
	}
	if err := s.CreatePayment(context.Background(), p); err != nil {
		t.Fatalf("Failed to create payment %s: %v", txn, err)
	}
	return p
}

func TestCustomerRoundTrip(t *testing.T) {
	// GIVEN: A fresh store
	s := newStore(t)
	ctx := context.Background()

	// WHEN: Creating and reading back a customer
	c := seedCustomer(t, s)
	if c.ID == 0 {
		t.Fatal("Expected an assigned customer id")
	}

	fetched, err := s.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}

	// THEN: Fields survive the TEXT round trip
	if fetched.Name != "Dela Cruz" {
		t.Errorf("Expected name 'Dela Cruz', got '%s'", fetched.Name)
	}
	if !fetched.MonthlyDue.Equal(ledger.NewMoney(1000)) {
		t.Errorf("Expected monthly due 1000.00, got %s", fetched.MonthlyDue)
	}
	if !fetched.DateDelivered.Equal(time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected delivery date %s", fetched.DateDelivered)
	}
	if fetched.CompletionDate != nil {
		t.Error("Expected no completion date on an active customer")
	}

	// And status filtering sees it
	active, err := s.ListCustomers(ctx, ledger.CustomerActive)
	if err != nil {
		t.Fatalf("Failed to list customers: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected 1 active customer, got %d", len(active))
	}
	archived, _ := s.ListCustomers(ctx, ledger.CustomerFullyPaid)
	if len(archived) != 0 {
		t.Errorf("Expected 0 fully-paid customers, got %d", len(archived))
	}
}

func TestUpdateCustomer_StatusAndCompletionDate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s)

	done := time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC)
	c.Status = ledger.CustomerFullyPaid
	c.CompletionDate = &done
	if err := s.UpdateCustomer(ctx, c); err != nil {
		t.Fatalf("Failed to update customer: %v", err)
	}

	fetched, err := s.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	if fetched.Status != ledger.CustomerFullyPaid {
		t.Errorf("Expected fully_paid, got %s", fetched.Status)
	}
	if fetched.CompletionDate == nil || !fetched.CompletionDate.Equal(done) {
		t.Errorf("Expected completion date %s, got %v", done, fetched.CompletionDate)
	}
}

func TestCreatePayment_DuplicateTransactionNumber(t *testing.T) {
	// GIVEN: A payment with a transaction number
	s := newStore(t)
	c := seedCustomer(t, s)
	seedPayment(t, s, c.ID, 1, "TXN-2026-08-0001", 500, 0)

	// WHEN: Inserting another payment with the same number
	dup := &ledger.Payment{
		CustomerID:        c.ID,
		PaymentNumber:     2,
		TransactionNumber: "TXN-2026-08-0001",
		Date:              time.Date(2026, time.August, 2, 0, 0, 0, 0, time.UTC),
		Amount:            ledger.NewMoney(500),
		Rebate:            ledger.ZeroMoney(),
		Notes:             "collision",
	}
	err := s.CreatePayment(context.Background(), dup)

	// THEN: The violation surfaces as a retryable constraint error
	if !errors.Is(err, ledger.ErrDuplicateTransactionNumber) {
		t.Fatalf("Expected duplicate transaction number error, got %v", err)
	}
	if !ledger.IsRetryable(err) {
		t.Error("Duplicate transaction numbers should be retryable")
	}
}

func TestMaxTransactionSeq_SkipsClockFallback(t *testing.T) {
	// GIVEN: Normal sequences, a clock-fallback number, and another month
	s := newStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s)
	seedPayment(t, s, c.ID, 1, "TXN-2026-08-0001", 500, 0)
	seedPayment(t, s, c.ID, 2, "TXN-2026-08-0007", 500, 0)
	seedPayment(t, s, c.ID, 3, "TXN-2026-08-143045", 500, 0) // clock fallback
	seedPayment(t, s, c.ID, 4, "TXN-2026-07-0042", 500, 0)   // previous month

	// WHEN: Scanning August's sequence
	max, err := s.MaxTransactionSeq(ctx, "TXN-2026-08-")
	if err != nil {
		t.Fatalf("Failed to scan sequence: %v", err)
	}

	// THEN: The time-shaped suffix and foreign prefix are ignored
	if max != 7 {
		t.Errorf("Expected max sequence 7, got %d", max)
	}
}

func TestSumPayments_ExcludesRebates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s)
	seedPayment(t, s, c.ID, 1, "TXN-2026-08-0001", 900, 100)
	seedPayment(t, s, c.ID, 2, "TXN-2026-08-0002", 500, 0)

	total, err := s.SumPayments(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to sum payments: %v", err)
	}
	if !total.Equal(ledger.NewMoney(1400)) {
		t.Errorf("Expected 1400.00 (rebates excluded), got %s", total)
	}
}

func TestMaxPaymentNumber_ZeroWhenEmpty(t *testing.T) {
	s := newStore(t)
	c := seedCustomer(t, s)

	max, err := s.MaxPaymentNumber(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Failed to get max payment number: %v", err)
	}
	if max != 0 {
		t.Errorf("Expected 0 for a customer with no payments, got %d", max)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that creates a customer then fails
	s := newStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(st ledger.Store) error {
		c := &ledger.Customer{
			Name:          "Ghost",
			DateDelivered: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			MonthlyDue:    ledger.NewMoney(100),
			Term:          6,
			Rebates:       ledger.ZeroMoney(),
			Amount:        ledger.NewMoney(600),
			Payments:      ledger.ZeroMoney(),
			Downpayment:   ledger.ZeroMoney(),
			Status:        ledger.CustomerActive,
		}
		if err := st.CreateCustomer(ctx, c); err != nil {
			return err
		}
		return sentinel
	})

	// THEN: The error propagates and nothing was committed
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected the callback error, got %v", err)
	}
	customers, listErr := s.ListCustomers(ctx, "")
	if listErr != nil {
		t.Fatalf("Failed to list customers: %v", listErr)
	}
	if len(customers) != 0 {
		t.Errorf("Expected rollback to discard the customer, got %d rows", len(customers))
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s)

	err := s.WithTx(ctx, func(st ledger.Store) error {
		h := &ledger.HistoryRecord{
			OriginalCustomerID: c.ID,
			CustomerName:       c.Name,
			DateDelivered:      c.DateDelivered,
			CompletionDate:     time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC),
			TotalAmount:        ledger.NewMoney(12000),
			TotalPayments:      ledger.NewMoney(12000),
			FinalStatus:        ledger.FinalFullyPaid,
			TransactionNumber:  "FULLYPAID-20260820-0001",
			Term:               c.Term,
		}
		if err := st.CreateHistory(ctx, h); err != nil {
			return err
		}
		c.Status = ledger.CustomerFullyPaid
		return st.UpdateCustomer(ctx, c)
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	records, err := s.ListHistory(ctx)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 history row, got %d", len(records))
	}
	fetched, _ := s.GetCustomer(ctx, c.ID)
	if fetched.Status != ledger.CustomerFullyPaid {
		t.Errorf("Expected committed status flip, got %s", fetched.Status)
	}
	exists, _ := s.HistoryExists(ctx, c.ID)
	if !exists {
		t.Error("Expected HistoryExists to see the committed row")
	}
}

func TestHistoryStatsByStatus(t *testing.T) {
	// GIVEN: Two fully-paid rows and one pull-out
	s := newStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s)

	rows := []struct {
		status ledger.FinalStatus
		total  float64
		txn    string
	}{
		{ledger.FinalFullyPaid, 12000, "FULLYPAID-20260801-0001"},
		{ledger.FinalFullyPaid, 6000, "FULLYPAID-20260802-0002"},
		{ledger.FinalPulledOut, 4500, "PULLOUT-20260803-0003"},
	}
	for _, r := range rows {
		h := &ledger.HistoryRecord{
			OriginalCustomerID: c.ID,
			CustomerName:       c.Name,
			DateDelivered:      c.DateDelivered,
			CompletionDate:     time.Date(2026, time.August, 20, 0, 0, 0, 0, time.UTC),
			TotalAmount:        ledger.NewMoney(r.total),
			TotalPayments:      ledger.NewMoney(r.total),
			FinalStatus:        r.status,
			TransactionNumber:  r.txn,
			Term:               12,
		}
		if err := s.CreateHistory(ctx, h); err != nil {
			t.Fatalf("Failed to create history row: %v", err)
		}
	}

	stats, err := s.HistoryStatsByStatus(ctx)
	if err != nil {
		t.Fatalf("Failed to compute stats: %v", err)
	}

	fp := stats[ledger.FinalFullyPaid]
	if fp.Count != 2 {
		t.Errorf("Expected 2 fully-paid rows, got %d", fp.Count)
	}
	if !fp.Total.Equal(ledger.NewMoney(18000)) {
		t.Errorf("Expected fully-paid total 18000.00, got %s", fp.Total)
	}
	po := stats[ledger.FinalPulledOut]
	if po.Count != 1 {
		t.Errorf("Expected 1 pulled-out row, got %d", po.Count)
	}
	if !po.Total.Equal(ledger.NewMoney(4500)) {
		t.Errorf("Expected pulled-out total 4500.00, got %s", po.Total)
	}
}

func TestDeletePaymentsByCustomer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s)
	other := seedCustomer(t, s)
	seedPayment(t, s, c.ID, 1, "TXN-2026-08-0001", 500, 0)
	seedPayment(t, s, other.ID, 1, "TXN-2026-08-0002", 700, 0)

	if err := s.DeletePaymentsByCustomer(ctx, c.ID); err != nil {
		t.Fatalf("Failed to delete payments: %v", err)
	}

	mine, _ := s.ListPayments(ctx, c.ID)
	if len(mine) != 0 {
		t.Errorf("Expected no payments left, got %d", len(mine))
	}
	theirs, _ := s.ListPayments(ctx, other.ID)
	if len(theirs) != 1 {
		t.Errorf("Expected the other customer's ledger untouched, got %d rows", len(theirs))
	}
}
