package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjen/billing-engine/billing"
	"github.com/arjen/billing-engine/ledger"
)

// =============================================================================
// PAYMENT SCHEDULE
// =============================================================================

func scheduleItem(monthly float64, term int) ledger.Item {
	return ledger.Item{
		ID:            1,
		CustomerID:    1,
		Source:        ledger.SourceItemized,
		Name:          "Refrigerator",
		Model:         "RF-2000",
		MonthlyDue:    ledger.NewMoney(monthly),
		TermMonths:    term,
		ContractStart: time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC),
		Status:        ledger.ItemActive,
	}
}

func ledgerPayment(id int64, date time.Time, amount float64) ledger.Payment {
	return ledger.Payment{
		ID:     ledger.PaymentID(id),
		Amount: ledger.NewMoney(amount),
		Rebate: ledger.ZeroMoney(),
		Date:   date,
	}
}

func TestBuildPaymentSchedule_SlotStatuses(t *testing.T) {
	// GIVEN: A 1000 x 6 contract starting Jan 15, two payments made
	// WHEN: Viewed on May 20
	// THEN: Rows 1-2 PAID with running balances, 3-4 OVERDUE, 5-6 PENDING

	it := scheduleItem(1000, 6)
	payments := []ledger.Payment{
		ledgerPayment(1, time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC), 1000),
		ledgerPayment(2, time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), 1000),
	}
	asOf := time.Date(2026, time.May, 20, 0, 0, 0, 0, time.UTC)

	s := billing.BuildPaymentSchedule(it, payments, asOf)
	require.Len(t, s.Rows, 6)

	assert.Equal(t, billing.SlotPaid, s.Rows[0].Status)
	require.NotNil(t, s.Rows[0].Balance)
	assert.True(t, s.Rows[0].Balance.Equal(ledger.NewMoney(5000)))

	assert.Equal(t, billing.SlotPaid, s.Rows[1].Status)
	require.NotNil(t, s.Rows[1].Balance)
	assert.True(t, s.Rows[1].Balance.Equal(ledger.NewMoney(4000)))

	// Apr 15 and May 15 have passed unpaid.
	assert.Equal(t, billing.SlotOverdue, s.Rows[2].Status)
	assert.Equal(t, billing.SlotOverdue, s.Rows[3].Status)
	assert.Nil(t, s.Rows[2].Balance)

	assert.Equal(t, billing.SlotPending, s.Rows[4].Status)
	assert.Equal(t, billing.SlotPending, s.Rows[5].Status)

	assert.Nil(t, s.Remaining, "fully covered installments leave no remainder")

	// Due dates march a month at a time from the contract start.
	assert.Equal(t, time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC), s.Rows[0].DueDate)
	assert.Equal(t, time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC), s.Rows[5].DueDate)
}

func TestBuildPaymentSchedule_PartialLastPayment(t *testing.T) {
	it := scheduleItem(1000, 6)
	payments := []ledger.Payment{
		ledgerPayment(1, time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC), 1000),
		ledgerPayment(2, time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), 600),
	}
	asOf := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	s := billing.BuildPaymentSchedule(it, payments, asOf)
	require.NotNil(t, s.Remaining)
	assert.True(t, s.Remaining.Equal(ledger.NewMoney(400)),
		"expected 400 left on the partial installment, got %s", s.Remaining)
}

func TestBuildPaymentSchedule_ShortfallWithinToleranceIgnored(t *testing.T) {
	// A cent of rounding noise must not produce a remaining row.
	it := scheduleItem(1000, 6)
	payments := []ledger.Payment{
		ledgerPayment(1, time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC), 999.99),
	}
	asOf := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	s := billing.BuildPaymentSchedule(it, payments, asOf)
	assert.Nil(t, s.Remaining)
}

func TestBuildPaymentSchedule_RebateCountsTowardInstallment(t *testing.T) {
	it := scheduleItem(1000, 6)
	p := ledgerPayment(1, time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC), 800)
	p.Rebate = ledger.NewMoney(200)
	asOf := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	s := billing.BuildPaymentSchedule(it, []ledger.Payment{p}, asOf)
	require.NotNil(t, s.Rows[0].Balance)
	assert.True(t, s.Rows[0].Balance.Equal(ledger.NewMoney(5000)),
		"balance deducts cash plus rebate")
	assert.Nil(t, s.Remaining)
}

func TestItemSchedules_MultiItemUsesLinkedPaymentsOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := createCustomer(t, svc, 1000, 2)

	tv, err := svc.AddItem(ctx, c.ID, billing.ItemRequest{
		Name: "Television", Model: "TV-100",
		MonthlyDue: ledger.NewMoney(500), TermMonths: 6,
	})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.ID, billing.ItemRequest{
		Name: "Refrigerator", Model: "RF-2000",
		MonthlyDue: ledger.NewMoney(800), TermMonths: 6,
	})
	require.NoError(t, err)

	linked := payment(c.ID, 500, "television installment")
	linked.ItemID = &tv.ID
	_, err = svc.RecordPayment(ctx, linked)
	require.NoError(t, err)

	schedules, err := svc.ItemSchedules(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	for _, s := range schedules {
		if s.Item.ID == tv.ID {
			assert.Equal(t, billing.SlotPaid, s.Rows[0].Status)
		} else {
			assert.NotEqual(t, billing.SlotPaid, s.Rows[0].Status,
				"payments linked elsewhere must not fill this schedule")
		}
	}
}

// =============================================================================
// MONTHLY BILLING
// =============================================================================

func TestMonthlyBilling_Statuses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := createCustomer(t, svc, 1000, 12)

	// Undated payments land on the clock's day (Aug 20).
	_, err := svc.RecordPayment(ctx, payment(c.ID, 1000, "august installment"))
	require.NoError(t, err)

	b, err := svc.MonthlyBilling(ctx, c.ID, 2026, time.August)
	require.NoError(t, err)
	assert.Equal(t, billing.MonthPaid, b.Status)
	assert.True(t, b.AmountDue.Equal(ledger.NewMoney(1000)))
	assert.True(t, b.Paid.Equal(ledger.NewMoney(1000)))
	assert.Equal(t, time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC), b.DueDate)

	// July passed with nothing received.
	b, err = svc.MonthlyBilling(ctx, c.ID, 2026, time.July)
	require.NoError(t, err)
	assert.Equal(t, billing.MonthOverdue, b.Status)
	assert.True(t, b.Paid.IsZero())

	// September has not come due yet.
	b, err = svc.MonthlyBilling(ctx, c.ID, 2026, time.September)
	require.NoError(t, err)
	assert.Equal(t, billing.MonthUnpaid, b.Status)
}

func TestMonthlyBilling_PartialMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := createCustomer(t, svc, 1000, 12)

	_, err := svc.RecordPayment(ctx, payment(c.ID, 400, "short this month"))
	require.NoError(t, err)

	b, err := svc.MonthlyBilling(ctx, c.ID, 2026, time.August)
	require.NoError(t, err)
	assert.Equal(t, billing.MonthPartial, b.Status)
	assert.True(t, b.Paid.Equal(ledger.NewMoney(400)))
}

// =============================================================================
// DUE REPORT
// =============================================================================

func TestDueReport_OrdersByMissedInstallments(t *testing.T) {
	// GIVEN: Two accounts delivered Jan 15 (7 x 30-day months before the
	// clock, so 8 payments expected), one with no payments and one with two
	// WHEN: Running the due report
	// THEN: The account most behind comes first

	svc, _ := newTestService(t)
	ctx := context.Background()

	behind := createCustomer(t, svc, 1000, 12)
	better := createCustomer(t, svc, 1000, 12)
	_, err := svc.RecordPayment(ctx, payment(better.ID, 1000, "first"))
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, payment(better.ID, 1000, "second"))
	require.NoError(t, err)

	report, err := svc.DueReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)

	assert.Equal(t, behind.ID, report[0].Input.CustomerID)
	assert.Equal(t, 8, report[0].OverdueCount)
	assert.Equal(t, better.ID, report[1].Input.CustomerID)
	assert.Equal(t, 6, report[1].OverdueCount)
}
