package ledger_test

import (
	"testing"
	"time"

	"github.com/arjen/billing-engine/ledger"
)

func pay(id int64, date time.Time, amount, rebate float64) ledger.Payment {
	return ledger.Payment{
		ID:     ledger.PaymentID(id),
		Date:   date,
		Amount: money(amount),
		Rebate: money(rebate),
	}
}

func TestRunningBalance_OrderedByDateThenID(t *testing.T) {
	// GIVEN: Payments inserted out of order, two on the same day
	// WHEN: Replaying against a 6000 contract
	// THEN: Replay order is (date, id); same-day ties break by id

	jan := ledger.NewDate(2026, time.January, 10)
	feb := ledger.NewDate(2026, time.February, 10)
	payments := []ledger.Payment{
		pay(3, feb, 1000, 0),
		pay(2, jan, 500, 0),
		pay(1, jan, 1000, 0),
	}

	_, steps := ledger.RunningBalance(money(6000), payments)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Payment.ID != 1 || steps[1].Payment.ID != 2 || steps[2].Payment.ID != 3 {
		t.Errorf("wrong replay order: %d, %d, %d",
			steps[0].Payment.ID, steps[1].Payment.ID, steps[2].Payment.ID)
	}
	if !steps[0].Balance.Equal(money(5000)) {
		t.Errorf("expected 5000 after first payment, got %s", steps[0].Balance)
	}
	if !steps[2].Balance.Equal(money(3500)) {
		t.Errorf("expected 3500 after last payment, got %s", steps[2].Balance)
	}
}

func TestRunningBalance_RebatesCountAsDeductions(t *testing.T) {
	jan := ledger.NewDate(2026, time.January, 10)
	payments := []ledger.Payment{pay(1, jan, 900, 100)}

	final, _ := ledger.RunningBalance(money(6000), payments)
	if !final.Equal(money(5000)) {
		t.Errorf("expected rebate to deduct alongside cash, got %s", final)
	}
}

func TestRunningBalance_ClampsAtZero(t *testing.T) {
	// GIVEN: Payments exceeding the contract
	// WHEN: Replaying
	// THEN: Balance clamps at zero and stays there

	jan := ledger.NewDate(2026, time.January, 10)
	feb := ledger.NewDate(2026, time.February, 10)
	payments := []ledger.Payment{
		pay(1, jan, 80, 0),
		pay(2, feb, 50, 0),
	}

	final, steps := ledger.RunningBalance(money(100), payments)
	if !final.IsZero() {
		t.Errorf("expected clamped zero, got %s", final)
	}
	if !steps[0].Balance.Equal(money(20)) {
		t.Errorf("expected 20 after first payment, got %s", steps[0].Balance)
	}
	if !steps[1].Balance.IsZero() {
		t.Errorf("expected zero after overpayment, got %s", steps[1].Balance)
	}
}

func TestRunningBalance_DoesNotMutateInput(t *testing.T) {
	jan := ledger.NewDate(2026, time.January, 10)
	payments := []ledger.Payment{
		pay(2, jan.AddDate(0, 1, 0), 100, 0),
		pay(1, jan, 100, 0),
	}
	ledger.RunningBalance(money(1000), payments)
	if payments[0].ID != 2 {
		t.Error("input slice was reordered")
	}
}

func TestTotalCash_ExcludesRebates(t *testing.T) {
	jan := ledger.NewDate(2026, time.January, 10)
	payments := []ledger.Payment{
		pay(1, jan, 900, 100),
		pay(2, jan, 500, 0),
	}
	if got := ledger.TotalCash(payments); !got.Equal(money(1400)) {
		t.Errorf("expected 1400 cash, got %s", got)
	}
	if got := ledger.TotalDeductions(payments); !got.Equal(money(1500)) {
		t.Errorf("expected 1500 deductions, got %s", got)
	}
}
