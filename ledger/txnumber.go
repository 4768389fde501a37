/*
txnumber.go - Transaction number formats and sequencing

PURPOSE:
  Every ledger write carries a globally unique, human-readable
  transaction number. Receipts quote them, and archival rows reuse the
  vocabulary to mark HOW an account closed, which restore later reads
  back.

FORMATS:
  TXN-YYYY-MM-NNNN           payment (per-month sequence)
  TXN-YYYY-MM-HHMMSS         payment, clock fallback after collisions
  FULLYPAID-YYYYMMDD-IIII    automatic fully-paid archival
  PULLOUT-YYYYMMDD-IIII      whole-customer pull-out
  ITEM-PULLOUT-YYYYMMDD-IIII single-item pull-out

  IIII is the customer id, zero padded. The ITEM-PULLOUT substring is
  the marker restore uses to pick item-level over customer-level
  reactivation.
*/
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// MaxTransactionAttempts bounds the uniqueness retry loop before the
// clock fallback takes over.
const MaxTransactionAttempts = 10

const itemPulloutMarker = "ITEM-PULLOUT"

// PaymentMonthPrefix returns the shared prefix of all payment numbers in
// a month, e.g. "TXN-2026-08-".
func PaymentMonthPrefix(t time.Time) string {
	return t.Format("TXN-2006-01-")
}

// PaymentTransactionNumber formats the nth payment number of a month.
func PaymentTransactionNumber(t time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", PaymentMonthPrefix(t), seq)
}

// ClockFallbackNumber is the last-resort payment number when sequential
// retries keep colliding. The month bucket stays the payment's; only the
// suffix comes from the wall clock.
func ClockFallbackNumber(date, at time.Time) string {
	return PaymentMonthPrefix(date) + at.Format("150405")
}

// FullyPaidNumber marks an automatic completion archival.
func FullyPaidNumber(t time.Time, id CustomerID) string {
	return fmt.Sprintf("FULLYPAID-%s-%04d", t.Format("20060102"), id)
}

// PulloutNumber marks a whole-customer pull-out archival.
func PulloutNumber(t time.Time, id CustomerID) string {
	return fmt.Sprintf("PULLOUT-%s-%04d", t.Format("20060102"), id)
}

// ItemPulloutNumber marks a single-item pull-out archival.
func ItemPulloutNumber(t time.Time, id CustomerID) string {
	return fmt.Sprintf("%s-%s-%04d", itemPulloutMarker, t.Format("20060102"), id)
}

// IsItemPullout reports whether an archival transaction number carries
// the item-level marker. Substring match: supplied numbers may embed the
// marker anywhere.
func IsItemPullout(txn string) bool {
	return strings.Contains(txn, itemPulloutMarker)
}
