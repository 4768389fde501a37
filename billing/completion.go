/*
completion.go - Account completion, pull-out, restore, permanent delete

PURPOSE:
  The lifecycle edge of the engine. Active accounts leave the working
  set one of two ways:
    active -> fully_paid   automatic, after a payment clears the balance
    active -> pulled_out   manual, item repossessed or contract cancelled
  Both write an immutable history row and flip status in ONE storage
  transaction. Restore is the admin-only way back.

AMOUNT SEMANTICS (deliberate asymmetry):
  fully_paid history rows record TOTAL CASH PAID (rebates excluded,
  mirroring the customer's cached payments column).
  pulled_out history rows record the REMAINING BALANCE at pull-out.
  Years of stored rows follow this split; reports interpret the column
  by final status. Do not unify.

RESTORE GRANULARITY:
  The archival transaction number doubles as a marker. An ITEM-PULLOUT
  number restores just the matching item; anything else restores (or
  recreates) the whole customer.
*/
package billing

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/arjen/billing-engine/ledger"
)

// withTx runs fn atomically when the store supports it, sequentially
// otherwise.
func (s *Service) withTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.txStore != nil {
		return s.txStore.WithTx(ctx, fn)
	}
	return fn(s.store)
}

// =============================================================================
// FULLY PAID
// =============================================================================

// CheckFullyPaid archives a customer whose whole-account remaining
// balance has reached zero. Safe to call after every payment: it is a
// no-op for customers that still owe, are already archived, or already
// have a history row.
func (s *Service) CheckFullyPaid(ctx context.Context, id ledger.CustomerID, lastTxn string) error {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != ledger.CustomerActive {
		return nil
	}
	items, err := s.ActiveItems(ctx, c)
	if err != nil {
		return err
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return err
	}
	if ledger.CustomerRemaining(items, payments).IsPositive() {
		return nil
	}
	exists, err := s.store.HistoryExists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	now := s.now().UTC()
	txn := lastTxn
	if txn == "" {
		txn = ledger.FullyPaidNumber(now, id)
	}
	itemName, itemModel := firstItemLabel(items)
	h := &ledger.HistoryRecord{
		OriginalCustomerID: id,
		CustomerName:       c.Name,
		Address:            c.Address,
		Contact:            c.Contact,
		DateDelivered:      c.DateDelivered,
		CompletionDate:     ledger.Day(now),
		TotalAmount:        contractTotal(items),
		TotalPayments:      ledger.TotalCash(payments), // rebates excluded
		FinalStatus:        ledger.FinalFullyPaid,
		ItemName:           itemName,
		ItemModel:          itemModel,
		TransactionNumber:  txn,
		Term:               c.Term,
	}

	err = s.withTx(ctx, func(st ledger.Store) error {
		if err := st.CreateHistory(ctx, h); err != nil {
			return err
		}
		completion := ledger.Day(now)
		c.Status = ledger.CustomerFullyPaid
		c.CompletionDate = &completion
		if err := st.UpdateCustomer(ctx, c); err != nil {
			return err
		}
		return s.setItemStatuses(ctx, st, id, ledger.ItemCompleted)
	})
	if err != nil {
		return err
	}
	log.Printf("[Archival] customer %d fully paid, archived as %s", id, txn)
	return nil
}

// =============================================================================
// PULL-OUT
// =============================================================================

// PullOutCustomer manually closes an account, recording the remaining
// balance at the moment of pull-out.
func (s *Service) PullOutCustomer(ctx context.Context, id ledger.CustomerID, completedBy, txn string) (*ledger.HistoryRecord, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != ledger.CustomerActive {
		return nil, ledger.ErrCustomerInactive
	}
	items, err := s.ActiveItems(ctx, c)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	remaining := ledger.CustomerRemaining(items, payments)

	now := s.now().UTC()
	if txn == "" {
		txn = ledger.PulloutNumber(now, id)
	}
	itemName, itemModel := firstItemLabel(items)
	h := &ledger.HistoryRecord{
		OriginalCustomerID: id,
		CustomerName:       c.Name,
		Address:            c.Address,
		Contact:            c.Contact,
		DateDelivered:      c.DateDelivered,
		CompletionDate:     ledger.Day(now),
		TotalAmount:        contractTotal(items),
		TotalPayments:      remaining, // remaining balance, not total paid
		FinalStatus:        ledger.FinalPulledOut,
		ItemName:           itemName,
		ItemModel:          itemModel,
		TransactionNumber:  txn,
		CompletedBy:        completedBy,
		Term:               c.Term,
	}

	err = s.withTx(ctx, func(st ledger.Store) error {
		if err := st.CreateHistory(ctx, h); err != nil {
			return err
		}
		completion := ledger.Day(now)
		c.Status = ledger.CustomerPulledOut
		c.CompletionDate = &completion
		if err := st.UpdateCustomer(ctx, c); err != nil {
			return err
		}
		return s.setItemStatuses(ctx, st, id, ledger.ItemPulledOut)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Archival] customer %d pulled out, archived as %s", id, txn)
	return h, nil
}

// PullOutItem closes a single item; the customer stays active with the
// rest of their purchases. The ITEM-PULLOUT transaction number is what
// later tells Restore to reactivate only this item.
func (s *Service) PullOutItem(ctx context.Context, itemID ledger.ItemID, completedBy string) (*ledger.HistoryRecord, error) {
	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status != ledger.ItemActive {
		return nil, &ledger.ValidationError{Field: "item", Message: "item is not active"}
	}
	c, err := s.store.GetCustomer(ctx, it.CustomerID)
	if err != nil {
		return nil, err
	}
	breakdowns, _, err := s.Breakdown(ctx, it.CustomerID)
	if err != nil {
		return nil, err
	}
	remaining := ledger.ContractAmount(*it)
	for _, b := range breakdowns {
		if b.Item.ID == itemID {
			remaining = b.Remaining
			break
		}
	}

	now := s.now().UTC()
	h := &ledger.HistoryRecord{
		OriginalCustomerID: it.CustomerID,
		CustomerName:       c.Name,
		Address:            c.Address,
		Contact:            c.Contact,
		DateDelivered:      c.DateDelivered,
		CompletionDate:     ledger.Day(now),
		TotalAmount:        ledger.ContractAmount(*it),
		TotalPayments:      remaining, // remaining balance, not total paid
		FinalStatus:        ledger.FinalPulledOut,
		ItemName:           it.Name,
		ItemModel:          it.Model,
		TransactionNumber:  ledger.ItemPulloutNumber(now, it.CustomerID),
		CompletedBy:        completedBy,
		Term:               it.TermMonths,
	}

	err = s.withTx(ctx, func(st ledger.Store) error {
		if err := st.CreateHistory(ctx, h); err != nil {
			return err
		}
		it.Status = ledger.ItemPulledOut
		return st.UpdateItem(ctx, it)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Archival] item %d pulled out for customer %d (%s)", itemID, it.CustomerID, h.TransactionNumber)
	return h, nil
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore undoes an archival (admin only). Item-level archivals
// reactivate the matching pulled-out item; customer-level archivals
// reactivate the customer, recreating the row if it was permanently
// deleted. The history row is consumed either way.
func (s *Service) Restore(ctx context.Context, historyID ledger.HistoryID) error {
	h, err := s.store.GetHistory(ctx, historyID)
	if err != nil {
		return err
	}

	if ledger.IsItemPullout(h.TransactionNumber) {
		return s.restoreItem(ctx, h)
	}
	return s.restoreCustomer(ctx, h)
}

func (s *Service) restoreItem(ctx context.Context, h *ledger.HistoryRecord) error {
	items, err := s.store.ListItems(ctx, h.OriginalCustomerID)
	if err != nil {
		return err
	}
	var target *ledger.Item
	for i := range items {
		it := &items[i]
		if it.Status == ledger.ItemPulledOut && it.Name == h.ItemName && it.Model == h.ItemModel {
			target = it
			break
		}
	}
	if target == nil {
		return &ledger.NotFoundError{Kind: "item", ID: int64(h.OriginalCustomerID)}
	}
	err = s.withTx(ctx, func(st ledger.Store) error {
		target.Status = ledger.ItemActive
		if err := st.UpdateItem(ctx, target); err != nil {
			return err
		}
		return st.DeleteHistory(ctx, h.ID)
	})
	if err != nil {
		return err
	}
	log.Printf("[Archival] restored item %d (%s %s) for customer %d", target.ID, target.Name, target.Model, h.OriginalCustomerID)
	return nil
}

func (s *Service) restoreCustomer(ctx context.Context, h *ledger.HistoryRecord) error {
	c, err := s.store.GetCustomer(ctx, h.OriginalCustomerID)
	if err != nil && !ledger.IsNotFound(err) {
		return err
	}

	return s.withTx(ctx, func(st ledger.Store) error {
		if c != nil {
			c.Status = ledger.CustomerActive
			c.CompletionDate = nil
			if err := st.UpdateCustomer(ctx, c); err != nil {
				return err
			}
			items, err := st.ListItems(ctx, c.ID)
			if err != nil {
				return err
			}
			for i := range items {
				if items[i].Status == ledger.ItemActive {
					continue
				}
				items[i].Status = ledger.ItemActive
				if err := st.UpdateItem(ctx, &items[i]); err != nil {
					return err
				}
			}
		} else {
			// The customer row was scrubbed; rebuild it from the snapshot.
			// The monthly due was never archived, so it is re-derived from
			// the contract total over the term.
			monthly := ledger.ZeroMoney()
			if h.Term > 0 {
				monthly = h.TotalAmount.Div(decimal.NewFromInt(int64(h.Term)))
			}
			rebuilt := &ledger.Customer{
				Name:          h.CustomerName,
				Address:       h.Address,
				Contact:       h.Contact,
				DateDelivered: h.DateDelivered,
				Item:          joinItemLabel(h.ItemName, h.ItemModel),
				MonthlyDue:    monthly,
				Term:          h.Term,
				Amount:        h.TotalAmount,
				Payments:      ledger.ZeroMoney(),
				Status:        ledger.CustomerActive,
			}
			if err := st.CreateCustomer(ctx, rebuilt); err != nil {
				return err
			}
		}
		if err := st.DeleteHistory(ctx, h.ID); err != nil {
			return err
		}
		log.Printf("[Archival] restored customer %d from history %d", h.OriginalCustomerID, h.ID)
		return nil
	})
}

// =============================================================================
// PERMANENT DELETE
// =============================================================================

// PermanentDelete scrubs every trace of a customer: payments, items,
// history rows, then the customer itself. No history is written; this is
// the path for data entered by mistake.
func (s *Service) PermanentDelete(ctx context.Context, id ledger.CustomerID) error {
	if _, err := s.store.GetCustomer(ctx, id); err != nil {
		return err
	}
	err := s.withTx(ctx, func(st ledger.Store) error {
		if err := st.DeletePaymentsByCustomer(ctx, id); err != nil {
			return err
		}
		if err := st.DeleteItemsByCustomer(ctx, id); err != nil {
			return err
		}
		if err := st.DeleteHistoryByCustomer(ctx, id); err != nil {
			return err
		}
		return st.DeleteCustomer(ctx, id)
	})
	if err != nil {
		return err
	}
	log.Printf("[Archival] permanently deleted customer %d", id)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) setItemStatuses(ctx context.Context, st ledger.Store, id ledger.CustomerID, status ledger.ItemStatus) error {
	items, err := st.ListItems(ctx, id)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].Status != ledger.ItemActive {
			continue
		}
		items[i].Status = status
		if err := st.UpdateItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func contractTotal(items []ledger.Item) ledger.Money {
	total := ledger.ZeroMoney()
	for _, it := range items {
		total = total.Add(ledger.ContractAmount(it))
	}
	return total
}

func firstItemLabel(items []ledger.Item) (name, model string) {
	if len(items) == 0 {
		return "", ""
	}
	return items[0].Name, items[0].Model
}

func joinItemLabel(name, model string) string {
	if model == "" {
		return name
	}
	return name + " " + model
}
