/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Customers:
    GET    /api/customers                 List (optional ?status=)
    POST   /api/customers                 Create account
    GET    /api/customers/{id}            Account with items + breakdowns
    PUT    /api/customers/{id}            Edit (re-derives contract fields)
    DELETE /api/customers/{id}            Pull out, or permanent with body flag
    GET    /api/customers/{id}/balance    Allocation summary
    GET    /api/customers/{id}/schedule   Per-item payment schedules
    GET    /api/customers/{id}/payments   Payment history
    GET    /api/customers/{id}/billing    Monthly billing status
    POST   /api/customers/{id}/items      Add item

  Items:
    POST   /api/items/{id}/pullout        Single-item pull-out

  Payments:
    POST   /api/payments                  Record payment
    DELETE /api/payments/{id}             Admin delete + recompute

  Reports:
    GET    /api/reports/due               Due/overdue, priority sorted
    GET    /api/history                   Archive rows + stats
    POST   /api/history/{id}/restore      Restore (marker-aware)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate transaction number)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - billing/: Domain logic these handlers delegate to
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arjen/billing-engine/billing"
	"github.com/arjen/billing-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   ledger.Store
	Service *billing.Service
}

// NewHandler creates a new handler with the given store.
func NewHandler(store ledger.Store) *Handler {
	return &Handler{
		Store:   store,
		Service: billing.NewService(store),
	}
}

// =============================================================================
// CUSTOMER ENDPOINTS
// =============================================================================

// ListCustomers returns all customers, optionally filtered by status.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	status := ledger.CustomerStatus(r.URL.Query().Get("status"))
	customers, err := h.Store.ListCustomers(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list customers", err)
		return
	}
	dtos := make([]CustomerDTO, 0, len(customers))
	for _, c := range customers {
		dtos = append(dtos, toCustomerDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer opens an account.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	delivered, err := parseDay(req.DateDelivered)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_delivered format (use YYYY-MM-DD)", err)
		return
	}
	c, err := h.Service.CreateCustomer(r.Context(), billing.CustomerRequest{
		Name:          req.Name,
		Address:       req.Address,
		Contact:       req.Contact,
		DateDelivered: delivered,
		Item:          req.Item,
		MonthlyDue:    parseMoney(req.MonthlyDue),
		Term:          req.Term,
		Rebates:       parseMoney(req.Rebates),
		Downpayment:   parseMoney(req.Downpayment),
	})
	if err != nil {
		writeDomainError(w, err, "Failed to create customer")
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(*c))
}

// GetCustomer returns the account with its items and per-item breakdowns.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	c, err := h.Service.GetCustomer(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to get customer")
		return
	}
	breakdowns, summary, err := h.Service.Breakdown(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to compute balances")
		return
	}
	items := make([]ItemBreakdownDTO, 0, len(breakdowns))
	for _, b := range breakdowns {
		items = append(items, toBreakdownDTO(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer": toCustomerDTO(*c),
		"balance": BalanceDTO{
			CustomerID:     int64(id),
			TotalContract:  summary.TotalContract.String(),
			TotalPaid:      summary.TotalPaid.String(),
			TotalRemaining: summary.TotalRemaining.String(),
			GeneralPool:    summary.GeneralPool.String(),
			PaymentCount:   summary.PaymentCount,
			AveragePayment: summary.AveragePayment.String(),
			Items:          items,
		},
	})
}

// UpdateCustomer edits account fields.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	var req CustomerRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	delivered, err := parseDay(req.DateDelivered)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_delivered format (use YYYY-MM-DD)", err)
		return
	}
	c, err := h.Service.UpdateCustomer(r.Context(), id, billing.CustomerRequest{
		Name:          req.Name,
		Address:       req.Address,
		Contact:       req.Contact,
		DateDelivered: delivered,
		Item:          req.Item,
		MonthlyDue:    parseMoney(req.MonthlyDue),
		Term:          req.Term,
		Rebates:       parseMoney(req.Rebates),
		Downpayment:   parseMoney(req.Downpayment),
	})
	if err != nil {
		writeDomainError(w, err, "Failed to update customer")
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*c))
}

// DeleteCustomer pulls an account out (archival) or, with the permanent
// flag, scrubs it entirely.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	var req DeleteCustomerRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // empty body = defaults
	}
	if req.Permanent {
		if err := h.Service.PermanentDelete(r.Context(), id); err != nil {
			writeDomainError(w, err, "Failed to delete customer")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "permanent": true})
		return
	}
	hRec, err := h.Service.PullOutCustomer(r.Context(), id, req.CompletedBy, req.TransactionNumber)
	if err != nil {
		writeDomainError(w, err, "Failed to pull out customer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
		"history": toHistoryDTO(*hRec),
	})
}

// GetBalance returns the allocation summary for an account.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	breakdowns, summary, err := h.Service.Breakdown(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to compute balances")
		return
	}
	items := make([]ItemBreakdownDTO, 0, len(breakdowns))
	for _, b := range breakdowns {
		items = append(items, toBreakdownDTO(b))
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		CustomerID:     int64(id),
		TotalContract:  summary.TotalContract.String(),
		TotalPaid:      summary.TotalPaid.String(),
		TotalRemaining: summary.TotalRemaining.String(),
		GeneralPool:    summary.GeneralPool.String(),
		PaymentCount:   summary.PaymentCount,
		AveragePayment: summary.AveragePayment.String(),
		Items:          items,
	})
}

// GetSchedule returns the per-item payment schedules for an account.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	schedules, err := h.Service.ItemSchedules(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to build schedule")
		return
	}
	dtos := make([]PaymentScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		dtos = append(dtos, toPaymentScheduleDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayments returns an account's payment history in ledger order.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	payments, err := h.Store.ListPayments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to list payments")
		return
	}
	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMonthlyBilling returns one month's billing standing
// (?year=2026&month=8, defaults to the current month).
func (h *Handler) GetMonthlyBilling(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	now := time.Now()
	year := now.Year()
	month := int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			year = n
		}
	}
	if v := r.URL.Query().Get("month"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 12 {
			month = n
		}
	}
	mb, err := h.Service.MonthlyBilling(r.Context(), id, year, time.Month(month))
	if err != nil {
		writeDomainError(w, err, "Failed to compute monthly billing")
		return
	}
	writeJSON(w, http.StatusOK, MonthlyBillingDTO{
		Year:      mb.Year,
		Month:     int(mb.Month),
		DueDate:   mb.DueDate.Format(dayFormat),
		AmountDue: mb.AmountDue.String(),
		Paid:      mb.Paid.String(),
		Status:    string(mb.Status),
	})
}

// AddItem attaches a purchase to an account.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := customerParam(w, r)
	if !ok {
		return
	}
	var req ItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	purchase, err := parseDay(req.PurchaseDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase_date format (use YYYY-MM-DD)", err)
		return
	}
	it, err := h.Service.AddItem(r.Context(), id, billing.ItemRequest{
		Name:          req.Name,
		Model:         req.Model,
		OriginalPrice: parseMoney(req.OriginalPrice),
		Downpayment:   parseMoney(req.Downpayment),
		GoodAsCash:    req.GoodAsCash,
		Rebate:        parseMoney(req.Rebate),
		MonthlyDue:    parseMoney(req.MonthlyDue),
		TermMonths:    req.TermMonths,
		PurchaseDate:  purchase,
	})
	if err != nil {
		writeDomainError(w, err, "Failed to add item")
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(*it))
}

// =============================================================================
// ITEM ENDPOINTS
// =============================================================================

// PullOutItem closes a single item while the account stays active.
func (h *Handler) PullOutItem(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}
	var req PulloutRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	hRec, err := h.Service.PullOutItem(r.Context(), ledger.ItemID(id), req.CompletedBy)
	if err != nil {
		writeDomainError(w, err, "Failed to pull out item")
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTO(*hRec))
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// RecordPayment appends a payment to the ledger.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	var itemID *ledger.ItemID
	if req.ItemID != nil {
		id := ledger.ItemID(*req.ItemID)
		itemID = &id
	}
	p, err := h.Service.RecordPayment(r.Context(), billing.PaymentRequest{
		CustomerID:        ledger.CustomerID(req.CustomerID),
		ItemID:            itemID,
		Amount:            parseMoney(req.Amount),
		Date:              date,
		Method:            req.Method,
		HasRebate:         req.HasRebate,
		Rebate:            parseMoney(req.Rebate),
		Notes:             req.Notes,
		TransactionNumber: req.TransactionNumber,
		RecordedBy:        req.RecordedBy,
	})
	if err != nil {
		writeDomainError(w, err, "Failed to record payment")
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*p))
}

// DeletePayment removes a payment row (admin correction).
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment id", err)
		return
	}
	if err := h.Service.DeletePayment(r.Context(), ledger.PaymentID(id)); err != nil {
		writeDomainError(w, err, "Failed to delete payment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// DueReport returns the due/overdue schedule for every active account,
// sorted by collection priority.
func (h *Handler) DueReport(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Service.DueReport(r.Context())
	if err != nil {
		writeDomainError(w, err, "Failed to build due report")
		return
	}
	dtos := make([]DueScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		dtos = append(dtos, toScheduleDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetHistory returns the archive with per-status statistics.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListHistory(r.Context())
	if err != nil {
		writeDomainError(w, err, "Failed to list history")
		return
	}
	stats, err := h.Store.HistoryStatsByStatus(r.Context())
	if err != nil {
		writeDomainError(w, err, "Failed to compute history stats")
		return
	}
	dtos := make([]HistoryDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toHistoryDTO(rec))
	}
	fp := stats[ledger.FinalFullyPaid]
	po := stats[ledger.FinalPulledOut]
	writeJSON(w, http.StatusOK, HistoryReportDTO{
		Records: dtos,
		Stats: HistoryStatsDTO{
			FullyPaidCount: fp.Count,
			FullyPaidTotal: fp.Total.String(),
			PulledOutCount: po.Count,
			PulledOutTotal: po.Total.String(),
		},
	})
}

// RestoreHistory reverses an archival (admin only).
func (h *Handler) RestoreHistory(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid history id", err)
		return
	}
	if err := h.Service.Restore(r.Context(), ledger.HistoryID(id)); err != nil {
		writeDomainError(w, err, "Failed to restore")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": true})
}

// =============================================================================
// HELPERS
// =============================================================================

func customerParam(w http.ResponseWriter, r *http.Request) (ledger.CustomerID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer id", err)
		return 0, false
	}
	return ledger.CustomerID(id), true
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, fallback, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
