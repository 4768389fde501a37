/*
handlers_test.go - HTTP tests through the full router

Tests for:
- Account creation and retrieval with balances
- Payment recording, validation failures, duplicate conflicts
- Pull-out via DELETE, history report, restore
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arjen/billing-engine/ledger"
	"github.com/arjen/billing-engine/ledger/store"
)

func newTestAPI(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewRouter(NewHandler(mem)), mem
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createTestCustomer(t *testing.T, router http.Handler) CustomerDTO {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/customers", CustomerRequestDTO{
		Name:          "Dela Cruz",
		Address:       "123 Rizal St",
		Contact:       "0917-000-0000",
		DateDelivered: "2026-01-15",
		Item:          "Refrigerator RF-2000",
		MonthlyDue:    "1000.00",
		Term:          12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var dto CustomerDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("Failed to decode customer: %v", err)
	}
	return dto
}

func TestCreateCustomer_DerivesContractAmount(t *testing.T) {
	// GIVEN: A 1000/month x 12 account
	router, _ := newTestAPI(t)

	// WHEN: Creating it over HTTP
	dto := createTestCustomer(t, router)

	// THEN: The contract amount is derived, not client-supplied
	if dto.Amount != "12000.00" {
		t.Errorf("Expected derived amount 12000.00, got %s", dto.Amount)
	}
	if dto.Status != "active" {
		t.Errorf("Expected active status, got %s", dto.Status)
	}
	if dto.ItemName != "Refrigerator" || dto.ItemModel != "RF-2000" {
		t.Errorf("Unexpected item split: %s / %s", dto.ItemName, dto.ItemModel)
	}
}

func TestGetCustomer_IncludesBalance(t *testing.T) {
	router, _ := newTestAPI(t)
	dto := createTestCustomer(t, router)

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/customers/%d", dto.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Customer CustomerDTO `json:"customer"`
		Balance  BalanceDTO  `json:"balance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Customer.Name != "Dela Cruz" {
		t.Errorf("Expected customer name, got %s", resp.Customer.Name)
	}
	if resp.Balance.TotalRemaining != "12000.00" {
		t.Errorf("Expected remaining 12000.00, got %s", resp.Balance.TotalRemaining)
	}
	// The legacy contract shows up as one synthetic item.
	if len(resp.Balance.Items) != 1 {
		t.Fatalf("Expected 1 item breakdown, got %d", len(resp.Balance.Items))
	}
	if resp.Balance.Items[0].Item.Source != "legacy" {
		t.Errorf("Expected legacy source, got %s", resp.Balance.Items[0].Item.Source)
	}
}

func TestGetCustomer_NotFound(t *testing.T) {
	router, _ := newTestAPI(t)
	rec := doJSON(t, router, http.MethodGet, "/api/customers/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestRecordPayment_HTTP(t *testing.T) {
	router, _ := newTestAPI(t)
	dto := createTestCustomer(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		CustomerID: dto.ID,
		Amount:     "500.00",
		Date:       "2026-08-20",
		Notes:      "first installment",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var p PaymentDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("Failed to decode payment: %v", err)
	}
	if p.PaymentNumber != 1 {
		t.Errorf("Expected payment number 1, got %d", p.PaymentNumber)
	}
	if !strings.HasPrefix(p.TransactionNumber, "TXN-") {
		t.Errorf("Expected generated TXN- number, got %s", p.TransactionNumber)
	}

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/customers/%d/payments", dto.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var payments []PaymentDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &payments); err != nil {
		t.Fatalf("Failed to decode payments: %v", err)
	}
	if len(payments) != 1 {
		t.Errorf("Expected 1 payment, got %d", len(payments))
	}
}

func TestRecordPayment_ValidationIs400(t *testing.T) {
	router, _ := newTestAPI(t)
	dto := createTestCustomer(t, router)

	// Notes are required on every payment.
	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		CustomerID: dto.ID,
		Amount:     "500.00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing notes, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if resp.Error == "" {
		t.Error("Expected an error message")
	}
}

func TestRecordPayment_DuplicateNumberIs409(t *testing.T) {
	router, _ := newTestAPI(t)
	dto := createTestCustomer(t, router)

	req := RecordPaymentRequest{
		CustomerID:        dto.ID,
		Amount:            "500.00",
		Notes:             "manual number",
		TransactionNumber: "MANUAL-001",
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/payments", req); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	rec := doJSON(t, router, http.MethodPost, "/api/payments", req)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate transaction number, got %d", rec.Code)
	}
}

func TestDeleteCustomer_PullOutRestoreCycle(t *testing.T) {
	// GIVEN: An active account with a partial payment
	router, mem := newTestAPI(t)
	dto := createTestCustomer(t, router)
	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		CustomerID: dto.ID,
		Amount:     "1500.00",
		Notes:      "partial",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	// WHEN: Pulling the account out via DELETE
	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/customers/%d", dto.ID), DeleteCustomerRequest{
		CompletedBy: "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var del struct {
		Deleted bool       `json:"deleted"`
		History HistoryDTO `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &del); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !del.Deleted || del.History.FinalStatus != "pulled_out" {
		t.Errorf("Expected pull-out archival, got %+v", del)
	}
	// The archived amount is the remaining balance.
	if del.History.TotalPayments != "10500.00" {
		t.Errorf("Expected archived remaining 10500.00, got %s", del.History.TotalPayments)
	}

	// THEN: The history report counts it
	rec = doJSON(t, router, http.MethodGet, "/api/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var report HistoryReportDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if report.Stats.PulledOutCount != 1 {
		t.Errorf("Expected 1 pulled-out row, got %d", report.Stats.PulledOutCount)
	}

	// And restore brings the account back
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/history/%d/restore", del.History.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	c, err := mem.GetCustomer(context.Background(), ledger.CustomerID(dto.ID))
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	if c.Status != ledger.CustomerActive {
		t.Errorf("Expected restored account to be active, got %s", c.Status)
	}
}

func TestPermanentDelete_HTTP(t *testing.T) {
	router, _ := newTestAPI(t)
	dto := createTestCustomer(t, router)

	rec := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/customers/%d", dto.ID), DeleteCustomerRequest{
		Permanent: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/customers/%d", dto.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after permanent delete, got %d", rec.Code)
	}
}

func TestDueReport_HTTP(t *testing.T) {
	router, _ := newTestAPI(t)
	createTestCustomer(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/reports/due", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var schedules []DueScheduleDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &schedules); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("Expected 1 schedule, got %d", len(schedules))
	}
	if schedules[0].CustomerName != "Dela Cruz" {
		t.Errorf("Unexpected customer name %s", schedules[0].CustomerName)
	}
}
