/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

CONVENTIONS:
  - Money travels as decimal strings ("1500.00"), never JSON numbers
  - Business dates travel as "YYYY-MM-DD"
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the billing service, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/service.go: Domain-level request types these map onto
*/
package api

import (
	"time"

	"github.com/arjen/billing-engine/billing"
	"github.com/arjen/billing-engine/ledger"
)

const dayFormat = "2006-01-02"

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerDTO struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Contact        string  `json:"contact"`
	DateDelivered  string  `json:"date_delivered"`
	Item           string  `json:"item"`
	ItemName       string  `json:"item_name"`
	ItemModel      string  `json:"item_model"`
	MonthlyDue     string  `json:"monthly_due"`
	Term           int     `json:"term"`
	Rebates        string  `json:"rebates"`
	Amount         string  `json:"amount"`
	Payments       string  `json:"payments"`
	Downpayment    string  `json:"downpayment"`
	Status         string  `json:"status"`
	CompletionDate *string `json:"completion_date,omitempty"`
}

type CustomerRequestDTO struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Contact       string `json:"contact"`
	DateDelivered string `json:"date_delivered"`
	Item          string `json:"item"`
	MonthlyDue    string `json:"monthly_due"`
	Term          int    `json:"term"`
	Rebates       string `json:"rebates"`
	Downpayment   string `json:"downpayment"`
}

// DeleteCustomerRequest selects between archival pull-out and permanent
// scrubbing.
type DeleteCustomerRequest struct {
	Permanent         bool   `json:"permanent"`
	CompletedBy       string `json:"completed_by"`
	TransactionNumber string `json:"transaction_number"`
}

// =============================================================================
// ITEMS
// =============================================================================

type ItemDTO struct {
	ID            int64  `json:"id"`
	CustomerID    int64  `json:"customer_id"`
	Source        string `json:"source"`
	Name          string `json:"name"`
	Model         string `json:"model"`
	OriginalPrice string `json:"original_price"`
	Downpayment   string `json:"downpayment"`
	GoodAsCash    bool   `json:"good_as_cash"`
	Rebate        string `json:"rebate"`
	MonthlyDue    string `json:"monthly_due"`
	TermMonths    int    `json:"term_months"`
	TermLabel     string `json:"term_label"`
	ContractTotal string `json:"contract_total"`
	PurchaseDate  string `json:"purchase_date"`
	ContractEnd   string `json:"contract_end"`
	FirstDueDate  string `json:"first_due_date"`
	Status        string `json:"status"`
}

type ItemRequestDTO struct {
	Name          string `json:"name"`
	Model         string `json:"model"`
	OriginalPrice string `json:"original_price"`
	Downpayment   string `json:"downpayment"`
	GoodAsCash    bool   `json:"good_as_cash"`
	Rebate        string `json:"rebate"`
	MonthlyDue    string `json:"monthly_due"`
	TermMonths    int    `json:"term_months"`
	PurchaseDate  string `json:"purchase_date"`
}

type PulloutRequest struct {
	CompletedBy string `json:"completed_by"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID                int64  `json:"id"`
	CustomerID        int64  `json:"customer_id"`
	ItemID            *int64 `json:"item_id,omitempty"`
	PaymentNumber     int    `json:"payment_number"`
	TransactionNumber string `json:"transaction_number"`
	Date              string `json:"date"`
	Amount            string `json:"amount"`
	Method            string `json:"method,omitempty"`
	HasRebate         bool   `json:"has_rebate"`
	Rebate            string `json:"rebate"`
	Notes             string `json:"notes"`
	RecordedBy        string `json:"recorded_by,omitempty"`
}

type RecordPaymentRequest struct {
	CustomerID        int64  `json:"customer_id"`
	ItemID            *int64 `json:"item_id"`
	Amount            string `json:"amount"`
	Date              string `json:"date"`
	Method            string `json:"method"`
	HasRebate         bool   `json:"has_rebate"`
	Rebate            string `json:"rebate"`
	Notes             string `json:"notes"`
	TransactionNumber string `json:"transaction_number"`
	RecordedBy        string `json:"recorded_by"`
}

// =============================================================================
// BALANCES AND SCHEDULES
// =============================================================================

type ItemBreakdownDTO struct {
	Item             ItemDTO `json:"item"`
	ContractAmount   string  `json:"contract_amount"`
	DirectPaid       string  `json:"direct_paid"`
	AllocatedGeneral string  `json:"allocated_general"`
	TotalPaid        string  `json:"total_paid"`
	Proportion       string  `json:"proportion"`
	Remaining        string  `json:"remaining"`
	MonthsPaid       int     `json:"months_paid"`
	PaymentsLeft     int     `json:"payments_left"`
	ProgressPercent  float64 `json:"progress_percent"`
}

type BalanceDTO struct {
	CustomerID     int64              `json:"customer_id"`
	TotalContract  string             `json:"total_contract"`
	TotalPaid      string             `json:"total_paid"`
	TotalRemaining string             `json:"total_remaining"`
	GeneralPool    string             `json:"general_pool"`
	PaymentCount   int                `json:"payment_count"`
	AveragePayment string             `json:"average_payment"`
	Items          []ItemBreakdownDTO `json:"items"`
}

type ScheduleRowDTO struct {
	Number  int         `json:"number"`
	DueDate string      `json:"due_date"`
	Status  string      `json:"status"`
	Payment *PaymentDTO `json:"payment,omitempty"`
	Balance *string     `json:"balance,omitempty"`
}

type PaymentScheduleDTO struct {
	Item      ItemDTO          `json:"item"`
	Rows      []ScheduleRowDTO `json:"rows"`
	Remaining *string          `json:"remaining,omitempty"`
}

type DueScheduleDTO struct {
	CustomerID       int64  `json:"customer_id"`
	CustomerName     string `json:"customer_name"`
	Contact          string `json:"contact,omitempty"`
	NextDueDate      string `json:"next_due_date"`
	ExpectedPayments int    `json:"expected_payments"`
	PaymentsMade     int    `json:"payments_made"`
	OverdueCount     int    `json:"overdue_count"`
	OverdueAmount    string `json:"overdue_amount"`
	DaysUntilDue     int    `json:"days_until_due"`
	DaysOverdue      int    `json:"days_overdue"`
	Classification   string `json:"classification"`
}

type MonthlyBillingDTO struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	DueDate   string `json:"due_date"`
	AmountDue string `json:"amount_due"`
	Paid      string `json:"paid"`
	Status    string `json:"status"`
}

// =============================================================================
// HISTORY
// =============================================================================

type HistoryDTO struct {
	ID                 int64  `json:"id"`
	OriginalCustomerID int64  `json:"original_customer_id"`
	CustomerName       string `json:"customer_name"`
	Address            string `json:"address,omitempty"`
	Contact            string `json:"contact,omitempty"`
	DateDelivered      string `json:"date_delivered"`
	CompletionDate     string `json:"completion_date"`
	TotalAmount        string `json:"total_amount"`
	TotalPayments      string `json:"total_payments"`
	FinalStatus        string `json:"final_status"`
	ItemName           string `json:"item_name,omitempty"`
	ItemModel          string `json:"item_model,omitempty"`
	TransactionNumber  string `json:"transaction_number,omitempty"`
	CompletedBy        string `json:"completed_by,omitempty"`
	Term               int    `json:"term"`
}

type HistoryStatsDTO struct {
	FullyPaidCount  int    `json:"fully_paid_count"`
	FullyPaidTotal  string `json:"fully_paid_total"`
	PulledOutCount  int    `json:"pulled_out_count"`
	PulledOutTotal  string `json:"pulled_out_total"`
}

type HistoryReportDTO struct {
	Records []HistoryDTO    `json:"records"`
	Stats   HistoryStatsDTO `json:"stats"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	dto := CustomerDTO{
		ID:            int64(c.ID),
		Name:          c.Name,
		Address:       c.Address,
		Contact:       c.Contact,
		DateDelivered: c.DateDelivered.Format(dayFormat),
		Item:          c.Item,
		ItemName:      c.ItemName(),
		ItemModel:     c.ItemModel(),
		MonthlyDue:    c.MonthlyDue.String(),
		Term:          c.Term,
		Rebates:       c.Rebates.String(),
		Amount:        c.Amount.String(),
		Payments:      c.Payments.String(),
		Downpayment:   c.Downpayment.String(),
		Status:        string(c.Status),
	}
	if c.CompletionDate != nil {
		d := c.CompletionDate.Format(dayFormat)
		dto.CompletionDate = &d
	}
	return dto
}

func toItemDTO(it ledger.Item) ItemDTO {
	return ItemDTO{
		ID:            int64(it.ID),
		CustomerID:    int64(it.CustomerID),
		Source:        string(it.Source),
		Name:          it.Name,
		Model:         it.Model,
		OriginalPrice: it.OriginalPrice.String(),
		Downpayment:   it.Downpayment.String(),
		GoodAsCash:    it.GoodAsCash,
		Rebate:        it.Rebate.String(),
		MonthlyDue:    it.MonthlyDue.String(),
		TermMonths:    it.TermMonths,
		TermLabel:     ledger.PaymentTermLabel(it),
		ContractTotal: it.ContractTotal.String(),
		PurchaseDate:  it.PurchaseDate.Format(dayFormat),
		ContractEnd:   it.ContractEnd.Format(dayFormat),
		FirstDueDate:  it.FirstDueDate.Format(dayFormat),
		Status:        string(it.Status),
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:                int64(p.ID),
		CustomerID:        int64(p.CustomerID),
		PaymentNumber:     p.PaymentNumber,
		TransactionNumber: p.TransactionNumber,
		Date:              p.Date.Format(dayFormat),
		Amount:            p.Amount.String(),
		Method:            p.Method,
		HasRebate:         p.HasRebate,
		Rebate:            p.Rebate.String(),
		Notes:             p.Notes,
		RecordedBy:        p.RecordedBy,
	}
	if p.ItemID != nil {
		id := int64(*p.ItemID)
		dto.ItemID = &id
	}
	return dto
}

func toBreakdownDTO(b ledger.ItemBreakdown) ItemBreakdownDTO {
	return ItemBreakdownDTO{
		Item:             toItemDTO(b.Item),
		ContractAmount:   b.ContractAmount.String(),
		DirectPaid:       b.DirectPaid.String(),
		AllocatedGeneral: b.AllocatedGeneral.String(),
		TotalPaid:        b.TotalPaid.String(),
		Proportion:       b.Proportion.StringFixed(4),
		Remaining:        b.Remaining.String(),
		MonthsPaid:       b.MonthsPaid,
		PaymentsLeft:     b.PaymentsLeft,
		ProgressPercent:  b.ProgressPercent,
	}
}

func toScheduleDTO(s ledger.Schedule) DueScheduleDTO {
	return DueScheduleDTO{
		CustomerID:       int64(s.Input.CustomerID),
		CustomerName:     s.Input.CustomerName,
		Contact:          s.Input.Contact,
		NextDueDate:      s.NextDueDate.Format(dayFormat),
		ExpectedPayments: s.ExpectedPayments,
		PaymentsMade:     s.Input.PaymentsMade,
		OverdueCount:     s.OverdueCount,
		OverdueAmount:    s.OverdueAmount.String(),
		DaysUntilDue:     s.DaysUntilDue,
		DaysOverdue:      s.DaysOverdue,
		Classification:   string(s.Class),
	}
}

func toPaymentScheduleDTO(s billing.PaymentSchedule) PaymentScheduleDTO {
	rows := make([]ScheduleRowDTO, 0, len(s.Rows))
	for _, r := range s.Rows {
		row := ScheduleRowDTO{
			Number:  r.Number,
			DueDate: r.DueDate.Format(dayFormat),
			Status:  string(r.Status),
		}
		if r.Payment != nil {
			p := toPaymentDTO(*r.Payment)
			row.Payment = &p
		}
		if r.Balance != nil {
			b := r.Balance.String()
			row.Balance = &b
		}
		rows = append(rows, row)
	}
	dto := PaymentScheduleDTO{Item: toItemDTO(s.Item), Rows: rows}
	if s.Remaining != nil {
		rem := s.Remaining.String()
		dto.Remaining = &rem
	}
	return dto
}

func toHistoryDTO(h ledger.HistoryRecord) HistoryDTO {
	return HistoryDTO{
		ID:                 int64(h.ID),
		OriginalCustomerID: int64(h.OriginalCustomerID),
		CustomerName:       h.CustomerName,
		Address:            h.Address,
		Contact:            h.Contact,
		DateDelivered:      h.DateDelivered.Format(dayFormat),
		CompletionDate:     h.CompletionDate.Format(dayFormat),
		TotalAmount:        h.TotalAmount.String(),
		TotalPayments:      h.TotalPayments.String(),
		FinalStatus:        string(h.FinalStatus),
		ItemName:           h.ItemName,
		ItemModel:          h.ItemModel,
		TransactionNumber:  h.TransactionNumber,
		CompletedBy:        h.CompletedBy,
		Term:               h.Term,
	}
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dayFormat, s)
}

func parseMoney(s string) ledger.Money {
	if s == "" {
		return ledger.ZeroMoney()
	}
	return ledger.MustParseMoney(s)
}
