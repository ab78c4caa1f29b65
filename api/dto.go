/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines JSON request/response structures for the REST API.
  Separates API contract from internal domain types.

WHY DTOs:
  - API stability: Internal types can change without breaking API
  - JSON tags: Control field names and omitempty behavior
  - Validation: Request DTOs are parsed into domain records by the handler

CONVENTIONS:
  - Request DTOs: *Request suffix
  - Response DTOs: *DTO or *Response suffix
  - Dates as strings: "2026-03-01" (YYYY-MM-DD)
  - Money as decimal strings: "625.00"

SEE ALSO:
  - handlers.go: Uses these DTOs
  - property/types.go: Domain records these map from
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/sweep"
)

// =============================================================================
// SWEEP DTOs
// =============================================================================

// SweepRequest triggers a sweep.
type SweepRequest struct {
	Scope string `json:"scope,omitempty"` // payments, bookings, all (default)
}

// SweepReportDTO is the result of one sweep.
type SweepReportDTO struct {
	RunID           string              `json:"run_id"`
	Scope           string              `json:"scope"`
	Today           string              `json:"today"`
	Processed       int                 `json:"processed"`
	StatusUpdates   int                 `json:"status_updates"`
	PaymentsCreated int                 `json:"payments_created"`
	Notified        int                 `json:"notified"`
	Failed          int                 `json:"failed"`
	SkippedInvalid  int                 `json:"skipped_invalid"`
	Deduplicated    int                 `json:"deduplicated"`
	FeesAssessed    int                 `json:"fees_assessed"`
	Errors          []sweep.RecordError `json:"errors"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
	Error           string              `json:"error,omitempty"`
}

// SweepRunDTO is one entry of the run history.
type SweepRunDTO struct {
	RunID          string    `json:"run_id"`
	Scope          string    `json:"scope"`
	Today          string    `json:"today"`
	Outcome        string    `json:"outcome"`
	Processed      int       `json:"processed"`
	StatusUpdates  int       `json:"status_updates"`
	Notified       int       `json:"notified"`
	Failed         int       `json:"failed"`
	SkippedInvalid int       `json:"skipped_invalid"`
	Deduplicated   int       `json:"deduplicated"`
	FeesAssessed   int       `json:"fees_assessed"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// =============================================================================
// PAYMENT DTOs
// =============================================================================

// PaymentDTO is a rent payment.
type PaymentDTO struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Period      string          `json:"period"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	DueDate     string          `json:"due_date"`
	Status      string          `json:"status"`
	LateFee     decimal.Decimal `json:"late_fee"`
	FeePeriod   string          `json:"fee_period,omitempty"`
}

// ReceiptRequest records money received against a payment.
type ReceiptRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// LateFeeResponse is the result of a manual late fee run.
type LateFeeResponse struct {
	Assessed     bool             `json:"assessed"`
	PaymentID    string           `json:"payment_id"`
	Period       string           `json:"period,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	NewAmountDue *decimal.Decimal `json:"new_amount_due,omitempty"`
	TotalFee     *decimal.Decimal `json:"total_fee,omitempty"`
	AssessedOn   string           `json:"assessed_on,omitempty"`
}

// =============================================================================
// STATUS DTOs
// =============================================================================

// StatusDTO is the derived status of any record.
type StatusDTO struct {
	ID          string           `json:"id"`
	Category    string           `json:"category"`
	Status      string           `json:"status"`
	Stored      string           `json:"stored,omitempty"`
	AsOf        string           `json:"as_of"`
	Outstanding *decimal.Decimal `json:"outstanding,omitempty"`
	FeeApplied  *bool            `json:"fee_applied,omitempty"`
}

// =============================================================================
// TENANT DTOs
// =============================================================================

// MoveInRequest registers a new tenant.
type MoveInRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	RoomID      string          `json:"room_id"`
	LeaseStart  string          `json:"lease_start"`
	LeaseEnd    string          `json:"lease_end,omitempty"`
	MonthlyRent decimal.Decimal `json:"monthly_rent"`
}

// MoveInResponse is the tenant plus their first payment, if any.
type MoveInResponse struct {
	TenantID     string      `json:"tenant_id"`
	RoomID       string      `json:"room_id"`
	FirstPayment *PaymentDTO `json:"first_payment,omitempty"`
}

// MoveOutRequest ends a tenancy.
type MoveOutRequest struct {
	Date string `json:"date,omitempty"` // default: today
}

// =============================================================================
// BOOKING / MAINTENANCE DTOs
// =============================================================================

// EventRequest fires a transition event.
type EventRequest struct {
	Event string `json:"event"`
}

// TransitionResponse reports the status after an event.
type TransitionResponse struct {
	ID     string `json:"id"`
	Event  string `json:"event"`
	Status string `json:"status"`
}

// MaintenanceRequestDTO files a maintenance ticket.
type MaintenanceRequestDTO struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	Description string `json:"description"`
	Urgency     string `json:"urgency,omitempty"`
}

// BookingDTO is a guest booking.
type BookingDTO struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	GuestName string `json:"guest_name"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Status    string `json:"status"`
}

// AvailabilityResponse answers a room availability query.
type AvailabilityResponse struct {
	RoomID    string       `json:"room_id"`
	CheckIn   string       `json:"check_in"`
	CheckOut  string       `json:"check_out"`
	Available bool         `json:"available"`
	Conflicts []BookingDTO `json:"conflicts"`
}

// GuestsTodayResponse lists today's arrivals and departures.
type GuestsTodayResponse struct {
	Date       string       `json:"date"`
	Arrivals   []BookingDTO `json:"arrivals"`
	Departures []BookingDTO `json:"departures"`
}

// SampleDataResponse summarises what the loader wrote.
type SampleDataResponse struct {
	Rooms       int `json:"rooms"`
	Tenants     int `json:"tenants"`
	Payments    int `json:"payments"`
	Bookings    int `json:"bookings"`
	Maintenance int `json:"maintenance"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSweepReportDTO(r *sweep.SweepReport) SweepReportDTO {
	errs := r.Errors
	if errs == nil {
		errs = []sweep.RecordError{}
	}
	return SweepReportDTO{
		RunID:           r.RunID,
		Scope:           string(r.Scope),
		Today:           r.Today.String(),
		Processed:       r.Processed,
		StatusUpdates:   r.StatusUpdates,
		PaymentsCreated: r.PaymentsCreated,
		Notified:        r.Notified,
		Failed:          r.Failed,
		SkippedInvalid:  r.SkippedInvalid,
		Deduplicated:    r.Deduplicated,
		FeesAssessed:    r.FeesAssessed,
		Errors:          errs,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

func toSweepRunDTO(r property.SweepRun) SweepRunDTO {
	return SweepRunDTO{
		RunID:          r.RunID,
		Scope:          r.Scope,
		Today:          r.Today.String(),
		Outcome:        string(r.Outcome),
		Processed:      r.Processed,
		StatusUpdates:  r.StatusUpdates,
		Notified:       r.Notified,
		Failed:         r.Failed,
		SkippedInvalid: r.SkippedInvalid,
		Deduplicated:   r.Deduplicated,
		FeesAssessed:   r.FeesAssessed,
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}

func toPaymentDTO(p *property.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:          string(p.ID),
		TenantID:    string(p.TenantID),
		Period:      p.Period,
		AmountDue:   p.AmountDue,
		AmountPaid:  p.AmountPaid,
		Outstanding: p.Outstanding(),
		DueDate:     p.DueDate.String(),
		Status:      string(p.Status),
		LateFee:     p.LateFee,
		FeePeriod:   p.FeePeriod,
	}
}

func toStatusDTO(v *sweep.StatusView) StatusDTO {
	dto := StatusDTO{
		ID:          string(v.ID),
		Category:    string(v.Category),
		Status:      v.Status,
		Stored:      v.Stored,
		AsOf:        v.AsOf.String(),
		Outstanding: v.Outstanding,
	}
	if v.Category == property.CategoryPayment {
		applied := v.FeeApplied
		dto.FeeApplied = &applied
	}
	return dto
}

func toBookingDTOs(bookings []*property.Booking) []BookingDTO {
	dtos := make([]BookingDTO, 0, len(bookings))
	for _, b := range bookings {
		dtos = append(dtos, BookingDTO{
			ID:        string(b.ID),
			RoomID:    string(b.RoomID),
			GuestName: b.GuestName,
			CheckIn:   b.CheckIn.String(),
			CheckOut:  b.CheckOut.String(),
			Status:    string(b.Status),
		})
	}
	return dtos
}

func toLateFeeResponse(paymentID property.RecordID, a *property.FeeAssessment) LateFeeResponse {
	if a == nil {
		return LateFeeResponse{PaymentID: string(paymentID)}
	}
	amount, due, total := a.Amount, a.NewAmountDue, a.TotalFee
	return LateFeeResponse{
		Assessed:     true,
		PaymentID:    string(a.PaymentID),
		Period:       a.Period,
		Amount:       &amount,
		NewAmountDue: &due,
		TotalFee:     &total,
		AssessedOn:   a.AssessedOn.String(),
	}
}

// parseOptionalDate parses YYYY-MM-DD, returning a zero Date for "".
func parseOptionalDate(s string) (property.Date, error) {
	if s == "" {
		return property.Date{}, nil
	}
	return property.ParseDate(s)
}
