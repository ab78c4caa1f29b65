/*
handlers.go - HTTP API handlers for the property engine

PURPOSE:
  Exposes the run coordinator via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the sweep package.

ENDPOINTS:
  Sweeps:
    POST   /api/sweeps                      Run a sweep now
    GET    /api/sweeps/runs                 Recent sweep history

  Payments:
    POST   /api/payments/{id}/late-fee      Assess a late fee manually
    POST   /api/payments/{id}/receipts      Record money received

  Status:
    GET    /api/status/{id}                 Derived status of any record

  Tenants:
    POST   /api/tenants                     Move a tenant in
    POST   /api/tenants/{id}/move-out       Move a tenant out

  Bookings and maintenance:
    POST   /api/bookings/{id}/events        confirm, check_in, check_out, cancel
    POST   /api/maintenance                 File a ticket
    POST   /api/maintenance/{id}/events     start, complete, cancel
    GET    /api/rooms/{id}/availability     ?check_in=&check_out=
    GET    /api/guests/today                Arrivals and departures

  Dev:
    POST   /api/sample-data                 Load the sample property

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input or invalid record
  - 404: Record not found
  - 409: A sweep or late fee run is already in progress
  - 422: Status transition not allowed
  - 502: Notification could not be delivered
  - 500: Internal errors

  Epoch keys stay internal and are never echoed in an error body.

SECURITY NOTE:
  No authentication. The engine runs behind the host environment's access
  control.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Sample data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/sweep"
)

// Resetter clears a store before sample data is loaded.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Coordinator *sweep.Coordinator
	Store       property.TxRepository
	Logger      *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(c *sweep.Coordinator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Coordinator: c,
		Store:       c.Store,
		Logger:      logger.Named("api"),
	}
}

// =============================================================================
// SWEEP ENDPOINTS
// =============================================================================

// RunSweep runs a sweep synchronously and returns its report.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	scope, err := sweep.ParseScope(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scope", err)
		return
	}

	report, err := h.Coordinator.RunSweep(r.Context(), scope)
	if report == nil {
		h.writeDomainError(w, "sweep not started", err)
		return
	}
	dto := toSweepReportDTO(report)
	if err != nil {
		dto.Error = publicMessage(err)
		writeJSON(w, http.StatusInternalServerError, dto)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListRuns returns recent sweeps, newest first. ?limit= defaults to 20.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}
	runs, err := h.Coordinator.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "failed to list runs", err)
		return
	}
	dtos := make([]SweepRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toSweepRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// AssessLateFee runs the manual late fee path for one payment.
func (h *Handler) AssessLateFee(w http.ResponseWriter, r *http.Request) {
	id := property.RecordID(chi.URLParam(r, "id"))
	fee, err := h.Coordinator.AssessLateFee(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "late fee not assessed", err)
		return
	}
	writeJSON(w, http.StatusOK, toLateFeeResponse(id, fee))
}

// RecordReceipt adds a received amount to a payment.
func (h *Handler) RecordReceipt(w http.ResponseWriter, r *http.Request) {
	id := property.RecordID(chi.URLParam(r, "id"))
	var req ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	pay, err := h.Coordinator.RecordPayment(r.Context(), id, req.Amount)
	if err != nil {
		h.writeDomainError(w, "payment not recorded", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(pay))
}

// =============================================================================
// STATUS ENDPOINT
// =============================================================================

// GetStatus returns the derived status of a record.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := property.RecordID(chi.URLParam(r, "id"))
	view, err := h.Coordinator.GetStatus(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "status unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(view))
}

// =============================================================================
// TENANT ENDPOINTS
// =============================================================================

// MoveIn registers a tenant and opens their first payment.
func (h *Handler) MoveIn(w http.ResponseWriter, r *http.Request) {
	var req MoveInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	start, err := property.ParseDate(req.LeaseStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lease_start", err)
		return
	}
	end, err := parseOptionalDate(req.LeaseEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lease_end", err)
		return
	}

	t := &property.Tenant{
		ID:          property.RecordID(req.ID),
		Name:        req.Name,
		Email:       req.Email,
		RoomID:      property.RecordID(req.RoomID),
		LeaseStart:  start,
		LeaseEnd:    end,
		MonthlyRent: req.MonthlyRent,
	}
	first, err := h.Coordinator.MoveIn(r.Context(), t)
	if err != nil {
		h.writeDomainError(w, "move-in rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, MoveInResponse{
		TenantID:     req.ID,
		RoomID:       req.RoomID,
		FirstPayment: toPaymentDTO(first),
	})
}

// MoveOut ends a tenancy on the given date (default today).
func (h *Handler) MoveOut(w http.ResponseWriter, r *http.Request) {
	id := property.RecordID(chi.URLParam(r, "id"))
	var req MoveOutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	on, err := parseOptionalDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	if on.IsZero() {
		on = h.Coordinator.Clock.Today()
	}
	if err := h.Coordinator.MoveOut(r.Context(), id, on); err != nil {
		h.writeDomainError(w, "move-out rejected", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BOOKING AND MAINTENANCE ENDPOINTS
// =============================================================================

// BookingEvent fires a transition on a guest booking.
func (h *Handler) BookingEvent(w http.ResponseWriter, r *http.Request) {
	id := property.RecordID(chi.URLParam(r, "id"))
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	status, err := h.Coordinator.TransitionBooking(r.Context(), id, req.Event)
	if err != nil {
		h.writeDomainError(w, "transition rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionResponse{ID: string(id), Event: req.Event, Status: string(status)})
}

// MaintenanceEvent fires a transition on a maintenance ticket.
func (h *Handler) MaintenanceEvent(w http.ResponseWriter, r *http.Request) {
	id := property.RecordID(chi.URLParam(r, "id"))
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	status, err := h.Coordinator.TransitionMaintenance(r.Context(), id, req.Event)
	if err != nil {
		h.writeDomainError(w, "transition rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionResponse{ID: string(id), Event: req.Event, Status: string(status)})
}

// ReportMaintenance files a new Open ticket.
func (h *Handler) ReportMaintenance(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	m := &property.MaintenanceRequest{
		ID:          property.RecordID(req.ID),
		RoomID:      property.RecordID(req.RoomID),
		Description: req.Description,
		Urgency:     property.Urgency(req.Urgency),
	}
	if err := h.Coordinator.ReportMaintenance(r.Context(), m); err != nil {
		h.writeDomainError(w, "ticket rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, TransitionResponse{ID: req.ID, Status: string(m.Status)})
}

// RoomAvailability reports whether a room is free for a stay.
func (h *Handler) RoomAvailability(w http.ResponseWriter, r *http.Request) {
	id := property.RecordID(chi.URLParam(r, "id"))
	q := r.URL.Query()
	checkIn, err := property.ParseDate(q.Get("check_in"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check_in", err)
		return
	}
	checkOut, err := property.ParseDate(q.Get("check_out"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check_out", err)
		return
	}
	free, conflicts, err := h.Coordinator.RoomAvailability(r.Context(), id, checkIn, checkOut)
	if err != nil {
		h.writeDomainError(w, "availability unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		RoomID:    string(id),
		CheckIn:   checkIn.String(),
		CheckOut:  checkOut.String(),
		Available: free,
		Conflicts: toBookingDTOs(conflicts),
	})
}

// GuestsToday lists today's arrivals and departures.
func (h *Handler) GuestsToday(w http.ResponseWriter, r *http.Request) {
	arrivals, departures, err := h.Coordinator.GuestsToday(r.Context())
	if err != nil {
		h.writeDomainError(w, "guest list unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, GuestsTodayResponse{
		Date:       h.Coordinator.Clock.Today().String(),
		Arrivals:   toBookingDTOs(arrivals),
		Departures: toBookingDTOs(departures),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeDomainError maps an engine error to a status code and error code.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: publicMessage(err)})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, property.ErrRunAlreadyInProgress):
		return http.StatusConflict, "run_in_progress"
	case errors.Is(err, property.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, property.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, property.ErrInvalidRecord):
		return http.StatusBadRequest, "invalid_record"
	case errors.Is(err, property.ErrDispatch):
		return http.StatusBadGateway, "dispatch_failed"
	}
	return http.StatusInternalServerError, "internal"
}

// publicMessage is the error text shown to callers. Store failures are
// reduced to their operation so database details and ledger keys stay in
// the log.
func publicMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *property.StoreError
	if errors.As(err, &se) && !errors.Is(err, property.ErrNotFound) {
		return "store " + se.Op + " failed"
	}
	return err.Error()
}
