package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/warp/parsonage-engine/metrics"
	"github.com/warp/parsonage-engine/notify"
	"github.com/warp/parsonage-engine/property"
)

// =============================================================================
// SCOPE
// =============================================================================

// Scope selects which records a sweep evaluates.
type Scope string

const (
	ScopePayments Scope = "payments"
	ScopeBookings Scope = "bookings"
	ScopeAll      Scope = "all"
)

// ParseScope validates a scope name. Empty means all.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopePayments, ScopeBookings, ScopeAll:
		return Scope(s), nil
	case "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("unknown scope %q (use payments, bookings or all)", s)
}

func (s Scope) payments() bool { return s == ScopePayments || s == ScopeAll }
func (s Scope) bookings() bool { return s == ScopeBookings || s == ScopeAll }

// categories returns the record categories the scope loads. Tenants are
// always loaded: payments need their addresses, rooms their leases.
func (s Scope) categories() []property.Category {
	cats := []property.Category{property.CategoryTenant}
	if s.bookings() {
		cats = append(cats, property.CategoryRoom)
	}
	if s.payments() {
		cats = append(cats, property.CategoryPayment)
	}
	if s.bookings() {
		cats = append(cats, property.CategoryBooking, property.CategoryMaintenance)
	}
	return cats
}

func (s Scope) notifications() []notify.Category {
	var cats []notify.Category
	if s.payments() {
		cats = append(cats, notify.PaymentCategories...)
	}
	if s.bookings() {
		cats = append(cats, notify.BookingCategories...)
	}
	return cats
}

// =============================================================================
// REPORT
// =============================================================================

// Error kinds reported per record.
const (
	KindInvalidRecord     = "invalid_record"
	KindInvalidTransition = "invalid_transition"
	KindStore             = "store"
	KindDispatch          = "dispatch"
)

// RecordError is a per-record problem that did not stop the sweep.
type RecordError struct {
	RecordID property.RecordID `json:"record_id,omitempty"`
	Category string            `json:"category,omitempty"`
	Kind     string            `json:"kind"`
	Message  string            `json:"message"`
}

// SweepReport summarises one sweep.
type SweepReport struct {
	RunID           string
	Scope           Scope
	Today           property.Date
	Processed       int // records loaded
	StatusUpdates   int // cached statuses rewritten
	PaymentsCreated int // new billing-cycle payments
	Notified        int
	Failed          int // notifications that could not be delivered
	SkippedInvalid  int
	Deduplicated    int
	FeesAssessed    int
	Errors          []RecordError
	StartedAt       time.Time
	FinishedAt      time.Time
}

// addError classifies err and appends it to the report.
func (r *SweepReport) addError(id property.RecordID, category string, err error) {
	kind := KindStore
	var invalid *property.InvalidRecordError
	switch {
	case errors.As(err, &invalid):
		kind = KindInvalidRecord
		if id == "" {
			id = invalid.ID
		}
		if category == "" {
			category = string(invalid.Category)
		}
		r.SkippedInvalid++
	case errors.Is(err, property.ErrInvalidTransition):
		kind = KindInvalidTransition
		r.SkippedInvalid++
	case errors.Is(err, property.ErrDispatch):
		kind = KindDispatch
	}
	r.Errors = append(r.Errors, RecordError{RecordID: id, Category: category, Kind: kind, Message: err.Error()})
	metrics.RecordError(kind)
}

// run converts the report into a run log entry.
func (r *SweepReport) run(outcome property.RunOutcome, err error) property.SweepRun {
	run := property.SweepRun{
		RunID:          r.RunID,
		Scope:          string(r.Scope),
		Today:          r.Today,
		Outcome:        outcome,
		Processed:      r.Processed,
		StatusUpdates:  r.StatusUpdates,
		Notified:       r.Notified,
		Failed:         r.Failed,
		SkippedInvalid: r.SkippedInvalid,
		Deduplicated:   r.Deduplicated,
		FeesAssessed:   r.FeesAssessed,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}
