/*
Package property provides the status and policy core of the property engine.

PURPOSE:
  This package holds the record types of a residential property (tenants,
  rooms, rent payments, guest bookings, maintenance tickets) and the pure
  functions that derive their status on a given day. Everything that touches
  a store, a mailer or the wall clock lives behind the interfaces declared
  here and is implemented elsewhere.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: Anything the record store holds, keyed by a stable RecordID
  - Tenant, Room, Payment, Booking, MaintenanceRequest: the five record kinds
  - Patch: A typed partial update applied by the record store

DESIGN PRINCIPLES:
  1. Derived status: Room, Payment and Booking status fields are caches;
     the functions in status.go are the source of truth
  2. Precision: Money is decimal.Decimal, never float64
  3. Civil dates: Lease, due and stay dates are Date values, not instants

SEE ALSO:
  - status.go: State Machine Engine
  - fee.go: Fee Policy Engine
  - store.go: Record store and ledger interfaces
*/
package property

import (
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// RecordID identifies a record. IDs are unique across all categories.
type RecordID string

// Category is the kind of record.
type Category string

const (
	CategoryTenant      Category = "tenant"
	CategoryRoom        Category = "room"
	CategoryPayment     Category = "payment"
	CategoryBooking     Category = "booking"
	CategoryMaintenance Category = "maintenance"
)

// Categories lists every record category in load order.
var Categories = []Category{
	CategoryTenant, CategoryRoom, CategoryPayment, CategoryBooking, CategoryMaintenance,
}

// Record is implemented by every type the record store holds.
type Record interface {
	RecordID() RecordID
	Category() Category
	Validate() error
}

// =============================================================================
// STATUSES
// =============================================================================

type RoomStatus string

const (
	RoomVacant      RoomStatus = "Vacant"
	RoomOccupied    RoomStatus = "Occupied"
	RoomMaintenance RoomStatus = "Maintenance"
	RoomPending     RoomStatus = "Pending"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "Paid"
	PaymentDue     PaymentStatus = "Due"
	PaymentOverdue PaymentStatus = "Overdue"
	PaymentPartial PaymentStatus = "Partial"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "Pending"
	BookingConfirmed  BookingStatus = "Confirmed"
	BookingCheckedIn  BookingStatus = "Checked In"
	BookingCheckedOut BookingStatus = "Checked Out"
	BookingCancelled  BookingStatus = "Cancelled"
)

func (s BookingStatus) valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCheckedIn, BookingCheckedOut, BookingCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == BookingCheckedOut || s == BookingCancelled
}

type MaintenanceStatus string

const (
	MaintenanceOpen       MaintenanceStatus = "Open"
	MaintenanceInProgress MaintenanceStatus = "In Progress"
	MaintenanceCompleted  MaintenanceStatus = "Completed"
	MaintenanceCancelled  MaintenanceStatus = "Cancelled"
)

func (s MaintenanceStatus) valid() bool {
	switch s {
	case MaintenanceOpen, MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s MaintenanceStatus) Terminal() bool {
	return s == MaintenanceCompleted || s == MaintenanceCancelled
}

// Urgency of a maintenance request.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyNormal Urgency = "Normal"
	UrgencyHigh   Urgency = "High"
	UrgencyUrgent Urgency = "Urgent"
)

// Escalates reports whether the manager is alerted when such a request opens.
func (u Urgency) Escalates() bool { return u == UrgencyHigh || u == UrgencyUrgent }

// =============================================================================
// TENANT
// =============================================================================

// Tenant is a resident with a lease on a room. Created on move-in.
type Tenant struct {
	ID          RecordID
	Name        string
	Email       string
	RoomID      RecordID
	LeaseStart  Date
	LeaseEnd    Date // zero = open-ended lease
	MonthlyRent decimal.Decimal
	MovedOut    bool
}

func (t *Tenant) RecordID() RecordID { return t.ID }
func (t *Tenant) Category() Category { return CategoryTenant }

func (t *Tenant) Validate() error {
	switch {
	case t.ID == "":
		return invalid(t.ID, CategoryTenant, "id", "is required")
	case t.RoomID == "":
		return invalid(t.ID, CategoryTenant, "room_id", "is required")
	case t.LeaseStart.IsZero():
		return invalid(t.ID, CategoryTenant, "lease_start", "is required")
	case !t.LeaseEnd.IsZero() && t.LeaseEnd.Before(t.LeaseStart):
		return invalid(t.ID, CategoryTenant, "lease_end", "is before lease_start")
	case t.MonthlyRent.IsNegative():
		return invalid(t.ID, CategoryTenant, "monthly_rent", "is negative")
	}
	if t.Email != "" && !validEmail(t.Email) {
		return invalid(t.ID, CategoryTenant, "email", "is not a valid address")
	}
	return nil
}

// OccupiesOn reports whether the tenant's lease covers the given day.
func (t *Tenant) OccupiesOn(d Date) bool {
	if t.MovedOut || d.Before(t.LeaseStart) {
		return false
	}
	return t.LeaseEnd.IsZero() || d.BeforeOrEqual(t.LeaseEnd)
}

// =============================================================================
// ROOM
// =============================================================================

// Room is a rentable unit. Guest rooms take bookings; the rest take tenants.
type Room struct {
	ID       RecordID
	Name     string
	Capacity int
	Rate     decimal.Decimal
	Guest    bool
	Status   RoomStatus // last derived value, display only
}

func (r *Room) RecordID() RecordID { return r.ID }
func (r *Room) Category() Category { return CategoryRoom }

func (r *Room) Validate() error {
	switch {
	case r.ID == "":
		return invalid(r.ID, CategoryRoom, "id", "is required")
	case r.Capacity < 0:
		return invalid(r.ID, CategoryRoom, "capacity", "is negative")
	case r.Rate.IsNegative():
		return invalid(r.ID, CategoryRoom, "rate", "is negative")
	}
	return nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// Payment is one billing period's rent for a tenant.
type Payment struct {
	ID         RecordID
	TenantID   RecordID
	Period     string // YYYY-MM
	AmountDue  decimal.Decimal
	AmountPaid decimal.Decimal
	DueDate    Date
	Status     PaymentStatus // last derived value, display only

	// LateFee is the fee included in AmountDue; FeePeriod marks the billing
	// period it was assessed for so a fee is never applied twice.
	LateFee   decimal.Decimal
	FeePeriod string
}

func (p *Payment) RecordID() RecordID { return p.ID }
func (p *Payment) Category() Category { return CategoryPayment }

func (p *Payment) Validate() error {
	switch {
	case p.ID == "":
		return invalid(p.ID, CategoryPayment, "id", "is required")
	case p.TenantID == "":
		return invalid(p.ID, CategoryPayment, "tenant_id", "is required")
	case p.DueDate.IsZero():
		return invalid(p.ID, CategoryPayment, "due_date", "is required")
	case p.AmountDue.IsNegative():
		return invalid(p.ID, CategoryPayment, "amount_due", "is negative")
	case p.AmountPaid.IsNegative():
		return invalid(p.ID, CategoryPayment, "amount_paid", "is negative")
	}
	if _, err := ParseBillingPeriod(p.Period); err != nil {
		return invalid(p.ID, CategoryPayment, "period", "must be YYYY-MM")
	}
	return nil
}

// Outstanding returns the unpaid balance, never negative.
func (p *Payment) Outstanding() decimal.Decimal {
	bal := p.AmountDue.Sub(p.AmountPaid)
	if bal.IsNegative() {
		return decimal.Zero
	}
	return bal
}

// =============================================================================
// BOOKING
// =============================================================================

// Booking is a guest stay in a guest room, check-in and check-out inclusive.
type Booking struct {
	ID         RecordID
	RoomID     RecordID
	GuestName  string
	GuestEmail string
	CheckIn    Date
	CheckOut   Date
	Status     BookingStatus
}

func (b *Booking) RecordID() RecordID { return b.ID }
func (b *Booking) Category() Category { return CategoryBooking }

func (b *Booking) Validate() error {
	switch {
	case b.ID == "":
		return invalid(b.ID, CategoryBooking, "id", "is required")
	case b.RoomID == "":
		return invalid(b.ID, CategoryBooking, "room_id", "is required")
	case b.CheckIn.IsZero() || b.CheckOut.IsZero():
		return invalid(b.ID, CategoryBooking, "dates", "check_in and check_out are required")
	case b.CheckOut.Before(b.CheckIn):
		return invalid(b.ID, CategoryBooking, "check_out", "is before check_in")
	case !b.Status.valid():
		return invalid(b.ID, CategoryBooking, "status", "is unknown: "+string(b.Status))
	}
	return nil
}

// =============================================================================
// MAINTENANCE REQUEST
// =============================================================================

// MaintenanceRequest is a repair ticket against a room.
type MaintenanceRequest struct {
	ID          RecordID
	RoomID      RecordID
	Description string
	Urgency     Urgency
	Status      MaintenanceStatus
	ReportedOn  Date
}

func (m *MaintenanceRequest) RecordID() RecordID { return m.ID }
func (m *MaintenanceRequest) Category() Category { return CategoryMaintenance }

func (m *MaintenanceRequest) Validate() error {
	switch {
	case m.ID == "":
		return invalid(m.ID, CategoryMaintenance, "id", "is required")
	case m.RoomID == "":
		return invalid(m.ID, CategoryMaintenance, "room_id", "is required")
	case strings.TrimSpace(m.Description) == "":
		return invalid(m.ID, CategoryMaintenance, "description", "is required")
	case !m.Status.valid():
		return invalid(m.ID, CategoryMaintenance, "status", "is unknown: "+string(m.Status))
	}
	return nil
}

// IsOpen reports whether the ticket still blocks the room.
func (m *MaintenanceRequest) IsOpen() bool {
	return m.Status == MaintenanceOpen || m.Status == MaintenanceInProgress
}

// =============================================================================
// MALFORMED ROW
// =============================================================================

// MalformedRecord stands in for a stored row that could not be decoded, so a
// single bad row is skipped instead of failing the whole listing.
type MalformedRecord struct {
	ID   RecordID
	Kind Category
	Err  error
}

func (m *MalformedRecord) RecordID() RecordID { return m.ID }
func (m *MalformedRecord) Category() Category { return m.Kind }

func (m *MalformedRecord) Validate() error {
	return invalid(m.ID, m.Kind, "", "cannot be decoded: "+m.Err.Error())
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
