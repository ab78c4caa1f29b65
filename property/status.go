/*
status.go - State Machine Engine

PURPOSE:
  Computes the current status of rooms, payments, bookings and maintenance
  tickets from their record fields and today's date. Every function here is
  pure: the same inputs always give the same status, nothing is read from
  or written to a store.

DERIVATION RULES:
  Payment:
    Paid     amount paid >= amount due (terminal for the period)
    Partial  0 < amount paid < amount due
    Overdue  nothing paid and today > due date + grace period
    Due      otherwise

  Booking (Pending and Cancelled are operator states):
    Checked Out  today > check-out
    Checked In   check-in <= today <= check-out
    Confirmed    before check-in

  Room (first match wins):
    Maintenance  any open ticket on the room
    Occupied     an active lease or a checked-in guest
    Pending      a confirmed guest not yet arrived
    Vacant       otherwise

SEE ALSO:
  - transitions.go: Operator-driven transitions (confirm, cancel, start, ...)
  - fee.go: Late fee assessment on top of PaymentStatusOf
*/
package property

import (
	"fmt"
	"sort"
)

// =============================================================================
// PAYMENT
// =============================================================================

// PaymentStatusOf derives a payment's status on a given day.
func PaymentStatusOf(p *Payment, today Date, graceDays int) PaymentStatus {
	switch {
	case p.AmountPaid.GreaterThanOrEqual(p.AmountDue):
		return PaymentPaid
	case p.AmountPaid.IsPositive():
		return PaymentPartial
	case today.After(p.DueDate.AddDays(graceDays)):
		return PaymentOverdue
	default:
		return PaymentDue
	}
}

// OverdueSince returns the first day the payment counts as overdue.
func OverdueSince(p *Payment, graceDays int) Date {
	return p.DueDate.AddDays(graceDays + 1)
}

// =============================================================================
// BOOKING
// =============================================================================

// BookingStatusOf derives a booking's status on a given day.
//
// Confirmed and Checked In bookings follow the calendar. A booking checked in
// early by an operator stays Checked In; Checked Out is never undone.
func BookingStatusOf(b *Booking, today Date) BookingStatus {
	switch b.Status {
	case BookingPending, BookingCancelled, BookingCheckedOut:
		return b.Status
	}

	switch {
	case today.After(b.CheckOut):
		return BookingCheckedOut
	case today.AfterOrEqual(b.CheckIn):
		return BookingCheckedIn
	case b.Status == BookingCheckedIn:
		return BookingCheckedIn
	default:
		return BookingConfirmed
	}
}

// Holds reports whether the booking reserves its room (Confirmed or Checked In).
func Holds(s BookingStatus) bool {
	return s == BookingConfirmed || s == BookingCheckedIn
}

// Overlaps reports whether two stays share a night. A guest may check in on
// the day another checks out.
func Overlaps(a, b *Booking) bool {
	return a.CheckIn.Before(b.CheckOut) && b.CheckIn.Before(a.CheckOut)
}

// CheckAvailability reports whether room is free for [checkIn, checkOut]
// given existing bookings, and returns the conflicting bookings if not.
func CheckAvailability(bookings []*Booking, roomID RecordID, checkIn, checkOut Date, today Date) (bool, []*Booking) {
	want := &Booking{CheckIn: checkIn, CheckOut: checkOut}
	var conflicts []*Booking
	for _, b := range bookings {
		if b.RoomID != roomID || !Holds(BookingStatusOf(b, today)) {
			continue
		}
		if Overlaps(want, b) {
			conflicts = append(conflicts, b)
		}
	}
	return len(conflicts) == 0, conflicts
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// MaintenanceStatusOf returns the ticket's status. Maintenance is operator
// driven, so this only checks that the stored status is a known state.
func MaintenanceStatusOf(m *MaintenanceRequest) (MaintenanceStatus, error) {
	if !m.Status.valid() {
		return "", invalid(m.ID, CategoryMaintenance, "status", "is unknown: "+string(m.Status))
	}
	return m.Status, nil
}

// =============================================================================
// ROOM
// =============================================================================

// RoomStatusOf derives a room's status from the records currently active on it.
// Any argument may be nil.
func RoomStatusOf(room *Room, occupancy *Tenant, booking *Booking, maintenance *MaintenanceRequest) RoomStatus {
	switch {
	case maintenance != nil && maintenance.IsOpen():
		return RoomMaintenance
	case occupancy != nil:
		return RoomOccupied
	case booking != nil && booking.Status == BookingCheckedIn:
		return RoomOccupied
	case booking != nil && booking.Status == BookingConfirmed:
		return RoomPending
	default:
		return RoomVacant
	}
}

// ResolveRoomStatus picks the active lease, booking and ticket for a room out
// of the given records and derives its status. Bookings must already carry
// their derived status.
//
// A room may hold at most one active lease and one reserving booking, never
// both a lease and a checked-in guest, and its reserving bookings must not
// overlap. Any violation is an InvalidRecord error for the room.
func ResolveRoomStatus(room *Room, tenants []*Tenant, bookings []*Booking, tickets []*MaintenanceRequest, today Date) (RoomStatus, error) {
	var occupant *Tenant
	for _, t := range tenants {
		if t.RoomID != room.ID || !t.OccupiesOn(today) {
			continue
		}
		if occupant != nil {
			return "", invalid(room.ID, CategoryRoom, "occupancy",
				fmt.Sprintf("has two active leases (%s, %s)", occupant.ID, t.ID))
		}
		occupant = t
	}

	var holding []*Booking
	for _, b := range bookings {
		if b.RoomID == room.ID && Holds(b.Status) {
			holding = append(holding, b)
		}
	}
	sort.Slice(holding, func(i, j int) bool { return holding[i].CheckIn.Before(holding[j].CheckIn) })
	for i := 1; i < len(holding); i++ {
		if Overlaps(holding[i-1], holding[i]) {
			return "", invalid(room.ID, CategoryRoom, "bookings",
				fmt.Sprintf("has overlapping reservations (%s, %s)", holding[i-1].ID, holding[i].ID))
		}
	}

	// The booking that determines status: a checked-in guest first, else the
	// next confirmed arrival.
	var active *Booking
	for _, b := range holding {
		if b.Status == BookingCheckedIn {
			if active != nil && active.Status == BookingCheckedIn {
				return "", invalid(room.ID, CategoryRoom, "bookings",
					fmt.Sprintf("has two checked-in guests (%s, %s)", active.ID, b.ID))
			}
			active = b
		} else if active == nil {
			active = b
		}
	}
	if occupant != nil && active != nil && active.Status == BookingCheckedIn {
		return "", invalid(room.ID, CategoryRoom, "occupancy",
			fmt.Sprintf("is leased to %s and checked in by %s", occupant.ID, active.ID))
	}

	var ticket *MaintenanceRequest
	for _, m := range tickets {
		if m.RoomID == room.ID && m.IsOpen() {
			ticket = m
			break
		}
	}

	return RoomStatusOf(room, occupant, active, ticket), nil
}

// =============================================================================
// TENANT
// =============================================================================

type TenantStatus string

const (
	TenantActive   TenantStatus = "Active"
	TenantUpcoming TenantStatus = "Upcoming"
	TenantEnded    TenantStatus = "Ended"
	TenantMovedOut TenantStatus = "Moved Out"
)

// TenantStatusOf describes where a tenant is in their lease on a given day.
func TenantStatusOf(t *Tenant, today Date) TenantStatus {
	switch {
	case t.MovedOut:
		return TenantMovedOut
	case today.Before(t.LeaseStart):
		return TenantUpcoming
	case t.OccupiesOn(today):
		return TenantActive
	default:
		return TenantEnded
	}
}
