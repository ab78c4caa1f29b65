package property

import (
	"context"

	"github.com/looplab/fsm"
)

// Booking events.
const (
	EventConfirm  = "confirm"
	EventCheckIn  = "check_in"
	EventCheckOut = "check_out"
	EventCancel   = "cancel"
)

// Maintenance events. EventCancel is shared with bookings.
const (
	EventStart    = "start"
	EventComplete = "complete"
)

var bookingTransitions = fsm.Events{
	// pending -> confirmed
	{Name: EventConfirm, Src: []string{string(BookingPending)}, Dst: string(BookingConfirmed)},
	// confirmed -> checked in
	{Name: EventCheckIn, Src: []string{string(BookingConfirmed)}, Dst: string(BookingCheckedIn)},
	// checked in -> checked out
	{Name: EventCheckOut, Src: []string{string(BookingCheckedIn)}, Dst: string(BookingCheckedOut)},
	// cancellation only before arrival
	{
		Name: EventCancel,
		Src:  []string{string(BookingPending), string(BookingConfirmed)},
		Dst:  string(BookingCancelled),
	},
}

var maintenanceTransitions = fsm.Events{
	// open -> in progress
	{Name: EventStart, Src: []string{string(MaintenanceOpen)}, Dst: string(MaintenanceInProgress)},
	// in progress -> completed
	{Name: EventComplete, Src: []string{string(MaintenanceInProgress)}, Dst: string(MaintenanceCompleted)},
	// open/in progress -> cancelled
	{
		Name: EventCancel,
		Src:  []string{string(MaintenanceOpen), string(MaintenanceInProgress)},
		Dst:  string(MaintenanceCancelled),
	},
}

// TransitionBooking applies an operator event to a booking as of today and
// returns the resulting status. The booking itself is not modified.
//
// The event is checked against the booking's derived status, so a stay whose
// check-out date has passed cannot be cancelled even if its stored status
// still says Checked In. When the calendar has already made the move the
// event asks for (check_in on the arrival day), the event succeeds with the
// derived status so the caller can persist it.
func TransitionBooking(ctx context.Context, b *Booking, today Date, event string) (BookingStatus, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	current := BookingStatusOf(b, today)
	if current != b.Status && promotes(bookingTransitions, event, string(b.Status), string(current)) {
		return current, nil
	}
	next, err := fire(ctx, b.ID, string(current), event, bookingTransitions)
	if err != nil {
		return current, err
	}
	return BookingStatus(next), nil
}

// ConfirmBooking confirms a pending booking after checking the room is free.
// others are the bookings already on file; b itself is ignored if present.
func ConfirmBooking(ctx context.Context, b *Booking, others []*Booking, today Date) (BookingStatus, error) {
	var rest []*Booking
	for _, o := range others {
		if o.ID != b.ID {
			rest = append(rest, o)
		}
	}
	if free, _ := CheckAvailability(rest, b.RoomID, b.CheckIn, b.CheckOut, today); !free {
		return BookingStatusOf(b, today), &TransitionError{
			ID:    b.ID,
			From:  string(BookingStatusOf(b, today)),
			Event: EventConfirm,
			Err:   ErrBookingOverlap,
		}
	}
	return TransitionBooking(ctx, b, today, EventConfirm)
}

// TransitionMaintenance applies an operator event to a maintenance ticket.
// Completed and Cancelled tickets reject every event.
func TransitionMaintenance(ctx context.Context, m *MaintenanceRequest, event string) (MaintenanceStatus, error) {
	current, err := MaintenanceStatusOf(m)
	if err != nil {
		return "", err
	}
	next, err := fire(ctx, m.ID, string(current), event, maintenanceTransitions)
	if err != nil {
		return current, err
	}
	return MaintenanceStatus(next), nil
}

// promotes reports whether event takes from to to.
func promotes(events fsm.Events, event, from, to string) bool {
	for _, e := range events {
		if e.Name != event || e.Dst != to {
			continue
		}
		for _, src := range e.Src {
			if src == from {
				return true
			}
		}
	}
	return false
}

func fire(ctx context.Context, id RecordID, current, event string, events fsm.Events) (string, error) {
	machine := fsm.NewFSM(current, events, fsm.Callbacks{})
	if err := machine.Event(ctx, event); err != nil {
		return "", &TransitionError{ID: id, From: current, Event: event, Err: err}
	}
	return machine.Current(), nil
}
