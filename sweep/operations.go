package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/property"
)

// =============================================================================
// STATUS QUERY
// =============================================================================

// StatusView is the derived status of one record.
type StatusView struct {
	ID       property.RecordID
	Category property.Category
	Status   string
	Stored   string // cached value in the store, if the category has one
	AsOf     property.Date

	// Payments only.
	Outstanding *decimal.Decimal
	FeeApplied  bool
}

// GetStatus derives the current status of any record. Read-only.
func (c *Coordinator) GetStatus(ctx context.Context, id property.RecordID) (*StatusView, error) {
	cfg := c.Config
	today := c.Clock.Today()

	rec, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get", id, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	view := &StatusView{ID: id, Category: rec.Category(), AsOf: today}
	switch r := rec.(type) {
	case *property.Tenant:
		view.Status = string(property.TenantStatusOf(r, today))
	case *property.Payment:
		view.Status = string(property.PaymentStatusOf(r, today, cfg.GracePeriodDays))
		view.Stored = string(r.Status)
		out := r.Outstanding()
		view.Outstanding = &out
		view.FeeApplied = property.FeeApplied(r)
	case *property.Booking:
		view.Status = string(property.BookingStatusOf(r, today))
		view.Stored = string(r.Status)
	case *property.MaintenanceRequest:
		s, err := property.MaintenanceStatusOf(r)
		if err != nil {
			return nil, err
		}
		view.Status = string(s)
		view.Stored = string(r.Status)
	case *property.Room:
		s, err := deriveRoom(ctx, c.Store, r, today)
		if err != nil {
			return nil, err
		}
		view.Status = string(s)
		view.Stored = string(r.Status)
	}
	return view, nil
}

// deriveRoom loads the records active on a room and derives its status.
func deriveRoom(ctx context.Context, store property.RecordStore, room *property.Room, today property.Date) (property.RoomStatus, error) {
	snap, err := property.LoadSnapshot(ctx, store, today,
		property.CategoryTenant, property.CategoryBooking, property.CategoryMaintenance)
	if err != nil {
		return "", err
	}
	for _, b := range snap.Bookings {
		b.Status = property.BookingStatusOf(b, today)
	}
	return property.ResolveRoomStatus(room, snap.Tenants, snap.Bookings, snap.Maintenance, today)
}

// refreshRoom rewrites a room's cached status after an operator action.
func refreshRoom(ctx context.Context, repo property.Repository, roomID property.RecordID, today property.Date) error {
	rec, err := repo.Get(ctx, roomID)
	if errors.Is(err, property.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	room, ok := rec.(*property.Room)
	if !ok {
		return nil
	}
	status, err := deriveRoom(ctx, repo, room, today)
	if err != nil {
		return err
	}
	if status == room.Status {
		return nil
	}
	return repo.Update(ctx, roomID, property.StatusPatch(status))
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPayment adds a received amount to a payment and refreshes its status.
func (c *Coordinator) RecordPayment(ctx context.Context, paymentID property.RecordID, amount decimal.Decimal) (*property.Payment, error) {
	if !amount.IsPositive() {
		return nil, &property.InvalidRecordError{
			ID: paymentID, Category: property.CategoryPayment, Field: "amount", Reason: "must be positive",
		}
	}
	today := c.Clock.Today()
	grace := c.Config.GracePeriodDays

	var updated *property.Payment
	err := c.Store.WithTx(ctx, func(repo property.Repository) error {
		pay, err := getPayment(ctx, repo, paymentID)
		if err != nil {
			return err
		}
		next := *pay
		next.AmountPaid = pay.AmountPaid.Add(amount)
		next.Status = property.PaymentStatusOf(&next, today, grace)

		patch := property.StatusPatch(next.Status)
		patch.AmountPaid = &next.AmountPaid
		if err := repo.Update(ctx, paymentID, patch); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, storeErr("record payment", paymentID, err)
	}
	c.Logger.Info("payment received",
		zap.String("payment_id", string(paymentID)),
		zap.Stringer("amount", amount),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func getPayment(ctx context.Context, repo property.RecordStore, id property.RecordID) (*property.Payment, error) {
	rec, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pay, ok := rec.(*property.Payment)
	if !ok {
		return nil, &property.InvalidRecordError{ID: id, Category: rec.Category(), Reason: "is not a payment"}
	}
	return pay, nil
}

// =============================================================================
// LEASES
// =============================================================================

// MoveIn registers a new tenant, opens their first rent payment and marks
// the room. The room must exist, must not be a guest room, and must not be
// leased to anyone else for an overlapping term.
func (c *Coordinator) MoveIn(ctx context.Context, t *property.Tenant) (*property.Payment, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	cfg := c.Config
	today := c.Clock.Today()

	var first *property.Payment
	err := c.Store.WithTx(ctx, func(repo property.Repository) error {
		if _, err := repo.Get(ctx, t.ID); err == nil {
			return &property.InvalidRecordError{ID: t.ID, Category: property.CategoryTenant, Field: "id", Reason: "already exists"}
		} else if !errors.Is(err, property.ErrNotFound) {
			return err
		}

		rec, err := repo.Get(ctx, t.RoomID)
		if errors.Is(err, property.ErrNotFound) {
			return &property.InvalidRecordError{ID: t.ID, Category: property.CategoryTenant, Field: "room_id", Reason: "references unknown room " + string(t.RoomID)}
		}
		if err != nil {
			return err
		}
		room, ok := rec.(*property.Room)
		if !ok {
			return &property.InvalidRecordError{ID: t.ID, Category: property.CategoryTenant, Field: "room_id", Reason: "is not a room"}
		}
		if room.Guest {
			return &property.InvalidRecordError{ID: t.ID, Category: property.CategoryTenant, Field: "room_id", Reason: "is a guest room"}
		}

		tenants, err := repo.ListActive(ctx, property.CategoryTenant)
		if err != nil {
			return err
		}
		for _, other := range tenants {
			o, ok := other.(*property.Tenant)
			if ok && o.RoomID == t.RoomID && leasesOverlap(o, t) {
				return &property.InvalidRecordError{
					ID: t.ID, Category: property.CategoryTenant, Field: "room_id",
					Reason: fmt.Sprintf("is already leased to %s", o.ID),
				}
			}
		}

		if err := repo.Put(ctx, t); err != nil {
			return err
		}
		if t.MonthlyRent.IsPositive() {
			first = NewRentPayment(t, cfg.NextDueDate(t.LeaseStart))
			if err := repo.Put(ctx, first); err != nil {
				return err
			}
		}
		return refreshRoom(ctx, repo, t.RoomID, today)
	})
	if err != nil {
		return nil, storeErr("move in", t.ID, err)
	}
	c.Logger.Info("tenant moved in", zap.String("tenant_id", string(t.ID)), zap.String("room_id", string(t.RoomID)))
	return first, nil
}

// leasesOverlap reports whether two lease terms share a day. A zero end is open.
func leasesOverlap(a, b *property.Tenant) bool {
	aEndsBefore := !a.LeaseEnd.IsZero() && a.LeaseEnd.Before(b.LeaseStart)
	bEndsBefore := !b.LeaseEnd.IsZero() && b.LeaseEnd.Before(a.LeaseStart)
	return !aEndsBefore && !bEndsBefore
}

// MoveOut ends a tenant's lease on the given day (today if zero) and frees
// the room.
func (c *Coordinator) MoveOut(ctx context.Context, tenantID property.RecordID, on property.Date) error {
	today := c.Clock.Today()
	if on.IsZero() {
		on = today
	}

	err := c.Store.WithTx(ctx, func(repo property.Repository) error {
		rec, err := repo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		t, ok := rec.(*property.Tenant)
		if !ok {
			return &property.InvalidRecordError{ID: tenantID, Category: rec.Category(), Reason: "is not a tenant"}
		}
		if t.MovedOut {
			return &property.TransitionError{ID: tenantID, From: string(property.TenantMovedOut), Event: "move_out"}
		}
		if on.Before(t.LeaseStart) {
			return &property.InvalidRecordError{ID: tenantID, Category: property.CategoryTenant, Field: "lease_end", Reason: "is before lease_start"}
		}
		moved := true
		if err := repo.Update(ctx, tenantID, property.Patch{LeaseEnd: &on, MovedOut: &moved}); err != nil {
			return err
		}
		return refreshRoom(ctx, repo, t.RoomID, today)
	})
	if err != nil {
		return storeErr("move out", tenantID, err)
	}
	c.Logger.Info("tenant moved out", zap.String("tenant_id", string(tenantID)), zap.Stringer("on", on))
	return nil
}

// =============================================================================
// BOOKINGS AND MAINTENANCE
// =============================================================================

// TransitionBooking applies an operator event to a stored booking.
// Confirming checks the room is free.
func (c *Coordinator) TransitionBooking(ctx context.Context, id property.RecordID, event string) (property.BookingStatus, error) {
	today := c.Clock.Today()

	var next property.BookingStatus
	err := c.Store.WithTx(ctx, func(repo property.Repository) error {
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		b, ok := rec.(*property.Booking)
		if !ok {
			return &property.InvalidRecordError{ID: id, Category: rec.Category(), Reason: "is not a booking"}
		}

		if event == property.EventConfirm {
			active, lerr := repo.ListActive(ctx, property.CategoryBooking)
			if lerr != nil {
				return lerr
			}
			others := make([]*property.Booking, 0, len(active))
			for _, a := range active {
				if ob, ok := a.(*property.Booking); ok {
					others = append(others, ob)
				}
			}
			next, err = property.ConfirmBooking(ctx, b, others, today)
		} else {
			next, err = property.TransitionBooking(ctx, b, today, event)
		}
		if err != nil {
			return err
		}

		if err := repo.Update(ctx, id, property.StatusPatch(next)); err != nil {
			return err
		}
		return refreshRoom(ctx, repo, b.RoomID, today)
	})
	if err != nil {
		return "", storeErr("transition booking", id, err)
	}
	c.Logger.Info("booking transitioned",
		zap.String("booking_id", string(id)), zap.String("event", event), zap.String("status", string(next)))
	return next, nil
}

// TransitionMaintenance applies an operator event to a stored ticket.
func (c *Coordinator) TransitionMaintenance(ctx context.Context, id property.RecordID, event string) (property.MaintenanceStatus, error) {
	today := c.Clock.Today()

	var next property.MaintenanceStatus
	err := c.Store.WithTx(ctx, func(repo property.Repository) error {
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		m, ok := rec.(*property.MaintenanceRequest)
		if !ok {
			return &property.InvalidRecordError{ID: id, Category: rec.Category(), Reason: "is not a maintenance request"}
		}
		next, err = property.TransitionMaintenance(ctx, m, event)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, id, property.StatusPatch(next)); err != nil {
			return err
		}
		return refreshRoom(ctx, repo, m.RoomID, today)
	})
	if err != nil {
		return "", storeErr("transition maintenance", id, err)
	}
	c.Logger.Info("maintenance transitioned",
		zap.String("request_id", string(id)), zap.String("event", event), zap.String("status", string(next)))
	return next, nil
}

// ReportMaintenance files a new Open ticket and marks the room.
func (c *Coordinator) ReportMaintenance(ctx context.Context, m *property.MaintenanceRequest) error {
	today := c.Clock.Today()
	if m.Status == "" {
		m.Status = property.MaintenanceOpen
	}
	if m.Urgency == "" {
		m.Urgency = property.UrgencyNormal
	}
	if m.ReportedOn.IsZero() {
		m.ReportedOn = today
	}
	if err := m.Validate(); err != nil {
		return err
	}
	err := c.Store.WithTx(ctx, func(repo property.Repository) error {
		if _, err := repo.Get(ctx, m.RoomID); err != nil {
			if errors.Is(err, property.ErrNotFound) {
				return &property.InvalidRecordError{ID: m.ID, Category: property.CategoryMaintenance, Field: "room_id", Reason: "references unknown room " + string(m.RoomID)}
			}
			return err
		}
		if err := repo.Put(ctx, m); err != nil {
			return err
		}
		return refreshRoom(ctx, repo, m.RoomID, today)
	})
	if err != nil {
		return storeErr("report maintenance", m.ID, err)
	}
	return nil
}

// =============================================================================
// GUEST QUERIES
// =============================================================================

// RoomAvailability reports whether a room is free for a stay.
func (c *Coordinator) RoomAvailability(ctx context.Context, roomID property.RecordID, checkIn, checkOut property.Date) (bool, []*property.Booking, error) {
	if checkIn.IsZero() || checkOut.IsZero() || checkOut.Before(checkIn) {
		return false, nil, &property.InvalidRecordError{ID: roomID, Category: property.CategoryRoom, Field: "dates", Reason: "need check_in <= check_out"}
	}
	if _, err := c.Store.Get(ctx, roomID); err != nil {
		return false, nil, storeErr("get", roomID, err)
	}
	today := c.Clock.Today()
	snap, err := property.LoadSnapshot(ctx, c.Store, today, property.CategoryBooking)
	if err != nil {
		return false, nil, err
	}
	free, conflicts := property.CheckAvailability(snap.Bookings, roomID, checkIn, checkOut, today)
	return free, conflicts, nil
}

// GuestsToday lists the bookings arriving and departing today.
func (c *Coordinator) GuestsToday(ctx context.Context) (arrivals, departures []*property.Booking, err error) {
	today := c.Clock.Today()
	snap, err := property.LoadSnapshot(ctx, c.Store, today, property.CategoryBooking)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range snap.Bookings {
		switch property.BookingStatusOf(b, today) {
		case property.BookingPending, property.BookingCancelled:
			continue
		}
		if b.CheckIn.Equal(today) {
			arrivals = append(arrivals, b)
		}
		if b.CheckOut.Equal(today) {
			departures = append(departures, b)
		}
	}
	return arrivals, departures, nil
}

// ListRuns returns recent sweep runs, newest first.
func (c *Coordinator) ListRuns(ctx context.Context, limit int) ([]property.SweepRun, error) {
	if c.Runs == nil {
		return nil, nil
	}
	return c.Runs.ListSweepRuns(ctx, limit)
}
