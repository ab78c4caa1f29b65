/*
scenarios.go - Sample property loader for demos and development

PURPOSE:
  Populates the store with a small, realistic property so the sweep, the
  status endpoint and the guest queries have something to work on. Dates
  are relative to today so the data stays interesting whenever it is loaded.

THE SAMPLE PROPERTY:
  R101   Tenant A. Okafor, rent partially paid this cycle
  R102   Tenant B. Lindqvist, rent unpaid this cycle
  R103   Lease starts in ten days; open High-urgency radiator ticket
  G1     Guest room: one confirmed stay arriving today, one pending stay

USAGE VIA API:

	POST /api/sample-data

USAGE VIA CLI:

	parsonage seed

NOTE:
  If the store can be reset, it is cleared first. Only use in
  development/demo environments.

SEE ALSO:
  - handlers.go: Other endpoints
  - cmd/parsonage/main.go: seed command
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/sweep"
)

// LoadSampleData replaces the store's contents with the sample property.
func (h *Handler) LoadSampleData(w http.ResponseWriter, r *http.Request) {
	today := h.Coordinator.Clock.Today()
	summary, err := LoadSample(r.Context(), h.Store, today, h.Coordinator.Config)
	if err != nil {
		h.writeDomainError(w, "failed to load sample data", err)
		return
	}
	h.Logger.Info("sample data loaded", zap.Stringer("today", today))
	writeJSON(w, http.StatusCreated, summary)
}

// LoadSample writes the sample property in one transaction, resetting the
// store first when it supports it.
func LoadSample(ctx context.Context, store property.TxRepository, today property.Date, cfg property.Config) (SampleDataResponse, error) {
	if rs, ok := store.(Resetter); ok {
		if err := rs.Reset(ctx); err != nil {
			return SampleDataResponse{}, &property.StoreError{Op: "reset", Err: err}
		}
	}

	records := SampleProperty(today, cfg)
	var summary SampleDataResponse
	err := store.WithTx(ctx, func(repo property.Repository) error {
		for _, rec := range records {
			if err := repo.Put(ctx, rec); err != nil {
				return err
			}
			switch rec.Category() {
			case property.CategoryRoom:
				summary.Rooms++
			case property.CategoryTenant:
				summary.Tenants++
			case property.CategoryPayment:
				summary.Payments++
			case property.CategoryBooking:
				summary.Bookings++
			case property.CategoryMaintenance:
				summary.Maintenance++
			}
		}
		return nil
	})
	if err != nil {
		return SampleDataResponse{}, err
	}
	return summary, nil
}

// SampleProperty builds the sample records as of today.
func SampleProperty(today property.Date, cfg property.Config) []property.Record {
	rooms := []property.Record{
		&property.Room{ID: "R101", Name: "Garden Room", Capacity: 1, Rate: decimal.NewFromInt(650)},
		&property.Room{ID: "R102", Name: "Study Room", Capacity: 1, Rate: decimal.NewFromInt(600)},
		&property.Room{ID: "R103", Name: "Corner Room", Capacity: 2, Rate: decimal.NewFromInt(700)},
		&property.Room{ID: "G1", Name: "Guest Suite", Capacity: 2, Rate: decimal.NewFromInt(45), Guest: true},
	}

	okafor := &property.Tenant{
		ID: "T-OKAFOR", Name: "Adaeze Okafor", Email: "adaeze.okafor@example.com",
		RoomID: "R101", LeaseStart: today.AddDays(-200), MonthlyRent: decimal.NewFromInt(650),
	}
	lindqvist := &property.Tenant{
		ID: "T-LINDQVIST", Name: "Bo Lindqvist", Email: "bo.lindqvist@example.com",
		RoomID: "R102", LeaseStart: today.AddDays(-90), LeaseEnd: today.AddDays(275),
		MonthlyRent: decimal.NewFromInt(600),
	}
	moreau := &property.Tenant{
		ID: "T-MOREAU", Name: "Camille Moreau", Email: "camille.moreau@example.com",
		RoomID: "R103", LeaseStart: today.AddDays(10), MonthlyRent: decimal.NewFromInt(700),
	}

	due := lastDueDate(today, cfg)
	partial := sweep.NewRentPayment(okafor, due)
	partial.AmountPaid = decimal.NewFromInt(300)
	partial.Status = property.PaymentPartial
	unpaid := sweep.NewRentPayment(lindqvist, due)
	unpaid.Status = property.PaymentStatusOf(unpaid, today, cfg.GracePeriodDays)

	records := append(rooms, okafor, lindqvist, moreau, partial, unpaid)
	return append(records,
		&property.Booking{
			ID: "B-1001", RoomID: "G1", GuestName: "Rev. J. Hartley", GuestEmail: "j.hartley@example.com",
			CheckIn: today, CheckOut: today.AddDays(2), Status: property.BookingConfirmed,
		},
		&property.Booking{
			ID: "B-1002", RoomID: "G1", GuestName: "M. Osei",
			CheckIn: today.AddDays(5), CheckOut: today.AddDays(7), Status: property.BookingPending,
		},
		&property.MaintenanceRequest{
			ID: "M-501", RoomID: "R103", Description: "Radiator leaking under the window",
			Urgency: property.UrgencyHigh, Status: property.MaintenanceOpen, ReportedOn: today.AddDays(-1),
		},
	)
}

// lastDueDate is the most recent rent due date on or before today.
func lastDueDate(today property.Date, cfg property.Config) property.Date {
	due := property.ClampDay(today.Year(), today.Month(), cfg.RentDueDayOfMonth)
	if due.After(today) {
		prev := property.NewDate(today.Year(), today.Month(), 1).AddMonths(-1)
		due = property.ClampDay(prev.Year(), prev.Month(), cfg.RentDueDayOfMonth)
	}
	return due
}
