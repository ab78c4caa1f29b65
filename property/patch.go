package property

import "github.com/shopspring/decimal"

// Patch is a partial update to a record. Nil / empty fields are left unchanged.
// Setting a field the record does not have is an InvalidRecord error.
type Patch struct {
	Status     string
	AmountDue  *decimal.Decimal
	AmountPaid *decimal.Decimal
	LateFee    *decimal.Decimal
	FeePeriod  *string
	LeaseEnd   *Date
	MovedOut   *bool
}

// StatusPatch is a patch that only rewrites the status cache.
func StatusPatch[S ~string](s S) Patch { return Patch{Status: string(s)} }

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == "" && p.AmountDue == nil && p.AmountPaid == nil &&
		p.LateFee == nil && p.FeePeriod == nil && p.LeaseEnd == nil && p.MovedOut == nil
}

// ApplyPatch returns a patched copy of rec. The original is not modified.
func ApplyPatch(rec Record, p Patch) (Record, error) {
	switch r := rec.(type) {
	case *Tenant:
		c := *r
		if p.Status != "" || p.AmountDue != nil || p.AmountPaid != nil || p.LateFee != nil || p.FeePeriod != nil {
			return nil, invalid(r.ID, CategoryTenant, "patch", "sets fields a tenant does not have")
		}
		if p.LeaseEnd != nil {
			c.LeaseEnd = *p.LeaseEnd
		}
		if p.MovedOut != nil {
			c.MovedOut = *p.MovedOut
		}
		return &c, c.Validate()

	case *Room:
		c := *r
		if !onlyStatus(p) {
			return nil, invalid(r.ID, CategoryRoom, "patch", "only status can be patched")
		}
		if p.Status != "" {
			c.Status = RoomStatus(p.Status)
		}
		return &c, c.Validate()

	case *Payment:
		c := *r
		if p.LeaseEnd != nil || p.MovedOut != nil {
			return nil, invalid(r.ID, CategoryPayment, "patch", "sets fields a payment does not have")
		}
		if p.Status != "" {
			c.Status = PaymentStatus(p.Status)
		}
		if p.AmountDue != nil {
			c.AmountDue = *p.AmountDue
		}
		if p.AmountPaid != nil {
			c.AmountPaid = *p.AmountPaid
		}
		if p.LateFee != nil {
			c.LateFee = *p.LateFee
		}
		if p.FeePeriod != nil {
			c.FeePeriod = *p.FeePeriod
		}
		return &c, c.Validate()

	case *Booking:
		c := *r
		if !onlyStatus(p) {
			return nil, invalid(r.ID, CategoryBooking, "patch", "only status can be patched")
		}
		if p.Status != "" {
			c.Status = BookingStatus(p.Status)
		}
		return &c, c.Validate()

	case *MaintenanceRequest:
		c := *r
		if !onlyStatus(p) {
			return nil, invalid(r.ID, CategoryMaintenance, "patch", "only status can be patched")
		}
		if p.Status != "" {
			c.Status = MaintenanceStatus(p.Status)
		}
		return &c, c.Validate()
	}
	return nil, &InvalidRecordError{ID: rec.RecordID(), Category: rec.Category(), Reason: "unsupported record type"}
}

func onlyStatus(p Patch) bool {
	return p.AmountDue == nil && p.AmountPaid == nil && p.LateFee == nil &&
		p.FeePeriod == nil && p.LeaseEnd == nil && p.MovedOut == nil
}
