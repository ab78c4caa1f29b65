package property

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FeeMode selects how the late fee amount is computed.
type FeeMode string

const (
	FeeFlat    FeeMode = "flat"    // fixed LateFeeAmount
	FeePercent FeeMode = "percent" // LateFeePercent of the outstanding balance
)

// Config is the policy configuration for a run. It is read once when a run
// starts and passed explicitly; nothing in the engine reads global settings.
type Config struct {
	PropertyName string
	ManagerEmail string
	TimeZone     string
	Currency     string

	GracePeriodDays       int
	LateFeeMode           FeeMode
	LateFeeAmount         decimal.Decimal
	LateFeePercent        decimal.Decimal
	ReminderLeadDays      int
	InvoiceDayOfMonth     int
	RentDueDayOfMonth     int
	EscalationCadenceDays int // 0 = never re-send a late alert
}

// DefaultConfig returns the settings the property started with.
func DefaultConfig() Config {
	return Config{
		PropertyName:          "Parsonage Living Community",
		TimeZone:              "UTC",
		Currency:              "USD",
		GracePeriodDays:       5,
		LateFeeMode:           FeeFlat,
		LateFeeAmount:         decimal.NewFromInt(25),
		LateFeePercent:        decimal.Zero,
		ReminderLeadDays:      3,
		InvoiceDayOfMonth:     25,
		RentDueDayOfMonth:     1,
		EscalationCadenceDays: 7,
	}
}

// Validate rejects settings no run could honour.
func (c Config) Validate() error {
	switch {
	case c.ManagerEmail != "" && !validEmail(c.ManagerEmail):
		return fmt.Errorf("manager email %q is not a valid address", c.ManagerEmail)
	case c.GracePeriodDays < 0:
		return fmt.Errorf("grace period days must be >= 0, got %d", c.GracePeriodDays)
	case c.ReminderLeadDays < 0:
		return fmt.Errorf("reminder lead days must be >= 0, got %d", c.ReminderLeadDays)
	case c.EscalationCadenceDays < 0:
		return fmt.Errorf("escalation cadence days must be >= 0, got %d", c.EscalationCadenceDays)
	case c.InvoiceDayOfMonth < 1 || c.InvoiceDayOfMonth > 31:
		return fmt.Errorf("invoice day of month must be 1-31, got %d", c.InvoiceDayOfMonth)
	case c.RentDueDayOfMonth < 1 || c.RentDueDayOfMonth > 31:
		return fmt.Errorf("rent due day of month must be 1-31, got %d", c.RentDueDayOfMonth)
	case c.LateFeeAmount.IsNegative():
		return fmt.Errorf("late fee amount must be >= 0, got %s", c.LateFeeAmount)
	}
	switch c.LateFeeMode {
	case FeeFlat, "":
	case FeePercent:
		if c.LateFeePercent.IsNegative() || c.LateFeePercent.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("late fee percent must be 0-100, got %s", c.LateFeePercent)
		}
	default:
		return fmt.Errorf("unknown late fee mode %q", c.LateFeeMode)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured time zone. Empty means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// InvoiceDate returns the invoice day for the month containing d.
func (c Config) InvoiceDate(d Date) Date {
	return ClampDay(d.Year(), d.Month(), c.InvoiceDayOfMonth)
}

// NextDueDate returns the first rent due date on or after d.
func (c Config) NextDueDate(d Date) Date {
	due := ClampDay(d.Year(), d.Month(), c.RentDueDayOfMonth)
	if due.Before(d) {
		next := NewDate(d.Year(), d.Month(), 1).AddMonths(1)
		due = ClampDay(next.Year(), next.Month(), c.RentDueDayOfMonth)
	}
	return due
}
