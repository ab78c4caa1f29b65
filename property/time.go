package property

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day in the property's time zone
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a civil calendar day. All lease, due and booking dates are compared
// at day granularity; the time of day never matters.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf converts an instant into the calendar day it falls on in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	in := t.In(loc)
	return NewDate(in.Year(), in.Month(), in.Day())
}

// ParseDate parses a YYYY-MM-DD string. An empty string is the zero Date.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// MustParseDate is ParseDate for fixtures; it panics on malformed input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// DaysSince returns the whole days from other to d (negative if d is earlier).
func (d Date) DaysSince(other Date) int {
	return int(d.t.Sub(other.t).Hours() / 24)
}

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MarshalText encodes the date as YYYY-MM-DD, or "" when zero.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// BillingPeriod returns the YYYY-MM period key the date belongs to.
func (d Date) BillingPeriod() string {
	return d.t.Format("2006-01")
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay returns the given day of the month, or the last day of the month
// when the month is shorter (a 31st invoice day becomes Feb 28/29).
func ClampDay(year int, month time.Month, day int) Date {
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// ParseBillingPeriod validates a YYYY-MM period key and returns its first day.
func ParseBillingPeriod(period string) (Date, error) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return Date{}, fmt.Errorf("invalid billing period %q (use YYYY-MM): %w", period, err)
	}
	return NewDate(t.Year(), t.Month(), 1), nil
}

// =============================================================================
// CLOCK - Source of "today"
// =============================================================================

// Clock supplies the current calendar day in the configured time zone.
// A sweep reads it exactly once so every record sees the same today.
type Clock interface {
	Today() Date
}

// SystemClock reads the wall clock.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() Date {
	return DateOf(time.Now(), c.Location)
}

// FixedClock always returns the same day. Used by tests and the CLI --date flag.
type FixedClock struct {
	Date Date
}

func (c FixedClock) Today() Date { return c.Date }
