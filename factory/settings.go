/*
Package factory provides JSON to Go settings conversion.

PURPOSE:
  Converts the property's JSON settings file into a property.Config plus the
  mail relay and message template overrides. Settings are read once when a
  process starts and passed explicitly to the coordinator; nothing reads them
  from global state afterwards.

JSON SCHEMA:
  {
    "property_name": "Parsonage Living Community",
    "manager_email": "manager@example.org",
    "time_zone": "America/Chicago",
    "currency": "USD",
    "grace_period_days": 5,
    "late_fee": {"mode": "flat", "amount": "25.00"},
    "reminder_lead_days": 3,
    "invoice_day_of_month": 25,
    "rent_due_day_of_month": 1,
    "escalation_cadence_days": 7,
    "mail": {"host": "smtp.example.org", "port": 587, "username": "...", "from": "..."},
    "templates": {
      "rent_reminder": {"subject": "...", "body": "..."}
    }
  }

  Omitted fields keep their defaults (property.DefaultConfig).

ENVIRONMENT OVERRIDES:
  PARSONAGE_MANAGER_EMAIL, PARSONAGE_TIME_ZONE, PARSONAGE_GRACE_PERIOD_DAYS,
  PARSONAGE_LATE_FEE_AMOUNT, PARSONAGE_REMINDER_LEAD_DAYS,
  PARSONAGE_INVOICE_DAY, PARSONAGE_ESCALATION_CADENCE_DAYS,
  PARSONAGE_SMTP_HOST, PARSONAGE_SMTP_PORT, PARSONAGE_SMTP_USERNAME,
  PARSONAGE_SMTP_PASSWORD, PARSONAGE_SMTP_FROM

USAGE:
  settings, err := factory.LoadSettings("settings.json", os.LookupEnv)
  coord, err := sweep.New(store, store, dispatcher, clock, settings.Config, log)

SEE ALSO:
  - property/config.go: Config type and validation
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/warp/parsonage-engine/notify"
	"github.com/warp/parsonage-engine/property"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SettingsJSON is the JSON representation of the property settings.
type SettingsJSON struct {
	PropertyName          string                  `json:"property_name,omitempty"`
	ManagerEmail          string                  `json:"manager_email,omitempty"`
	TimeZone              string                  `json:"time_zone,omitempty"`
	Currency              string                  `json:"currency,omitempty"`
	GracePeriodDays       *int                    `json:"grace_period_days,omitempty"`
	LateFee               *LateFeeJSON            `json:"late_fee,omitempty"`
	ReminderLeadDays      *int                    `json:"reminder_lead_days,omitempty"`
	InvoiceDayOfMonth     *int                    `json:"invoice_day_of_month,omitempty"`
	RentDueDayOfMonth     *int                    `json:"rent_due_day_of_month,omitempty"`
	EscalationCadenceDays *int                    `json:"escalation_cadence_days,omitempty"`
	Mail                  *MailJSON               `json:"mail,omitempty"`
	Templates             map[string]TemplateJSON `json:"templates,omitempty"`
}

// LateFeeJSON represents the late fee policy.
type LateFeeJSON struct {
	Mode    string           `json:"mode,omitempty"` // flat, percent
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Percent *decimal.Decimal `json:"percent,omitempty"`
}

// MailJSON represents the SMTP relay.
type MailJSON struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
}

// TemplateJSON overrides one notification category's message.
type TemplateJSON struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Settings is the parsed, validated result.
type Settings struct {
	Config   property.Config
	Mail     *MailJSON // nil when no relay is configured
	Subjects map[notify.Category]string
	Bodies   map[notify.Category]string
}

// Templates builds the message templates with any overrides applied.
func (s *Settings) Templates() (*notify.Templates, error) {
	return notify.NewTemplates(s.Config.Currency, s.Subjects, s.Bodies)
}

// =============================================================================
// PARSING
// =============================================================================

// ParseSettings parses a JSON string into validated Settings.
func ParseSettings(jsonStr string) (*Settings, error) {
	var sj SettingsJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}
	return FromJSON(sj)
}

// FromJSON converts SettingsJSON to Settings, filling defaults.
func FromJSON(sj SettingsJSON) (*Settings, error) {
	cfg := property.DefaultConfig()

	setString(&cfg.PropertyName, sj.PropertyName)
	setString(&cfg.ManagerEmail, sj.ManagerEmail)
	setString(&cfg.TimeZone, sj.TimeZone)
	setString(&cfg.Currency, sj.Currency)
	setInt(&cfg.GracePeriodDays, sj.GracePeriodDays)
	setInt(&cfg.ReminderLeadDays, sj.ReminderLeadDays)
	setInt(&cfg.InvoiceDayOfMonth, sj.InvoiceDayOfMonth)
	setInt(&cfg.RentDueDayOfMonth, sj.RentDueDayOfMonth)
	setInt(&cfg.EscalationCadenceDays, sj.EscalationCadenceDays)

	if lf := sj.LateFee; lf != nil {
		if lf.Mode != "" {
			cfg.LateFeeMode = property.FeeMode(lf.Mode)
		}
		if lf.Amount != nil {
			cfg.LateFeeAmount = *lf.Amount
		}
		if lf.Percent != nil {
			cfg.LateFeePercent = *lf.Percent
		}
	}

	settings := &Settings{Config: cfg, Mail: sj.Mail}
	for name, tj := range sj.Templates {
		cat := notify.Category(name)
		if cat.Priority() == 99 {
			return nil, fmt.Errorf("unknown template category %q", name)
		}
		if tj.Subject != "" {
			if settings.Subjects == nil {
				settings.Subjects = make(map[notify.Category]string)
			}
			settings.Subjects[cat] = tj.Subject
		}
		if tj.Body != "" {
			if settings.Bodies == nil {
				settings.Bodies = make(map[notify.Category]string)
			}
			settings.Bodies[cat] = tj.Body
		}
	}

	if err := settings.validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Settings) validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if s.Mail != nil {
		if s.Mail.Host == "" || s.Mail.From == "" {
			return errors.New("mail requires host and from")
		}
		if s.Mail.Port == 0 {
			s.Mail.Port = 587
		}
	}
	_, err := s.Templates()
	return err
}

// ToJSON converts a Config back to its JSON form.
func ToJSON(cfg property.Config) SettingsJSON {
	amount, percent := cfg.LateFeeAmount, cfg.LateFeePercent
	grace, lead, invoice, due, cadence := cfg.GracePeriodDays, cfg.ReminderLeadDays,
		cfg.InvoiceDayOfMonth, cfg.RentDueDayOfMonth, cfg.EscalationCadenceDays
	return SettingsJSON{
		PropertyName:          cfg.PropertyName,
		ManagerEmail:          cfg.ManagerEmail,
		TimeZone:              cfg.TimeZone,
		Currency:              cfg.Currency,
		GracePeriodDays:       &grace,
		LateFee:               &LateFeeJSON{Mode: string(cfg.LateFeeMode), Amount: &amount, Percent: &percent},
		ReminderLeadDays:      &lead,
		InvoiceDayOfMonth:     &invoice,
		RentDueDayOfMonth:     &due,
		EscalationCadenceDays: &cadence,
	}
}

// =============================================================================
// LOADING
// =============================================================================

// LookupFunc reads an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadSettings reads a settings file and applies environment overrides.
// A missing file means defaults. lookup may be nil.
func LoadSettings(path string, lookup LookupFunc) (*Settings, error) {
	var sj SettingsJSON
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read settings: %w", err)
		default:
			if err := json.Unmarshal(data, &sj); err != nil {
				return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
			}
		}
	}
	if lookup != nil {
		if err := applyEnv(&sj, lookup); err != nil {
			return nil, err
		}
	}
	return FromJSON(sj)
}

func applyEnv(sj *SettingsJSON, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst **int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = &n
		return nil
	}

	str("PARSONAGE_MANAGER_EMAIL", &sj.ManagerEmail)
	str("PARSONAGE_TIME_ZONE", &sj.TimeZone)
	for key, dst := range map[string]**int{
		"PARSONAGE_GRACE_PERIOD_DAYS":       &sj.GracePeriodDays,
		"PARSONAGE_REMINDER_LEAD_DAYS":      &sj.ReminderLeadDays,
		"PARSONAGE_INVOICE_DAY":             &sj.InvoiceDayOfMonth,
		"PARSONAGE_ESCALATION_CADENCE_DAYS": &sj.EscalationCadenceDays,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("PARSONAGE_LATE_FEE_AMOUNT"); ok && v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("PARSONAGE_LATE_FEE_AMOUNT: %w", err)
		}
		if sj.LateFee == nil {
			sj.LateFee = &LateFeeJSON{}
		}
		sj.LateFee.Amount = &amount
	}

	if host, ok := lookup("PARSONAGE_SMTP_HOST"); ok && host != "" {
		if sj.Mail == nil {
			sj.Mail = &MailJSON{}
		}
		sj.Mail.Host = host
	}
	if sj.Mail != nil {
		str("PARSONAGE_SMTP_USERNAME", &sj.Mail.Username)
		str("PARSONAGE_SMTP_PASSWORD", &sj.Mail.Password)
		str("PARSONAGE_SMTP_FROM", &sj.Mail.From)
		if v, ok := lookup("PARSONAGE_SMTP_PORT"); ok && v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("PARSONAGE_SMTP_PORT: %w", err)
			}
			sj.Mail.Port = port
		}
	}
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
