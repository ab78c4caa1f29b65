package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/warp/parsonage-engine/property"
)

// Message is the data every template is rendered with.
type Message struct {
	Property string
	Currency string
	Today    property.Date

	Tenant  *property.Tenant
	Payment *property.Payment
	Fee     *property.FeeAssessment
	Period  string
	Amount  decimal.Decimal
	DueDate property.Date

	Request    *property.MaintenanceRequest
	Arrivals   []*property.Booking
	Departures []*property.Booking
}

// Templates renders the subject and body of each notification category.
type Templates struct {
	subjects map[Category]*template.Template
	bodies   map[Category]*template.Template
}

var defaultSubjects = map[Category]string{
	LatePaymentAlert: `{{.Property}}: rent for {{.Period}} is overdue`,
	MaintenanceAlert: `{{.Property}}: {{.Request.Urgency}} maintenance in room {{.Request.RoomID}}`,
	RentReminder:     `{{.Property}}: rent due {{.DueDate}}`,
	MonthlyInvoice:   `{{.Property}}: invoice for {{.Period}}`,
	GuestDigest:      `{{.Property}}: guest arrivals and departures for {{.Today}}`,
}

var defaultBodies = map[Category]string{
	LatePaymentAlert: `Dear {{.Tenant.Name}},

Your rent for {{.Period}} was due on {{.Payment.DueDate}} and has not been received.
{{- if .Fee}}
A late fee of {{money .Fee.Amount}} has been added to your balance.
{{- end}}
Outstanding balance: {{money .Amount}}

Please arrange payment as soon as possible.

{{.Property}}
`,
	MaintenanceAlert: `Maintenance request {{.Request.ID}} for room {{.Request.RoomID}} is open.

Urgency:     {{.Request.Urgency}}
Reported on: {{.Request.ReportedOn}}

{{.Request.Description}}
`,
	RentReminder: `Dear {{.Tenant.Name}},

This is a reminder that your rent of {{money .Amount}} for {{.Period}} is due on {{.DueDate}}.

{{.Property}}
`,
	MonthlyInvoice: `Dear {{.Tenant.Name}},

Invoice for {{.Period}}

Room:       {{.Tenant.RoomID}}
Amount due: {{money .Amount}}
Due date:   {{.DueDate}}

{{.Property}}
`,
	GuestDigest: `Guest activity for {{.Today}}

Arrivals ({{len .Arrivals}}):
{{- range .Arrivals}}
  - {{.GuestName}}, room {{.RoomID}} ({{.ID}}), until {{.CheckOut}}
{{- else}}
  none
{{- end}}

Departures ({{len .Departures}}):
{{- range .Departures}}
  - {{.GuestName}}, room {{.RoomID}} ({{.ID}})
{{- else}}
  none
{{- end}}
`,
}

// DefaultTemplates returns the built-in templates, formatting money in currency.
func DefaultTemplates(currency string) (*Templates, error) {
	return NewTemplates(currency, nil, nil)
}

// NewTemplates parses the built-in templates, replacing any category present
// in the override maps.
func NewTemplates(currency string, subjects, bodies map[Category]string) (*Templates, error) {
	funcs := template.FuncMap{"money": moneyFormatter(currency)}
	t := &Templates{
		subjects: make(map[Category]*template.Template),
		bodies:   make(map[Category]*template.Template),
	}
	for cat, src := range defaultSubjects {
		if s, ok := subjects[cat]; ok {
			src = s
		}
		tmpl, err := template.New(string(cat) + ".subject").Funcs(funcs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", cat, err)
		}
		t.subjects[cat] = tmpl
	}
	for cat, src := range defaultBodies {
		if s, ok := bodies[cat]; ok {
			src = s
		}
		tmpl, err := template.New(string(cat) + ".body").Funcs(funcs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", cat, err)
		}
		t.bodies[cat] = tmpl
	}
	return t, nil
}

// Render produces the subject and body of a category's message.
func (t *Templates) Render(cat Category, msg Message) (string, string, error) {
	subject, ok := t.subjects[cat]
	if !ok {
		return "", "", fmt.Errorf("no template for %s", cat)
	}
	var sb, bb bytes.Buffer
	if err := subject.Execute(&sb, msg); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", cat, err)
	}
	if err := t.bodies[cat].Execute(&bb, msg); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", cat, err)
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}

func moneyFormatter(currency string) func(decimal.Decimal) string {
	symbol := currency + " "
	if currency == "USD" || currency == "" {
		symbol = "$"
	}
	return func(d decimal.Decimal) string {
		return symbol + d.StringFixed(2)
	}
}
