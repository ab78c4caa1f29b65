package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/property"
)

// Dispatcher delivers a message to one recipient.
type Dispatcher interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, recipient, subject, body string) error

func (f DispatcherFunc) Send(ctx context.Context, recipient, subject, body string) error {
	return f(ctx, recipient, subject, body)
}

// =============================================================================
// LOG DISPATCHER
// =============================================================================

// LogDispatcher writes messages to the log instead of sending them.
// Used in development and by the CLI's dry runs.
type LogDispatcher struct {
	Logger *zap.Logger
}

func (d LogDispatcher) Send(_ context.Context, recipient, subject, body string) error {
	d.Logger.Info("notification",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// =============================================================================
// SMTP DISPATCHER
// =============================================================================

// SMTPDispatcher sends plain-text mail through an SMTP relay.
type SMTPDispatcher struct {
	Addr string // host:port
	From string
	Auth smtp.Auth // nil for an unauthenticated relay

	// sendMail is smtp.SendMail; replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPDispatcher creates a dispatcher using PLAIN auth when a username is set.
func NewSMTPDispatcher(host string, port int, username, password, from string) *SMTPDispatcher {
	d := &SMTPDispatcher{Addr: fmt.Sprintf("%s:%d", host, port), From: from}
	if username != "" {
		d.Auth = smtp.PlainAuth("", username, password, host)
	}
	return d
}

func (d *SMTPDispatcher) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return &property.DispatchError{Recipient: recipient, Err: err}
	}
	send := d.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(d.Addr, d.Auth, d.From, []string{recipient}, d.compose(recipient, subject, body)); err != nil {
		return &property.DispatchError{Recipient: recipient, Err: err}
	}
	return nil
}

// headerSafe folds line breaks so a subject cannot start a new header.
var headerSafe = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func (d *SMTPDispatcher) compose(recipient, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", d.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSafe.Replace(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
