package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/parsonage-engine/property"
)

// =============================================================================
// SMTP
// =============================================================================

func TestSMTPDispatcher_ComposesPlainTextMail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	disp := NewSMTPDispatcher("mail.example.com", 587, "", "", "office@example.com")
	disp.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := disp.Send(context.Background(), "t1@example.com", "Rent\nreminder", "line one\nline two\n")

	require.NoError(t, err)
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "office@example.com", gotFrom)
	assert.Equal(t, []string{"t1@example.com"}, gotTo)
	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: Rent reminder\r\n")
	assert.Contains(t, msg, "To: t1@example.com\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two\r\n"))
	assert.Nil(t, disp.Auth)
}

func TestSMTPDispatcher_SubjectCannotInjectHeaders(t *testing.T) {
	// GIVEN: A subject carrying bare CR and CRLF sequences
	// THEN: The message has exactly one header per line and no Bcc header
	var gotMsg []byte
	disp := NewSMTPDispatcher("mail.example.com", 587, "", "", "office@example.com")
	disp.sendMail = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	err := disp.Send(context.Background(), "t1@example.com", "Rent\rBcc: x@evil.test\r\nX-A: 1", "body")

	require.NoError(t, err)
	header, _, found := strings.Cut(string(gotMsg), "\r\n\r\n")
	require.True(t, found)
	assert.NotContains(t, header, "\rBcc")
	assert.Contains(t, header, "Subject: Rent Bcc: x@evil.test X-A: 1\r\n")
	for _, line := range strings.Split(header, "\r\n") {
		assert.NotContains(t, line, "\r", line)
		assert.NotContains(t, line, "\n", line)
	}
}

func TestSMTPDispatcher_FailureIsDispatchError(t *testing.T) {
	disp := NewSMTPDispatcher("mail.example.com", 25, "user", "secret", "office@example.com")
	disp.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("421 service not available")
	}

	err := disp.Send(context.Background(), "t1@example.com", "s", "b")

	assert.ErrorIs(t, err, property.ErrDispatch)
	var de *property.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "t1@example.com", de.Recipient)
	assert.NotNil(t, disp.Auth)
}

func TestSMTPDispatcher_CancelledContext(t *testing.T) {
	disp := NewSMTPDispatcher("mail.example.com", 25, "", "", "office@example.com")
	disp.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not send after cancellation")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, disp.Send(ctx, "t1@example.com", "s", "b"), property.ErrDispatch)
}

func TestLogDispatcher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	disp := LogDispatcher{Logger: zap.New(core)}

	require.NoError(t, disp.Send(context.Background(), "t1@example.com", "Hello", "body"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t1@example.com", fields["recipient"])
	assert.Equal(t, "Hello", fields["subject"])
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestTemplates_OverrideAndCurrency(t *testing.T) {
	tmpl, err := NewTemplates("EUR",
		map[Category]string{RentReminder: "Miete fällig am {{.DueDate}}"},
		map[Category]string{RentReminder: "Betrag: {{money .Amount}}"},
	)
	require.NoError(t, err)

	subject, body, err := tmpl.Render(RentReminder, Message{
		DueDate: d("2024-02-01"), Amount: decimal.RequireFromString("650.5"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Miete fällig am 2024-02-01", subject)
	assert.Equal(t, "Betrag: EUR 650.50", body)
}

func TestTemplates_BadOverrideRejected(t *testing.T) {
	_, err := NewTemplates("USD", map[Category]string{GuestDigest: "{{.Nope"}, nil)
	assert.Error(t, err)
}

func TestTemplates_UnknownCategory(t *testing.T) {
	tmpl, err := DefaultTemplates("USD")
	require.NoError(t, err)
	_, _, err = tmpl.Render("fax", Message{})
	assert.Error(t, err)
}
