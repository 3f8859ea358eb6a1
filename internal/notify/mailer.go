package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Recorder persists an audit row per attempted send. Optional.
type Recorder interface {
	RecordSend(ctx context.Context, recipient, kind, status string) error
}

// Mailer sends plain-text email via unauthenticated SMTP (Mailpit-compatible
// in dev, relay in production).
type Mailer struct {
	addr     string
	from     string
	recorder Recorder
}

func NewMailer(host, port, from string, recorder Recorder) *Mailer {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@bookline.local"
	}
	return &Mailer{
		addr:     fmt.Sprintf("%s:%s", host, port),
		from:     from,
		recorder: recorder,
	}
}

func (m *Mailer) SendAppointmentConfirmation(ctx context.Context, recipient string, nc Context) error {
	subject := fmt.Sprintf("Appointment confirmed — %s", nc.ServiceName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment with %s at %s is booked for %s.\n",
		nc.ClientName, nc.ServiceName, nc.ProviderName, nc.TenantName,
		nc.StartTime.Format("Mon, 02 Jan 2006 15:04 MST"),
	)
	return m.send(ctx, recipient, "appointment_confirmation", subject, body)
}

func (m *Mailer) SendPaymentConfirmation(ctx context.Context, recipient string, nc Context) error {
	subject := fmt.Sprintf("Payment received — %s", nc.ServiceName)
	body := fmt.Sprintf(
		"Hi %s,\n\nWe received your payment of %s for %s with %s on %s. Your appointment is confirmed.\n",
		nc.ClientName, formatAmount(nc.AmountCents, nc.Currency), nc.ServiceName, nc.ProviderName,
		nc.StartTime.Format("Mon, 02 Jan 2006 15:04 MST"),
	)
	return m.send(ctx, recipient, "payment_confirmation", subject, body)
}

func (m *Mailer) SendPaymentFailure(ctx context.Context, recipient string, nc Context) error {
	subject := fmt.Sprintf("Payment failed — %s", nc.ServiceName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour payment of %s for %s could not be processed. Your appointment is held as pending; please retry the payment.\n",
		nc.ClientName, formatAmount(nc.AmountCents, nc.Currency), nc.ServiceName,
	)
	return m.send(ctx, recipient, "payment_failure", subject, body)
}

func (m *Mailer) SendCancellation(ctx context.Context, recipient string, nc Context) error {
	subject := fmt.Sprintf("Appointment cancelled — %s", nc.ServiceName)
	refundLine := "No refund applies to this booking."
	if nc.RefundCents > 0 {
		refundLine = fmt.Sprintf("A refund of %s has been issued.", formatAmount(nc.RefundCents, nc.Currency))
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment on %s has been cancelled.\nReason: %s\n%s\n",
		nc.ClientName, nc.ServiceName,
		nc.StartTime.Format("Mon, 02 Jan 2006 15:04 MST"),
		nc.Reason, refundLine,
	)
	return m.send(ctx, recipient, "cancellation", subject, body)
}

func (m *Mailer) send(ctx context.Context, to, kind, subject, body string) error {
	err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(buildMessage(m.from, to, subject, body)))
	if m.recorder != nil {
		status := "sent"
		if err != nil {
			status = "failed"
		}
		_ = m.recorder.RecordSend(ctx, to, kind, status)
	}
	return err
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from, to, subject, body,
	)
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}
