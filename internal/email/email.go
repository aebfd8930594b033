// Package email renders booking notifications and delivers them over SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/eventflow/config"
	"github.com/Domenick1991/eventflow/internal/kafka"
)

type message struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2>{{.Heading}}</h2>
<p>{{.Lead}}</p>
<table>
<tr><td><strong>Event</strong></td><td>{{.Event.EventTitle}}</td></tr>
<tr><td><strong>Date</strong></td><td>{{.Date}}</td></tr>
<tr><td><strong>Time</strong></td><td>{{.Event.SlotTime}}</td></tr>
<tr><td><strong>Location</strong></td><td>{{.Event.Location}}</td></tr>
<tr><td><strong>Seats</strong></td><td>{{.Event.Seats}}</td></tr>
{{if .Amount}}<tr><td><strong>Total</strong></td><td>{{.Amount}}</td></tr>{{end}}
<tr><td><strong>Booking ID</strong></td><td>{{.Event.BookingID}}</td></tr>
</table>
<p>Thank you for using EventFlow.</p>
</body></html>`

var templates = map[string]struct{ subject, heading, lead string }{
	kafka.EventBookingCreated: {
		subject: "Booking Received - %s",
		heading: "Your booking is reserved",
		lead:    "Your seats are held. Complete the payment to confirm the booking.",
	},
	kafka.EventPaymentConfirmed: {
		subject: "Payment Confirmed - %s",
		heading: "Payment confirmed",
		lead:    "Your payment was received and your booking is confirmed.",
	},
	kafka.EventPaymentFailed: {
		subject: "Payment Failed - %s",
		heading: "Payment failed",
		lead:    "Your payment did not go through. Your seats are still held, you can try paying again.",
	},
	kafka.EventBookingCancelled: {
		subject: "Booking Cancelled - %s",
		heading: "Booking cancelled",
		lead:    "Your booking has been cancelled and the seats were released.",
	},
	kafka.EventReminder24h: {
		subject: "Reminder: %s is Tomorrow!",
		heading: "See you tomorrow",
		lead:    "This is a friendly reminder that your event starts in about 24 hours.",
	},
	kafka.EventReminder1h: {
		subject: "Final Reminder: %s Starts in 1 Hour!",
		heading: "Starting soon",
		lead:    "Your event starts in about an hour.",
	},
}

var page = template.Must(template.New("email").Parse(layout))

type view struct {
	Heading string
	Lead    string
	Date    string
	Amount  string
	Event   kafka.BookingEvent
}

// Render returns the subject and HTML body for a notification.
func Render(event kafka.BookingEvent) (string, string, error) {
	tpl, ok := templates[event.Type]
	if !ok {
		return "", "", fmt.Errorf("no email template for %q", event.Type)
	}
	v := view{
		Heading: tpl.heading,
		Lead:    tpl.lead,
		Date:    event.EventDate.Format("Monday, January 2, 2006"),
		Event:   event,
	}
	if event.AmountCents > 0 {
		v.Amount = fmt.Sprintf("$%d.%02d", event.AmountCents/100, event.AmountCents%100)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, v); err != nil {
		return "", "", fmt.Errorf("render %s: %w", event.Type, err)
	}
	title := event.EventTitle
	if title == "" {
		title = "your event"
	}
	return fmt.Sprintf(tpl.subject, title), buf.String(), nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	cfg     config.SMTPConfig
	deliver sendFunc
	log     *slog.Logger
}

func NewSender(cfg config.SMTPConfig, log *slog.Logger) *Sender {
	return &Sender{cfg: cfg, deliver: smtp.SendMail, log: log.With(slog.String("component", "email"))}
}

func (s *Sender) Configured() bool {
	return s.cfg.Host != ""
}

// Send renders the notification and mails it. Without an SMTP host the message
// is only logged.
func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Email == "" {
		s.log.Warn("notification without recipient", slog.String("type", event.Type), slog.String("booking_id", event.BookingID))
		return nil
	}
	subject, body, err := Render(event)
	if err != nil {
		return err
	}

	if !s.Configured() {
		s.log.Info("email service not configured, would send",
			slog.String("to", event.Email), slog.String("subject", subject))
		return nil
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.deliver(addr, auth, s.cfg.From, []string{event.Email}, s.compose(event.Email, subject, body)); err != nil {
		return fmt.Errorf("send email to %s: %w", event.Email, err)
	}
	s.log.Info("email sent", slog.String("to", event.Email), slog.String("type", event.Type))
	return nil
}

func (s *Sender) compose(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: EventFlow <%s>\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
