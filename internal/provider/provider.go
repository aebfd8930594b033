// Package provider describes what the payment coordinator needs from an
// external payment gateway. Implementations live in subpackages.
package provider

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Domenick1991/eventflow/internal/domain"
)

var (
	ErrNotConfigured    = fmt.Errorf("%w: payment service not configured", domain.ErrUnavailable)
	ErrInvalidSignature = fmt.Errorf("%w: webhook signature verification failed", domain.ErrPaymentVerification)
)

type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentCanceled              IntentStatus = "canceled"
)

// Metadata is attached to every intent so that callbacks can be routed back to a booking.
type Metadata struct {
	BookingID   string
	UserID      string
	EventID     string
	SeatsBooked int
}

func (m Metadata) Map() map[string]string {
	return map[string]string{
		"bookingId":   m.BookingID,
		"userId":      m.UserID,
		"eventId":     m.EventID,
		"seatsBooked": strconv.Itoa(m.SeatsBooked),
	}
}

func MetadataFromMap(values map[string]string) Metadata {
	seats, _ := strconv.Atoi(values["seatsBooked"])
	return Metadata{
		BookingID:   values["bookingId"],
		UserID:      values["userId"],
		EventID:     values["eventId"],
		SeatsBooked: seats,
	}
}

type IntentRequest struct {
	AmountCents int64
	Description string
	Metadata    Metadata
}

type Intent struct {
	ID           string       `json:"id"`
	ClientSecret string       `json:"-"`
	AmountCents  int64        `json:"amountCents"`
	Currency     string       `json:"currency"`
	Status       IntentStatus `json:"status"`
	Metadata     Metadata     `json:"-"`
}

type WebhookEventType string

const (
	EventIntentSucceeded WebhookEventType = "payment_intent.succeeded"
	EventIntentFailed    WebhookEventType = "payment_intent.payment_failed"
)

// WebhookEvent is a verified provider callback. Intent is nil for event types
// that do not carry a payment intent.
type WebhookEvent struct {
	ID     string
	Type   WebhookEventType
	Intent *Intent
}

type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	// ParseWebhook verifies the signature before decoding anything from payload.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
	// MinimumAmount is the smallest chargeable amount in cents.
	MinimumAmount() int64
}
