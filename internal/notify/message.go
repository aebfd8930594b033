package notify

import (
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/kafka"
)

// Message builds the notification payload for a booking. event may be nil when it
// could not be loaded; the notification then carries booking fields only.
func Message(eventType string, b *domain.Booking, event *domain.Event) kafka.BookingEvent {
	msg := kafka.BookingEvent{
		Type:       eventType,
		BookingID:  b.ID,
		UserID:     b.UserID,
		Email:      b.UserEmail,
		EventID:    b.EventID,
		EventDate:  b.EventDate,
		SlotTime:   b.SlotTime,
		Seats:      b.SeatsBooked,
		PaymentID:  b.PaymentID,
		Status:     b.Status().String(),
		OccurredAt: time.Now().UTC(),
	}
	if event != nil {
		msg.EventTitle = event.Title
		msg.Location = event.Location
		msg.AmountCents = event.PriceCents * int64(b.SeatsBooked)
	}
	return msg
}
