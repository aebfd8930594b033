package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Status is the pair stored on every booking; transitions compare and swap both halves.
type Status struct {
	Booking BookingStatus
	Payment PaymentStatus
}

func (s Status) String() string {
	return fmt.Sprintf("%s/%s", s.Booking, s.Payment)
}

type Booking struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	UserEmail       string        `json:"user_email"`
	EventID         string        `json:"event_id"`
	EventDate       time.Time     `json:"event_date"`
	SlotTime        string        `json:"slot_time"`
	SeatsBooked     int           `json:"seats_booked"`
	BookingStatus   BookingStatus `json:"booking_status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentID       string        `json:"payment_id,omitempty"`
	Reminder24hSent bool          `json:"reminder_24h_sent"`
	Reminder1hSent  bool          `json:"reminder_1h_sent"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (b *Booking) Status() Status {
	return Status{Booking: b.BookingStatus, Payment: b.PaymentStatus}
}

func (b *Booking) SetStatus(s Status) {
	b.BookingStatus = s.Booking
	b.PaymentStatus = s.Payment
}

func (b *Booking) OwnedBy(userID string) bool {
	return userID != "" && b.UserID == userID
}

// VisibleTo reports whether the actor may read the booking.
func (b *Booking) VisibleTo(a Actor) bool {
	return b.OwnedBy(a.UserID) || a.IsAdmin()
}

func (b *Booking) Paid() bool {
	return b.BookingStatus == BookingStatusConfirmed && b.PaymentStatus == PaymentStatusPaid
}

func InitialStatus() Status {
	return Status{Booking: BookingStatusPending, Payment: PaymentStatusPending}
}

// OnPaid moves a pending booking to confirmed/paid.
func OnPaid(s Status) (Status, error) {
	if s.Booking != BookingStatusPending || s.Payment == PaymentStatusPaid {
		return s, &StateError{Op: "confirm payment", Current: s}
	}
	return Status{Booking: BookingStatusConfirmed, Payment: PaymentStatusPaid}, nil
}

// OnCancel cancels any booking that is not cancelled yet. A booking that never got
// paid has its payment marked failed.
func OnCancel(s Status) (Status, error) {
	switch s.Booking {
	case BookingStatusCancelled:
		return s, ErrAlreadyCancelled
	case BookingStatusPending:
		return Status{Booking: BookingStatusCancelled, Payment: PaymentStatusFailed}, nil
	case BookingStatusConfirmed:
		return Status{Booking: BookingStatusCancelled, Payment: s.Payment}, nil
	}
	return s, &StateError{Op: "cancel", Current: s}
}

// OnPaymentFailed records a failed charge; the booking stays pending so the user may retry.
func OnPaymentFailed(s Status) (Status, error) {
	if s.Booking != BookingStatusPending || s.Payment != PaymentStatusPending {
		return s, &StateError{Op: "fail payment", Current: s}
	}
	return Status{Booking: BookingStatusPending, Payment: PaymentStatusFailed}, nil
}
