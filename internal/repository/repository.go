package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
)

// ErrStateChanged is returned by CompareAndSwap when the stored status no longer
// matches the expected one.
var ErrStateChanged = errors.New("booking state changed concurrently")

type EventFilter struct {
	Category string
	Location string
}

type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	// Get returns soft-deleted events too; callers decide what a deleted event allows.
	Get(ctx context.Context, id string) (*domain.Event, error)
	// GetForUpdate also locks the event's slots until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Event, error)
	List(ctx context.Context, filter EventFilter) ([]domain.Event, error)
	Update(ctx context.Context, event *domain.Event) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// ReserveSeats decrements the slot only if enough seats are left and returns the remainder.
	ReserveSeats(ctx context.Context, slotID int64, seats int) (int, error)
	ReleaseSeats(ctx context.Context, slotID int64, seats int) error
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	Get(ctx context.Context, id string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Booking, error)
	List(ctx context.Context) ([]domain.Booking, error)
	// CompareAndSwap stores next (and paymentID when non-empty) only if the stored status equals expect.
	CompareAndSwap(ctx context.Context, id string, expect, next domain.Status, paymentID string) (*domain.Booking, error)
	ListAwaitingReminder(ctx context.Context, kind domain.ReminderKind) ([]domain.Booking, error)
	// SetReminderSent flips the reminder flag to sent and reports whether this call changed it.
	SetReminderSent(ctx context.Context, id string, kind domain.ReminderKind, sent bool) (bool, error)
}

// Tx is one unit of work. Repositories obtained from it read and write inside the
// transaction; nothing is visible to other callers before Commit.
type Tx interface {
	Events() EventRepository
	Bookings() BookingRepository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Store interface {
	Events() EventRepository
	Bookings() BookingRepository
	Begin(ctx context.Context) (Tx, error)
}
