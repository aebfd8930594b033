package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/lib/validate"
	"github.com/Domenick1991/eventflow/internal/notify"
	"github.com/Domenick1991/eventflow/internal/repository"
	"github.com/google/uuid"
)

// maxAttempts bounds optimistic retries when a status compare-and-swap loses a race.
const maxAttempts = 5

type BookingUseCase interface {
	CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error)
	GetBooking(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error)
	ListUserBookings(ctx context.Context, actor domain.Actor) ([]domain.Booking, error)
	ListAllBookings(ctx context.Context, actor domain.Actor) ([]domain.Booking, error)
	ConfirmBooking(ctx context.Context, id, paymentID string, actor domain.Actor) (*domain.Booking, error)
	ApplyPayment(ctx context.Context, id, paymentID string) (*domain.Booking, bool, error)
	MarkPaymentFailed(ctx context.Context, id string) (*domain.Booking, bool, error)
}

type Notifier interface {
	Submit(event kafka.BookingEvent)
}

type CreateBookingInput struct {
	EventID     string    `json:"eventId" validate:"required"`
	EventDate   time.Time `json:"eventDate" validate:"required"`
	SlotTime    string    `json:"slotTime" validate:"required"`
	SeatsBooked int       `json:"seatsBooked" validate:"gte=1"`
}

type BookingService struct {
	store    repository.Store
	notifier Notifier
	validate *validate.Validator
	log      *slog.Logger
}

type BookingServiceOption func(*BookingService)

func WithNotifier(n Notifier) BookingServiceOption {
	return func(s *BookingService) {
		s.notifier = n
	}
}

func NewBookingService(store repository.Store, log *slog.Logger, opts ...BookingServiceOption) *BookingService {
	service := &BookingService{
		store:    store,
		validate: validate.New(),
		log:      log.With(slog.String("component", "booking")),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking reserves seats and records a pending booking in one transaction.
func (s *BookingService) CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error) {
	const op = "booking.CreateBooking"

	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: no authenticated user", domain.ErrForbidden)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	event, err := tx.Events().Get(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if event.Deleted() {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, input.EventID)
	}
	slot, err := domain.FindSlot(event, input.EventDate, input.SlotTime)
	if err != nil {
		return nil, err
	}

	remaining, err := tx.Events().ReserveSeats(ctx, slot.ID, input.SeatsBooked)
	if err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		ID:          uuid.NewString(),
		UserID:      actor.UserID,
		UserEmail:   actor.Email,
		EventID:     event.ID,
		EventDate:   domain.CalendarDay(input.EventDate),
		SlotTime:    slot.Time,
		SeatsBooked: input.SeatsBooked,
	}
	booking.SetStatus(domain.InitialStatus())
	if err := tx.Bookings().Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	s.log.Info("booking created",
		slog.String("booking_id", booking.ID),
		slog.String("event_id", event.ID),
		slog.Int("seats", booking.SeatsBooked),
		slog.Int("remaining", remaining),
	)
	s.notify(kafka.EventBookingCreated, booking, event)
	return booking, nil
}

// CancelBooking cancels the booking and gives its seats back to the slot.
func (s *BookingService) CancelBooking(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	current, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.VisibleTo(actor) {
		return nil, fmt.Errorf("%w: booking belongs to another user", domain.ErrForbidden)
	}

	var (
		cancelled *domain.Booking
		event     *domain.Event
	)
	err = retryOnStateChange(ctx, func() error {
		cancelled, event, err = s.cancelOnce(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled", slog.String("booking_id", id), slog.String("by", actor.UserID))
	s.notify(kafka.EventBookingCancelled, cancelled, event)
	return cancelled, nil
}

func (s *BookingService) cancelOnce(ctx context.Context, id string) (*domain.Booking, *domain.Event, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := tx.Bookings().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	next, err := domain.OnCancel(current.Status())
	if err != nil {
		return nil, nil, err
	}
	cancelled, err := tx.Bookings().CompareAndSwap(ctx, id, current.Status(), next, "")
	if err != nil {
		return nil, nil, err
	}

	event, err := s.releaseSeats(ctx, tx, cancelled)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return cancelled, event, nil
}

// releaseSeats returns the booking's seats to its slot. A slot that can no longer
// be located is logged and skipped; the cancellation still stands.
func (s *BookingService) releaseSeats(ctx context.Context, tx repository.Tx, b *domain.Booking) (*domain.Event, error) {
	event, err := tx.Events().Get(ctx, b.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.reconciliationGap(b, err)
			return nil, nil
		}
		return nil, err
	}
	slot, err := domain.FindSlot(event, b.EventDate, b.SlotTime)
	if err == nil {
		err = tx.Events().ReleaseSeats(ctx, slot.ID, b.SeatsBooked)
	}
	if errors.Is(err, domain.ErrNotFound) {
		s.reconciliationGap(b, err)
		return event, nil
	}
	return event, err
}

func (s *BookingService) reconciliationGap(b *domain.Booking, err error) {
	s.log.Warn("seat release skipped, slot no longer exists",
		slog.String("booking_id", b.ID),
		slog.String("event_id", b.EventID),
		slog.String("event_date", b.EventDate.Format(time.DateOnly)),
		slog.String("slot_time", b.SlotTime),
		slog.Int("seats", b.SeatsBooked),
		sl.Err(err),
	)
}

func (s *BookingService) GetBooking(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.VisibleTo(actor) {
		return nil, fmt.Errorf("%w: booking belongs to another user", domain.ErrForbidden)
	}
	return b, nil
}

func (s *BookingService) ListUserBookings(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: no authenticated user", domain.ErrForbidden)
	}
	return s.store.Bookings().ListByUser(ctx, actor.UserID)
}

func (s *BookingService) ListAllBookings(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin access required", domain.ErrForbidden)
	}
	return s.store.Bookings().List(ctx)
}

// ConfirmBooking is the administrator's manual confirmation of a payment made
// outside the payment flow. Unlike ApplyPayment it rejects bookings that are
// no longer pending.
func (s *BookingService) ConfirmBooking(ctx context.Context, id, paymentID string, actor domain.Actor) (*domain.Booking, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin access required", domain.ErrForbidden)
	}
	if paymentID == "" {
		return nil, fmt.Errorf("%w: field paymentId is required", domain.ErrValidation)
	}

	var confirmed *domain.Booking
	err := retryOnStateChange(ctx, func() error {
		current, err := s.store.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		next, err := domain.OnPaid(current.Status())
		if err != nil {
			return err
		}
		confirmed, err = s.store.Bookings().CompareAndSwap(ctx, id, current.Status(), next, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking confirmed manually", slog.String("booking_id", id), slog.String("by", actor.UserID))
	s.notify(kafka.EventPaymentConfirmed, confirmed, s.lookupEvent(ctx, confirmed.EventID))
	return confirmed, nil
}

// ApplyPayment moves a pending booking to confirmed/paid. A booking that is
// already confirmed/paid is returned with applied=false and no error, so that a
// client confirmation and a provider callback can race safely.
func (s *BookingService) ApplyPayment(ctx context.Context, id, paymentID string) (*domain.Booking, bool, error) {
	var (
		out     *domain.Booking
		applied bool
	)
	err := retryOnStateChange(ctx, func() error {
		current, err := s.store.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Paid() {
			out, applied = current, false
			return nil
		}
		next, err := domain.OnPaid(current.Status())
		if err != nil {
			return err
		}
		out, err = s.store.Bookings().CompareAndSwap(ctx, id, current.Status(), next, paymentID)
		applied = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		s.log.Info("booking paid", slog.String("booking_id", id), slog.String("payment_id", paymentID))
	}
	return out, applied, nil
}

// MarkPaymentFailed records a failed charge on a booking that is still
// pending/pending. Any other state is left untouched and reported with applied=false.
func (s *BookingService) MarkPaymentFailed(ctx context.Context, id string) (*domain.Booking, bool, error) {
	var (
		out     *domain.Booking
		applied bool
	)
	err := retryOnStateChange(ctx, func() error {
		current, err := s.store.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		next, err := domain.OnPaymentFailed(current.Status())
		if err != nil {
			out, applied = current, false
			return nil
		}
		out, err = s.store.Bookings().CompareAndSwap(ctx, id, current.Status(), next, "")
		applied = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		s.log.Info("booking payment failed", slog.String("booking_id", id))
	}
	return out, applied, nil
}

func (s *BookingService) lookupEvent(ctx context.Context, id string) *domain.Event {
	event, err := s.store.Events().Get(ctx, id)
	if err != nil {
		s.log.Warn("failed to load event for notification", slog.String("event_id", id), sl.Err(err))
		return nil
	}
	return event
}

func (s *BookingService) notify(eventType string, b *domain.Booking, event *domain.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Submit(notify.Message(eventType, b, event))
}

func retryOnStateChange(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); !errors.Is(err, repository.ErrStateChanged) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: booking kept changing, try again", domain.ErrConflict)
}

var _ BookingUseCase = (*BookingService)(nil)
