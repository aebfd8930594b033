package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/notify"
	"github.com/Domenick1991/eventflow/internal/provider"
	"github.com/Domenick1991/eventflow/internal/repository"
)

type PaymentUseCase interface {
	CreateIntent(ctx context.Context, bookingID string, actor domain.Actor) (*IntentResult, error)
	ConfirmFromClient(ctx context.Context, bookingID, intentID string, actor domain.Actor) (*ConfirmResult, error)
	HandleProviderCallback(ctx context.Context, payload []byte, signature string) error
	Status(ctx context.Context, bookingID string, actor domain.Actor) (*StatusSnapshot, error)
}

// Transitions is the part of the booking engine that folds payment outcomes into booking state.
type Transitions interface {
	ApplyPayment(ctx context.Context, id, paymentID string) (*domain.Booking, bool, error)
	MarkPaymentFailed(ctx context.Context, id string) (*domain.Booking, bool, error)
}

// DeliveryLog remembers provider callback ids already processed.
type DeliveryLog interface {
	WebhookEventSeen(ctx context.Context, eventID string) (bool, error)
	RememberWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) error
}

type Notifier interface {
	Submit(event kafka.BookingEvent)
}

// VerificationError is returned when the provider does not report the intent as paid.
type VerificationError struct {
	ProviderStatus provider.IntentStatus
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment not completed, status: %s", e.ProviderStatus)
}

func (e *VerificationError) Unwrap() error {
	return domain.ErrPaymentVerification
}

type IntentResult struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"paymentIntentId"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
}

type ConfirmResult struct {
	Booking          *domain.Booking `json:"booking"`
	AlreadyConfirmed bool            `json:"alreadyConfirmed"`
}

type StatusSnapshot struct {
	BookingID     string               `json:"id"`
	BookingStatus domain.BookingStatus `json:"bookingStatus"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	PaymentID     string               `json:"paymentId,omitempty"`
	AmountCents   int64                `json:"amountCents"`
	SeatsBooked   int                  `json:"seatsBooked"`
	Intent        *provider.Intent     `json:"paymentIntent"`
}

type Config struct {
	// ProviderTimeout bounds every call to the payment provider.
	ProviderTimeout time.Duration
	DedupeTTL       time.Duration
}

type PaymentService struct {
	store       repository.Store
	transitions Transitions
	provider    provider.Provider
	deliveries  DeliveryLog
	notifier    Notifier
	cfg         Config
	log         *slog.Logger
}

type PaymentServiceOption func(*PaymentService)

func WithDeliveryLog(d DeliveryLog) PaymentServiceOption {
	return func(s *PaymentService) {
		s.deliveries = d
	}
}

func WithNotifier(n Notifier) PaymentServiceOption {
	return func(s *PaymentService) {
		s.notifier = n
	}
}

func NewPaymentService(
	store repository.Store,
	transitions Transitions,
	p provider.Provider,
	cfg Config,
	log *slog.Logger,
	opts ...PaymentServiceOption,
) *PaymentService {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	service := &PaymentService{
		store:       store,
		transitions: transitions,
		provider:    p,
		cfg:         cfg,
		log:         log.With(slog.String("component", "payment")),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *PaymentService) ownedBooking(ctx context.Context, bookingID string, actor domain.Actor) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("%w: field bookingId is required", domain.ErrValidation)
	}
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(actor.UserID) {
		return nil, fmt.Errorf("%w: booking belongs to another user", domain.ErrForbidden)
	}
	return b, nil
}

// CreateIntent opens a provider intent for the booking's full amount. Seats are
// already reserved at this point, so a slow provider holds no locks.
func (s *PaymentService) CreateIntent(ctx context.Context, bookingID string, actor domain.Actor) (*IntentResult, error) {
	b, err := s.ownedBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if b.BookingStatus != domain.BookingStatusPending || b.PaymentStatus == domain.PaymentStatusPaid {
		return nil, &domain.StateError{Op: "create payment intent", Current: b.Status()}
	}

	event, err := s.store.Events().Get(ctx, b.EventID)
	if err != nil {
		return nil, err
	}
	if event.Deleted() {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, b.EventID)
	}

	amount := event.PriceCents * int64(b.SeatsBooked)
	if amount < s.provider.MinimumAmount() {
		return nil, fmt.Errorf("%w: %d cents, minimum is %d", domain.ErrInvalidAmount, amount, s.provider.MinimumAmount())
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	intent, err := s.provider.CreateIntent(callCtx, provider.IntentRequest{
		AmountCents: amount,
		Description: fmt.Sprintf("Payment for %s - %d seat(s)", event.Title, b.SeatsBooked),
		Metadata: provider.Metadata{
			BookingID:   b.ID,
			UserID:      b.UserID,
			EventID:     b.EventID,
			SeatsBooked: b.SeatsBooked,
		},
	})
	if err != nil {
		return nil, providerErr("create payment intent", err)
	}

	s.log.Info("payment intent created",
		slog.String("booking_id", b.ID),
		slog.String("intent_id", intent.ID),
		slog.Int64("amount_cents", amount),
	)
	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		AmountCents:  amount,
		Currency:     intent.Currency,
	}, nil
}

// ConfirmFromClient verifies the intent with the provider and confirms the booking.
// The client's own view of the payment outcome is never trusted.
func (s *PaymentService) ConfirmFromClient(ctx context.Context, bookingID, intentID string, actor domain.Actor) (*ConfirmResult, error) {
	if bookingID == "" || intentID == "" {
		return nil, fmt.Errorf("%w: fields bookingId and paymentIntentId are required", domain.ErrValidation)
	}
	if _, err := s.ownedBooking(ctx, bookingID, actor); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	intent, err := s.provider.GetIntent(callCtx, intentID)
	if err != nil {
		return nil, providerErr("verify payment intent", err)
	}
	if intent.Metadata.BookingID != bookingID {
		return nil, fmt.Errorf("%w: payment intent does not match booking", domain.ErrPaymentVerification)
	}
	if intent.Status != provider.IntentSucceeded {
		return nil, &VerificationError{ProviderStatus: intent.Status}
	}

	b, applied, err := s.transitions.ApplyPayment(ctx, bookingID, intent.ID)
	if err != nil {
		return nil, err
	}
	if applied {
		s.notify(ctx, kafka.EventPaymentConfirmed, b)
	}
	return &ConfirmResult{Booking: b, AlreadyConfirmed: !applied}, nil
}

// HandleProviderCallback processes a signed provider notification. Business
// outcomes (unknown booking, cancelled booking, duplicates) are acknowledged;
// only infrastructure failures are returned so the provider redelivers.
// A delivery is remembered only after it took effect, so an interrupted attempt
// is processed again on redelivery; the status transitions are idempotent.
func (s *PaymentService) HandleProviderCallback(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	log := s.log.With(slog.String("webhook_id", event.ID), slog.String("type", string(event.Type)))

	track := s.deliveries != nil && event.ID != ""
	if track {
		seen, err := s.deliveries.WebhookEventSeen(ctx, event.ID)
		switch {
		case err != nil:
			log.Warn("delivery log unavailable, relying on booking state", sl.Err(err))
		case seen:
			log.Info("duplicate webhook delivery ignored")
			return nil
		}
	}

	if err := s.applyCallback(ctx, log, event); err != nil {
		return err
	}

	if track {
		if err := s.deliveries.RememberWebhookEvent(context.WithoutCancel(ctx), event.ID, s.cfg.DedupeTTL); err != nil {
			log.Warn("failed to record webhook delivery", sl.Err(err))
		}
	}
	return nil
}

func (s *PaymentService) applyCallback(ctx context.Context, log *slog.Logger, event *provider.WebhookEvent) error {
	switch event.Type {
	case provider.EventIntentSucceeded, provider.EventIntentFailed:
	default:
		log.Debug("webhook event ignored")
		return nil
	}

	if event.Intent == nil || event.Intent.Metadata.BookingID == "" {
		log.Warn("booking id missing from payment intent metadata")
		return nil
	}
	bookingID := event.Intent.Metadata.BookingID
	log = log.With(slog.String("booking_id", bookingID), slog.String("intent_id", event.Intent.ID))

	var (
		b       *domain.Booking
		applied bool
		err     error
		notice  string
	)
	if event.Type == provider.EventIntentSucceeded {
		b, applied, err = s.transitions.ApplyPayment(ctx, bookingID, event.Intent.ID)
		notice = kafka.EventPaymentConfirmed
	} else {
		b, applied, err = s.transitions.MarkPaymentFailed(ctx, bookingID)
		notice = kafka.EventPaymentFailed
	}

	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		log.Warn("webhook not applied", sl.Err(err))
		return nil
	case err != nil:
		log.Error("webhook processing failed", sl.Err(err))
		return err
	}

	if !applied {
		log.Info("webhook had no effect", slog.String("status", b.Status().String()))
		return nil
	}
	log.Info("webhook applied", slog.String("status", b.Status().String()))
	s.notify(ctx, notice, b)
	return nil
}

// Status reports the stored payment state and, when available, the provider's view.
func (s *PaymentService) Status(ctx context.Context, bookingID string, actor domain.Actor) (*StatusSnapshot, error) {
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.VisibleTo(actor) {
		return nil, fmt.Errorf("%w: booking belongs to another user", domain.ErrForbidden)
	}

	snapshot := &StatusSnapshot{
		BookingID:     b.ID,
		BookingStatus: b.BookingStatus,
		PaymentStatus: b.PaymentStatus,
		PaymentID:     b.PaymentID,
		SeatsBooked:   b.SeatsBooked,
	}
	if event, err := s.store.Events().Get(ctx, b.EventID); err == nil {
		snapshot.AmountCents = event.PriceCents * int64(b.SeatsBooked)
	} else {
		s.log.Warn("failed to load event for payment status", slog.String("event_id", b.EventID), sl.Err(err))
	}

	if b.PaymentID != "" {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		defer cancel()
		intent, err := s.provider.GetIntent(callCtx, b.PaymentID)
		if err != nil {
			s.log.Warn("failed to retrieve payment intent", slog.String("booking_id", b.ID), sl.Err(err))
		} else {
			snapshot.Intent = intent
		}
	}
	return snapshot, nil
}

func (s *PaymentService) notify(ctx context.Context, eventType string, b *domain.Booking) {
	if s.notifier == nil {
		return
	}
	event, err := s.store.Events().Get(ctx, b.EventID)
	if err != nil {
		s.log.Warn("failed to load event for notification", slog.String("event_id", b.EventID), sl.Err(err))
		event = nil
	}
	s.notifier.Submit(notify.Message(eventType, b, event))
}

// providerErr turns a timed out or cancelled provider call into a retryable error.
func providerErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if !errors.Is(err, domain.ErrUnavailable) {
			return fmt.Errorf("%w: %s: payment provider timed out", domain.ErrUnavailable, op)
		}
	}
	return err
}

var _ PaymentUseCase = (*PaymentService)(nil)
