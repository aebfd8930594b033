package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/eventflow/internal/cache"
	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/Domenick1991/eventflow/internal/lib/logger/handlers/slogdiscard"
	"github.com/Domenick1991/eventflow/internal/provider"
	"github.com/Domenick1991/eventflow/internal/repository/memory"
	"github.com/Domenick1991/eventflow/internal/service/booking"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validSignature = "sig-ok"

// fakeProvider stands in for the payment gateway: intents live in memory and
// webhooks are JSON encoded fakeWebhook values.
type fakeProvider struct {
	mu      sync.Mutex
	intents map[string]*provider.Intent
	seq     int
	block   bool
	created []provider.IntentRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: make(map[string]*provider.Intent)}
}

func (f *fakeProvider) CreateIntent(ctx context.Context, req provider.IntentRequest) (*provider.Intent, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	intent := &provider.Intent{
		ID:           fmt.Sprintf("pi_%d", f.seq),
		ClientSecret: "secret",
		AmountCents:  req.AmountCents,
		Currency:     "usd",
		Status:       provider.IntentRequiresPaymentMethod,
		Metadata:     req.Metadata,
	}
	f.intents[intent.ID] = intent
	f.created = append(f.created, req)
	return intent, nil
}

func (f *fakeProvider) GetIntent(ctx context.Context, id string) (*provider.Intent, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return nil, errors.New("no such intent")
	}
	cp := *intent
	return &cp, nil
}

type fakeWebhook struct {
	ID        string                    `json:"id"`
	Type      provider.WebhookEventType `json:"type"`
	IntentID  string                    `json:"intent_id,omitempty"`
	Status    provider.IntentStatus     `json:"status,omitempty"`
	BookingID string                    `json:"booking_id,omitempty"`
}

func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (*provider.WebhookEvent, error) {
	if signature != validSignature {
		return nil, provider.ErrInvalidSignature
	}
	var raw fakeWebhook
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	event := &provider.WebhookEvent{ID: raw.ID, Type: raw.Type}
	if raw.IntentID != "" {
		event.Intent = &provider.Intent{
			ID:       raw.IntentID,
			Status:   raw.Status,
			Metadata: provider.Metadata{BookingID: raw.BookingID},
		}
	}
	return event, nil
}

func (f *fakeProvider) MinimumAmount() int64 { return 50 }

func (f *fakeProvider) succeed(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = provider.IntentSucceeded
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Submit(event kafka.BookingEvent) {
	m.Called(event)
}

type MockDeliveryLog struct {
	mock.Mock
}

func (m *MockDeliveryLog) WebhookEventSeen(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeliveryLog) RememberWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) error {
	args := m.Called(ctx, eventID, ttl)
	return args.Error(0)
}

var (
	day   = time.Date(2026, 12, 5, 0, 0, 0, 0, time.UTC)
	alice = domain.Actor{UserID: "alice", Email: "alice@example.com"}
	bob   = domain.Actor{UserID: "bob"}
	admin = domain.Actor{UserID: "root", Role: domain.RoleAdmin}
)

type fixture struct {
	store    *memory.Store
	bookings *booking.BookingService
	provider *fakeProvider
	notifier *MockNotifier
	svc      *PaymentService
	booking  *domain.Booking
}

func newFixture(t *testing.T, priceCents int64, opts ...PaymentServiceOption) *fixture {
	t.Helper()
	ctx := context.Background()
	log := slogdiscard.NewDiscardLogger()

	store := memory.NewStore()
	require.NoError(t, store.Events().Create(ctx, &domain.Event{
		ID:          "evt-1",
		Title:       "Jazz night",
		Description: "Live jazz",
		Category:    "Concert",
		Location:    "Blue Hall",
		PriceCents:  priceCents,
		Dates: []domain.DateEntry{{
			Date:  day,
			Slots: []domain.Slot{{Time: "7:30 PM", Capacity: 10, AvailableSeats: 10}},
		}},
	}))

	bookings := booking.NewBookingService(store, log)
	b, err := bookings.CreateBooking(ctx, alice, booking.CreateBookingInput{
		EventID: "evt-1", EventDate: day, SlotTime: "7:30 PM", SeatsBooked: 2,
	})
	require.NoError(t, err)

	notifier := &MockNotifier{}
	notifier.On("Submit", mock.Anything).Maybe()
	fp := newFakeProvider()
	opts = append([]PaymentServiceOption{WithNotifier(notifier)}, opts...)
	svc := NewPaymentService(store, bookings, fp, Config{ProviderTimeout: 50 * time.Millisecond}, log, opts...)

	return &fixture{store: store, bookings: bookings, provider: fp, notifier: notifier, svc: svc, booking: b}
}

func webhook(t *testing.T, id string, eventType provider.WebhookEventType, intent *provider.Intent) []byte {
	t.Helper()
	raw := fakeWebhook{ID: id, Type: eventType}
	if intent != nil {
		raw.IntentID = intent.ID
		raw.Status = intent.Status
		raw.BookingID = intent.Metadata.BookingID
	}
	payload, err := json.Marshal(raw)
	require.NoError(t, err)
	return payload
}

func intentFor(bookingID, id string, status provider.IntentStatus) *provider.Intent {
	return &provider.Intent{ID: id, Status: status, Metadata: provider.Metadata{BookingID: bookingID}}
}

func countSubmitted(n *MockNotifier, eventType string) int {
	count := 0
	for _, call := range n.Calls {
		if call.Method == "Submit" && call.Arguments.Get(0).(kafka.BookingEvent).Type == eventType {
			count++
		}
	}
	return count
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	res, err := f.svc.CreateIntent(ctx, f.booking.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), res.AmountCents)
	assert.Equal(t, "secret", res.ClientSecret)
	assert.NotEmpty(t, res.IntentID)

	require.Len(t, f.provider.created, 1)
	meta := f.provider.created[0].Metadata
	assert.Equal(t, provider.Metadata{BookingID: f.booking.ID, UserID: "alice", EventID: "evt-1", SeatsBooked: 2}, meta)
	assert.Equal(t, "Payment for Jazz night - 2 seat(s)", f.provider.created[0].Description)
}

func TestCreateIntent_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t, 2500)
		_, err := f.svc.CreateIntent(ctx, f.booking.ID, bob)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = f.svc.CreateIntent(ctx, f.booking.ID, admin)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("missing booking", func(t *testing.T) {
		f := newFixture(t, 2500)
		_, err := f.svc.CreateIntent(ctx, "nope", alice)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = f.svc.CreateIntent(ctx, "", alice)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("below minimum", func(t *testing.T) {
		f := newFixture(t, 20)
		_, err := f.svc.CreateIntent(ctx, f.booking.ID, alice)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Empty(t, f.provider.created)
	})

	t.Run("already paid", func(t *testing.T) {
		f := newFixture(t, 2500)
		_, _, err := f.bookings.ApplyPayment(ctx, f.booking.ID, "pi_x")
		require.NoError(t, err)
		_, err = f.svc.CreateIntent(ctx, f.booking.ID, alice)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t, 2500)
		_, err := f.bookings.CancelBooking(ctx, f.booking.ID, alice)
		require.NoError(t, err)
		_, err = f.svc.CreateIntent(ctx, f.booking.ID, alice)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("provider timeout", func(t *testing.T) {
		f := newFixture(t, 2500)
		f.provider.block = true
		start := time.Now()
		_, err := f.svc.CreateIntent(ctx, f.booking.ID, alice)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestConfirmFromClient(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	res, err := f.svc.CreateIntent(ctx, f.booking.ID, alice)
	require.NoError(t, err)

	_, err = f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, alice)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)
	assert.Equal(t, provider.IntentRequiresPaymentMethod, verr.ProviderStatus)

	f.provider.succeed(res.IntentID)

	_, err = f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, bob)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	out, err := f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, alice)
	require.NoError(t, err)
	assert.False(t, out.AlreadyConfirmed)
	assert.True(t, out.Booking.Paid())
	assert.Equal(t, res.IntentID, out.Booking.PaymentID)

	again, err := f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, alice)
	require.NoError(t, err)
	assert.True(t, again.AlreadyConfirmed)

	assert.Equal(t, 1, countSubmitted(f.notifier, kafka.EventPaymentConfirmed))
}

func TestConfirmFromClient_IntentForAnotherBooking(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	other, err := f.bookings.CreateBooking(ctx, alice, booking.CreateBookingInput{
		EventID: "evt-1", EventDate: day, SlotTime: "7:30 PM", SeatsBooked: 1,
	})
	require.NoError(t, err)
	res, err := f.svc.CreateIntent(ctx, other.ID, alice)
	require.NoError(t, err)
	f.provider.succeed(res.IntentID)

	_, err = f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, alice)
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)

	stored, err := f.store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialStatus(), stored.Status())
}

func TestConfirmFromClient_ProviderTimeout(t *testing.T) {
	f := newFixture(t, 2500)
	f.provider.block = true

	_, err := f.svc.ConfirmFromClient(context.Background(), f.booking.ID, "pi_1", alice)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestHandleProviderCallback_InvalidSignature(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	payload := webhook(t, "evt_1", provider.EventIntentSucceeded, intentFor(f.booking.ID, "pi_1", provider.IntentSucceeded))
	err := f.svc.HandleProviderCallback(ctx, payload, "forged")
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)

	stored, err := f.store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialStatus(), stored.Status())
}

func TestHandleProviderCallback_IdempotentSuccess(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	payload := webhook(t, "evt_1", provider.EventIntentSucceeded, intentFor(f.booking.ID, "pi_1", provider.IntentSucceeded))
	require.NoError(t, f.svc.HandleProviderCallback(ctx, payload, validSignature))
	require.NoError(t, f.svc.HandleProviderCallback(ctx, payload, validSignature))

	stored, err := f.store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid())
	assert.Equal(t, "pi_1", stored.PaymentID)
	assert.Equal(t, 1, countSubmitted(f.notifier, kafka.EventPaymentConfirmed))
}

func TestHandleProviderCallback_DeliveryLog(t *testing.T) {
	deliveries := &MockDeliveryLog{}
	f := newFixture(t, 2500, WithDeliveryLog(deliveries))
	ctx := context.Background()

	payload := webhook(t, "evt_1", provider.EventIntentSucceeded, intentFor(f.booking.ID, "pi_1", provider.IntentSucceeded))
	deliveries.On("WebhookEventSeen", ctx, "evt_1").Return(false, nil).Once()
	deliveries.On("RememberWebhookEvent", mock.Anything, "evt_1", 24*time.Hour).Return(nil).Once()
	deliveries.On("WebhookEventSeen", ctx, "evt_1").Return(true, nil).Once()

	require.NoError(t, f.svc.HandleProviderCallback(ctx, payload, validSignature))
	require.NoError(t, f.svc.HandleProviderCallback(ctx, payload, validSignature))
	deliveries.AssertExpectations(t)

	// a delivery log outage falls back to the booking state machine
	other := webhook(t, "evt_2", provider.EventIntentSucceeded, intentFor(f.booking.ID, "pi_1", provider.IntentSucceeded))
	deliveries.On("WebhookEventSeen", ctx, "evt_2").Return(false, errors.New("redis down")).Once()
	deliveries.On("RememberWebhookEvent", mock.Anything, "evt_2", 24*time.Hour).Return(errors.New("redis down")).Once()
	require.NoError(t, f.svc.HandleProviderCallback(ctx, other, validSignature))
	assert.Equal(t, 1, countSubmitted(f.notifier, kafka.EventPaymentConfirmed))
}

// interruptedTransitions cancels the request context on the first payment
// transition, the way a dropped client connection does.
type interruptedTransitions struct {
	Transitions
	cancel context.CancelFunc
	calls  int
}

func (i *interruptedTransitions) ApplyPayment(ctx context.Context, id, paymentID string) (*domain.Booking, bool, error) {
	i.calls++
	if i.calls == 1 {
		i.cancel()
		return nil, false, ctx.Err()
	}
	return i.Transitions.ApplyPayment(ctx, id, paymentID)
}

func TestHandleProviderCallback_InterruptedDeliveryIsRedelivered(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	deliveries := cache.NewFromClient(client, time.Minute)

	f := newFixture(t, 2500)
	firstCtx, cancel := context.WithCancel(context.Background())
	transitions := &interruptedTransitions{Transitions: f.bookings, cancel: cancel}
	svc := NewPaymentService(f.store, transitions, f.provider, Config{}, slogdiscard.NewDiscardLogger(),
		WithDeliveryLog(deliveries), WithNotifier(f.notifier))

	payload := webhook(t, "evt_1", provider.EventIntentSucceeded, intentFor(f.booking.ID, "pi_1", provider.IntentSucceeded))
	err := svc.HandleProviderCallback(firstCtx, payload, validSignature)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, srv.Exists("webhook:delivery:evt_1"))

	ctx := context.Background()
	require.NoError(t, svc.HandleProviderCallback(ctx, payload, validSignature))
	stored, err := f.store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid())
	assert.True(t, srv.Exists("webhook:delivery:evt_1"))
	assert.Equal(t, 1, countSubmitted(f.notifier, kafka.EventPaymentConfirmed))

	// once recorded, further redeliveries short-circuit
	require.NoError(t, svc.HandleProviderCallback(ctx, payload, validSignature))
	assert.Equal(t, 2, transitions.calls)
}

type failingTransitions struct{}

func (failingTransitions) ApplyPayment(context.Context, string, string) (*domain.Booking, bool, error) {
	return nil, false, errors.New("connection reset")
}

func (failingTransitions) MarkPaymentFailed(context.Context, string) (*domain.Booking, bool, error) {
	return nil, false, errors.New("connection reset")
}

func TestHandleProviderCallback_StorageFailureIsRetryable(t *testing.T) {
	deliveries := &MockDeliveryLog{}
	f := newFixture(t, 2500)
	svc := NewPaymentService(f.store, failingTransitions{}, f.provider, Config{}, slogdiscard.NewDiscardLogger(), WithDeliveryLog(deliveries))
	ctx := context.Background()

	deliveries.On("WebhookEventSeen", ctx, "evt_1").Return(false, nil).Once()

	payload := webhook(t, "evt_1", provider.EventIntentSucceeded, intentFor(f.booking.ID, "pi_1", provider.IntentSucceeded))
	assert.Error(t, svc.HandleProviderCallback(ctx, payload, validSignature))
	deliveries.AssertExpectations(t)
	deliveries.AssertNotCalled(t, "RememberWebhookEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleProviderCallback_BusinessOutcomesAreAcknowledged(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "unknown booking", payload: webhook(t, "evt_a", provider.EventIntentSucceeded, intentFor("missing", "pi_1", provider.IntentSucceeded))},
		{name: "no metadata", payload: webhook(t, "evt_b", provider.EventIntentSucceeded, &provider.Intent{ID: "pi_1"})},
		{name: "no intent", payload: webhook(t, "evt_c", provider.EventIntentFailed, nil)},
		{name: "other event type", payload: webhook(t, "evt_d", "charge.refunded", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, f.svc.HandleProviderCallback(ctx, tt.payload, validSignature))
		})
	}

	_, err := f.bookings.CancelBooking(ctx, f.booking.ID, alice)
	require.NoError(t, err)
	cancelledPaid := webhook(t, "evt_e", provider.EventIntentSucceeded, intentFor(f.booking.ID, "pi_1", provider.IntentSucceeded))
	assert.NoError(t, f.svc.HandleProviderCallback(ctx, cancelledPaid, validSignature))

	stored, err := f.store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, stored.BookingStatus)
}

func TestHandleProviderCallback_PaymentFailed(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	payload := webhook(t, "evt_1", provider.EventIntentFailed, intentFor(f.booking.ID, "pi_1", provider.IntentRequiresPaymentMethod))
	require.NoError(t, f.svc.HandleProviderCallback(ctx, payload, validSignature))

	stored, err := f.store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Status{Booking: domain.BookingStatusPending, Payment: domain.PaymentStatusFailed}, stored.Status())
	assert.Equal(t, 1, countSubmitted(f.notifier, kafka.EventPaymentFailed))

	// the user may retry with a new intent
	res, err := f.svc.CreateIntent(ctx, f.booking.ID, alice)
	require.NoError(t, err)
	f.provider.succeed(res.IntentID)
	out, err := f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, alice)
	require.NoError(t, err)
	assert.True(t, out.Booking.Paid())

	// a late failure notice never downgrades a paid booking
	late := webhook(t, "evt_2", provider.EventIntentFailed, intentFor(f.booking.ID, "pi_1", provider.IntentRequiresPaymentMethod))
	require.NoError(t, f.svc.HandleProviderCallback(ctx, late, validSignature))
	stored, err = f.store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid())
}

func TestClientConfirmRacesWebhook(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, 2500)
		ctx := context.Background()

		res, err := f.svc.CreateIntent(ctx, f.booking.ID, alice)
		require.NoError(t, err)
		f.provider.succeed(res.IntentID)
		payload := webhook(t, "evt_1", provider.EventIntentSucceeded, intentFor(f.booking.ID, res.IntentID, provider.IntentSucceeded))

		var (
			wg         sync.WaitGroup
			clientErr  error
			webhookErr error
			confirmed  *ConfirmResult
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			confirmed, clientErr = f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, alice)
		}()
		go func() {
			defer wg.Done()
			webhookErr = f.svc.HandleProviderCallback(ctx, payload, validSignature)
		}()
		wg.Wait()

		require.NoError(t, clientErr)
		require.NoError(t, webhookErr)
		assert.True(t, confirmed.Booking.Paid())

		stored, err := f.store.Bookings().Get(ctx, f.booking.ID)
		require.NoError(t, err)
		assert.True(t, stored.Paid())
		assert.Equal(t, 1, countSubmitted(f.notifier, kafka.EventPaymentConfirmed), "exactly one transition")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, 2500)
	ctx := context.Background()

	res, err := f.svc.CreateIntent(ctx, f.booking.ID, alice)
	require.NoError(t, err)
	f.provider.succeed(res.IntentID)
	_, err = f.svc.ConfirmFromClient(ctx, f.booking.ID, res.IntentID, alice)
	require.NoError(t, err)

	_, err = f.svc.Status(ctx, f.booking.ID, bob)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	snap, err := f.svc.Status(ctx, f.booking.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, snap.BookingStatus)
	assert.Equal(t, domain.PaymentStatusPaid, snap.PaymentStatus)
	assert.Equal(t, int64(5000), snap.AmountCents)
	assert.Equal(t, 2, snap.SeatsBooked)
	require.NotNil(t, snap.Intent)
	assert.Equal(t, provider.IntentSucceeded, snap.Intent.Status)

	// provider lookups are best effort
	f.provider.block = true
	snap, err = f.svc.Status(ctx, f.booking.ID, alice)
	require.NoError(t, err)
	assert.Nil(t, snap.Intent)
}
