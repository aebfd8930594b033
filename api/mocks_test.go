package api

import (
	"context"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/repository"
	"github.com/Domenick1991/eventflow/internal/service/booking"
	"github.com/Domenick1991/eventflow/internal/service/events"
	"github.com/Domenick1991/eventflow/internal/service/payment"
	"github.com/stretchr/testify/mock"
)

type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) booking(args mock.Arguments) (*domain.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, actor domain.Actor, input booking.CreateBookingInput) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, actor, input))
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, id, actor))
}

func (m *MockBookingUseCase) GetBooking(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, id, actor))
}

func (m *MockBookingUseCase) ListUserBookings(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListAllBookings(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ConfirmBooking(ctx context.Context, id, paymentID string, actor domain.Actor) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, id, paymentID, actor))
}

func (m *MockBookingUseCase) ApplyPayment(ctx context.Context, id, paymentID string) (*domain.Booking, bool, error) {
	args := m.Called(ctx, id, paymentID)
	b, _ := args.Get(0).(*domain.Booking)
	return b, args.Bool(1), args.Error(2)
}

func (m *MockBookingUseCase) MarkPaymentFailed(ctx context.Context, id string) (*domain.Booking, bool, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*domain.Booking)
	return b, args.Bool(1), args.Error(2)
}

type MockEventUseCase struct {
	mock.Mock
}

func (m *MockEventUseCase) event(args mock.Arguments) (*domain.Event, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventUseCase) List(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventUseCase) Get(ctx context.Context, id string) (*domain.Event, error) {
	return m.event(m.Called(ctx, id))
}

func (m *MockEventUseCase) Availability(ctx context.Context, id string, date time.Time, slotTime string) (*events.Availability, error) {
	args := m.Called(ctx, id, date, slotTime)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*events.Availability), args.Error(1)
}

func (m *MockEventUseCase) Create(ctx context.Context, actor domain.Actor, input events.EventInput) (*domain.Event, error) {
	return m.event(m.Called(ctx, actor, input))
}

func (m *MockEventUseCase) Update(ctx context.Context, id string, actor domain.Actor, input events.EventInput) (*domain.Event, error) {
	return m.event(m.Called(ctx, id, actor, input))
}

func (m *MockEventUseCase) Delete(ctx context.Context, id string, actor domain.Actor) error {
	return m.Called(ctx, id, actor).Error(0)
}

type MockPaymentUseCase struct {
	mock.Mock
}

func (m *MockPaymentUseCase) CreateIntent(ctx context.Context, bookingID string, actor domain.Actor) (*payment.IntentResult, error) {
	args := m.Called(ctx, bookingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.IntentResult), args.Error(1)
}

func (m *MockPaymentUseCase) ConfirmFromClient(ctx context.Context, bookingID, intentID string, actor domain.Actor) (*payment.ConfirmResult, error) {
	args := m.Called(ctx, bookingID, intentID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ConfirmResult), args.Error(1)
}

func (m *MockPaymentUseCase) HandleProviderCallback(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func (m *MockPaymentUseCase) Status(ctx context.Context, bookingID string, actor domain.Actor) (*payment.StatusSnapshot, error) {
	args := m.Called(ctx, bookingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StatusSnapshot), args.Error(1)
}
