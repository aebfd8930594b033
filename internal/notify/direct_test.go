package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, event kafka.BookingEvent) error {
	return m.Called(ctx, event).Error(0)
}

func TestDirectPublisher_RetriesThenSucceeds(t *testing.T) {
	sender := &MockSender{}
	event := kafka.BookingEvent{Type: kafka.EventBookingCreated, BookingID: "b1"}
	sender.On("Send", mock.Anything, event).Return(errors.New("smtp busy")).Once()
	sender.On("Send", mock.Anything, event).Return(nil).Once()

	err := NewDirectPublisher(sender).PublishWithRetry(context.Background(), "ignored", "b1", event, 2)
	assert.NoError(t, err)
	sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestDirectPublisher_GivesUp(t *testing.T) {
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := NewDirectPublisher(sender).PublishWithRetry(context.Background(), "", "", kafka.BookingEvent{}, 1)
	assert.ErrorContains(t, err, "smtp down")
	sender.AssertNumberOfCalls(t, "Send", 2)

	err = NewDirectPublisher(sender).PublishWithRetry(context.Background(), "", "", "not an event", 1)
	assert.Error(t, err)
}
