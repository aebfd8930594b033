package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	pending := InitialStatus()
	retry := Status{Booking: BookingStatusPending, Payment: PaymentStatusFailed}
	confirmed := Status{Booking: BookingStatusConfirmed, Payment: PaymentStatusPaid}
	cancelled := Status{Booking: BookingStatusCancelled, Payment: PaymentStatusFailed}

	testCases := []struct {
		name    string
		apply   func(Status) (Status, error)
		from    Status
		want    Status
		wantErr error
	}{
		{name: "pay pending", apply: OnPaid, from: pending, want: confirmed},
		{name: "pay after failed attempt", apply: OnPaid, from: retry, want: confirmed},
		{name: "pay confirmed", apply: OnPaid, from: confirmed, wantErr: ErrConflict},
		{name: "pay cancelled", apply: OnPaid, from: cancelled, wantErr: ErrConflict},
		{name: "cancel pending", apply: OnCancel, from: pending, want: cancelled},
		{name: "cancel confirmed keeps paid", apply: OnCancel, from: confirmed,
			want: Status{Booking: BookingStatusCancelled, Payment: PaymentStatusPaid}},
		{name: "cancel twice", apply: OnCancel, from: cancelled, wantErr: ErrAlreadyCancelled},
		{name: "fail pending payment", apply: OnPaymentFailed, from: pending, want: retry},
		{name: "fail already failed", apply: OnPaymentFailed, from: retry, wantErr: ErrConflict},
		{name: "fail confirmed", apply: OnPaymentFailed, from: confirmed, wantErr: ErrConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.apply(tc.from)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr))
				assert.Equal(t, tc.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStateError_NamesCurrentState(t *testing.T) {
	_, err := OnPaid(Status{Booking: BookingStatusCancelled, Payment: PaymentStatusFailed})
	assert.EqualError(t, err, "cannot confirm payment: booking is cancelled/failed")
}

func TestAlreadyCancelledIsConflict(t *testing.T) {
	assert.ErrorIs(t, ErrAlreadyCancelled, ErrConflict)
}

func TestBooking_VisibleTo(t *testing.T) {
	b := &Booking{UserID: "u1"}
	assert.True(t, b.VisibleTo(Actor{UserID: "u1"}))
	assert.False(t, b.VisibleTo(Actor{UserID: "u2"}))
	assert.True(t, b.VisibleTo(Actor{UserID: "u2", Role: RoleAdmin}))
	assert.False(t, b.VisibleTo(Actor{}))
}

func TestSlotStart(t *testing.T) {
	day := time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		label string
		hour  int
		min   int
	}{
		{"7:30 PM", 19, 30},
		{"12:00 PM", 12, 0},
		{"12:15 AM", 0, 15},
		{"9 am", 9, 0},
		{"18:05", 18, 5},
	}
	for _, tc := range testCases {
		got, err := SlotStart(day, tc.label, time.UTC)
		require.NoError(t, err, tc.label)
		assert.Equal(t, time.Date(2026, 11, 20, tc.hour, tc.min, 0, 0, time.UTC), got, tc.label)
	}

	_, err := SlotStart(day, "noon", time.UTC)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = SlotStart(day, "25:00", time.UTC)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDueForReminder(t *testing.T) {
	now := time.Date(2026, 11, 19, 19, 0, 0, 0, time.UTC)
	b := &Booking{
		BookingStatus: BookingStatusConfirmed,
		PaymentStatus: PaymentStatusPaid,
		EventDate:     time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC),
		SlotTime:      "7:00 PM",
	}

	due, err := b.DueForReminder(Reminder24h, time.UTC, now)
	require.NoError(t, err)
	assert.True(t, due)

	due, err = b.DueForReminder(Reminder1h, time.UTC, now)
	require.NoError(t, err)
	assert.False(t, due)

	due, err = b.DueForReminder(Reminder1h, time.UTC, now.Add(23*time.Hour))
	require.NoError(t, err)
	assert.True(t, due)

	b.Reminder24hSent = true
	due, _ = b.DueForReminder(Reminder24h, time.UTC, now)
	assert.False(t, due)

	b.BookingStatus = BookingStatusPending
	due, _ = b.DueForReminder(Reminder1h, time.UTC, now.Add(23*time.Hour))
	assert.False(t, due)
}
