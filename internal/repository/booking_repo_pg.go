package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/jackc/pgx/v5"
)

type PGBookingRepository struct {
	db querier
}

func NewBookingRepository(db querier) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, user_id, user_email, event_id, event_date, slot_time, seats_booked,
	booking_status, payment_status, COALESCE(payment_id, ''), reminder_24h_sent, reminder_1h_sent, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.UserID, &b.UserEmail, &b.EventID, &b.EventDate, &b.SlotTime, &b.SeatsBooked,
		&b.BookingStatus, &b.PaymentStatus, &b.PaymentID, &b.Reminder24hSent, &b.Reminder1hSent, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	booking.EventDate = domain.CalendarDay(booking.EventDate)
	if err := r.db.QueryRow(ctx, `INSERT INTO bookings (id, user_id, user_email, event_id, event_date, slot_time, seats_booked, booking_status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		booking.ID, booking.UserID, booking.UserEmail, booking.EventID, booking.EventDate, booking.SlotTime,
		booking.SeatsBooked, booking.BookingStatus, booking.PaymentStatus).
		Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *PGBookingRepository) List(ctx context.Context) ([]domain.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC`)
}

func (r *PGBookingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *PGBookingRepository) CompareAndSwap(ctx context.Context, id string, expect, next domain.Status, paymentID string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings
		SET booking_status=$4, payment_status=$5, payment_id=COALESCE(NULLIF($6, ''), payment_id), updated_at=now()
		WHERE id=$1 AND booking_status=$2 AND payment_status=$3
		RETURNING `+bookingColumns,
		id, expect.Booking, expect.Payment, next.Booking, next.Payment, paymentID))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrStateChanged
}

func reminderColumn(kind domain.ReminderKind) (string, error) {
	switch kind {
	case domain.Reminder24h:
		return "reminder_24h_sent", nil
	case domain.Reminder1h:
		return "reminder_1h_sent", nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", kind)
}

func (r *PGBookingRepository) ListAwaitingReminder(ctx context.Context, kind domain.ReminderKind) ([]domain.Booking, error) {
	column, err := reminderColumn(kind)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE booking_status=$1 AND `+column+`=false
		ORDER BY event_date`, domain.BookingStatusConfirmed)
}

func (r *PGBookingRepository) SetReminderSent(ctx context.Context, id string, kind domain.ReminderKind, sent bool) (bool, error) {
	column, err := reminderColumn(kind)
	if err != nil {
		return false, err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE bookings SET `+column+`=$2, updated_at=now() WHERE id=$1 AND `+column+`<>$2`, id, sent)
	if err != nil {
		return false, fmt.Errorf("set reminder flag: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
