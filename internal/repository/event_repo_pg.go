package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/jackc/pgx/v5"
)

type PGEventRepository struct {
	db querier
}

func NewEventRepository(db querier) EventRepository {
	return &PGEventRepository{db: db}
}

const eventColumns = `id, title, description, category, location, price_cents, created_by, created_at, updated_at, deleted_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Category, &e.Location, &e.PriceCents, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PGEventRepository) Create(ctx context.Context, event *domain.Event) error {
	if err := r.db.QueryRow(ctx, `INSERT INTO events (id, title, description, category, location, price_cents, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		event.ID, event.Title, event.Description, event.Category, event.Location, event.PriceCents, event.CreatedBy).
		Scan(&event.CreatedAt, &event.UpdatedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return r.insertSchedule(ctx, event.ID, event.Dates)
}

func (r *PGEventRepository) insertSchedule(ctx context.Context, eventID string, dates []domain.DateEntry) error {
	for i := range dates {
		entry := &dates[i]
		entry.Date = domain.CalendarDay(entry.Date)
		if err := r.db.QueryRow(ctx, `INSERT INTO event_dates (event_id, date) VALUES ($1, $2) RETURNING id`,
			eventID, entry.Date).Scan(&entry.ID); err != nil {
			return fmt.Errorf("insert event date: %w", err)
		}
		for j := range entry.Slots {
			slot := &entry.Slots[j]
			if err := r.db.QueryRow(ctx, `INSERT INTO event_slots (event_date_id, time, capacity, available_seats)
				VALUES ($1, $2, $3, $4) RETURNING id`,
				entry.ID, slot.Time, slot.Capacity, slot.AvailableSeats).Scan(&slot.ID); err != nil {
				return fmt.Errorf("insert event slot: %w", err)
			}
		}
	}
	return nil
}

func (r *PGEventRepository) Get(ctx context.Context, id string) (*domain.Event, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate locks the event and its slots until the surrounding transaction ends.
func (r *PGEventRepository) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return r.get(ctx, id, true)
}

func (r *PGEventRepository) get(ctx context.Context, id string, lock bool) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	schedules, err := r.loadSchedules(ctx, []string{id}, lock)
	if err != nil {
		return nil, err
	}
	event.Dates = schedules[id]
	return event, nil
}

func (r *PGEventRepository) loadSchedules(ctx context.Context, ids []string, lock bool) (map[string][]domain.DateEntry, error) {
	query := `SELECT d.event_id, d.id, d.date, s.id, s.time, s.capacity, s.available_seats
		FROM event_dates d
		JOIN event_slots s ON s.event_date_id = d.id
		WHERE d.event_id = ANY($1)
		ORDER BY d.event_id, d.date, s.id`
	if lock {
		query += ` FOR UPDATE OF s`
	}
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.DateEntry, len(ids))
	for rows.Next() {
		var (
			eventID string
			dateID  int64
			date    time.Time
			slot    domain.Slot
		)
		if err := rows.Scan(&eventID, &dateID, &date, &slot.ID, &slot.Time, &slot.Capacity, &slot.AvailableSeats); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		dates := out[eventID]
		if n := len(dates); n == 0 || dates[n-1].ID != dateID {
			dates = append(dates, domain.DateEntry{ID: dateID, Date: date})
		}
		last := &dates[len(dates)-1]
		last.Slots = append(last.Slots, slot)
		out[eventID] = dates
	}
	return out, rows.Err()
}

func (r *PGEventRepository) List(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM events
		WHERE deleted_at IS NULL
		AND ($1 = '' OR category = $1)
		AND ($2 = '' OR location = $2)
		ORDER BY created_at DESC`, filter.Category, filter.Location)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	ids := make([]string, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return events, nil
	}

	schedules, err := r.loadSchedules(ctx, ids, false)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Dates = schedules[events[i].ID]
	}
	return events, nil
}

// Update rewrites the event metadata and replaces its schedule. Callers compute the
// schedule under GetForUpdate so held seats are carried over.
func (r *PGEventRepository) Update(ctx context.Context, event *domain.Event) error {
	if err := r.db.QueryRow(ctx, `UPDATE events
		SET title=$2, description=$3, category=$4, location=$5, price_cents=$6, updated_at=now()
		WHERE id=$1
		RETURNING updated_at`,
		event.ID, event.Title, event.Description, event.Category, event.Location, event.PriceCents).
		Scan(&event.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: event %s", domain.ErrNotFound, event.ID)
		}
		return fmt.Errorf("update event: %w", err)
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM event_dates WHERE event_id=$1`, event.ID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return r.insertSchedule(ctx, event.ID, event.Dates)
}

func (r *PGEventRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE events SET deleted_at=$2, updated_at=now() WHERE id=$1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *PGEventRepository) ReserveSeats(ctx context.Context, slotID int64, seats int) (int, error) {
	var remaining int
	err := r.db.QueryRow(ctx, `UPDATE event_slots
		SET available_seats = available_seats - $2
		WHERE id=$1 AND available_seats >= $2
		RETURNING available_seats`, slotID, seats).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("reserve seats: %w", err)
	}

	if err := r.db.QueryRow(ctx, `SELECT available_seats FROM event_slots WHERE id=$1`, slotID).Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: slot no longer available", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("read remaining seats: %w", err)
	}
	return remaining, &domain.CapacityError{Requested: seats, Remaining: remaining}
}

func (r *PGEventRepository) ReleaseSeats(ctx context.Context, slotID int64, seats int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE event_slots
		SET available_seats = LEAST(capacity, available_seats + $2)
		WHERE id=$1`, slotID, seats)
	if err != nil {
		return fmt.Errorf("release seats: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: slot %d", domain.ErrNotFound, slotID)
	}
	return nil
}

var _ EventRepository = (*PGEventRepository)(nil)
