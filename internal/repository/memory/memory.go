// Package memory is an in-process implementation of repository.Store used for
// local runs (database.driver: memory) and tests. A transaction holds the store
// lock from Begin until Commit or Rollback and works on a private copy of the
// data, so every unit of work is serialisable and rollbacks leave nothing behind.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/repository"
)

var errTxDone = errors.New("transaction already finished")

type state struct {
	events   map[string]*domain.Event
	bookings map[string]*domain.Booking
	seq      int64
}

func (s *state) clone() *state {
	out := &state{
		events:   make(map[string]*domain.Event, len(s.events)),
		bookings: make(map[string]*domain.Booking, len(s.bookings)),
		seq:      s.seq,
	}
	for id, e := range s.events {
		out.events[id] = cloneEvent(e)
	}
	for id, b := range s.bookings {
		cp := *b
		out.bookings[id] = &cp
	}
	return out
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func cloneEvent(e *domain.Event) *domain.Event {
	cp := *e
	if e.DeletedAt != nil {
		at := *e.DeletedAt
		cp.DeletedAt = &at
	}
	cp.Dates = make([]domain.DateEntry, len(e.Dates))
	for i, d := range e.Dates {
		cp.Dates[i] = domain.DateEntry{ID: d.ID, Date: d.Date, Slots: append([]domain.Slot(nil), d.Slots...)}
	}
	return &cp
}

// Store serialises every transaction behind one lock, so it does not give
// bookings on different slots independent progress; use the postgres driver for that.
type Store struct {
	lock chan struct{}
	st   *state
}

func NewStore() *Store {
	return &Store{lock: make(chan struct{}, 1), st: &state{
		events:   make(map[string]*domain.Event),
		bookings: make(map[string]*domain.Booking),
	}}
}

func (s *Store) Events() repository.EventRepository {
	return &eventRepo{access: s.locked}
}

func (s *Store) Bookings() repository.BookingRepository {
	return &bookingRepo{access: s.locked}
}

func (s *Store) locked(fn func(*state) error) error {
	s.lock <- struct{}{}
	defer func() { <-s.lock }()
	return fn(s.st)
}

// Begin waits for the store lock or for ctx to end, whichever comes first.
func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{store: s, st: s.st.clone()}, nil
}

type Tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *Tx) access(fn func(*state) error) error {
	if t.done {
		return errTxDone
	}
	return fn(t.st)
}

func (t *Tx) Events() repository.EventRepository {
	return &eventRepo{access: t.access}
}

func (t *Tx) Bookings() repository.BookingRepository {
	return &bookingRepo{access: t.access}
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.st = t.st
	<-t.store.lock
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.store.lock
	return nil
}

type accessor func(func(*state) error) error

type eventRepo struct {
	access accessor
}

func (r *eventRepo) Create(ctx context.Context, event *domain.Event) error {
	return r.access(func(st *state) error {
		if _, ok := st.events[event.ID]; ok {
			return fmt.Errorf("insert event: duplicate id %s", event.ID)
		}
		now := time.Now().UTC()
		event.CreatedAt, event.UpdatedAt = now, now
		assignScheduleIDs(st, event.Dates)
		st.events[event.ID] = cloneEvent(event)
		return nil
	})
}

func assignScheduleIDs(st *state, dates []domain.DateEntry) {
	for i := range dates {
		dates[i].Date = domain.CalendarDay(dates[i].Date)
		dates[i].ID = st.nextID()
		for j := range dates[i].Slots {
			dates[i].Slots[j].ID = st.nextID()
		}
	}
}

func (r *eventRepo) Get(ctx context.Context, id string) (*domain.Event, error) {
	var out *domain.Event
	err := r.access(func(st *state) error {
		e, ok := st.events[id]
		if !ok {
			return fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
		}
		out = cloneEvent(e)
		return nil
	})
	return out, err
}

func (r *eventRepo) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return r.Get(ctx, id)
}

func (r *eventRepo) List(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	out := make([]domain.Event, 0)
	err := r.access(func(st *state) error {
		for _, e := range st.events {
			if e.Deleted() {
				continue
			}
			if filter.Category != "" && e.Category != filter.Category {
				continue
			}
			if filter.Location != "" && e.Location != filter.Location {
				continue
			}
			out = append(out, *cloneEvent(e))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *eventRepo) Update(ctx context.Context, event *domain.Event) error {
	return r.access(func(st *state) error {
		current, ok := st.events[event.ID]
		if !ok {
			return fmt.Errorf("%w: event %s", domain.ErrNotFound, event.ID)
		}
		event.CreatedAt = current.CreatedAt
		event.CreatedBy = current.CreatedBy
		event.DeletedAt = current.DeletedAt
		event.UpdatedAt = time.Now().UTC()
		assignScheduleIDs(st, event.Dates)
		st.events[event.ID] = cloneEvent(event)
		return nil
	})
}

func (r *eventRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.access(func(st *state) error {
		e, ok := st.events[id]
		if !ok || e.Deleted() {
			return fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
		}
		e.DeletedAt = &at
		e.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func findSlotByID(st *state, slotID int64) *domain.Slot {
	for _, e := range st.events {
		for i := range e.Dates {
			for j := range e.Dates[i].Slots {
				if e.Dates[i].Slots[j].ID == slotID {
					return &e.Dates[i].Slots[j]
				}
			}
		}
	}
	return nil
}

func (r *eventRepo) ReserveSeats(ctx context.Context, slotID int64, seats int) (int, error) {
	var remaining int
	err := r.access(func(st *state) error {
		slot := findSlotByID(st, slotID)
		if slot == nil {
			return fmt.Errorf("%w: slot no longer available", domain.ErrNotFound)
		}
		remaining = slot.AvailableSeats
		if slot.AvailableSeats < seats {
			return &domain.CapacityError{Requested: seats, Remaining: slot.AvailableSeats}
		}
		slot.AvailableSeats -= seats
		remaining = slot.AvailableSeats
		return nil
	})
	return remaining, err
}

func (r *eventRepo) ReleaseSeats(ctx context.Context, slotID int64, seats int) error {
	return r.access(func(st *state) error {
		slot := findSlotByID(st, slotID)
		if slot == nil {
			return fmt.Errorf("%w: slot %d", domain.ErrNotFound, slotID)
		}
		slot.AvailableSeats = min(slot.Capacity, slot.AvailableSeats+seats)
		return nil
	})
}

type bookingRepo struct {
	access accessor
}

func (r *bookingRepo) Create(ctx context.Context, booking *domain.Booking) error {
	return r.access(func(st *state) error {
		if _, ok := st.bookings[booking.ID]; ok {
			return fmt.Errorf("insert booking: duplicate id %s", booking.ID)
		}
		now := time.Now().UTC()
		booking.EventDate = domain.CalendarDay(booking.EventDate)
		booking.CreatedAt, booking.UpdatedAt = now, now
		cp := *booking
		st.bookings[booking.ID] = &cp
		return nil
	})
}

func (r *bookingRepo) Get(ctx context.Context, id string) (*domain.Booking, error) {
	var out domain.Booking
	err := r.access(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *bookingRepo) filter(keep func(*domain.Booking) bool) ([]domain.Booking, error) {
	out := make([]domain.Booking, 0)
	err := r.access(func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				out = append(out, *b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *bookingRepo) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	return r.filter(func(b *domain.Booking) bool { return b.UserID == userID })
}

func (r *bookingRepo) List(ctx context.Context) ([]domain.Booking, error) {
	return r.filter(func(*domain.Booking) bool { return true })
}

func (r *bookingRepo) CompareAndSwap(ctx context.Context, id string, expect, next domain.Status, paymentID string) (*domain.Booking, error) {
	var out domain.Booking
	err := r.access(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
		}
		if b.Status() != expect {
			return repository.ErrStateChanged
		}
		b.SetStatus(next)
		if paymentID != "" {
			b.PaymentID = paymentID
		}
		b.UpdatedAt = time.Now().UTC()
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *bookingRepo) ListAwaitingReminder(ctx context.Context, kind domain.ReminderKind) ([]domain.Booking, error) {
	return r.filter(func(b *domain.Booking) bool {
		return b.BookingStatus == domain.BookingStatusConfirmed && !b.ReminderSent(kind)
	})
}

func (r *bookingRepo) SetReminderSent(ctx context.Context, id string, kind domain.ReminderKind, sent bool) (bool, error) {
	changed := false
	err := r.access(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
		}
		if b.ReminderSent(kind) == sent {
			return nil
		}
		if kind == domain.Reminder24h {
			b.Reminder24hSent = sent
		} else {
			b.Reminder1hSent = sent
		}
		changed = true
		return nil
	})
	return changed, err
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*Tx)(nil)
)
