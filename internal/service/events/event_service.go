package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/lib/validate"
	"github.com/Domenick1991/eventflow/internal/repository"
	"github.com/google/uuid"
)

type EventUseCase interface {
	List(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error)
	Get(ctx context.Context, id string) (*domain.Event, error)
	Availability(ctx context.Context, id string, date time.Time, slotTime string) (*Availability, error)
	Create(ctx context.Context, actor domain.Actor, input EventInput) (*domain.Event, error)
	Update(ctx context.Context, id string, actor domain.Actor, input EventInput) (*domain.Event, error)
	Delete(ctx context.Context, id string, actor domain.Actor) error
}

type Cache interface {
	GetEvents(ctx context.Context) ([]domain.Event, error)
	SetEvents(ctx context.Context, events []domain.Event) error
	InvalidateEvents(ctx context.Context) error
}

type SlotInput struct {
	Time     string `json:"time" validate:"required"`
	Capacity int    `json:"capacity" validate:"gte=0"`
}

type DateInput struct {
	Date  time.Time   `json:"date" validate:"required"`
	Slots []SlotInput `json:"slots" validate:"required,min=1,dive"`
}

type EventInput struct {
	Title       string      `json:"title" validate:"required"`
	Description string      `json:"description" validate:"required"`
	Category    string      `json:"category" validate:"required,oneof=Concert Conference Workshop Sports Stand-Up Other"`
	Location    string      `json:"location" validate:"required"`
	PriceCents  int64       `json:"priceCents" validate:"gte=0"`
	Dates       []DateInput `json:"dates" validate:"required,min=1,dive"`
}

func (in EventInput) schedule() []domain.DateEntry {
	out := make([]domain.DateEntry, 0, len(in.Dates))
	for _, d := range in.Dates {
		entry := domain.DateEntry{Date: d.Date, Slots: make([]domain.Slot, 0, len(d.Slots))}
		for _, s := range d.Slots {
			entry.Slots = append(entry.Slots, domain.Slot{Time: s.Time, Capacity: s.Capacity, AvailableSeats: s.Capacity})
		}
		out = append(out, entry)
	}
	return out
}

type Availability struct {
	Available      bool `json:"available"`
	AvailableSeats int  `json:"availableSeats"`
}

type EventService struct {
	store    repository.Store
	cache    Cache
	validate *validate.Validator
	log      *slog.Logger
}

func NewEventService(store repository.Store, cache Cache, log *slog.Logger) *EventService {
	return &EventService{
		store:    store,
		cache:    cache,
		validate: validate.New(),
		log:      log.With(slog.String("component", "events")),
	}
}

// List serves the unfiltered catalogue from cache when possible; filtered queries
// always hit storage.
func (s *EventService) List(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	cacheable := s.cache != nil && filter == (repository.EventFilter{})
	if cacheable {
		cached, err := s.cache.GetEvents(ctx)
		if err != nil {
			s.log.Warn("events cache read failed", sl.Err(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	events, err := s.store.Events().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.SetEvents(ctx, events); err != nil {
			s.log.Warn("events cache write failed", sl.Err(err))
		}
	}
	return events, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*domain.Event, error) {
	event, err := s.store.Events().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Deleted() {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
	}
	return event, nil
}

func (s *EventService) Availability(ctx context.Context, id string, date time.Time, slotTime string) (*Availability, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	slot, err := domain.FindSlot(event, date, slotTime)
	if err != nil {
		return nil, err
	}
	return &Availability{Available: slot.AvailableSeats > 0, AvailableSeats: slot.AvailableSeats}, nil
}

func (s *EventService) Create(ctx context.Context, actor domain.Actor, input EventInput) (*domain.Event, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin access required", domain.ErrForbidden)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	event := &domain.Event{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Location:    input.Location,
		PriceCents:  input.PriceCents,
		Dates:       input.schedule(),
		CreatedBy:   actor.UserID,
	}
	for i := range event.Dates {
		event.Dates[i].Date = domain.CalendarDay(event.Dates[i].Date)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Events().Create(ctx, event); err != nil {
		return nil, fmt.Errorf("events.Create: %w", err)
	}

	s.log.Info("event created", slog.String("event_id", event.ID), slog.String("by", actor.UserID))
	s.invalidate(ctx)
	return event, nil
}

// Update replaces the event's details and schedule while the slots are locked,
// so bookings made meanwhile are not lost from the seat counts.
func (s *EventService) Update(ctx context.Context, id string, actor domain.Actor, input EventInput) (*domain.Event, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin access required", domain.ErrForbidden)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("events.Update: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := tx.Events().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Deleted() {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
	}

	if err := domain.ValidateSchedule(input.schedule()); err != nil {
		return nil, err
	}
	dates, err := domain.Reschedule(current.Dates, input.schedule())
	if err != nil {
		return nil, err
	}
	updated := *current
	updated.Title = input.Title
	updated.Description = input.Description
	updated.Category = input.Category
	updated.Location = input.Location
	updated.PriceCents = input.PriceCents
	updated.Dates = dates
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := tx.Events().Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("events.Update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("events.Update: commit: %w", err)
	}

	s.log.Info("event updated", slog.String("event_id", id), slog.String("by", actor.UserID))
	s.invalidate(ctx)
	return &updated, nil
}

// Delete hides the event from listings and new bookings. Existing bookings keep
// pointing at it and can still be read and cancelled.
func (s *EventService) Delete(ctx context.Context, id string, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin access required", domain.ErrForbidden)
	}
	if err := s.store.Events().SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return err
	}
	s.log.Info("event deleted", slog.String("event_id", id), slog.String("by", actor.UserID))
	s.invalidate(ctx)
	return nil
}

func (s *EventService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateEvents(ctx); err != nil {
		s.log.Warn("events cache invalidation failed", sl.Err(err))
	}
}

var _ EventUseCase = (*EventService)(nil)
