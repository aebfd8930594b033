// Package reminder sends the 24 hour and 1 hour reminders for confirmed bookings.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/notify"
	"github.com/Domenick1991/eventflow/internal/repository"
)

type Sender interface {
	Send(ctx context.Context, event kafka.BookingEvent) error
}

var kinds = []struct {
	kind      domain.ReminderKind
	eventType string
}{
	{domain.Reminder24h, kafka.EventReminder24h},
	{domain.Reminder1h, kafka.EventReminder1h},
}

type Sweeper struct {
	store  repository.Store
	sender Sender
	loc    *time.Location
	now    func() time.Time
	log    *slog.Logger
}

// NewSweeper interprets slot labels in loc.
func NewSweeper(store repository.Store, sender Sender, loc *time.Location, log *slog.Logger) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{
		store:  store,
		sender: sender,
		loc:    loc,
		now:    time.Now,
		log:    log.With(slog.String("component", "reminder")),
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if sent, err := s.Sweep(ctx); err != nil {
			s.log.Error("reminder sweep failed", sl.Err(err))
		} else if sent > 0 {
			s.log.Info("reminders sent", slog.Int("count", sent))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep sends every reminder that is due now and returns how many went out.
// The sent flag is claimed before sending so that concurrent sweeps never
// double-send, and handed back when the send fails.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	sent := 0
	var errs []error
	for _, k := range kinds {
		bookings, err := s.store.Bookings().ListAwaitingReminder(ctx, k.kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for i := range bookings {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			ok, err := s.remind(ctx, &bookings[i], k.kind, k.eventType, now)
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				sent++
			}
		}
	}
	return sent, errors.Join(errs...)
}

func (s *Sweeper) remind(ctx context.Context, b *domain.Booking, kind domain.ReminderKind, eventType string, now time.Time) (bool, error) {
	log := s.log.With(slog.String("booking_id", b.ID), slog.String("kind", string(kind)))

	due, err := b.DueForReminder(kind, s.loc, now)
	if err != nil {
		log.Warn("cannot schedule reminder", sl.Err(err))
		return false, nil
	}
	if !due {
		return false, nil
	}

	event, err := s.store.Events().Get(ctx, b.EventID)
	if err != nil {
		return false, err
	}
	if event.Deleted() {
		return false, nil
	}

	claimed, err := s.store.Bookings().SetReminderSent(ctx, b.ID, kind, true)
	if err != nil || !claimed {
		return false, err
	}

	if err := s.sender.Send(ctx, notify.Message(eventType, b, event)); err != nil {
		log.Error("failed to send reminder", sl.Err(err))
		if _, rErr := s.store.Bookings().SetReminderSent(ctx, b.ID, kind, false); rErr != nil {
			log.Error("failed to release reminder claim", sl.Err(rErr))
		}
		return false, nil
	}
	return true, nil
}
