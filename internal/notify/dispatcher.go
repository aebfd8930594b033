// Package notify hands booking notifications to the message bus without making
// the caller wait. Delivery is best effort: a full buffer or a failed publish is
// logged and the notification dropped.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
)

type Publisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error
}

type Dispatcher struct {
	publisher  Publisher
	topic      string
	maxRetries int
	log        *slog.Logger

	queue chan kafka.BookingEvent
	once  sync.Once
}

func NewDispatcher(publisher Publisher, topic string, buffer, maxRetries int, log *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		publisher:  publisher,
		topic:      topic,
		maxRetries: maxRetries,
		log:        log.With(slog.String("component", "notify")),
		queue:      make(chan kafka.BookingEvent, buffer),
	}
}

// Submit enqueues the notification and returns immediately.
func (d *Dispatcher) Submit(event kafka.BookingEvent) {
	select {
	case d.queue <- event:
	default:
		d.log.Warn("notification queue full, dropping",
			slog.String("type", event.Type), slog.String("booking_id", event.BookingID))
	}
}

// Run publishes queued notifications until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	d.once.Do(func() {
		for {
			select {
			case event := <-d.queue:
				d.publish(ctx, event)
			case <-ctx.Done():
				d.drain()
				return
			}
		}
	})
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event kafka.BookingEvent) {
	if err := d.publisher.PublishWithRetry(ctx, d.topic, event.BookingID, event, d.maxRetries); err != nil {
		d.log.Error("failed to publish notification",
			slog.String("type", event.Type), slog.String("booking_id", event.BookingID), sl.Err(err))
	}
}
