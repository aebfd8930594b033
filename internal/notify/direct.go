package notify

import (
	"context"
	"fmt"

	"github.com/Domenick1991/eventflow/internal/kafka"
)

type Sender interface {
	Send(ctx context.Context, event kafka.BookingEvent) error
}

// DirectPublisher delivers notifications in-process when no message bus is
// configured. Topic and key are ignored.
type DirectPublisher struct {
	sender Sender
}

func NewDirectPublisher(sender Sender) *DirectPublisher {
	return &DirectPublisher{sender: sender}
}

func (p *DirectPublisher) PublishWithRetry(ctx context.Context, _, _ string, payload interface{}, maxRetries int) error {
	event, ok := payload.(kafka.BookingEvent)
	if !ok {
		return fmt.Errorf("unsupported notification payload %T", payload)
	}
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = p.sender.Send(ctx, event); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}
