package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/eventflow/config"
	"github.com/Domenick1991/eventflow/internal/bootstrap"
	"github.com/Domenick1991/eventflow/internal/email"
	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/Domenick1991/eventflow/internal/lib/logger"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/reminder"
	kafkaGo "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env).With(slog.String("process", "worker"))

	if cfg.Database.Driver == "memory" {
		log.Error("worker needs a shared database, the api runs reminders itself with the memory driver")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Database, log)
	if err != nil {
		log.Error("failed to open store", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	// validated at load time
	loc, _ := time.LoadLocation(cfg.Worker.Timezone)
	mailer := email.NewSender(cfg.SMTP, log)
	sweeper := reminder.NewSweeper(store, mailer, loc, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(gctx, cfg.Worker.ReminderInterval)
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
		defer consumer.Close()

		g.Go(func() error {
			return consumer.Consume(gctx, func(ctx context.Context, msg kafkaGo.Message) error {
				event, err := kafka.DecodeBookingEvent(msg)
				if err != nil {
					log.Warn("skipping undecodable notification", slog.Int64("offset", msg.Offset), sl.Err(err))
					return nil
				}
				if err := mailer.Send(ctx, event); err != nil {
					// a failed email must not stall the partition
					log.Error("failed to send notification", slog.String("type", event.Type),
						slog.String("booking_id", event.BookingID), sl.Err(err))
				}
				return nil
			})
		})
	} else {
		log.Warn("no kafka brokers configured, only reminders are processed")
	}

	log.Info("worker started", slog.Duration("reminder_interval", cfg.Worker.ReminderInterval))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("worker stopped")
}
