package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/eventflow/api"
	"github.com/Domenick1991/eventflow/config"
	"github.com/Domenick1991/eventflow/internal/auth"
	"github.com/Domenick1991/eventflow/internal/bootstrap"
	"github.com/Domenick1991/eventflow/internal/cache"
	"github.com/Domenick1991/eventflow/internal/email"
	"github.com/Domenick1991/eventflow/internal/kafka"
	"github.com/Domenick1991/eventflow/internal/lib/logger"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/notify"
	"github.com/Domenick1991/eventflow/internal/provider/stripe"
	"github.com/Domenick1991/eventflow/internal/reminder"
	"github.com/Domenick1991/eventflow/internal/service/booking"
	"github.com/Domenick1991/eventflow/internal/service/events"
	"github.com/Domenick1991/eventflow/internal/service/payment"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)
	log.Info("starting eventflow api", slog.String("env", cfg.Env))
	if cfg.Env != logger.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Database, log)
	if err != nil {
		log.Error("failed to open store", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	var eventsCache events.Cache
	var deliveries payment.DeliveryLog
	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.EventsCacheTTL)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn("redis unavailable, running without events cache and webhook dedupe", sl.Err(err))
	} else {
		eventsCache, deliveries = redisCache, redisCache
	}

	mailer := email.NewSender(cfg.SMTP, log)
	var publisher notify.Publisher = notify.NewDirectPublisher(mailer)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			log.Warn("kafka check failed, notifications will retry on publish", sl.Err(err))
		}
		publisher = producer
	} else {
		log.Warn("no kafka brokers configured, sending notifications in-process")
	}
	dispatcher := notify.NewDispatcher(publisher, cfg.Kafka.NotificationsTopic, cfg.Kafka.BufferSize, cfg.Kafka.MaxRetries, log)

	paymentProvider := stripe.New(stripe.Config{
		SecretKey:     cfg.Payment.StripeSecretKey,
		WebhookSecret: cfg.Payment.StripeWebhookSecret,
		Currency:      cfg.Payment.Currency,
	})
	if !paymentProvider.Configured() {
		log.Warn("stripe secret key not set, payment endpoints will report unavailable")
	}

	bookingService := booking.NewBookingService(store, log, booking.WithNotifier(dispatcher))
	eventService := events.NewEventService(store, eventsCache, log)
	paymentOpts := []payment.PaymentServiceOption{payment.WithNotifier(dispatcher)}
	if deliveries != nil {
		paymentOpts = append(paymentOpts, payment.WithDeliveryLog(deliveries))
	}
	paymentService := payment.NewPaymentService(store, bookingService, paymentProvider, payment.Config{
		ProviderTimeout: cfg.Payment.ProviderTimeout,
		DedupeTTL:       cfg.Payment.WebhookDedupeTTL,
	}, log, paymentOpts...)

	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, sessions cannot be verified")
	}
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.CookieName)
	router := api.NewRouter(api.Handlers{
		Bookings: api.NewBookingHandler(bookingService, log),
		Events:   api.NewEventHandler(eventService, log),
		Payments: api.NewPaymentHandler(paymentService, log),
	}, verifier, cfg.HTTP.SwaggerDir, log)

	jobs := []func(context.Context) error{
		func(ctx context.Context) error {
			dispatcher.Run(ctx)
			return nil
		},
	}
	// The worker process cannot see an in-memory store, so reminders run here.
	if cfg.Database.Driver == "memory" {
		loc, _ := time.LoadLocation(cfg.Worker.Timezone)
		sweeper := reminder.NewSweeper(store, mailer, loc, log)
		jobs = append(jobs, func(ctx context.Context) error {
			sweeper.Run(ctx, cfg.Worker.ReminderInterval)
			return nil
		})
	}

	if err := bootstrap.NewServers(cfg, router, log).Run(ctx, jobs...); err != nil {
		log.Error("server error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("api stopped")
}
