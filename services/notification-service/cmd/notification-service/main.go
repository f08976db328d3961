package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sessionly-app/sessionly/libs/config"
	"github.com/sessionly-app/sessionly/libs/db"
	"github.com/sessionly-app/sessionly/libs/httpx"
	"github.com/sessionly-app/sessionly/libs/kafkax"
	otelx "github.com/sessionly-app/sessionly/libs/otel"
	"github.com/sessionly-app/sessionly/libs/runtime"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/consumer"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/email"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/inbox"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/jobs"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/outbox"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/sms"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository()
	jobsRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@sessionly.app"),
	)

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	events := consumer.NewEvents(pool, jobsRepo, notificationsRepo, emailSender, smsSender, logger)

	if brokers != "" {
		groupID := config.String("KAFKA_GROUP_ID", "notification-service")
		topics := []struct {
			topic   string
			handler kafkax.Handler
		}{
			{"booking.appointment.requested.v1", events.AppointmentHandler("requested")},
			{"booking.appointment.confirmed.v1", events.AppointmentHandler("confirmed")},
			{"booking.appointment.cancelled.v1", events.AppointmentHandler("cancelled")},
			{"booking.reminder.requested.v1", events.ReminderRequested},
		}
		for _, t := range topics {
			c := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
				Brokers: brokers,
				GroupID: groupID,
				Topic:   t.topic,
			}, t.handler)
			go c.Run(ctx)
		}
	} else {
		logger.Warn("event consumers disabled (no kafka brokers configured)")
	}

	worker := jobs.NewWorker(pool, jobsRepo, notificationsRepo, outboxRepo, emailSender, smsSender, logger, jobs.WorkerConfig{
		Interval:  time.Duration(config.Int("REMINDER_POLL_SECONDS", 2)) * time.Second,
		BatchSize: config.Int("REMINDER_BATCH_SIZE", 50),
		Backoff:   time.Duration(config.Int("REMINDER_BACKOFF_SECONDS", 60)) * time.Second,
	})
	go worker.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithCORS(corsPolicy()),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func corsPolicy() httpx.CORSPolicy {
	return httpx.CORSPolicy{
		AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
		AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,OPTIONS"),
		AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id"),
		AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
	}
}
