package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sessionly-app/sessionly/libs/auth"
	"github.com/sessionly-app/sessionly/libs/config"
	"github.com/sessionly-app/sessionly/libs/db"
	"github.com/sessionly-app/sessionly/libs/httpx"
	"github.com/sessionly-app/sessionly/libs/kafkax"
	otelx "github.com/sessionly-app/sessionly/libs/otel"
	"github.com/sessionly-app/sessionly/libs/runtime"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/consumer"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/handlers"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/inbox"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/outbox"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/payments"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/scheduling"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8081")
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

	repo := storage.NewBookingRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if brokers != "" {
		catalogConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   "practice.service.upserted.v1",
		}, consumer.NewCatalogHandler(repo, logger).Handle)
		go catalogConsumer.Run(ctx)
	} else {
		logger.Warn("catalog consumer disabled (no kafka brokers configured)")
	}

	schedulingProvider, err := scheduling.NewProvider(config.String("PRACTICE_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("scheduling provider init failed", "err", err)
	}
	if schedulingProvider == nil {
		logger.Warn("scheduling provider disabled; availability checks rely on the DB constraint")
	}

	var refunder payments.Refunder
	if key := config.String("STRIPE_API_KEY", ""); key != "" {
		stripe.Key = key
		refunder = payments.StripeRefunder{}
	} else {
		logger.Warn("stripe refunds disabled (STRIPE_API_KEY not set)")
	}

	bookingHandler := handlers.NewBookingHandler(repo, outboxRepo, logger, handlers.Config{
		Scheduling:             schedulingProvider,
		Refunder:               refunder,
		ReminderOffsets:        reminderOffsets(),
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: time.Duration(config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
	})

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	var jwks *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwks = auth.NewJWKSClient(jwksURL, 5*time.Minute)
	}
	verifier := auth.NewVerifier(jwtSecret, jwks)

	// Public endpoints are rate limited. Redis-backed when configured so
	// limits hold across instances, in-memory otherwise.
	publicLimit := config.Int("PUBLIC_RATE_LIMIT", 60)
	var limit httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limit = httpx.NewRedisRateLimiter(rdb, publicLimit, time.Minute, "booking").Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		limit = httpx.NewRateLimiter(publicLimit, time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/api/v1/public/slots", limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		bookingHandler.Slots(w, r)
	})))
	mux.Handle("/api/v1/public/book", limit(verifier.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		bookingHandler.Create(w, r)
	}))))
	mux.Handle("/api/v1/appointments", verifier.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		bookingHandler.List(w, r)
	})))
	mux.Handle("/api/v1/appointments/confirm", verifier.Require(postOnly(bookingHandler.Confirm)))
	mux.Handle("/api/v1/appointments/cancel", verifier.Require(postOnly(bookingHandler.Cancel)))
	mux.Handle("/api/v1/appointments/complete", verifier.Require(postOnly(bookingHandler.Complete)))
	mux.Handle("/api/v1/appointments/no-show", verifier.Require(postOnly(bookingHandler.NoShow)))
	mux.Handle("/api/v1/payments/webhooks/stripe", postOnly(bookingHandler.StripeWebhook))
	mux.Handle("/api/v1/payments/mark-paid", verifier.Require(postOnly(bookingHandler.MarkPaid)))

	handler := httpx.Chain(mux,
		httpx.WithCORS(corsPolicy()),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "booking")
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
		AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS"),
		AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
		AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
	}
}

func postOnly(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	})
}

func reminderOffsets() []time.Duration {
	var offsets []time.Duration
	for _, raw := range config.List("REMINDER_OFFSET_HOURS", "24") {
		if d, err := time.ParseDuration(raw + "h"); err == nil && d > 0 {
			offsets = append(offsets, d)
		}
	}
	return offsets
}
