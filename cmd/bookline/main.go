package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/mhasan-dev/bookline/internal/calendar"
	"github.com/mhasan-dev/bookline/internal/handlers"
	"github.com/mhasan-dev/bookline/internal/notify"
	"github.com/mhasan-dev/bookline/internal/outbox"
	"github.com/mhasan-dev/bookline/internal/payments"
	"github.com/mhasan-dev/bookline/internal/recurring"
	"github.com/mhasan-dev/bookline/internal/storage"
	"github.com/mhasan-dev/bookline/libs/config"
	"github.com/mhasan-dev/bookline/libs/db"
	"github.com/mhasan-dev/bookline/libs/httpx"
	"github.com/mhasan-dev/bookline/libs/kafkax"
	otelx "github.com/mhasan-dev/bookline/libs/otel"
	"github.com/mhasan-dev/bookline/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "bookline")
	port, err := config.Port("PORT", "8080")
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

	repo := storage.NewRepository(pool)
	policies := storage.NewPolicyRepository(pool)

	var gateway payments.Gateway
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		g, err := payments.NewStripeGateway(key)
		if err != nil {
			logger.Error("stripe gateway init failed", "err", err)
		} else {
			gateway = g
		}
	} else {
		logger.Warn("stripe not configured; online payments disabled")
	}

	var notifier notify.Notifier = notify.Noop{}
	if host := config.String("SMTP_HOST", ""); host != "" {
		notifier = notify.NewMailer(
			host,
			config.String("SMTP_PORT", "587"),
			config.String("SMTP_FROM", "no-reply@bookline.local"),
			storage.NewNotificationLog(pool),
		)
	}

	cal := calendar.NewWebhookClient(
		config.String("CALENDAR_BRIDGE_URL", ""),
		config.String("CALENDAR_BRIDGE_TOKEN", ""),
	)

	bookings := booking.NewService(repo, policies, gateway, notifier, cal, logger)
	expander := recurring.NewExpander(repo, bookings, notifier, logger)

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	handler := handlers.New(bookings, expander, repo, policies, logger,
		config.String("STRIPE_WEBHOOK_SECRET", ""),
		5*time.Minute,
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Tenant-ID"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
		publicRateLimit(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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

// publicRateLimit caps request rates on the public booking surface. Redis
// backs the limiter when REDIS_ADDR is set so the limit holds across
// replicas; otherwise a per-process fixed window applies.
func publicRateLimit(logger *slog.Logger) httpx.Middleware {
	limit := 120
	if v := config.String("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var limited httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		limited = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "bookline").
			Middleware(logger, true)
	} else {
		limited = httpx.NewRateLimiter(limit, time.Minute).Middleware()
	}

	return func(next http.Handler) http.Handler {
		guarded := limited(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v1/public/slots" || r.URL.Path == "/api/v1/public/book" {
				guarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
