package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/grpcx"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/agenda"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/billing"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/jobs"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func serve(ctx context.Context, cfg serveConfig, logger *slog.Logger) error {
	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.OpenWithOptions(ctx, cfg.DatabaseURL, cfg.DBPool)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if _, err := applyMigrations(ctx, pool, logger); err != nil {
			return err
		}
	}

	appointments := storage.NewAppointmentRepository(pool)
	patients := storage.NewPatientRepository(pool)
	payments := storage.NewPaymentRepository(pool)
	templates := storage.NewTemplateRepository(pool)
	settings := storage.NewSettingsRepository(pool)
	staff := storage.NewStaffRepository(pool)
	outboxRepo := outbox.NewRepository()
	jobsRepo := jobs.NewRepository()

	reminders := jobs.NewScheduler(jobsRepo, templates, settings, appointments)
	svc := agenda.NewService(appointments, outboxRepo, reminders, logger, agenda.Config{
		Policy: scheduling.Policy{
			Hours:         scheduling.DefaultHours(cfg.Location),
			StrictCascade: cfg.StrictCascade,
		},
		Location: cfg.Location,
	})

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: 50,
		Retention: cfg.OutboxRetention,
	})
	go publisher.Run(ctx)

	worker := jobs.NewWorker(pool, jobsRepo, outboxRepo, logger, jobs.WorkerConfig{
		Interval: cfg.ReminderPollEvery,
		Backoff:  cfg.ReminderBackoff,
	})
	go worker.Run(ctx)

	checkout := billing.NewStripeCheckout(billing.StripeConfig{
		SecretKey:  cfg.StripeSecretKey,
		Currency:   cfg.StripeCurrency,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})
	if checkout == nil {
		logger.Warn("stripe checkout disabled: STRIPE_SECRET_KEY not set")
	}

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.KafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	var limiter httpx.Limiter = httpx.NewMemoryRateLimiter(cfg.RateLimitPerMin, time.Minute)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, cfg.Service+":ratelimit")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.Register(mux, handlers.Routes{
		Appointments: handlers.NewAppointmentHandler(svc, appointments, logger),
		Patients:     handlers.NewPatientHandler(patients, appointments, logger),
		Billing: handlers.NewBillingHandler(payments, appointments, checkout, outboxRepo, logger, handlers.BillingConfig{
			Location:         cfg.Location,
			WebhookSecret:    cfg.StripeWebhookSecret,
			WebhookTolerance: cfg.StripeWebhookTolerance,
		}),
		Notifications: handlers.NewNotificationHandler(templates, settings, svc, reminders, cfg.Location, logger),
		Stats:         handlers.NewStatsHandler(patients, svc, payments, cfg.Location, logger),
		Auth:          handlers.NewAuthHandler(staff, cfg.JWTSecret, cfg.JWTTTL, logger),
		JWTSecret:     cfg.JWTSecret,
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			ExposedHeaders: []string{httpx.RequestIDHeader, "Content-Disposition"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")

	grpcServer := grpcx.NewServer(logger)
	if err := grpcServer.Start(ctx, ":"+cfg.GRPCPort); err != nil {
		logger.Error("grpc server failed to start", "err", err)
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", cfg.Location.String(), "strict_cascade", cfg.StrictCascade)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	grpcServer.SetServing("", false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
