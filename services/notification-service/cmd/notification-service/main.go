package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/whatsapp"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	logger := runtime.NewLogger(cfg.Service)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("notification-service stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serviceConfig, logger *slog.Logger) error {
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

	sender, err := whatsapp.New(cfg.WhatsApp)
	if err != nil {
		return err
	}

	pool, err := db.OpenWithOptions(ctx, cfg.DatabaseURL, cfg.DBPool)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		list, err := db.LoadMigrations(migrations.FS, ".")
		if err != nil {
			return err
		}
		if _, err := db.Migrate(ctx, pool, logger, list); err != nil {
			return err
		}
	}

	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: 50,
		Retention: cfg.OutboxRetention,
	})
	go outboxPublisher.Run(ctx)

	processor := delivery.NewProcessor(notificationsRepo, outboxRepo, sender, logger, delivery.Config{
		StaleAfter: cfg.StaleAfter,
		FailSuffix: cfg.FailSuffix,
	})
	if cfg.KafkaBrokers == "" {
		logger.Warn("reminder consumer disabled (no kafka brokers configured)")
	} else {
		eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MaxAttempts: cfg.ConsumeAttempts,
			Backoff:     cfg.ConsumeBackoff,
		}, processor.Handle)
		go eventConsumer.Run(ctx)
	}

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.KafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	registerRoutes(mux, notificationsRepo, cfg.JWTSecret, logger)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "provider", sender.ProviderID(), "topic", cfg.Topic)
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
	return nil
}
