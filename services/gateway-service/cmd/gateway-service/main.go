package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type gatewayConfig struct {
	Service           string
	Port              string
	JWTSecret         string
	ClinicURL         string
	NotificationURL   string
	BodyLimitBytes    int64
	RequestTimeout    time.Duration
	RateLimitPerMin   int
	RateLimitFailOpen bool
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	CORSOrigins       []string
	CORSCredentials   bool
	CORSMaxAge        time.Duration
}

func loadConfig() (gatewayConfig, error) {
	cfg := gatewayConfig{
		Service:           config.String("SERVICE_NAME", "gateway-service"),
		ClinicURL:         config.String("CLINIC_URL", "http://clinic-service:8080"),
		NotificationURL:   config.String("NOTIFICATION_URL", "http://notification-service:8085"),
		BodyLimitBytes:    int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		RequestTimeout:    config.Duration("REQUEST_TIMEOUT", 20*time.Second),
		RateLimitPerMin:   config.Int("RATE_LIMIT_PER_MINUTE", 240),
		RateLimitFailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		RedisAddr:         config.String("REDIS_ADDR", ""),
		RedisPassword:     config.String("REDIS_PASSWORD", ""),
		RedisDB:           config.Int("REDIS_DB", 0),
		CORSOrigins:       config.List("CORS_ALLOWED_ORIGINS", ""),
		CORSCredentials:   config.Bool("CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAge:        config.Duration("CORS_MAX_AGE", 10*time.Minute),
	}
	var err error
	if cfg.Port, err = config.Port("PORT", "8000"); err != nil {
		return cfg, err
	}
	if cfg.JWTSecret, err = config.RequiredString("JWT_SECRET"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

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
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg gatewayConfig, logger *slog.Logger) error {
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

	up, err := newUpstreams(cfg.ClinicURL, cfg.NotificationURL, logger)
	if err != nil {
		return err
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "clinic-service", Check: upstreamReady(up.clinicURL)},
		{Name: "notification-service", Check: upstreamReady(up.notificationURL)},
	}

	var limiter httpx.Limiter = httpx.NewMemoryRateLimiter(cfg.RateLimitPerMin, time.Minute)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, cfg.Service+":ratelimit")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMin, "redis_addr", cfg.RedisAddr)
	} else {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMin)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	registerRoutes(mux, up, cfg.JWTSecret)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			ExposedHeaders:   []string{httpx.RequestIDHeader, "Content-Disposition"},
			AllowCredentials: cfg.CORSCredentials,
			MaxAge:           cfg.CORSMaxAge,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "clinic", cfg.ClinicURL, "notification", cfg.NotificationURL)
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
