package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

type serveConfig struct {
	Service  string
	Port     string
	GRPCPort string

	DatabaseURL    string
	MigrateOnStart bool
	DBPool         db.Options

	Location      *time.Location
	StrictCascade bool

	JWTSecret string
	JWTTTL    time.Duration

	KafkaBrokers      string
	OutboxPollEvery   time.Duration
	OutboxRetention   time.Duration
	ReminderPollEvery time.Duration
	ReminderBackoff   time.Duration

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitPerMin   int
	RateLimitFailOpen bool

	CORSOrigins    []string
	BodyLimitBytes int64
	RequestTimeout time.Duration

	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	StripeCurrency         string
	CheckoutSuccessURL     string
	CheckoutCancelURL      string
}

func loadServeConfig(service string) (serveConfig, error) {
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return serveConfig{}, err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return serveConfig{}, err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return serveConfig{}, err
	}
	loc, err := loadLocation(config.String("CLINIC_TIMEZONE", model.DefaultTimezone))
	if err != nil {
		return serveConfig{}, err
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return serveConfig{}, err
	}

	return serveConfig{
		Service:        service,
		Port:           port,
		GRPCPort:       grpcPort,
		DatabaseURL:    dbURL,
		MigrateOnStart: config.Bool("MIGRATE_ON_START", true),
		DBPool:         dbPoolOptions(),

		Location:      loc,
		StrictCascade: config.Bool("SCHEDULING_STRICT_CASCADE", false),

		JWTSecret: jwtSecret,
		JWTTTL:    config.Duration("JWT_TTL", 12*time.Hour),

		KafkaBrokers:      config.String("KAFKA_BROKERS", ""),
		OutboxPollEvery:   config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxRetention:   config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		ReminderPollEvery: config.Duration("REMINDER_POLL_INTERVAL", 5*time.Second),
		ReminderBackoff:   config.Duration("REMINDER_BACKOFF", time.Minute),

		RedisAddr:         config.String("REDIS_ADDR", ""),
		RedisPassword:     config.String("REDIS_PASSWORD", ""),
		RedisDB:           config.Int("REDIS_DB", 0),
		RateLimitPerMin:   config.Int("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitFailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),

		CORSOrigins:    config.List("CORS_ALLOWED_ORIGINS", ""),
		BodyLimitBytes: int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		RequestTimeout: config.Duration("REQUEST_TIMEOUT", 15*time.Second),

		StripeSecretKey:        config.String("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		StripeCurrency:         config.String("STRIPE_CURRENCY", "mad"),
		CheckoutSuccessURL:     config.String("CHECKOUT_SUCCESS_URL", "http://localhost:8000/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:      config.String("CHECKOUT_CANCEL_URL", "http://localhost:8000/billing/cancel"),
	}, nil
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid CLINIC_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func dbPoolOptions() db.Options {
	return db.Options{
		MaxConns:        int32(config.Int("DB_MAX_CONNS", 0)),
		MinConns:        int32(config.Int("DB_MIN_CONNS", 0)),
		MaxConnLifetime: config.Duration("DB_MAX_CONN_LIFETIME", 0),
		MaxConnIdleTime: config.Duration("DB_MAX_CONN_IDLE_TIME", 0),
	}
}
