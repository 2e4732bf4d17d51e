package main

import (
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/whatsapp"
)

type serviceConfig struct {
	Service         string
	Port            string
	DatabaseURL     string
	MigrateOnStart  bool
	DBPool          db.Options
	JWTSecret       string
	KafkaBrokers    string
	GroupID         string
	Topic           string
	ConsumeAttempts int
	ConsumeBackoff  time.Duration
	OutboxPollEvery time.Duration
	OutboxRetention time.Duration
	StaleAfter      time.Duration
	FailSuffix      string
	WhatsApp        whatsapp.Config
}

func loadConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		Service:         config.String("SERVICE_NAME", "notification-service"),
		MigrateOnStart:  config.Bool("MIGRATE_ON_START", true),
		DBPool:          db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 0))},
		JWTSecret:       config.String("JWT_SECRET", ""),
		KafkaBrokers:    config.String("KAFKA_BROKERS", ""),
		GroupID:         config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:           config.String("KAFKA_CONSUME_TOPIC", delivery.EventReminderDue),
		ConsumeAttempts: config.Int("KAFKA_CONSUME_ATTEMPTS", 5),
		ConsumeBackoff:  config.Duration("KAFKA_CONSUME_BACKOFF", time.Second),
		OutboxPollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxRetention: config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		StaleAfter:      config.Duration("NOTIFICATION_STALE_AFTER", 12*time.Hour),
		FailSuffix:      config.String("NOTIFICATION_FAIL_SUFFIX", ""),
		WhatsApp: whatsapp.Config{
			Provider:      config.String("WHATSAPP_PROVIDER", whatsapp.ProviderNoop),
			Token:         config.String("WHATSAPP_TOKEN", ""),
			PhoneNumberID: config.String("WHATSAPP_PHONE_NUMBER_ID", ""),
			TwilioSID:     config.String("TWILIO_ACCOUNT_SID", ""),
			TwilioToken:   config.String("TWILIO_AUTH_TOKEN", ""),
			TwilioFrom:    config.String("TWILIO_FROM", ""),
			WebhookURL:    config.String("WHATSAPP_WEBHOOK_URL", ""),
			WebhookToken:  config.String("WHATSAPP_WEBHOOK_TOKEN", ""),
			BaseURL:       config.String("WHATSAPP_BASE_URL", ""),
			Timeout:       config.Duration("WHATSAPP_TIMEOUT", 10*time.Second),
		},
	}
	var err error
	if cfg.Port, err = config.Port("PORT", "8085"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	return cfg, nil
}
