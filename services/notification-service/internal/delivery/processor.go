// Package delivery turns clinic.reminder.due.v1 events into WhatsApp messages and records the outcome.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/clinicdesk/services/notification-service/internal/whatsapp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventReminderDue      = "clinic.reminder.due.v1"
	EventNotificationSent = "clinic.notification.sent.v1"
	EventNotificationFail = "clinic.notification.failed.v1"

	ChannelWhatsApp = "whatsapp"
)

// Reminder mirrors the body the clinic-service reminder worker publishes.
type Reminder struct {
	ReminderID    int64  `json:"reminder_id"`
	AppointmentID string `json:"appointment_id"`
	TemplateID    string `json:"template_id"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	Message       string `json:"message"`
	RemindAt      string `json:"remind_at"`
}

func (r Reminder) validate() error {
	var missing []string
	if r.AppointmentID == "" {
		missing = append(missing, "appointment_id")
	}
	if r.Recipient == "" {
		missing = append(missing, "recipient")
	}
	if strings.TrimSpace(r.Message) == "" {
		missing = append(missing, "message")
	}
	if r.RemindAt == "" {
		missing = append(missing, "remind_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing reminder fields: %s", strings.Join(missing, ", "))
	}
	if _, err := time.Parse(time.RFC3339, r.RemindAt); err != nil {
		return fmt.Errorf("invalid remind_at: %w", err)
	}
	return nil
}

type sentPayload struct {
	NotificationID    int64  `json:"notification_id"`
	ReminderID        int64  `json:"reminder_id"`
	AppointmentID     string `json:"appointment_id"`
	TemplateID        string `json:"template_id"`
	Channel           string `json:"channel"`
	Provider          string `json:"provider"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	SentAt            string `json:"sent_at"`
}

type failedPayload struct {
	NotificationID int64  `json:"notification_id"`
	ReminderID     int64  `json:"reminder_id"`
	AppointmentID  string `json:"appointment_id"`
	TemplateID     string `json:"template_id"`
	Channel        string `json:"channel"`
	Provider       string `json:"provider"`
	ErrorReason    string `json:"error_reason"`
	FailedAt       string `json:"failed_at"`
}

// Store records delivery attempts.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Insert(ctx context.Context, tx pgx.Tx, n storage.Notification) (int64, error)
}

type Config struct {
	// StaleAfter skips reminders whose send time is further in the past than this. Zero disables it.
	StaleAfter time.Duration
	// FailSuffix simulates a provider failure for recipients ending with it.
	FailSuffix string
}

type Processor struct {
	store  Store
	outbox outbox.Writer
	sender whatsapp.Sender
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

func NewProcessor(store Store, events outbox.Writer, sender whatsapp.Sender, logger *slog.Logger, cfg Config) *Processor {
	return &Processor{
		store:  store,
		outbox: events,
		sender: sender,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Handle processes one Kafka message. Malformed payloads are dropped; only storage
// errors are returned so the consumer can make the event retryable.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	var rem Reminder
	if err := json.Unmarshal(msg.Value, &rem); err != nil {
		p.logger.Error("invalid reminder payload", "err", err, "event_id", meta.EventID)
		return nil
	}
	if err := rem.validate(); err != nil {
		p.logger.Error("reminder rejected", "err", err, "event_id", meta.EventID)
		return nil
	}
	if rem.Channel == "" {
		rem.Channel = ChannelWhatsApp
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("clinic.appointment_id", rem.AppointmentID),
		attribute.Int64("clinic.reminder_id", rem.ReminderID),
	)

	n := storage.Notification{
		EventID:       meta.EventID,
		ReminderID:    rem.ReminderID,
		AppointmentID: rem.AppointmentID,
		TemplateID:    rem.TemplateID,
		Channel:       rem.Channel,
		Recipient:     rem.Recipient,
		Message:       rem.Message,
		Provider:      p.sender.ProviderID(),
		Status:        storage.StatusSent,
	}
	if reason := p.deliver(ctx, rem, &n); reason != "" {
		n.Status = storage.StatusFailed
		n.Error = reason
	}
	if err := p.record(ctx, n); err != nil {
		return err
	}
	p.logger.Info("reminder processed", "appointment_id", rem.AppointmentID, "reminder_id", rem.ReminderID,
		"provider", n.Provider, "status", n.Status)
	return nil
}

// deliver sends the message and returns the failure reason, empty on success.
func (p *Processor) deliver(ctx context.Context, rem Reminder, n *storage.Notification) string {
	if rem.Channel != ChannelWhatsApp {
		return "unsupported channel: " + rem.Channel
	}
	remindAt, _ := time.Parse(time.RFC3339, rem.RemindAt)
	if p.cfg.StaleAfter > 0 && p.now().Sub(remindAt) > p.cfg.StaleAfter {
		return "reminder expired"
	}
	if p.cfg.FailSuffix != "" && strings.HasSuffix(rem.Recipient, p.cfg.FailSuffix) {
		return "simulated failure"
	}
	id, err := p.sender.Send(ctx, rem.Recipient, rem.Message)
	if err != nil {
		p.logger.Error("whatsapp send failed", "err", err, "provider", n.Provider, "appointment_id", rem.AppointmentID)
		var perr *whatsapp.ProviderError
		if errors.As(err, &perr) {
			return perr.Error()
		}
		return err.Error()
	}
	n.ProviderMessageID = id
	return ""
}

func (p *Processor) record(ctx context.Context, n storage.Notification) error {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := p.store.Insert(ctx, tx, n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	at := p.now().UTC().Format(time.RFC3339)
	var evt outbox.Event
	if n.Status == storage.StatusSent {
		evt, err = outbox.NewEvent("notification", n.AppointmentID, EventNotificationSent, sentPayload{
			NotificationID:    id,
			ReminderID:        n.ReminderID,
			AppointmentID:     n.AppointmentID,
			TemplateID:        n.TemplateID,
			Channel:           n.Channel,
			Provider:          n.Provider,
			ProviderMessageID: n.ProviderMessageID,
			SentAt:            at,
		})
	} else {
		evt, err = outbox.NewEvent("notification", n.AppointmentID, EventNotificationFail, failedPayload{
			NotificationID: id,
			ReminderID:     n.ReminderID,
			AppointmentID:  n.AppointmentID,
			TemplateID:     n.TemplateID,
			Channel:        n.Channel,
			Provider:       n.Provider,
			ErrorReason:    n.Error,
			FailedAt:       at,
		})
	}
	if err != nil {
		return err
	}
	if err := p.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("enqueue %s: %w", evt.EventType, err)
	}
	return tx.Commit(ctx)
}
