package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one delivery attempt of a reminder.
type Notification struct {
	ID                int64
	EventID           string
	ReminderID        int64
	AppointmentID     string
	TemplateID        string
	Channel           string
	Recipient         string
	Message           string
	Provider          string
	ProviderMessageID string
	Status            string
	Error             string
	CreatedAt         time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO notifications (event_id, reminder_id, appointment_id, template_id, channel, recipient,
			message, provider, provider_message_id, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, n.EventID, n.ReminderID, n.AppointmentID, n.TemplateID, n.Channel, n.Recipient,
		n.Message, n.Provider, n.ProviderMessageID, n.Status, n.Error).Scan(&id)
	return id, err
}

// ListByAppointment returns every attempt for an appointment, oldest first.
func (r *Repository) ListByAppointment(ctx context.Context, appointmentID string) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, reminder_id, appointment_id, template_id, channel, recipient, message,
			provider, provider_message_id, status, error, created_at
		FROM notifications
		WHERE appointment_id = $1
		ORDER BY created_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EventID, &n.ReminderID, &n.AppointmentID, &n.TemplateID, &n.Channel,
			&n.Recipient, &n.Message, &n.Provider, &n.ProviderMessageID, &n.Status, &n.Error, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
