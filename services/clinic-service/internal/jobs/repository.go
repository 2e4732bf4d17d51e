package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Job is one WhatsApp reminder for one appointment and one template.
type Job struct {
	ID            int64
	AppointmentID string
	TemplateID    string
	Recipient     string
	RemindAt      time.Time
	Message       string
	Status        string
	Trace         otelx.StoredTrace
	Attempts      int
	MaxAttempts   int
	NextRunAt     time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Upsert schedules job, replacing the previous schedule of the same appointment and template.
// Rescheduling resets the attempt counter.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, job Job) error {
	if job.Status == "" {
		job.Status = StatusPending
	}
	trace := otelx.CaptureTrace(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO reminder_jobs (appointment_id, template_id, recipient, remind_at, message, status, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $4, $7, $8)
		ON CONFLICT (appointment_id, template_id) DO UPDATE
		SET recipient = EXCLUDED.recipient,
			remind_at = EXCLUDED.remind_at,
			message = EXCLUDED.message,
			status = EXCLUDED.status,
			next_run_at = EXCLUDED.next_run_at,
			attempts = 0,
			last_error = '',
			traceparent = EXCLUDED.traceparent,
			tracestate = EXCLUDED.tracestate,
			updated_at = now()
		WHERE reminder_jobs.status IN ('pending', 'canceled')
	`, job.AppointmentID, job.TemplateID, job.Recipient, job.RemindAt, job.Message, job.Status, trace.Parent, trace.State)
	return err
}

func (r *Repository) CancelForAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'canceled', updated_at = now()
		WHERE appointment_id = $1 AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CancelForTemplate stops the pending reminders of a template.
func (r *Repository) CancelForTemplate(ctx context.Context, tx pgx.Tx, templateID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'canceled', updated_at = now()
		WHERE template_id = $1 AND status = 'pending'
	`, templateID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, appointment_id, template_id, recipient, remind_at, message, status, traceparent, tracestate,
			attempts, max_attempts, next_run_at
		FROM reminder_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.TemplateID, &j.Recipient, &j.RemindAt, &j.Message, &j.Status,
			&j.Trace.Parent, &j.Trace.State, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, StatusProcessed)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts, maxAttempts int, nextRunAt time.Time, lastError string) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
			status = $3,
			next_run_at = $4,
			last_error = $5,
			updated_at = now()
		WHERE id = $1
	`, id, attempts, failureStatus(attempts, maxAttempts), nextRunAt, lastError)
	return err
}

func failureStatus(attempts, maxAttempts int) string {
	if attempts >= maxAttempts {
		return StatusFailed
	}
	return StatusPending
}
