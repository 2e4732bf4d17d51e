package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/outbox"
)

const (
	EventReminderDue = "clinic.reminder.due.v1"
	EventReminderDLQ = "clinic.reminder.dlq.v1"
)

// DuePayload is the body of a clinic.reminder.due.v1 event.
type DuePayload struct {
	ReminderID    int64  `json:"reminder_id"`
	AppointmentID string `json:"appointment_id"`
	TemplateID    string `json:"template_id"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	Message       string `json:"message"`
	RemindAt      string `json:"remind_at"`
	ErrorReason   string `json:"error_reason,omitempty"`
	FailedAt      string `json:"failed_at,omitempty"`
}

func NewDuePayload(job Job) DuePayload {
	return DuePayload{
		ReminderID:    job.ID,
		AppointmentID: job.AppointmentID,
		TemplateID:    job.TemplateID,
		Channel:       "whatsapp",
		Recipient:     job.Recipient,
		Message:       job.Message,
		RemindAt:      job.RemindAt.UTC().Format(time.RFC3339),
	}
}

// Worker moves due reminder jobs into the outbox.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    outbox.Writer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo outbox.Writer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	var ids []int64
	var failed []Job
	for _, job := range due {
		jobCtx := job.Trace.Attach(ctx)
		evt, err := outbox.NewEvent("reminder", job.AppointmentID, EventReminderDue, NewDuePayload(job))
		if err == nil {
			err = w.outbox.Insert(jobCtx, tx, evt)
		}
		if err != nil {
			w.logger.Warn("reminder enqueue failed", "reminder_id", job.ID, "appointment_id", job.AppointmentID, "err", err)
			failed = append(failed, job)
			continue
		}
		ids = append(ids, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, ids); err != nil {
		return err
	}

	for _, job := range failed {
		attempts := job.Attempts + 1
		nextRunAt := time.Now().UTC().Add(w.backoff)
		if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, "outbox enqueue failed"); err != nil {
			return err
		}
		if failureStatus(attempts, job.MaxAttempts) == StatusFailed {
			jobCtx := job.Trace.Attach(ctx)
			if err := w.enqueueDLQ(jobCtx, tx, job, "max attempts reached"); err != nil {
				return err
			}
		}
	}

	if len(ids) > 0 {
		w.logger.Info("reminders enqueued", "count", len(ids))
	}
	return tx.Commit(ctx)
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	payload := NewDuePayload(job)
	payload.ErrorReason = reason
	payload.FailedAt = time.Now().UTC().Format(time.RFC3339)
	evt, err := outbox.NewEvent("reminder", job.AppointmentID, EventReminderDLQ, payload)
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, evt)
}
