package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/scheduling"
)

const appointmentColumns = `id, patient_id, patient_name, contact, start_time, duration_minutes, kind, type, source,
	status, location, video_link, new_patient, free, delegated, canceled, cancel_reason, canceled_at, created_at, updated_at`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *AppointmentRepository) Insert(ctx context.Context, tx pgx.Tx, a model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, patient_id, patient_name, contact, start_time, duration_minutes, kind, type, source,
			 status, location, video_link, new_patient, free, delegated, canceled, cancel_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, a.ID, a.PatientID, a.PatientName, a.Contact, a.Start, a.DurationMinutes, a.Kind, a.Type, a.Source,
		a.Status, a.Location, a.VideoLink, a.NewPatient, a.Free, a.Delegated, a.Canceled, a.CancelReason)
	return err
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

// LockDays takes the agenda advisory lock of every clinic day starting at one of days, in
// ascending order. Locks are held until tx ends and may be taken again in the same tx.
func (r *AppointmentRepository) LockDays(ctx context.Context, tx pgx.Tx, days ...time.Time) error {
	sorted := slices.Clone(days)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	sorted = slices.CompactFunc(sorted, func(a, b time.Time) bool { return a.Equal(b) })
	for _, day := range sorted {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, dayLockKey(day)); err != nil {
			return fmt.Errorf("lock day %s: %w", day.Format(time.DateOnly), err)
		}
	}
	return nil
}

func dayLockKey(day time.Time) string {
	return "agenda:" + day.UTC().Format(time.RFC3339)
}

// ListDayForUpdate serializes writers on the clinic day [from, to) with an advisory lock, then
// returns that day's rows locked for update. The lock also covers inserts, which row locks cannot.
func (r *AppointmentRepository) ListDayForUpdate(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]model.Appointment, error) {
	if err := r.LockDays(ctx, tx, from); err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC
		FOR UPDATE
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListRange returns appointments starting in [from, to), canceled ones included.
func (r *AppointmentRepository) ListRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListUpcoming returns the non-canceled appointments starting at or after from.
func (r *AppointmentRepository) ListUpcoming(ctx context.Context, tx pgx.Tx, from time.Time) ([]model.Appointment, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1 AND NOT canceled
		ORDER BY start_time ASC
	`, from)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) Update(ctx context.Context, tx pgx.Tx, a model.Appointment) error {
	return affected(tx.Exec(ctx, `
		UPDATE appointments
		SET patient_id = $2,
			patient_name = $3,
			contact = $4,
			start_time = $5,
			duration_minutes = $6,
			type = $7,
			source = $8,
			status = $9,
			location = $10,
			video_link = $11,
			new_patient = $12,
			free = $13,
			delegated = $14,
			updated_at = now()
		WHERE id = $1
	`, a.ID, a.PatientID, a.PatientName, a.Contact, a.Start, a.DurationMinutes, a.Type, a.Source,
		a.Status, a.Location, a.VideoLink, a.NewPatient, a.Free, a.Delegated))
}

// ApplyShifts moves every shifted appointment in one round trip.
func (r *AppointmentRepository) ApplyShifts(ctx context.Context, tx pgx.Tx, shifts []scheduling.Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range shifts {
		batch.Queue(`UPDATE appointments SET start_time = $2, updated_at = now() WHERE id = $1`, s.ID, s.NewStart)
	}
	br := tx.SendBatch(ctx, batch)
	for _, s := range shifts {
		if err := affected(br.Exec()); err != nil {
			_ = br.Close()
			return fmt.Errorf("shift %s: %w", s.ID, err)
		}
	}
	return br.Close()
}

func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, id, reason string) (time.Time, error) {
	var canceledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET canceled = true,
			status = 'canceled',
			cancel_reason = $2,
			canceled_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING canceled_at
	`, id, reason).Scan(&canceledAt)
	return canceledAt, err
}

func (r *AppointmentRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	return affected(tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id))
}

func scanAppointment(row scanner) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PatientName,
		&a.Contact,
		&a.Start,
		&a.DurationMinutes,
		&a.Kind,
		&a.Type,
		&a.Source,
		&a.Status,
		&a.Location,
		&a.VideoLink,
		&a.NewPatient,
		&a.Free,
		&a.Delegated,
		&a.Canceled,
		&a.CancelReason,
		&a.CanceledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
