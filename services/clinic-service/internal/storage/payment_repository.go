package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

const paymentSelect = `
	SELECT p.id, p.appointment_id, a.patient_id, a.patient_name, p.amount_cents, p.method, p.consultation_type,
		p.status, p.provider_ref, a.start_time, p.paid_at, p.created_at, p.updated_at
	FROM payments p
	JOIN appointments a ON a.id = p.appointment_id`

type PaymentRepository struct {
	pool *db.Pool
}

func NewPaymentRepository(pool *db.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Upsert records the payment of an appointment; an appointment has at most one payment.
func (r *PaymentRepository) Upsert(ctx context.Context, p model.Payment) (model.Payment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, amount_cents, method, consultation_type, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id) DO UPDATE
		SET amount_cents = EXCLUDED.amount_cents,
			method = EXCLUDED.method,
			consultation_type = EXCLUDED.consultation_type,
			status = EXCLUDED.status,
			paid_at = EXCLUDED.paid_at,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`, p.ID, p.AppointmentID, p.Amount, p.Method, p.ConsultationType, p.Status, p.PaidAt).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (model.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, paymentSelect+` WHERE p.id = $1`, id))
}

func (r *PaymentRepository) GetByAppointment(ctx context.Context, appointmentID string) (model.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, paymentSelect+` WHERE p.appointment_id = $1`, appointmentID))
}

// ListRange returns payments whose appointment starts in [from, to).
func (r *PaymentRepository) ListRange(ctx context.Context, from, to time.Time) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx, paymentSelect+`
		WHERE a.start_time >= $1 AND a.start_time < $2
		ORDER BY a.start_time ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PaymentRepository) SetProviderRef(ctx context.Context, id, ref string) error {
	return affected(r.pool.Exec(ctx, `UPDATE payments SET provider_ref = $2, updated_at = now() WHERE id = $1`, id, ref))
}

// MarkPaidByRef settles the payment opened with the provider reference ref.
func (r *PaymentRepository) MarkPaidByRef(ctx context.Context, tx pgx.Tx, ref string, amount int64, method string, paidAt time.Time) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		UPDATE payments
		SET status = 'paid',
			amount_cents = $2,
			method = $3,
			paid_at = $4,
			updated_at = now()
		WHERE provider_ref = $1
		RETURNING id
	`, ref, amount, method, paidAt).Scan(&id)
	return id, err
}

// RecordProviderEvent returns false when the provider event was already processed.
func (r *PaymentRepository) RecordProviderEvent(ctx context.Context, tx pgx.Tx, provider, eventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO payment_provider_events (provider, event_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanPayment(row scanner) (model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.PatientID,
		&p.PatientName,
		&p.Amount,
		&p.Method,
		&p.ConsultationType,
		&p.Status,
		&p.ProviderRef,
		&p.AppointmentAt,
		&p.PaidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}
