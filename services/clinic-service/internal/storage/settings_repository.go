package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

// SettingsRepository stores the single clinic settings row.
type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetOrDefault returns the stored settings, or the defaults before anything was saved.
func (r *SettingsRepository) GetOrDefault(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := r.pool.QueryRow(ctx, `
		SELECT clinic_name, doctor_name, sender_phone, timezone
		FROM clinic_settings
		WHERE id
	`).Scan(&s.ClinicName, &s.DoctorName, &s.SenderPhone, &s.Timezone)
	if IsNotFound(err) {
		return model.DefaultSettings(), nil
	}
	return s, err
}

func (r *SettingsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *SettingsRepository) Update(ctx context.Context, tx pgx.Tx, s model.Settings) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO clinic_settings (id, clinic_name, doctor_name, sender_phone, timezone)
		VALUES (true, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET clinic_name = EXCLUDED.clinic_name,
			doctor_name = EXCLUDED.doctor_name,
			sender_phone = EXCLUDED.sender_phone,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, s.ClinicName, s.DoctorName, s.SenderPhone, s.Timezone)
	return err
}
