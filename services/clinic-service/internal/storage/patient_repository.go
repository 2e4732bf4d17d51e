package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

const patientColumns = `id, number, last_name, first_name, phone, email, city, district, national_id, birth_date,
	insured, insurer, history_active, history_items, created_at, updated_at`

type PatientRepository struct {
	pool *db.Pool
}

func NewPatientRepository(pool *db.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

// Create assigns the next patient number and inserts p.
func (r *PatientRepository) Create(ctx context.Context, p model.Patient) (model.Patient, error) {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('patient_number_seq')`).Scan(&seq); err != nil {
			return err
		}
		p.Number = model.PatientNumber(seq)
		return tx.QueryRow(ctx, `
			INSERT INTO patients
				(id, number, last_name, first_name, phone, email, city, district, national_id, birth_date,
				 insured, insurer, history_active, history_items)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING created_at, updated_at
		`, p.ID, p.Number, p.LastName, p.FirstName, p.Phone, p.Email, p.City, p.District, p.NationalID, p.BirthDate,
			p.Insurance.Active, p.Insurance.Name, p.History.Active, historyItems(p.History.Items)).Scan(&p.CreatedAt, &p.UpdatedAt)
	})
	return p, err
}

func (r *PatientRepository) Get(ctx context.Context, id string) (model.Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

// List matches search against names, phone and patient number. limit <= 0 returns every row.
func (r *PatientRepository) List(ctx context.Context, search string, limit int) ([]model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients`
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		query += ` WHERE lower(last_name) LIKE $1 OR lower(first_name) LIKE $1 OR phone LIKE $1 OR lower(number) LIKE $1`
	}
	query += ` ORDER BY last_name, first_name`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
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

func (r *PatientRepository) Update(ctx context.Context, p model.Patient) (time.Time, error) {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET last_name = $2,
			first_name = $3,
			phone = $4,
			email = $5,
			city = $6,
			district = $7,
			national_id = $8,
			birth_date = $9,
			insured = $10,
			insurer = $11,
			history_active = $12,
			history_items = $13,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.LastName, p.FirstName, p.Phone, p.Email, p.City, p.District, p.NationalID, p.BirthDate,
		p.Insurance.Active, p.Insurance.Name, p.History.Active, historyItems(p.History.Items)).Scan(&updatedAt)
	return updatedAt, err
}

func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id))
}

func scanPatient(row scanner) (model.Patient, error) {
	var p model.Patient
	err := row.Scan(
		&p.ID,
		&p.Number,
		&p.LastName,
		&p.FirstName,
		&p.Phone,
		&p.Email,
		&p.City,
		&p.District,
		&p.NationalID,
		&p.BirthDate,
		&p.Insurance.Active,
		&p.Insurance.Name,
		&p.History.Active,
		&p.History.Items,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func historyItems(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
