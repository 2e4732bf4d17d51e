package storage

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

type StaffRepository struct {
	pool *db.Pool
}

func NewStaffRepository(pool *db.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

func (r *StaffRepository) Create(ctx context.Context, s model.Staff) (model.Staff, error) {
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	err := r.pool.QueryRow(ctx, `
		INSERT INTO staff (id, email, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, s.ID, s.Email, s.Name, s.Role, s.PasswordHash).Scan(&s.CreatedAt)
	return s, err
}

func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (model.Staff, error) {
	var s model.Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, role, password_hash, created_at
		FROM staff
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&s.ID, &s.Email, &s.Name, &s.Role, &s.PasswordHash, &s.CreatedAt)
	return s, err
}
