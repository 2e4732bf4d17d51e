package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/model"
)

const templateColumns = `id, name, content, active, send_hours_before, created_at, updated_at`

type TemplateRepository struct {
	pool *db.Pool
}

func NewTemplateRepository(pool *db.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

func (r *TemplateRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *TemplateRepository) Create(ctx context.Context, tx pgx.Tx, t model.Template) (model.Template, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO notification_templates (id, name, content, active, send_hours_before)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, t.ID, t.Name, t.Content, t.Active, t.SendHoursBefore).Scan(&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (model.Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM notification_templates WHERE id = $1`, id))
}

func (r *TemplateRepository) List(ctx context.Context, activeOnly bool) ([]model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY send_hours_before DESC, name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

// ListActive reads the active templates inside tx with a share lock, so a concurrent template
// edit waits for tx and tx sees the edit once it commits.
func (r *TemplateRepository) ListActive(ctx context.Context, tx pgx.Tx) ([]model.Template, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+templateColumns+`
		FROM notification_templates
		WHERE active
		ORDER BY send_hours_before DESC, name
		FOR SHARE
	`)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

func collectTemplates(rows pgx.Rows) ([]model.Template, error) {
	defer rows.Close()
	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *TemplateRepository) Update(ctx context.Context, tx pgx.Tx, t model.Template) (model.Template, error) {
	err := tx.QueryRow(ctx, `
		UPDATE notification_templates
		SET name = $2, content = $3, active = $4, send_hours_before = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, t.ID, t.Name, t.Content, t.Active, t.SendHoursBefore).Scan(&t.UpdatedAt)
	return t, err
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM notification_templates WHERE id = $1`, id))
}

func scanTemplate(row scanner) (model.Template, error) {
	var t model.Template
	err := row.Scan(&t.ID, &t.Name, &t.Content, &t.Active, &t.SendHoursBefore, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
