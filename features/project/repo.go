package project

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, p *Project) error {
	query := `INSERT INTO projects (id, name, description) VALUES ($1, $2, $3) RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, p.ID, p.Name, p.Description).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	query := `SELECT id, name, description, created_at, updated_at FROM projects WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Project, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM projects ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, p *Project) error {
	query := `UPDATE projects SET name = $2, description = $3, updated_at = NOW() WHERE id = $1 RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, p.ID, p.Name, p.Description).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
