package resource

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"refbook/internal/ingest"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, res *Resource) error {
	query := `INSERT INTO resources (id, project_id, url, name, status, run_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, res.ID, res.ProjectID, res.URL, res.Name, res.Status, res.RunID).
		Scan(&res.CreatedAt, &res.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			return ErrDuplicate
		case foreignKeyViolation:
			// The parent project row is gone (or never existed).
			return ErrProjectNotFound
		}
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, projectID, id string) (*Resource, error) {
	res := &Resource{}
	query := `SELECT id, project_id, url, name, status, chunk_count, error_message, run_id, generation, created_at, updated_at
		FROM resources WHERE project_id = $1 AND id = $2`
	err := r.db.QueryRowContext(ctx, query, projectID, id).Scan(
		&res.ID, &res.ProjectID, &res.URL, &res.Name, &res.Status, &res.ChunkCount,
		&res.ErrorMessage, &res.RunID, &res.Generation, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PostgresRepo) List(ctx context.Context, projectID string) ([]Resource, error) {
	query := `SELECT id, project_id, url, name, status, chunk_count, error_message, run_id, generation, created_at, updated_at
		FROM resources WHERE project_id = $1 ORDER BY created_at DESC`
	return r.queryResources(ctx, query, projectID)
}

func (r *PostgresRepo) ListReady(ctx context.Context, projectID string) ([]Resource, error) {
	query := `SELECT id, project_id, url, name, status, chunk_count, error_message, run_id, generation, created_at, updated_at
		FROM resources WHERE project_id = $1 AND status = 'ready' ORDER BY created_at DESC`
	return r.queryResources(ctx, query, projectID)
}

func (r *PostgresRepo) queryResources(ctx context.Context, query string, args ...interface{}) ([]Resource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.ProjectID, &res.URL, &res.Name, &res.Status, &res.ChunkCount,
			&res.ErrorMessage, &res.RunID, &res.Generation, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, projectID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE project_id = $1 AND id = $2`, projectID, id)
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

// BeginRun arms a refresh: it swaps in a new run id and resets the row to
// pending, but only when no run is currently in flight. The previous
// generation pointer is untouched so readers keep serving the old chunks
// until the new run commits.
func (r *PostgresRepo) BeginRun(ctx context.Context, projectID, id, runID string) error {
	query := `UPDATE resources SET run_id = $3, status = 'pending', error_message = '', updated_at = NOW()
		WHERE project_id = $1 AND id = $2 AND status IN ('ready', 'error')`
	result, err := r.db.ExecContext(ctx, query, projectID, id, runID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM resources WHERE project_id = $1 AND id = $2)`, projectID, id).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) CountByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM resources WHERE project_id = $1 GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ClaimRun moves a queued run into processing. The run id acts as a fencing
// token: a stale message whose run id no longer matches the row claims
// nothing and returns nil.
func (r *PostgresRepo) ClaimRun(ctx context.Context, resourceID, runID string) (*ingest.ClaimedResource, error) {
	query := `UPDATE resources SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND run_id = $2 AND status = 'pending'
		RETURNING project_id, url`
	claimed := &ingest.ClaimedResource{}
	err := r.db.QueryRowContext(ctx, query, resourceID, runID).Scan(&claimed.ProjectID, &claimed.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CommitRun atomically publishes the run's chunks by flipping the row's
// generation pointer to the run id. Readers scope searches to the committed
// generation, so they see the old chunk set or the new one, never a mix.
// The resource name falls back to the fetched page title when it was left
// blank at creation. A false return means the row was deleted or refreshed
// mid-run and the caller must discard its chunks.
func (r *PostgresRepo) CommitRun(ctx context.Context, resourceID, runID, fetchedTitle string, chunkCount int) (bool, error) {
	query := `UPDATE resources SET status = 'ready', chunk_count = $3, generation = run_id,
		error_message = '', name = COALESCE(NULLIF(name, ''), $4), updated_at = NOW()
		WHERE id = $1 AND run_id = $2 AND status = 'processing'`
	result, err := r.db.ExecContext(ctx, query, resourceID, runID, chunkCount, fetchedTitle)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FailRun records a run failure. The fence is the run id, so it covers both
// a run that died mid-pipeline (processing) and one that never made it onto
// the queue (pending). If the row previously had a committed generation it
// stays readable; only the status and message change.
func (r *PostgresRepo) FailRun(ctx context.Context, resourceID, runID, message string) error {
	query := `UPDATE resources SET status = 'error', error_message = $3, updated_at = NOW()
		WHERE id = $1 AND run_id = $2 AND status IN ('pending', 'processing')`
	_, err := r.db.ExecContext(ctx, query, resourceID, runID, message)
	return err
}
