package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
)

// RunRepository handles database operations for pipeline run tracking
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new pipeline run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun creates a new pipeline run record
func (r *RunRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO pipeline_runs (
			id, flow, bucket, prefix, status, job_id, error_message, summary, started_at
		) VALUES (:id, :flow, :bucket, :prefix, :status, :job_id, :error_message, :summary, :started_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing pipeline run
func (r *RunRepository) UpdateRun(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE pipeline_runs
		SET status = :status, job_id = :job_id, error_message = :error_message,
		    summary = :summary, completed_at = :completed_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("update pipeline run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pipeline run %s: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

// GetRun retrieves a pipeline run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	query := `
		SELECT id, flow, bucket, prefix, status, job_id, error_message,
		       summary, started_at, completed_at
		FROM pipeline_runs
		WHERE id = $1
	`
	run := &domain.Run{}
	if err := r.db.GetContext(ctx, run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pipeline run %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, flow, bucket, prefix, status, job_id, error_message,
		       summary, started_at, completed_at
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	runs := []domain.Run{}
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, err
	}
	return runs, nil
}
