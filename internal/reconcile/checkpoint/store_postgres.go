package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists checkpoints in the sync_checkpoints table.
// This store is pure I/O; window arithmetic belongs to the reconciler.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed checkpoint store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, jobName string) (State, error) {
	query := `
		SELECT job_name, last_processed_to, created_at, updated_at
		FROM sync_checkpoints
		WHERE job_name = $1
	`
	state, err := scanState(s.db.QueryRowContext(ctx, query, jobName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("get checkpoint: %w", err)
	}
	return state, nil
}

// GetOrCreate inserts the checkpoint at initial when the job has none yet and
// returns the stored row. Concurrent callers converge on the first insert.
func (s *PostgresStore) GetOrCreate(ctx context.Context, jobName string, initial time.Time) (State, error) {
	query := `
		INSERT INTO sync_checkpoints (job_name, last_processed_to, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (job_name) DO UPDATE SET
			job_name = EXCLUDED.job_name
		RETURNING job_name, last_processed_to, created_at, updated_at
	`
	state, err := scanState(s.db.QueryRowContext(ctx, query, jobName, initial))
	if err != nil {
		return State{}, fmt.Errorf("get or create checkpoint: %w", err)
	}
	return state, nil
}

// Advance atomically moves the watermark forward. GREATEST keeps the column
// monotonic even if a stale cycle finishes late.
func (s *PostgresStore) Advance(ctx context.Context, jobName string, to time.Time) (State, error) {
	query := `
		UPDATE sync_checkpoints
		SET last_processed_to = GREATEST(last_processed_to, $2),
			updated_at = NOW()
		WHERE job_name = $1
		RETURNING job_name, last_processed_to, created_at, updated_at
	`
	state, err := scanState(s.db.QueryRowContext(ctx, query, jobName, to))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("advance checkpoint: %w", err)
	}
	return state, nil
}

func scanState(row *sql.Row) (State, error) {
	var state State
	if err := row.Scan(&state.JobName, &state.LastProcessedTo, &state.CreatedAt, &state.UpdatedAt); err != nil {
		return State{}, err
	}
	state.LastProcessedTo = state.LastProcessedTo.UTC()
	return state, nil
}
