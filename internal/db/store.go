package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotClaimable is returned when a run is not pending
var ErrRunNotClaimable = errors.New("selection run is not pending")

// Store provides database operations
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store
func NewStore(db *DB) *Store {
	return &Store{pool: db.Pool()}
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunStatus is the lifecycle state of a selection run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the run will not change again
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// SelectionRun is an asynchronous smart selection request and its outcome
type SelectionRun struct {
	ID          uuid.UUID        `json:"id"`
	Status      RunStatus        `json:"status"`
	Model       string           `json:"model"`
	Input       json.RawMessage  `json:"input"`
	Result      *json.RawMessage `json:"result,omitempty"`
	Error       *string          `json:"error,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// CreateSelectionRun stores a pending run, assigning its ID
func (s *Store) CreateSelectionRun(ctx context.Context, run *SelectionRun) error {
	run.ID = uuid.New()
	run.Status = RunPending
	run.CreatedAt = time.Now()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO selection_runs (id, status, model, input, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.Status, run.Model, run.Input, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create selection run: %w", err)
	}
	return nil
}

// GetSelectionRun gets a run by ID, or nil when it does not exist
func (s *Store) GetSelectionRun(ctx context.Context, id uuid.UUID) (*SelectionRun, error) {
	run := &SelectionRun{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, status, model, input, result, error, started_at, completed_at, created_at
		FROM selection_runs WHERE id = $1
	`, id).Scan(&run.ID, &run.Status, &run.Model, &run.Input, &run.Result, &run.Error,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection run: %w", err)
	}
	return run, nil
}

// ClaimSelectionRun moves a pending run to running. It returns
// ErrRunNotClaimable when another worker got there first.
func (s *Store) ClaimSelectionRun(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE selection_runs SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, RunRunning, RunPending)
	if err != nil {
		return fmt.Errorf("failed to claim selection run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotClaimable
	}
	return nil
}

// UpdateSelectionRun records the outcome of a run. Terminal statuses also
// set completed_at.
func (s *Store) UpdateSelectionRun(ctx context.Context, id uuid.UUID, status RunStatus, result json.RawMessage, errMsg *string) error {
	var completedAt *time.Time
	if status.Terminal() {
		now := time.Now()
		completedAt = &now
	}

	var resultArg any
	if len(result) > 0 {
		resultArg = result
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE selection_runs
		SET status = $2, result = COALESCE($3, result), error = $4, completed_at = COALESCE($5, completed_at)
		WHERE id = $1
	`, id, status, resultArg, errMsg, completedAt)
	if err != nil {
		return fmt.Errorf("failed to update selection run: %w", err)
	}
	return nil
}

// ListSelectionRuns returns the most recent runs first
func (s *Store) ListSelectionRuns(ctx context.Context, limit, offset int) ([]SelectionRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, model, input, result, error, started_at, completed_at, created_at
		FROM selection_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list selection runs: %w", err)
	}
	defer rows.Close()

	var runs []SelectionRun
	for rows.Next() {
		var run SelectionRun
		if err := rows.Scan(&run.ID, &run.Status, &run.Model, &run.Input, &run.Result, &run.Error,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan selection run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListPendingSelectionRuns returns the oldest pending runs first
func (s *Store) ListPendingSelectionRuns(ctx context.Context, limit int) ([]SelectionRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, model, input, result, error, started_at, completed_at, created_at
		FROM selection_runs
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`, RunPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending selection runs: %w", err)
	}
	defer rows.Close()

	var runs []SelectionRun
	for rows.Next() {
		var run SelectionRun
		if err := rows.Scan(&run.ID, &run.Status, &run.Model, &run.Input, &run.Result, &run.Error,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan selection run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
