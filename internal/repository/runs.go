package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

const runColumns = `run_id, kind, status, stage_results, errors, logs, limits, triggered_by, created_at, started_at, completed_at, duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateRun persists a new run. The partial unique index on lane makes the
// active-run check and the insert one atomic step; a violation is reported
// as *ActiveRunError.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	stageResults, errs, logs, limits, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, kind, status, stage_results, errors, logs, limits, triggered_by, created_at, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Kind, run.Status, stageResults, errs, logs, limits, run.TriggeredBy,
		run.CreatedAt.UTC(), run.StartedAt, run.CompletedAt, run.DurationMs)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		active, lookupErr := s.GetActiveRun(ctx)
		if lookupErr != nil {
			return fmt.Errorf("%w (lookup failed: %v)", ErrActiveRunExists, lookupErr)
		}
		activeID := ""
		if active != nil {
			activeID = active.RunID
		}
		return &ActiveRunError{RunID: activeID}
	}
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	return scanRunRow(row)
}

// GetActiveRun returns the queued or running run, if any.
func (s *SQLiteStore) GetActiveRun(ctx context.Context) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status IN ('queued', 'running') ORDER BY created_at DESC LIMIT 1`)
	return scanRunRow(row)
}

// GetLastCompletedRun returns the most recently completed run, if any.
func (s *SQLiteStore) GetLastCompletedRun(ctx context.Context) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = 'completed' ORDER BY completed_at DESC LIMIT 1`)
	return scanRunRow(row)
}

// SaveRun writes the mutable part of a run. Runs already in a terminal
// state are never rewritten.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.Run) error {
	stageResults, errs, logs, _, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stage_results = ?, errors = ?, logs = ?, started_at = ?, completed_at = ?, duration_ms = ?
		 WHERE run_id = ? AND status NOT IN ('completed', 'failed', 'cancelled')`,
		run.Status, stageResults, errs, logs, run.StartedAt, run.CompletedAt, run.DurationMs, run.RunID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs WHERE run_id = ?`, run.RunID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("run %s: %w", run.RunID, ErrNotFound)
	}
	return fmt.Errorf("run %s: %w", run.RunID, ErrRunFinalized)
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, offset, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CountRuns returns the total number of runs.
func (s *SQLiteStore) CountRuns(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs`).Scan(&n)
	return n, err
}

func encodeRun(run *domain.Run) (stageResults, errs, logs, limits string, err error) {
	results := run.StageResults
	if results == nil {
		results = map[domain.StageName]domain.StageSummary{}
	}
	if stageResults, err = marshalText(results); err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode stage results: %w", err)
	}
	runErrors := run.Errors
	if runErrors == nil {
		runErrors = []domain.RunError{}
	}
	if errs, err = marshalText(runErrors); err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode errors: %w", err)
	}
	runLogs := run.Logs
	if runLogs == nil {
		runLogs = []domain.LogEntry{}
	}
	if logs, err = marshalText(runLogs); err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode logs: %w", err)
	}
	if limits, err = marshalText(run.Limits); err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode limits: %w", err)
	}
	return stageResults, errs, logs, limits, nil
}

func scanRunRow(row *sql.Row) (*domain.Run, error) {
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var stageResults, errs, logs string
	var limits sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&run.RunID, &run.Kind, &run.Status, &stageResults, &errs, &logs, &limits,
		&run.TriggeredBy, &run.CreatedAt, &startedAt, &completedAt, &run.DurationMs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stageResults), &run.StageResults); err != nil {
		return nil, fmt.Errorf("failed to decode stage results of %s: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode errors of %s: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(logs), &run.Logs); err != nil {
		return nil, fmt.Errorf("failed to decode logs of %s: %w", run.RunID, err)
	}
	if limits.Valid && limits.String != "" {
		if err := json.Unmarshal([]byte(limits.String), &run.Limits); err != nil {
			return nil, fmt.Errorf("failed to decode limits of %s: %w", run.RunID, err)
		}
	}
	run.StartedAt = nullTime(startedAt)
	run.CompletedAt = nullTime(completedAt)
	return &run, nil
}
