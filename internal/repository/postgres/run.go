package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/worker"
)

// WorkerRunRepo persists the audit trail of background runs.
type WorkerRunRepo struct{ db *sql.DB }

// NewWorkerRunRepo creates a Postgres-backed run store.
func NewWorkerRunRepo(db *sql.DB) *WorkerRunRepo { return &WorkerRunRepo{db: db} }

const runColumns = `id, run_type, trigger, triggered_by, status, records_processed, records_created,
	records_updated, records_failed, duration_ms, error, error_stack, started_at, finished_at`

// Start inserts a run in the running state.
func (r *WorkerRunRepo) Start(ctx context.Context, run *domain.WorkerRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO worker_runs (id, run_type, trigger, triggered_by, status, started_at)
		VALUES ($1, $2, $3, $4, 'running', $5)`,
		run.ID, run.Type, run.Trigger, nullString(run.TriggeredBy), run.StartedAt)
	if err != nil {
		return fmt.Errorf("start worker run: %w", err)
	}
	return nil
}

// Finish finalizes a running run. A run that was already finalized is left
// untouched and reported as ErrRunNotFound.
func (r *WorkerRunRepo) Finish(ctx context.Context, run *domain.WorkerRun) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE worker_runs
		SET status = $2, records_processed = $3, records_created = $4, records_updated = $5,
		    records_failed = $6, duration_ms = $7, error = $8, error_stack = $9, finished_at = $10
		WHERE id = $1 AND status = 'running'`,
		run.ID, run.Status, run.RecordsProcessed, run.RecordsCreated, run.RecordsUpdated,
		run.RecordsFailed, run.DurationMs, nullString(run.Error), nullString(run.ErrorStack), run.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish worker run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish worker run: %w", err)
	}
	if n == 0 {
		return worker.ErrRunNotFound
	}
	return nil
}

// Get returns a run by ID.
func (r *WorkerRunRepo) Get(ctx context.Context, id string) (*domain.WorkerRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM worker_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, worker.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get worker run: %w", err)
	}
	return run, nil
}

// List returns the newest runs, optionally restricted to one type.
func (r *WorkerRunRepo) List(ctx context.Context, runType domain.RunType, limit int) ([]domain.WorkerRun, error) {
	q := `SELECT ` + runColumns + ` FROM worker_runs`
	args := []interface{}{}
	if runType != "" {
		q += ` WHERE run_type = $1`
		args = append(args, runType)
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list worker runs: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkerRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*domain.WorkerRun, error) {
	var (
		run         domain.WorkerRun
		triggeredBy sql.NullString
		errMsg      sql.NullString
		errStack    sql.NullString
		finishedAt  sql.NullTime
	)
	err := row.Scan(&run.ID, &run.Type, &run.Trigger, &triggeredBy, &run.Status,
		&run.RecordsProcessed, &run.RecordsCreated, &run.RecordsUpdated, &run.RecordsFailed,
		&run.DurationMs, &errMsg, &errStack, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.TriggeredBy = triggeredBy.String
	run.Error = errMsg.String
	run.ErrorStack = errStack.String
	run.FinishedAt = nullTime(finishedAt)
	return &run, nil
}
