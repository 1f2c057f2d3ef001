package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/pkg/distlock"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
)

// RunRepository stores the WorkerRun audit trail.
type RunRepository interface {
	Start(ctx context.Context, run *domain.WorkerRun) error
	// Finish finalizes a running run; it returns ErrRunNotFound when the run
	// is unknown or already finalized.
	Finish(ctx context.Context, run *domain.WorkerRun) error
	Get(ctx context.Context, id string) (*domain.WorkerRun, error)
	List(ctx context.Context, runType domain.RunType, limit int) ([]domain.WorkerRun, error)
}

// tracker wraps a unit of background work in a WorkerRun record.
type tracker struct {
	runs    RunRepository
	metrics metrics.Recorder
	now     func() time.Time
}

func newTracker(runs RunRepository, rec metrics.Recorder) *tracker {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &tracker{runs: runs, metrics: rec, now: time.Now}
}

type runFunc func(ctx context.Context) (domain.RunCounts, error)

// track records a running WorkerRun, executes fn and finalizes the run as
// completed or failed. The returned run is the finalized record.
func (t *tracker) track(ctx context.Context, typ domain.RunType, trigger domain.Trigger, by string, fn runFunc) (*domain.WorkerRun, error) {
	if trigger != domain.TriggerScheduled && trigger != domain.TriggerManual {
		return nil, ErrInvalidTrigger
	}
	run := &domain.WorkerRun{
		ID:          uuid.New().String(),
		Type:        typ,
		Trigger:     trigger,
		TriggeredBy: by,
		Status:      domain.RunRunning,
		StartedAt:   t.now(),
	}
	if err := t.runs.Start(ctx, run); err != nil {
		return nil, err
	}

	counts, runErr, stack := call(ctx, fn)
	if runErr != nil && errors.Is(context.Cause(ctx), distlock.ErrLeaseLost) {
		runErr = fmt.Errorf("%w: %w", runErr, context.Cause(ctx))
	}

	finished := t.now()
	run.FinishedAt = &finished
	run.DurationMs = finished.Sub(run.StartedAt).Milliseconds()
	run.RecordsProcessed = counts.Processed
	run.RecordsCreated = counts.Created
	run.RecordsUpdated = counts.Updated
	run.RecordsFailed = counts.Failed
	run.Status = domain.RunCompleted
	if runErr != nil {
		run.Status = domain.RunFailed
		run.Error = runErr.Error()
		run.ErrorStack = stack
	}

	// The audit record is written even when the caller's context is gone.
	if err := t.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("finalize worker run", "run_id", run.ID, "type", typ, "error", err.Error())
		if runErr == nil {
			runErr = fmt.Errorf("finalize run: %w", err)
		}
	}
	t.metrics.RunFinished(string(typ), string(run.Status), finished.Sub(run.StartedAt))
	return run, runErr
}

// call runs fn, converting a panic into an error. The stack is captured for
// every failure.
func call(ctx context.Context, fn runFunc) (counts domain.RunCounts, err error, stack string) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			stack = string(debug.Stack())
		}
	}()
	counts, err = fn(ctx)
	if err != nil {
		stack = string(debug.Stack())
	}
	return counts, err, stack
}
