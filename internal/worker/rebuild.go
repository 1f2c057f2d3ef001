package worker

import (
	"context"
	"sync/atomic"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/service/cohort"
)

// RebuildResult is a cohort rebuild together with the run that audited it.
type RebuildResult struct {
	WorkerRunID string `json:"worker_run_id"`
	*cohort.RebuildResult
}

// CohortRebuild runs an out-of-schedule cohort rebuild as a cohort_rebuild
// WorkerRun.
type CohortRebuild struct {
	cohorts Rebuilder
	tracker *tracker
	running atomic.Bool
}

// NewCohortRebuild wraps c so that manual rebuilds are audited.
func NewCohortRebuild(c Rebuilder, runs RunRepository, rec metrics.Recorder) *CohortRebuild {
	return &CohortRebuild{cohorts: c, tracker: newTracker(runs, rec)}
}

// RebuildNow rebuilds every cohort. Concurrent calls return ErrRunInProgress.
func (c *CohortRebuild) RebuildNow(ctx context.Context, trigger domain.Trigger, triggeredBy string) (*RebuildResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	var res *cohort.RebuildResult
	run, err := c.tracker.track(ctx, domain.RunCohortRebuild, trigger, triggeredBy, func(ctx context.Context) (domain.RunCounts, error) {
		var err error
		res, err = c.cohorts.Rebuild(ctx)
		if err != nil {
			return domain.RunCounts{}, err
		}
		return domain.RunCounts{Processed: res.MembersAssigned, Created: res.CohortsCreated}, nil
	})
	if run == nil || err != nil {
		return nil, err
	}
	return &RebuildResult{WorkerRunID: run.ID, RebuildResult: res}, nil
}
