package worker

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/pkg/distlock"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/service/cohort"
	"github.com/ignite/dormant-leads/internal/service/detection"
	"github.com/ignite/dormant-leads/internal/signal"
)

const refreshLockKey = "dormant-leads:daily-refresh"

// StaleLeads lists the leads whose signals should be re-read.
type StaleLeads interface {
	Stale(ctx context.Context, limit int) ([]domain.Lead, error)
}

// EventAppender stores raw network observations.
type EventAppender interface {
	Append(ctx context.Context, events []domain.NetworkEvent) error
}

// Detector turns unprocessed events into lead decisions.
type Detector interface {
	Run(ctx context.Context) (*detection.Result, error)
}

// Rebuilder recomputes cohort memberships.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*cohort.RebuildResult, error)
}

// RefreshDeps are the collaborators of a DailyRefresh.
type RefreshDeps struct {
	Leads      StaleLeads
	Events     EventAppender
	Source     signal.Source
	SourceName string
	Normalizer *signal.Normalizer
	Detector   Detector
	Cohorts    Rebuilder
	Runs       RunRepository
	// Locks is optional; without it only the in-process guard applies.
	Locks   distlock.Factory
	Metrics metrics.Recorder
}

// RunResult summarizes one daily refresh.
type RunResult struct {
	WorkerRunID      string        `json:"worker_run_id"`
	RecordsProcessed int           `json:"records_processed"`
	RecordsCreated   int           `json:"records_created"`
	RecordsUpdated   int           `json:"records_updated"`
	RecordsFailed    int           `json:"records_failed"`
	Duration         time.Duration `json:"duration"`
}

// DailyRefresh re-reads network signals for stale leads, runs detection over
// the new events and rebuilds cohorts. Runs never overlap: an atomic flag
// guards this process and a distributed lease guards the fleet.
type DailyRefresh struct {
	deps      RefreshDeps
	tracker   *tracker
	batchSize int
	hour      int
	minute    int
	loc       *time.Location
	lease     lease

	running atomic.Bool
	now     func() time.Time
}

// NewDailyRefresh creates the scheduler. cfg.RunAt is interpreted in loc,
// or the local zone when loc is nil.
func NewDailyRefresh(deps RefreshDeps, cfg config.SchedulerConfig, loc *time.Location) (*DailyRefresh, error) {
	hour, minute, err := cfg.RunAtClock()
	if err != nil {
		return nil, err
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Normalizer == nil {
		deps.Normalizer = signal.NewNormalizer()
	}
	if deps.SourceName == "" {
		deps.SourceName = "signal"
	}
	if loc == nil {
		loc = time.Local
	}
	batch := cfg.StaleBatchSize
	if batch <= 0 {
		batch = 500
	}
	return &DailyRefresh{
		deps:      deps,
		tracker:   newTracker(deps.Runs, deps.Metrics),
		batchSize: batch,
		hour:      hour,
		minute:    minute,
		loc:       loc,
		lease:     newLease(cfg.LockTTL()),
		now:       time.Now,
	}, nil
}

// Start fires Run at the configured local time every day. It blocks until
// ctx is cancelled.
func (d *DailyRefresh) Start(ctx context.Context) {
	log.Printf("[DailyRefresh] Starting (run_at=%02d:%02d %s, stale_batch=%d)", d.hour, d.minute, d.loc, d.batchSize)
	for {
		next := nextRunAt(d.now(), d.hour, d.minute, d.loc)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("[DailyRefresh] Stopping")
			return
		case <-timer.C:
			res, err := d.Run(ctx, domain.TriggerScheduled, "")
			switch {
			case err == ErrRunInProgress:
				log.Println("[DailyRefresh] Skipped, another run holds the lease")
			case err != nil:
				log.Printf("[DailyRefresh] Run failed: %v", err)
			default:
				log.Printf("[DailyRefresh] Run %s done: processed=%d created=%d updated=%d failed=%d in %s",
					res.WorkerRunID, res.RecordsProcessed, res.RecordsCreated, res.RecordsUpdated,
					res.RecordsFailed, res.Duration.Round(time.Millisecond))
			}
		}
	}
}

// Run executes one refresh. It is the shared path of the scheduled timer and
// manual triggers, and returns ErrRunInProgress instead of overlapping.
func (d *DailyRefresh) Run(ctx context.Context, trigger domain.Trigger, triggeredBy string) (*RunResult, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer d.running.Store(false)

	ctx, release, err := d.lease.hold(ctx, d.deps.Locks, refreshLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := d.tracker.track(ctx, domain.RunDailyRefresh, trigger, triggeredBy, d.execute)
	if run == nil {
		return nil, err
	}
	return &RunResult{
		WorkerRunID:      run.ID,
		RecordsProcessed: run.RecordsProcessed,
		RecordsCreated:   run.RecordsCreated,
		RecordsUpdated:   run.RecordsUpdated,
		RecordsFailed:    run.RecordsFailed,
		Duration:         time.Duration(run.DurationMs) * time.Millisecond,
	}, err
}

func (d *DailyRefresh) execute(ctx context.Context) (domain.RunCounts, error) {
	var counts domain.RunCounts

	refreshed, failed, err := d.refreshSignals(ctx)
	counts.Failed = failed
	if err != nil {
		return counts, err
	}

	det, err := d.deps.Detector.Run(ctx)
	if det != nil {
		counts.Processed = det.LinesProcessed
		counts.Created = det.Created
		counts.Updated = det.Updated
	}
	if err != nil {
		return counts, fmt.Errorf("detection: %w", err)
	}

	reb, err := d.deps.Cohorts.Rebuild(ctx)
	if err != nil {
		return counts, fmt.Errorf("cohort rebuild: %w", err)
	}

	logger.Info("daily refresh finished",
		"lines_refreshed", refreshed, "signal_failures", failed,
		"events", det.EventsProcessed, "lines_skipped", det.LinesSkipped,
		"leads_created", det.Created, "leads_updated", det.Updated,
		"cohort_members", reb.MembersAssigned)
	return counts, nil
}

// refreshSignals fetches fresh observations for stale leads and appends them
// as network events. A line whose source calls fail is logged and skipped;
// only persistence errors abort.
func (d *DailyRefresh) refreshSignals(ctx context.Context) (refreshed, failed int, err error) {
	leads, err := d.deps.Leads.Stale(ctx, d.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("load stale leads: %w", err)
	}

	seen := make(map[string]bool, len(leads))
	for _, l := range leads {
		if seen[l.HashedLine] {
			continue
		}
		seen[l.HashedLine] = true
		if err := ctx.Err(); err != nil {
			return refreshed, failed, err
		}

		events, err := d.observe(ctx, l.HashedLine)
		if err != nil {
			failed++
			d.deps.Metrics.SignalFetchFailed(d.deps.SourceName)
			logger.Warn("signal fetch failed, skipping line", "hashed_line", l.HashedLine, "error", err.Error())
			continue
		}
		if err := d.deps.Events.Append(ctx, events); err != nil {
			return refreshed, failed, fmt.Errorf("append events: %w", err)
		}
		refreshed++
	}
	return refreshed, failed, nil
}

func (d *DailyRefresh) observe(ctx context.Context, line string) ([]domain.NetworkEvent, error) {
	swap, err := d.deps.Source.SimSwapStatus(ctx, line)
	if err != nil {
		return nil, fmt.Errorf("sim swap: %w", err)
	}
	reach, err := d.deps.Source.Reachability(ctx, line)
	if err != nil {
		return nil, fmt.Errorf("reachability: %w", err)
	}
	var profile *domain.LineProfile
	if p, ok := d.deps.Source.(signal.Profiler); ok {
		lp, err := p.LineProfile(ctx, line)
		if err != nil {
			logger.Debug("line profile unavailable", "hashed_line", line, "error", err.Error())
		} else {
			profile = &lp
		}
	}
	return d.deps.Normalizer.Events(line, swap, reach, profile)
}

// nextRunAt returns the first hour:minute in loc strictly after now.
func nextRunAt(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
