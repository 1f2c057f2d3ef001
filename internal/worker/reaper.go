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
)

const (
	reaperLockKey = "dormant-leads:ttl-purge"

	// eventPurgeBatch bounds each DELETE to avoid long-held row locks.
	eventPurgeBatch = 10000
)

// LeadPurger hard-deletes expired leads.
type LeadPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// EventPurger deletes processed network events older than a cutoff.
type EventPurger interface {
	DeleteProcessedBefore(ctx context.Context, before time.Time, batch int) (int64, error)
}

// ReaperDeps are the collaborators of a Reaper.
type ReaperDeps struct {
	Leads   LeadPurger
	Events  EventPurger
	Runs    RunRepository
	Locks   distlock.Factory
	Metrics metrics.Recorder
}

// PurgeResult summarizes one reaper pass.
type PurgeResult struct {
	WorkerRunID  string        `json:"worker_run_id"`
	LeadsPurged  int64         `json:"leads_purged"`
	EventsPurged int64         `json:"events_purged"`
	Duration     time.Duration `json:"duration"`
}

// Reaper removes expired leads and processed events past retention.
type Reaper struct {
	deps      ReaperDeps
	tracker   *tracker
	retention time.Duration
	interval  time.Duration
	batch     int
	lease     lease

	running atomic.Bool
	now     func() time.Time
}

// NewReaper creates a reaper from the lead retention and scheduler settings.
func NewReaper(deps ReaperDeps, leads config.LeadConfig, sched config.SchedulerConfig) *Reaper {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	r := &Reaper{
		deps:      deps,
		tracker:   newTracker(deps.Runs, deps.Metrics),
		retention: leads.EventRetention(),
		interval:  sched.ReaperInterval(),
		batch:     eventPurgeBatch,
		lease:     newLease(sched.LockTTL()),
		now:       time.Now,
	}
	if r.retention <= 0 {
		r.retention = 30 * 24 * time.Hour
	}
	if r.interval <= 0 {
		r.interval = time.Hour
	}
	return r
}

// Start purges once immediately and then on every tick until ctx is
// cancelled.
func (r *Reaper) Start(ctx context.Context) {
	log.Printf("[Reaper] Starting (interval=%s, event_retention=%s, batch_size=%d)", r.interval, r.retention, r.batch)

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Reaper] Stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	res, err := r.PurgeNow(ctx, domain.TriggerScheduled, "")
	switch {
	case err == ErrRunInProgress:
		log.Println("[Reaper] Skipped, another purge is running")
	case err != nil:
		log.Printf("[Reaper] Purge failed: %v", err)
	case res.LeadsPurged+res.EventsPurged > 0:
		log.Printf("[Reaper] Removed %d expired leads and %d processed events in %s",
			res.LeadsPurged, res.EventsPurged, res.Duration.Round(time.Millisecond))
	}
}

// PurgeNow runs one pass and records it as a ttl_purge WorkerRun.
func (r *Reaper) PurgeNow(ctx context.Context, trigger domain.Trigger, triggeredBy string) (*PurgeResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	ctx, release, err := r.lease.hold(ctx, r.deps.Locks, reaperLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &PurgeResult{}
	run, err := r.tracker.track(ctx, domain.RunTTLPurge, trigger, triggeredBy, func(ctx context.Context) (domain.RunCounts, error) {
		var err error
		res.LeadsPurged, err = r.deps.Leads.PurgeExpired(ctx)
		if err != nil {
			return domain.RunCounts{Processed: int(res.LeadsPurged)}, err
		}
		res.EventsPurged, err = r.purgeEvents(ctx)
		return domain.RunCounts{Processed: int(res.LeadsPurged + res.EventsPurged)}, err
	})
	if run == nil {
		return nil, err
	}
	res.WorkerRunID = run.ID
	res.Duration = time.Duration(run.DurationMs) * time.Millisecond
	return res, err
}

func (r *Reaper) purgeEvents(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)
	var total int64
	for {
		n, err := r.deps.Events.DeleteProcessedBefore(ctx, cutoff, r.batch)
		if err != nil {
			return total, fmt.Errorf("purge processed events: %w", err)
		}
		total += n
		if n < int64(r.batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		r.deps.Metrics.EventsPurged(total)
		logger.Info("processed events purged", "count", total, "before", cutoff.Format(time.RFC3339))
	}
	return total, nil
}
