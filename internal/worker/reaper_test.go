package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/distlock"
	"github.com/ignite/dormant-leads/internal/service/cohort"
)

type fakePurger struct {
	n   int64
	err error
}

func (f fakePurger) PurgeExpired(context.Context) (int64, error) { return f.n, f.err }

// batchedEvents hands out deletes from a fixed backlog, batch rows at a time.
type batchedEvents struct {
	mu      sync.Mutex
	backlog int64
	calls   int
	before  time.Time
}

func (b *batchedEvents) DeleteProcessedBefore(_ context.Context, before time.Time, batch int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.before = before
	n := int64(batch)
	if b.backlog < n {
		n = b.backlog
	}
	b.backlog -= n
	return n, nil
}

func newTestReaper(deps ReaperDeps) *Reaper {
	r := NewReaper(deps, config.LeadConfig{EventRetentionDays: 30}, config.SchedulerConfig{})
	r.batch = 100
	return r
}

func TestReaper_PurgeNow(t *testing.T) {
	runs := newMemRuns()
	events := &batchedEvents{backlog: 250}
	rec := &countingRecorder{}
	r := newTestReaper(ReaperDeps{Leads: fakePurger{n: 7}, Events: events, Runs: runs, Metrics: rec})
	now := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	res, err := r.PurgeNow(context.Background(), domain.TriggerManual, "ops")
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.LeadsPurged)
	assert.Equal(t, int64(250), res.EventsPurged)
	assert.Equal(t, 3, events.calls, "100 + 100 + 50")
	assert.Equal(t, now.Add(-30*24*time.Hour), events.before)
	assert.Equal(t, int64(250), rec.eventsPurged)

	run := runs.only(t)
	assert.Equal(t, domain.RunTTLPurge, run.Type)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 257, run.RecordsProcessed)
	assert.Equal(t, res.WorkerRunID, run.ID)
}

func TestReaper_ExactBatchMultipleProbesOnce(t *testing.T) {
	events := &batchedEvents{backlog: 200}
	r := newTestReaper(ReaperDeps{Leads: fakePurger{}, Events: events, Runs: newMemRuns()})

	res, err := r.PurgeNow(context.Background(), domain.TriggerScheduled, "")
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.EventsPurged)
	assert.Equal(t, 3, events.calls)
}

func TestReaper_LeadPurgeFailure(t *testing.T) {
	runs := newMemRuns()
	events := &batchedEvents{backlog: 10}
	r := newTestReaper(ReaperDeps{Leads: fakePurger{n: 3, err: errBoom}, Events: events, Runs: runs})

	_, err := r.PurgeNow(context.Background(), domain.TriggerScheduled, "")
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, events.calls)

	run := runs.only(t)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, 3, run.RecordsProcessed, "rows deleted before the failure are reported")
	assert.NotEmpty(t, run.ErrorStack)
}

func TestReaper_SkipsWhileLeaseHeld(t *testing.T) {
	client, locks := setupLocks(t)
	runs := newMemRuns()
	r := newTestReaper(ReaperDeps{Leads: fakePurger{}, Events: &batchedEvents{}, Runs: runs, Locks: locks})

	other := distlock.NewRedisLock(client, reaperLockKey, time.Minute)
	ok, err := other.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.PurgeNow(context.Background(), domain.TriggerScheduled, "")
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, runs.ids)
}

func TestReaper_StartRunsImmediately(t *testing.T) {
	runs := newMemRuns()
	r := newTestReaper(ReaperDeps{Leads: fakePurger{n: 1}, Events: &batchedEvents{}, Runs: runs})
	r.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		list, _ := runs.List(context.Background(), domain.RunTTLPurge, 10)
		return len(list) == 1 && list[0].Status == domain.RunCompleted
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestCohortRebuild_RecordsRun(t *testing.T) {
	runs := newMemRuns()
	cohorts := &fakeRebuilder{res: &cohort.RebuildResult{CohortsCreated: 6, MembersAssigned: 42}}
	rb := NewCohortRebuild(cohorts, runs, nil)

	res, err := rb.RebuildNow(context.Background(), domain.TriggerManual, "ops")
	require.NoError(t, err)
	assert.Equal(t, 42, res.MembersAssigned)

	run := runs.only(t)
	assert.Equal(t, res.WorkerRunID, run.ID)
	assert.Equal(t, domain.RunCohortRebuild, run.Type)
	assert.Equal(t, 42, run.RecordsProcessed)
	assert.Equal(t, 6, run.RecordsCreated)
}

func TestCohortRebuild_Failure(t *testing.T) {
	runs := newMemRuns()
	rb := NewCohortRebuild(&fakeRebuilder{err: errBoom}, runs, nil)

	_, err := rb.RebuildNow(context.Background(), domain.TriggerManual, "ops")
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, domain.RunFailed, runs.only(t).Status)
}
