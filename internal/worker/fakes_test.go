package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/pkg/distlock"
	"github.com/ignite/dormant-leads/internal/service/cohort"
	"github.com/ignite/dormant-leads/internal/service/detection"
)

var errBoom = errors.New("boom")

type memRuns struct {
	mu   sync.Mutex
	runs map[string]*domain.WorkerRun
	ids  []string
}

func newMemRuns() *memRuns { return &memRuns{runs: make(map[string]*domain.WorkerRun)} }

func (m *memRuns) Start(_ context.Context, run *domain.WorkerRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	m.ids = append(m.ids, run.ID)
	return nil
}

func (m *memRuns) Finish(_ context.Context, run *domain.WorkerRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[run.ID]
	if !ok || cur.Status != domain.RunRunning {
		return ErrRunNotFound
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memRuns) Get(_ context.Context, id string) (*domain.WorkerRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) List(_ context.Context, runType domain.RunType, limit int) ([]domain.WorkerRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkerRun
	for i := len(m.ids) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.runs[m.ids[i]]
		if runType == "" || r.Type == runType {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRuns) only(t *testing.T) *domain.WorkerRun {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ids) != 1 {
		t.Fatalf("want exactly one run, have %d", len(m.ids))
	}
	return m.runs[m.ids[0]]
}

type staleLeads struct {
	leads []domain.Lead
	err   error
}

func (s staleLeads) Stale(_ context.Context, limit int) ([]domain.Lead, error) {
	if len(s.leads) > limit {
		return s.leads[:limit], s.err
	}
	return s.leads, s.err
}

type memEvents struct {
	mu     sync.Mutex
	events []domain.NetworkEvent
	err    error
}

func (m *memEvents) Append(_ context.Context, events []domain.NetworkEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memEvents) lines() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, e := range m.events {
		out[e.HashedLine]++
	}
	return out
}

// flakySource fails every call for the lines in failing.
type flakySource struct {
	failing map[string]bool
}

func (s flakySource) SimSwapStatus(_ context.Context, line string) (domain.SimSwapStatus, error) {
	if s.failing[line] {
		return domain.SimSwapStatus{}, errBoom
	}
	at := time.Now().Add(-5 * 24 * time.Hour)
	return domain.SimSwapStatus{SwappedAt: &at, SwapCount30d: 1}, nil
}

func (s flakySource) Reachability(_ context.Context, line string) (domain.ReachabilityStatus, error) {
	return domain.ReachabilityStatus{Reachable: false}, nil
}

type fakeDetector struct {
	res   *detection.Result
	err   error
	calls int
	block chan struct{}
}

func (f *fakeDetector) Run(ctx context.Context) (*detection.Result, error) {
	f.calls++
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.res, f.err
}

type fakeRebuilder struct {
	res   *cohort.RebuildResult
	err   error
	calls int
	panic bool
}

func (f *fakeRebuilder) Rebuild(context.Context) (*cohort.RebuildResult, error) {
	f.calls++
	if f.panic {
		panic("nil cohort map")
	}
	return f.res, f.err
}

type countingRecorder struct {
	metrics.Nop
	mu           sync.Mutex
	fetchFailed  int
	eventsPurged int64
	runs         map[string]int
}

func (c *countingRecorder) SignalFetchFailed(string) {
	c.mu.Lock()
	c.fetchFailed++
	c.mu.Unlock()
}

func (c *countingRecorder) EventsPurged(n int64) {
	c.mu.Lock()
	c.eventsPurged += n
	c.mu.Unlock()
}

func (c *countingRecorder) RunFinished(runType, status string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs == nil {
		c.runs = make(map[string]int)
	}
	c.runs[runType+"/"+status]++
}

func setupLocks(t *testing.T) (*redis.Client, distlock.Factory) {
	t.Helper()
	_, client, locks := setupRedisLocks(t, time.Minute)
	return client, locks
}

func setupRedisLocks(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *redis.Client, distlock.Factory) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client, distlock.NewFactory(client, nil, ttl)
}
