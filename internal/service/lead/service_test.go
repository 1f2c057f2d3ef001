package lead_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/scoring"
	"github.com/ignite/dormant-leads/internal/service/lead"
)

// memRepo is an in-memory lead repository for unit testing.
type memRepo struct {
	mu    sync.Mutex
	leads map[string]*domain.Lead // keyed by id

	deleteCalls int
	failUpsert  error
}

func newMemRepo() *memRepo {
	return &memRepo{leads: make(map[string]*domain.Lead)}
}

func (m *memRepo) Upsert(_ context.Context, l *domain.Lead) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return false, m.failUpsert
	}
	var prev *domain.Lead
	for _, existing := range m.leads {
		if existing.HashedLine != l.HashedLine {
			continue
		}
		if existing.LeadDay.Equal(l.LeadDay) {
			l.ID = existing.ID
			l.CreatedAt = existing.CreatedAt
			l.ExpiresAt = existing.ExpiresAt
			l.ContactCount = existing.ContactCount
			l.LastContactAt = existing.LastContactAt
			l.EstimatedValue = existing.EstimatedValue
			cp := *l
			m.leads[l.ID] = &cp
			return false, nil
		}
		if existing.LeadDay.Before(l.LeadDay) && (prev == nil || existing.LeadDay.After(prev.LeadDay)) {
			prev = existing
		}
	}
	if prev != nil {
		l.ContactCount = prev.ContactCount
		l.LastContactAt = prev.LastContactAt
		l.EstimatedValue = prev.EstimatedValue
	}
	cp := *l
	m.leads[l.ID] = &cp
	return true, nil
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, lead.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memRepo) Latest(_ context.Context, line string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Lead
	for _, l := range m.leads {
		if l.HashedLine == line && (latest == nil || l.LeadDay.After(latest.LeadDay)) {
			latest = l
		}
	}
	if latest == nil {
		return nil, lead.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memRepo) Query(_ context.Context, f domain.LeadFilter) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lead
	for _, l := range m.leads {
		if len(f.Actions) > 0 && !containsAction(f.Actions, l.NextAction) {
			continue
		}
		if f.EligibleOnly && !l.Eligible {
			continue
		}
		if f.ActiveAt != nil && !l.ExpiresAt.After(*f.ActiveAt) {
			continue
		}
		if l.DormantScore < f.MinScore {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DormantScore != out[j].DormantScore {
			return out[i].DormantScore > out[j].DormantScore
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) Stale(_ context.Context, actions []domain.NextAction, now time.Time, limit int) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lead
	for _, l := range m.leads {
		if containsAction(actions, l.NextAction) && l.ExpiresAt.After(now) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) DeleteExpired(_ context.Context, before time.Time, batch int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	var n int64
	for id, l := range m.leads {
		if int(n) == batch {
			break
		}
		if l.ExpiresAt.Before(before) {
			delete(m.leads, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) RecordContact(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return lead.ErrNotFound
	}
	l.ContactCount++
	l.LastContactAt = &at
	return nil
}

func (m *memRepo) SetEstimatedValue(_ context.Context, id string, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return lead.ErrNotFound
	}
	l.EstimatedValue = &v
	return nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}

func containsAction(list []domain.NextAction, a domain.NextAction) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(repo lead.Repository, c *clock) *lead.Service {
	svc := lead.NewService(repo, lead.Options{Location: time.UTC, PurgeBatch: 2})
	lead.SetClock(svc, c.now)
	return svc
}

func evaluation(action domain.NextAction, score float64) scoring.Evaluation {
	return scoring.Evaluation{
		Score:                score,
		Exclusions:           domain.NewExclusionSet(),
		NextAction:           action,
		Eligible:             action == domain.ActionSendNudge,
		ActivationWindowDays: 10,
		DaysSinceSwap:        4,
	}
}

var start = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func TestUpsertSameDayIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	c := &clock{t: start}
	svc := newService(repo, c)
	ctx := context.Background()

	first, created, err := svc.Upsert(ctx, "line-1", evaluation(domain.ActionHold, 0))
	require.NoError(t, err)
	assert.True(t, created)

	c.t = start.Add(10 * time.Hour) // 19:00, same day
	second, created, err := svc.Upsert(ctx, "line-1", evaluation(domain.ActionSendNudge, 0.8))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.count())

	stored, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSendNudge, stored.NextAction)
	assert.Equal(t, 0.8, stored.DormantScore)
	assert.Equal(t, first.ExpiresAt, stored.ExpiresAt, "ttl is fixed at creation")
}

func TestUpsertNextDayCreatesNewLead(t *testing.T) {
	repo := newMemRepo()
	c := &clock{t: start}
	svc := newService(repo, c)
	ctx := context.Background()

	first, _, err := svc.Upsert(ctx, "line-1", evaluation(domain.ActionSendNudge, 0.7))
	require.NoError(t, err)
	require.NoError(t, svc.RecordContact(ctx, first.ID, start))

	c.t = time.Date(2026, 4, 11, 0, 0, 1, 0, time.UTC)
	second, created, err := svc.Upsert(ctx, "line-1", evaluation(domain.ActionSendNudge, 0.7))
	require.NoError(t, err)

	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, repo.count())
	assert.Equal(t, 1, second.ContactCount, "contact history carries over")
	assert.Equal(t, 1, second.Signals.History.ContactCount)
}

func TestUpsertSetsTTL(t *testing.T) {
	svc := newService(newMemRepo(), &clock{t: start})

	l, _, err := svc.Upsert(context.Background(), "line-1", evaluation(domain.ActionSendNudge, 0.7))
	require.NoError(t, err)

	assert.Equal(t, start.Add(30*24*time.Hour), l.ExpiresAt)
	assert.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), l.LeadDay)
}

func TestUpsertValidation(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, &clock{t: start})

	_, _, err := svc.Upsert(context.Background(), "", evaluation(domain.ActionHold, 0))
	assert.ErrorIs(t, err, lead.ErrInvalidLine)
	assert.Zero(t, repo.count())
}

func TestUpsertPropagatesPersistenceErrors(t *testing.T) {
	repo := newMemRepo()
	repo.failUpsert = errors.New("connection reset")
	svc := newService(repo, &clock{t: start})

	_, _, err := svc.Upsert(context.Background(), "line-1", evaluation(domain.ActionHold, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDayUsesLocalMidnight(t *testing.T) {
	paris := time.FixedZone("CEST", 2*60*60)
	svc := lead.NewService(newMemRepo(), lead.Options{Location: paris})

	// 23:30 UTC on the 10th is already the 11th in Paris.
	day := svc.Day(time.Date(2026, 4, 10, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 4, 11, 0, 0, 0, 0, paris), day)
}

func TestPurgeExpiredRemovesOnlyExpired(t *testing.T) {
	repo := newMemRepo()
	c := &clock{t: start}
	svc := newService(repo, c)
	ctx := context.Background()

	var expired, kept []string
	for i, line := range []string{"a", "b", "c", "d", "e"} {
		c.t = start.AddDate(0, 0, -40+i*5) // created 40, 35, 30, 25, 20 days ago
		l, _, err := svc.Upsert(ctx, line, evaluation(domain.ActionHold, 0))
		require.NoError(t, err)
		if l.ExpiresAt.Before(start) {
			expired = append(expired, l.ID)
		} else {
			kept = append(kept, l.ID)
		}
	}
	c.t = start

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(len(expired)), n)
	assert.Equal(t, int64(2), n)
	for _, id := range expired {
		_, err := svc.Get(ctx, id)
		assert.ErrorIs(t, err, lead.ErrNotFound)
	}
	for _, id := range kept {
		_, err := svc.Get(ctx, id)
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, repo.deleteCalls, "a full batch triggers one more pass")
}

func TestQueryLimits(t *testing.T) {
	svc := newService(newMemRepo(), &clock{t: start})
	ctx := context.Background()

	_, err := svc.Query(ctx, domain.LeadFilter{Limit: -1})
	assert.ErrorIs(t, err, lead.ErrInvalidLimit)

	_, err = svc.Query(ctx, domain.LeadFilter{Limit: lead.MaxLimit + 1})
	assert.ErrorIs(t, err, lead.ErrInvalidLimit)

	_, err = svc.Query(ctx, domain.LeadFilter{Actions: []domain.NextAction{"bogus"}})
	assert.Error(t, err)

	_, err = svc.Stale(ctx, -5)
	assert.ErrorIs(t, err, lead.ErrInvalidLimit)
}

func TestEligibleReturnsActiveNudgesByScore(t *testing.T) {
	repo := newMemRepo()
	c := &clock{t: start}
	svc := newService(repo, c)
	ctx := context.Background()

	svc.Upsert(ctx, "low", evaluation(domain.ActionSendNudge, 0.61))
	svc.Upsert(ctx, "high", evaluation(domain.ActionSendNudge, 0.92))
	svc.Upsert(ctx, "held", evaluation(domain.ActionHold, 0))

	c.t = start.AddDate(0, 0, -45)
	svc.Upsert(ctx, "old", evaluation(domain.ActionSendNudge, 0.99))
	c.t = start

	leads, err := svc.Eligible(ctx, 10)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "high", leads[0].HashedLine)
	assert.Equal(t, "low", leads[1].HashedLine)
}

func TestStaleOrdersByUpdatedAt(t *testing.T) {
	repo := newMemRepo()
	c := &clock{t: start}
	svc := newService(repo, c)
	ctx := context.Background()

	c.t = start.Add(2 * time.Hour)
	svc.Upsert(ctx, "newer", evaluation(domain.ActionSendNudge, 0.7))
	c.t = start.Add(1 * time.Hour)
	svc.Upsert(ctx, "older", evaluation(domain.ActionHold, 0))
	svc.Upsert(ctx, "excluded", evaluation(domain.ActionExclude, 0))
	c.t = start.Add(3 * time.Hour)

	leads, err := svc.Stale(ctx, 10)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "older", leads[0].HashedLine)
	assert.Equal(t, "newer", leads[1].HashedLine)
}

func TestSetEstimatedValue(t *testing.T) {
	svc := newService(newMemRepo(), &clock{t: start})
	ctx := context.Background()
	l, _, _ := svc.Upsert(ctx, "line", evaluation(domain.ActionSendNudge, 0.7))

	assert.ErrorIs(t, svc.SetEstimatedValue(ctx, l.ID, -1), lead.ErrInvalidValue)
	require.NoError(t, svc.SetEstimatedValue(ctx, l.ID, 180))

	got, _ := svc.Get(ctx, l.ID)
	require.NotNil(t, got.EstimatedValue)
	assert.Equal(t, 180.0, *got.EstimatedValue)
}
