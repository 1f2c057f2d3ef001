package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/campaign"
)

type dueList struct {
	campaigns []domain.Campaign
	at        time.Time
	err       error
}

func (d *dueList) Due(_ context.Context, at time.Time, limit int) ([]domain.Campaign, error) {
	d.at = at
	return d.campaigns, d.err
}

type recordingSender struct {
	mu        sync.Mutex
	sent      []string
	cancelled []string
	reject    map[string]bool
	fail      map[string]error
}

func (s *recordingSender) Send(_ context.Context, id string) (*campaign.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject[id] {
		return nil, campaign.ErrInvalidStatus
	}
	if err := s.fail[id]; err != nil {
		return nil, err
	}
	s.sent = append(s.sent, id)
	return &campaign.Result{CampaignID: id, TotalSent: 1}, nil
}

func (s *recordingSender) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
	return nil
}

func TestCampaignScheduler_StartsDueCampaigns(t *testing.T) {
	now := time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC)
	due := &dueList{campaigns: []domain.Campaign{{ID: "c-1"}, {ID: "c-2"}, {ID: "c-3"}}}
	sender := &recordingSender{reject: map[string]bool{"c-2": true}}

	cs := NewCampaignScheduler(due, sender, nil)
	cs.now = func() time.Time { return now }

	n, err := cs.poll(context.Background())
	require.NoError(t, err)
	cs.Wait()

	assert.Equal(t, 3, n)
	assert.Equal(t, now, due.at)
	assert.ElementsMatch(t, []string{"c-1", "c-3"}, sender.sent)
	assert.Empty(t, sender.cancelled, "a campaign already started elsewhere is left alone")
}

func TestCampaignScheduler_CancelsCampaignThatCannotStart(t *testing.T) {
	due := &dueList{campaigns: []domain.Campaign{{ID: "c-1"}, {ID: "c-2"}}}
	sender := &recordingSender{fail: map[string]error{"c-2": errBoom}}

	cs := NewCampaignScheduler(due, sender, nil)
	_, err := cs.poll(context.Background())
	require.NoError(t, err)
	cs.Wait()

	assert.Equal(t, []string{"c-1"}, sender.sent)
	assert.Equal(t, []string{"c-2"}, sender.cancelled)
}

func TestCampaignScheduler_ShutdownDoesNotCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := &recordingSender{fail: map[string]error{"c-1": context.Canceled}}

	cs := NewCampaignScheduler(&dueList{campaigns: []domain.Campaign{{ID: "c-1"}}}, sender, nil)
	cs.dispatch(ctx, "c-1")
	assert.Empty(t, sender.cancelled)
}

// memCampaigns is a campaign store that also answers Due.
type memCampaigns struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func (m *memCampaigns) Get(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCampaigns) List(context.Context, campaign.ListFilter) ([]domain.Campaign, int, error) {
	return nil, 0, nil
}

func (m *memCampaigns) Create(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memCampaigns) Transition(_ context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	for _, st := range from {
		if c.Status == st {
			c.Status = to
			c.UpdatedAt = at
			return nil
		}
	}
	return campaign.ErrInvalidTransition
}

func (m *memCampaigns) Schedule(context.Context, string, time.Time, time.Time) error { return nil }

func (m *memCampaigns) Complete(context.Context, string, campaign.Totals, time.Time) error {
	return nil
}

func (m *memCampaigns) Due(_ context.Context, at time.Time, limit int) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(at) {
			out = append(out, *c)
		}
	}
	return out, nil
}

type missingTemplates struct{ calls int }

func (m *missingTemplates) GetTemplate(context.Context, string) (*domain.MessageTemplate, error) {
	m.calls++
	return nil, campaign.ErrTemplateNotFound
}

func (m *missingTemplates) CreateTemplate(context.Context, *domain.MessageTemplate) error {
	return nil
}

func TestCampaignScheduler_MissingTemplateIsNotRetried(t *testing.T) {
	at := time.Date(2026, 6, 3, 8, 0, 0, 0, time.UTC)
	store := &memCampaigns{campaigns: map[string]*domain.Campaign{
		"c-1": {ID: "c-1", Status: domain.CampaignScheduled, ScheduledAt: &at,
			TemplateID: "gone", Channel: domain.ChannelSMS, MaxPerHour: 100, BatchSize: 10},
	}}
	templates := &missingTemplates{}
	svc := campaign.NewService(store, campaign.Options{Templates: templates})

	cs := NewCampaignScheduler(store, svc, nil)
	cs.now = func() time.Time { return at.Add(time.Hour) }

	started := 0
	for i := 0; i < 5; i++ {
		n, err := cs.poll(context.Background())
		require.NoError(t, err)
		cs.Wait()
		started += n
	}

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, templates.calls)
	c, err := store.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCancelled, c.Status)
}

func TestCampaignScheduler_DueFailure(t *testing.T) {
	cs := NewCampaignScheduler(&dueList{err: errBoom}, &recordingSender{}, nil)
	_, err := cs.poll(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestCampaignScheduler_SkipsWhileLeaseHeld(t *testing.T) {
	_, locks := setupLocks(t)
	held := locks(schedulerLockKey)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	sender := &recordingSender{}
	cs := NewCampaignScheduler(&dueList{campaigns: []domain.Campaign{{ID: "c-1"}}}, sender, locks)

	n, err := cs.poll(context.Background())
	require.NoError(t, err)
	cs.Wait()
	assert.Zero(t, n)
	assert.Empty(t, sender.sent)
}
