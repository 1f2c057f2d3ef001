package lead

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/scoring"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000

	defaultPurgeBatch = 5000
)

// Options tune a Service. Zero values select defaults.
type Options struct {
	TTL        time.Duration
	PurgeBatch int
	Location   *time.Location
	Metrics    metrics.Recorder
}

// Service applies scoring output to the lead store. All public methods are
// safe for concurrent use if the underlying repository is.
type Service struct {
	repo       Repository
	ttl        time.Duration
	purgeBatch int
	loc        *time.Location
	metrics    metrics.Recorder
	now        func() time.Time
}

// NewService creates a lead service backed by the given repository.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:       repo,
		ttl:        opts.TTL,
		purgeBatch: opts.PurgeBatch,
		loc:        opts.Location,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 30 * 24 * time.Hour
	}
	if s.purgeBatch <= 0 {
		s.purgeBatch = defaultPurgeBatch
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s
}

// Day returns local midnight of t; leads are keyed on it.
func (s *Service) Day(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// Upsert records ev as today's lead for hashedLine. A second evaluation on
// the same local day updates the existing row and keeps its ID.
func (s *Service) Upsert(ctx context.Context, hashedLine string, ev scoring.Evaluation) (*domain.Lead, bool, error) {
	if hashedLine == "" {
		return nil, false, ErrInvalidLine
	}
	now := s.now()

	l := &domain.Lead{
		ID:                   uuid.New().String(),
		HashedLine:           hashedLine,
		LeadDay:              s.Day(now),
		DormantScore:         ev.Score,
		Eligible:             ev.Eligible,
		ActivationWindowDays: ev.ActivationWindowDays,
		NextAction:           ev.NextAction,
		Exclusions:           ev.Exclusions.Sorted(),
		Signals: domain.LeadSignals{
			Swap: domain.SwapHistory{
				DaysSinceSwap: ev.DaysSinceSwap,
				SwapCount30d:  ev.SwapCount30d,
			},
			Reachability: domain.ReachabilityHistory{
				Reachable:       ev.Reachable,
				DaysUnreachable: ev.DaysUnreachable,
			},
			History: domain.ContactHistory{DaysSinceContact: ev.DaysSinceContact},
		},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	created, err := s.repo.Upsert(ctx, l)
	if err != nil {
		return nil, false, fmt.Errorf("upsert lead: %w", err)
	}
	l.Signals.History.ContactCount = l.ContactCount

	s.metrics.LeadEvaluated(string(l.NextAction), created)
	logger.Debug("lead upserted", "lead_id", l.ID, "hashed_line", hashedLine,
		"action", l.NextAction, "score", fmt.Sprintf("%.3f", l.DormantScore), "created", created)
	return l, created, nil
}

// Get returns a single lead.
func (s *Service) Get(ctx context.Context, id string) (*domain.Lead, error) {
	return s.repo.Get(ctx, id)
}

// Latest returns the newest lead recorded for a line.
func (s *Service) Latest(ctx context.Context, hashedLine string) (*domain.Lead, error) {
	if hashedLine == "" {
		return nil, ErrInvalidLine
	}
	return s.repo.Latest(ctx, hashedLine)
}

// PurgeExpired deletes every lead whose expires_at is before now, in
// id-keyed batches so it never holds a table-wide lock.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now()
	var total int64
	for {
		n, err := s.repo.DeleteExpired(ctx, cutoff, s.purgeBatch)
		if err != nil {
			return total, fmt.Errorf("purge expired leads: %w", err)
		}
		total += n
		if n < int64(s.purgeBatch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.metrics.LeadsPurged(total)
		logger.Info("expired leads purged", "count", total)
	}
	return total, nil
}

// Query returns leads for dashboards and targeting.
func (s *Service) Query(ctx context.Context, f domain.LeadFilter) ([]domain.Lead, error) {
	limit, err := checkLimit(f.Limit)
	if err != nil {
		return nil, err
	}
	if f.Offset < 0 {
		return nil, ErrInvalidLimit
	}
	for _, a := range f.Actions {
		if !a.Valid() {
			return nil, fmt.Errorf("unknown next action %q", a)
		}
	}
	f.Limit = limit
	return s.repo.Query(ctx, f)
}

// Eligible returns unexpired send_nudge leads, best score first.
func (s *Service) Eligible(ctx context.Context, limit int) ([]domain.Lead, error) {
	now := s.now()
	return s.Query(ctx, domain.LeadFilter{
		Actions:      []domain.NextAction{domain.ActionSendNudge},
		EligibleOnly: true,
		ActiveAt:     &now,
		Limit:        limit,
	})
}

// Stale returns unexpired send_nudge and hold leads least recently updated,
// the input of the daily signal refresh.
func (s *Service) Stale(ctx context.Context, limit int) ([]domain.Lead, error) {
	limit, err := checkLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.repo.Stale(ctx, []domain.NextAction{domain.ActionSendNudge, domain.ActionHold}, s.now(), limit)
}

// RecordContact bumps the lead's outreach counters.
func (s *Service) RecordContact(ctx context.Context, leadID string, at time.Time) error {
	if leadID == "" {
		return ErrNotFound
	}
	return s.repo.RecordContact(ctx, leadID, at)
}

// SetEstimatedValue stores the trade-in estimate used as RFM monetary value.
func (s *Service) SetEstimatedValue(ctx context.Context, leadID string, value float64) error {
	if value < 0 {
		return ErrInvalidValue
	}
	return s.repo.SetEstimatedValue(ctx, leadID, value)
}

func checkLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultLimit, nil
	case limit < 0, limit > MaxLimit:
		return 0, ErrInvalidLimit
	}
	return limit, nil
}
