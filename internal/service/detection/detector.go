package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/scoring"
	"github.com/ignite/dormant-leads/internal/service/lead"
)

const defaultPageSize = 500

// EventStore reads and acknowledges raw events.
type EventStore interface {
	Unprocessed(ctx context.Context, limit int) ([]domain.NetworkEvent, error)
	MarkProcessed(ctx context.Context, ids []string, at time.Time) error
}

// LeadStore is the slice of the lead service detection writes through.
type LeadStore interface {
	Latest(ctx context.Context, hashedLine string) (*domain.Lead, error)
	Upsert(ctx context.Context, hashedLine string, ev scoring.Evaluation) (*domain.Lead, bool, error)
}

// Policy is the batch contact policy layered over the engine.
type Policy struct {
	SendThreshold    float64
	DecayHorizonDays int
	MaxPriorContacts int
	CooldownDays     int
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{SendThreshold: 0.6, DecayHorizonDays: 90, MaxPriorContacts: 3, CooldownDays: 7}
}

// PolicyFromConfig maps the detection section of the app config.
func PolicyFromConfig(c config.DetectionConfig) Policy {
	return Policy{
		SendThreshold:    c.SendThreshold,
		DecayHorizonDays: c.DecayHorizonDays,
		MaxPriorContacts: c.MaxPriorContacts,
		CooldownDays:     c.ContactCooldownDays,
	}
}

// Result tallies one detection pass.
type Result struct {
	EventsProcessed int            `json:"events_processed"`
	LinesProcessed  int            `json:"lines_processed"`
	LinesSkipped    int            `json:"lines_skipped"`
	Created         int            `json:"created"`
	Updated         int            `json:"updated"`
	Transitions     map[string]int `json:"transitions"`
}

// Detector runs batch dormant detection.
type Detector struct {
	events   EventStore
	leads    LeadStore
	engine   *scoring.Engine
	policy   Policy
	pageSize int
	now      func() time.Time
}

// NewDetector creates a detector.
func NewDetector(events EventStore, leads LeadStore, engine *scoring.Engine, policy Policy) *Detector {
	return &Detector{
		events:   events,
		leads:    leads,
		engine:   engine,
		policy:   policy,
		pageSize: defaultPageSize,
		now:      time.Now,
	}
}

// Run processes unprocessed events page by page until none are left. A
// persistence error aborts the pass; leads already written stand and their
// events stay unprocessed only for the failing page.
func (d *Detector) Run(ctx context.Context) (*Result, error) {
	res := &Result{Transitions: make(map[string]int)}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		events, err := d.events.Unprocessed(ctx, d.pageSize)
		if err != nil {
			return res, fmt.Errorf("load events: %w", err)
		}
		if len(events) == 0 {
			return res, nil
		}
		if err := d.processPage(ctx, events, res); err != nil {
			return res, err
		}
		if len(events) < d.pageSize {
			return res, nil
		}
	}
}

func (d *Detector) processPage(ctx context.Context, events []domain.NetworkEvent, res *Result) error {
	now := d.now()
	for _, g := range groupByLine(events) {
		if err := d.processLine(ctx, g, now, res); err != nil {
			return err
		}
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := d.events.MarkProcessed(ctx, ids, now); err != nil {
		return fmt.Errorf("mark events processed: %w", err)
	}
	res.EventsProcessed += len(events)
	return nil
}

// processLine scores one line's aggregate and writes today's lead.
func (d *Detector) processLine(ctx context.Context, g lineEvents, now time.Time, res *Result) error {
	agg := g.aggregate()
	if agg.swap == nil {
		// Nothing to score without swap evidence; the events are still
		// acknowledged with the page.
		res.LinesSkipped++
		logger.Debug("no sim swap evidence", "hashed_line", g.line, "events", len(g.events))
		return nil
	}

	prev, err := d.leads.Latest(ctx, g.line)
	switch {
	case errors.Is(err, lead.ErrNotFound):
		prev = nil
	case err != nil:
		return fmt.Errorf("load previous lead: %w", err)
	}

	sig := agg.signal(g.line, prev)
	ev := d.engine.Evaluate(sig, now)
	d.applyPolicy(&ev, agg, prev, now)

	l, created, err := d.leads.Upsert(ctx, g.line, ev)
	if err != nil {
		return err
	}
	res.LinesProcessed++
	if created {
		res.Created++
	} else {
		res.Updated++
	}
	if prev != nil && prev.NextAction != l.NextAction {
		res.Transitions[string(prev.NextAction)+"->"+string(l.NextAction)]++
	}
	return nil
}

// applyPolicy resolves the batch next action. An engine exclude or expiry
// stands; otherwise the prior contact limit, the cooldown and the send
// threshold apply in that order.
func (d *Detector) applyPolicy(ev *scoring.Evaluation, agg aggregate, prev *domain.Lead, now time.Time) {
	if ev.NextAction == domain.ActionExclude || ev.NextAction == domain.ActionExpired {
		return
	}

	// A hold carrying exclusions (too soon after the swap) keeps its zero
	// score.
	if len(ev.Exclusions) == 0 {
		ev.Score = scoring.WeightedScore(ev.Components,
			d.decay(agg.swapSeenAt, now), d.decay(agg.reachSeenAt, now))
	}

	contacts := 0
	var lastContact *time.Time
	if prev != nil {
		contacts = prev.ContactCount
		lastContact = prev.LastContactAt
	}

	switch {
	case d.policy.MaxPriorContacts > 0 && contacts >= d.policy.MaxPriorContacts:
		ev.Exclusions.Add(domain.ExclContactLimit)
		ev.Score = 0
		ev.Eligible = false
		ev.NextAction = domain.ActionExclude
	case lastContact != nil && now.Sub(*lastContact) < time.Duration(d.policy.CooldownDays)*24*time.Hour:
		ev.NextAction = domain.ActionHold
	case ev.Score >= d.policy.SendThreshold:
		ev.NextAction = domain.ActionSendNudge
	default:
		ev.NextAction = domain.ActionHold
	}
}

// decay weights evidence linearly down to zero at the horizon.
func (d *Detector) decay(seen time.Time, now time.Time) float64 {
	if d.policy.DecayHorizonDays <= 0 || seen.IsZero() {
		return 1
	}
	age := now.Sub(seen).Hours() / 24
	return math.Max(0, 1-age/float64(d.policy.DecayHorizonDays))
}
