package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/scoring"
	"github.com/ignite/dormant-leads/internal/service/lead"
	"github.com/ignite/dormant-leads/internal/signal"
)

// ErrNoSource is returned by EvaluateLine when no signal source is wired.
var ErrNoSource = errors.New("no signal source configured")

// LeadStore is the part of the lead service the pipeline writes through.
type LeadStore interface {
	Latest(ctx context.Context, hashedLine string) (*domain.Lead, error)
	Upsert(ctx context.Context, hashedLine string, ev scoring.Evaluation) (*domain.Lead, bool, error)
}

// EventAppender records the raw observations behind a live evaluation.
type EventAppender interface {
	Append(ctx context.Context, events []domain.NetworkEvent) error
}

// Options wire the optional collaborators used by EvaluateLine.
type Options struct {
	Source     signal.Source
	Normalizer *signal.Normalizer
	Events     EventAppender
}

// Evaluator scores signals and persists the resulting lead.
type Evaluator struct {
	engine     *scoring.Engine
	leads      LeadStore
	source     signal.Source
	normalizer *signal.Normalizer
	events     EventAppender
	now        func() time.Time
}

// NewEvaluator creates an evaluator.
func NewEvaluator(engine *scoring.Engine, leads LeadStore, opts Options) *Evaluator {
	e := &Evaluator{
		engine:     engine,
		leads:      leads,
		source:     opts.Source,
		normalizer: opts.Normalizer,
		events:     opts.Events,
		now:        time.Now,
	}
	if e.normalizer == nil {
		e.normalizer = signal.NewNormalizer()
	}
	return e
}

// Evaluate scores sig and upserts today's lead for its line. Re-evaluating a
// line on the same local day updates the same lead.
func (e *Evaluator) Evaluate(ctx context.Context, sig domain.CanonicalSignal) (*domain.LeadOutput, error) {
	if sig.HashedLine == "" {
		return nil, lead.ErrInvalidLine
	}
	ev := e.engine.Evaluate(sig, e.now())
	l, created, err := e.leads.Upsert(ctx, sig.HashedLine, ev)
	if err != nil {
		return nil, err
	}
	return &domain.LeadOutput{
		LeadID:               l.ID,
		HashedLine:           l.HashedLine,
		DormantScore:         l.DormantScore,
		Eligible:             l.Eligible,
		NextAction:           l.NextAction,
		Exclusions:           l.Exclusions,
		ActivationWindowDays: l.ActivationWindowDays,
		Created:              created,
		ExpiresAt:            l.ExpiresAt,
	}, nil
}

// EvaluateLine reads fresh facts for line from the signal source, stores
// them as network events and evaluates them. The line's outreach history
// comes from its latest lead.
func (e *Evaluator) EvaluateLine(ctx context.Context, line string) (*domain.LeadOutput, error) {
	if line == "" {
		return nil, lead.ErrInvalidLine
	}
	if e.source == nil {
		return nil, ErrNoSource
	}

	var facts signal.Facts
	var err error
	if facts.SimSwap, err = e.source.SimSwapStatus(ctx, line); err != nil {
		return nil, fmt.Errorf("sim swap status: %w", err)
	}
	if facts.Reachability, err = e.source.Reachability(ctx, line); err != nil {
		return nil, fmt.Errorf("reachability: %w", err)
	}
	var profile *domain.LineProfile
	if p, ok := e.source.(signal.Profiler); ok {
		if lp, err := p.LineProfile(ctx, line); err == nil {
			facts.Profile = lp
			profile = &lp
		}
	}

	prev, err := e.leads.Latest(ctx, line)
	switch {
	case err == nil:
		facts.LastContactAt = prev.LastContactAt
	case !errors.Is(err, lead.ErrNotFound):
		return nil, err
	}

	if e.events != nil {
		events, err := e.normalizer.Events(line, facts.SimSwap, facts.Reachability, profile)
		if err != nil {
			return nil, err
		}
		// Stored unprocessed; the next detection pass folds them in.
		if err := e.events.Append(ctx, events); err != nil {
			return nil, fmt.Errorf("append events: %w", err)
		}
	}

	sig, err := e.normalizer.Normalize(line, facts)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, sig)
}
