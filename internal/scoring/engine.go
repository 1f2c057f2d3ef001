package scoring

import (
	"math"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
)

const day = 24 * time.Hour

// Components are the four score inputs, each already clamped to [0,1].
type Components struct {
	Swap        float64 `json:"swap"`
	Unreachable float64 `json:"unreachable"`
	Window      float64 `json:"window"`
	SwapCount   float64 `json:"swap_count"`
}

// Evaluation is the outcome of scoring one signal.
type Evaluation struct {
	Score                float64
	Components           Components
	Exclusions           domain.ExclusionSet
	NextAction           domain.NextAction
	Eligible             bool
	ActivationWindowDays int
	DaysSinceSwap        int
	DaysUnreachable      int
	SwapCount30d         int
	Reachable            bool
	DaysSinceContact     *int
}

// Engine evaluates signals against a fixed Config.
type Engine struct {
	cfg Config
}

// New creates an engine. Zero thresholds are honored as given.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the thresholds the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate scores sig at now.
func (e *Engine) Evaluate(sig domain.CanonicalSignal, now time.Time) Evaluation {
	cfg := e.cfg
	ev := Evaluation{
		Exclusions:   domain.NewExclusionSet(),
		SwapCount30d: sig.Metadata.SwapCount30d,
		Reachable:    sig.Reachability.Reachable,
	}

	// Fractional age of the swap. A swap reported without a timestamp is
	// treated as happening now.
	var swapAge float64
	if sig.Swap.Occurred && sig.Swap.At != nil {
		swapAge = math.Max(0, now.Sub(*sig.Swap.At).Hours()/24)
	}
	ev.DaysSinceSwap = int(math.Floor(swapAge))

	if !sig.Reachability.Reachable && sig.Reachability.LastActivityAt != nil {
		ev.DaysUnreachable = wholeDays(now.Sub(*sig.Reachability.LastActivityAt))
	}

	if sig.Metadata.LastContactAt != nil {
		d := wholeDays(now.Sub(*sig.Metadata.LastContactAt))
		ev.DaysSinceContact = &d
	}

	// Exclusions are independent; every rule is checked.
	if !sig.Swap.Occurred {
		ev.Exclusions.Add(domain.ExclNoSimSwap)
	} else if ev.DaysSinceSwap < cfg.MinDaysAfterSwap {
		ev.Exclusions.Add(domain.ExclTooSoonAfterSwap)
	}
	if sig.LineType == domain.LineBusiness || sig.LineType == domain.LineM2M {
		ev.Exclusions.Add(domain.ExclBusinessLine)
	}
	if sig.Fraud {
		ev.Exclusions.Add(domain.ExclFraud)
	}
	if sig.Metadata.OptedOut {
		ev.Exclusions.Add(domain.ExclOptedOut)
	}
	if ev.DaysSinceContact != nil && *ev.DaysSinceContact < cfg.MinDaysBetweenContacts {
		ev.Exclusions.Add(domain.ExclRecentlyContacted)
	}
	if sig.Metadata.SwapCount30d > cfg.MaxSwaps30d {
		ev.Exclusions.Add(domain.ExclTooManySwaps)
	}
	if sig.Reachability.Reachable {
		ev.Exclusions.Add(domain.ExclDeviceReachable)
	}

	ev.Components = e.components(sig, ev.DaysSinceSwap, ev.DaysUnreachable)
	ev.ActivationWindowDays = activationWindow(cfg.MaxActivationWindowDays, swapAge)

	switch {
	case len(ev.Exclusions) > 0:
		ev.Score = 0
		if ev.Exclusions.Only(domain.ExclTooSoonAfterSwap) {
			ev.NextAction = domain.ActionHold
		} else {
			ev.NextAction = domain.ActionExclude
		}
	default:
		ev.Score = WeightedScore(ev.Components, 1, 1)
		switch {
		case ev.DaysSinceSwap < cfg.MinDaysAfterSwap:
			ev.NextAction = domain.ActionHold
		case ev.DaysSinceSwap > cfg.MaxActivationWindowDays:
			ev.NextAction = domain.ActionExpired
		default:
			ev.NextAction = domain.ActionSendNudge
		}
	}

	ev.Eligible = len(ev.Exclusions) == 0 && ev.DaysSinceSwap >= cfg.MinDaysAfterSwap
	return ev
}

func (e *Engine) components(sig domain.CanonicalSignal, daysSinceSwap, daysUnreachable int) Components {
	var c Components
	if sig.Swap.Occurred {
		c.Swap = 1
	}
	c.Unreachable = clamp01(float64(daysUnreachable) / unreachableFullDay)
	c.Window = e.windowSignal(daysSinceSwap)
	c.SwapCount = clamp01(1 - float64(sig.Metadata.SwapCount30d)/swapCountCeiling)
	return c
}

// windowSignal is 1 inside [min,max] and decays linearly with distance from
// the window midpoint outside it.
func (e *Engine) windowSignal(days int) float64 {
	lo, hi := e.cfg.MinDaysAfterSwap, e.cfg.MaxActivationWindowDays
	if days >= lo && days <= hi {
		return 1
	}
	span := float64(hi - lo)
	if span <= 0 {
		return 0
	}
	mid := float64(lo+hi) / 2
	return clamp01(1 - math.Abs(float64(days)-mid)/span)
}

// WeightedScore recombines components with extra multipliers on the swap and
// unreachability terms. Batch detection uses it to apply time decay.
func WeightedScore(c Components, swapWeight, reachWeight float64) float64 {
	score := weightSwap*clamp01(c.Swap)*clamp01(swapWeight) +
		weightUnreachable*clamp01(c.Unreachable)*clamp01(reachWeight) +
		weightWindow*clamp01(c.Window) +
		weightSwapCount*clamp01(c.SwapCount)
	return clamp01(score)
}

func activationWindow(maxDays int, swapAge float64) int {
	w := int(math.Ceil(float64(maxDays) - swapAge))
	if w < 1 {
		return 1
	}
	return w
}

func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
