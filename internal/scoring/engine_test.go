package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dormant-leads/internal/domain"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(d float64) *time.Time {
	t := now.Add(-time.Duration(d * float64(24*time.Hour)))
	return &t
}

// dormantSignal is a consumer line swapped swapDays ago and silent since.
func dormantSignal(swapDays float64) domain.CanonicalSignal {
	return domain.CanonicalSignal{
		HashedLine: "9f2c",
		Swap:       domain.SwapSignal{Occurred: true, At: daysAgo(swapDays)},
		Reachability: domain.ReachabilitySignal{
			Reachable:      false,
			LastActivityAt: daysAgo(swapDays),
		},
		LineType: domain.LineConsumer,
		Metadata: domain.SignalMetadata{SwapCount30d: 1},
	}
}

func TestEvaluate_ExampleFourDaysAfterSwap(t *testing.T) {
	sig := dormantSignal(4)
	sig.Reachability.LastActivityAt = nil

	ev := New(DefaultConfig()).Evaluate(sig, now)

	assert.True(t, ev.Eligible)
	assert.Equal(t, domain.ActionSendNudge, ev.NextAction)
	assert.Greater(t, ev.Score, 0.0)
	assert.Empty(t, ev.Exclusions)
	assert.Equal(t, 4, ev.DaysSinceSwap)
	assert.Equal(t, 10, ev.ActivationWindowDays)
}

func TestEvaluate_ScoreFormula(t *testing.T) {
	// swap 1, unreachable 7d → 1, window 1, swaps 1 → 2/3
	ev := New(DefaultConfig()).Evaluate(dormantSignal(7), now)

	want := 0.40 + 0.35 + 0.15 + 0.10*(2.0/3.0)
	assert.InDelta(t, want, ev.Score, 1e-9)
	assert.Equal(t, Components{Swap: 1, Unreachable: 1, Window: 1, SwapCount: 1 - 1.0/3.0}, ev.Components)
}

func TestEvaluate_WindowBoundaries(t *testing.T) {
	engine := New(DefaultConfig())

	t.Run("upper bound inclusive", func(t *testing.T) {
		ev := engine.Evaluate(dormantSignal(14), now)
		assert.Equal(t, domain.ActionSendNudge, ev.NextAction)
		assert.Equal(t, 1.0, ev.Components.Window)
	})

	t.Run("one past upper bound expires", func(t *testing.T) {
		sig := dormantSignal(15)
		at := now
		sig.Reachability.LastActivityAt = &at // last seen today
		ev := engine.Evaluate(sig, now)

		assert.Equal(t, domain.ActionExpired, ev.NextAction)
		assert.GreaterOrEqual(t, ev.Score, 0.5)
		assert.LessOrEqual(t, ev.Score, 0.75)
		assert.InDelta(t, 1-6.5/11, ev.Components.Window, 1e-9)
		assert.Equal(t, 1, ev.ActivationWindowDays)
	})

	t.Run("lower bound inclusive", func(t *testing.T) {
		ev := engine.Evaluate(dormantSignal(3), now)
		assert.Equal(t, domain.ActionSendNudge, ev.NextAction)
		assert.True(t, ev.Eligible)
	})
}

func TestEvaluate_SameDaySwapWithZeroMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDaysAfterSwap = 0

	ev := New(cfg).Evaluate(dormantSignal(0), now)

	assert.True(t, ev.Eligible)
	assert.Equal(t, domain.ActionSendNudge, ev.NextAction)
	assert.Equal(t, 14, ev.ActivationWindowDays)
}

func TestEvaluate_SameDaySwapWithDefaultMinimumHolds(t *testing.T) {
	ev := New(DefaultConfig()).Evaluate(dormantSignal(0), now)

	assert.False(t, ev.Eligible)
	assert.Equal(t, domain.ActionHold, ev.NextAction)
	assert.True(t, ev.Exclusions.Only(domain.ExclTooSoonAfterSwap))
	assert.Zero(t, ev.Score)
}

func TestEvaluate_Exclusions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CanonicalSignal)
		want   []domain.ExclusionReason
		action domain.NextAction
	}{
		{
			name:   "too soon alone holds",
			mutate: func(s *domain.CanonicalSignal) { s.Swap.At = daysAgo(1) },
			want:   []domain.ExclusionReason{domain.ExclTooSoonAfterSwap},
			action: domain.ActionHold,
		},
		{
			name:   "no swap",
			mutate: func(s *domain.CanonicalSignal) { s.Swap = domain.SwapSignal{} },
			want:   []domain.ExclusionReason{domain.ExclNoSimSwap},
			action: domain.ActionExclude,
		},
		{
			name:   "business line",
			mutate: func(s *domain.CanonicalSignal) { s.LineType = domain.LineBusiness },
			want:   []domain.ExclusionReason{domain.ExclBusinessLine},
			action: domain.ActionExclude,
		},
		{
			name:   "m2m line",
			mutate: func(s *domain.CanonicalSignal) { s.LineType = domain.LineM2M },
			want:   []domain.ExclusionReason{domain.ExclBusinessLine},
			action: domain.ActionExclude,
		},
		{
			name:   "fraud",
			mutate: func(s *domain.CanonicalSignal) { s.Fraud = true },
			want:   []domain.ExclusionReason{domain.ExclFraud},
			action: domain.ActionExclude,
		},
		{
			name:   "opted out",
			mutate: func(s *domain.CanonicalSignal) { s.Metadata.OptedOut = true },
			want:   []domain.ExclusionReason{domain.ExclOptedOut},
			action: domain.ActionExclude,
		},
		{
			name:   "recently contacted",
			mutate: func(s *domain.CanonicalSignal) { s.Metadata.LastContactAt = daysAgo(13) },
			want:   []domain.ExclusionReason{domain.ExclRecentlyContacted},
			action: domain.ActionExclude,
		},
		{
			name:   "too many swaps",
			mutate: func(s *domain.CanonicalSignal) { s.Metadata.SwapCount30d = 3 },
			want:   []domain.ExclusionReason{domain.ExclTooManySwaps},
			action: domain.ActionExclude,
		},
		{
			name:   "device reachable",
			mutate: func(s *domain.CanonicalSignal) { s.Reachability.Reachable = true },
			want:   []domain.ExclusionReason{domain.ExclDeviceReachable},
			action: domain.ActionExclude,
		},
		{
			name: "too soon combined with fraud excludes",
			mutate: func(s *domain.CanonicalSignal) {
				s.Swap.At = daysAgo(1)
				s.Fraud = true
			},
			want:   []domain.ExclusionReason{domain.ExclFraud, domain.ExclTooSoonAfterSwap},
			action: domain.ActionExclude,
		},
	}

	engine := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := dormantSignal(6)
			tt.mutate(&sig)

			ev := engine.Evaluate(sig, now)

			assert.ElementsMatch(t, tt.want, ev.Exclusions.Sorted())
			assert.Equal(t, tt.action, ev.NextAction)
			assert.Zero(t, ev.Score)
			assert.False(t, ev.Eligible)
		})
	}
}

func TestEvaluate_ContactAtThresholdIsAllowed(t *testing.T) {
	sig := dormantSignal(6)
	sig.Metadata.LastContactAt = daysAgo(14)

	ev := New(DefaultConfig()).Evaluate(sig, now)

	assert.False(t, ev.Exclusions.Has(domain.ExclRecentlyContacted))
	require.NotNil(t, ev.DaysSinceContact)
	assert.Equal(t, 14, *ev.DaysSinceContact)
}

func TestEvaluate_ScoreAlwaysInUnitRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	engine := New(DefaultConfig())
	lineTypes := []domain.LineType{domain.LineConsumer, domain.LineBusiness, domain.LineM2M}

	for i := 0; i < 2000; i++ {
		sig := domain.CanonicalSignal{
			HashedLine: "h",
			Swap:       domain.SwapSignal{Occurred: rng.Intn(4) > 0, At: daysAgo(rng.Float64() * 60)},
			Reachability: domain.ReachabilitySignal{
				Reachable:      rng.Intn(3) == 0,
				LastActivityAt: daysAgo(rng.Float64() * 40),
			},
			LineType: lineTypes[rng.Intn(len(lineTypes))],
			Fraud:    rng.Intn(10) == 0,
			Metadata: domain.SignalMetadata{
				SwapCount30d: rng.Intn(6),
				OptedOut:     rng.Intn(10) == 0,
			},
		}
		ev := engine.Evaluate(sig, now)

		require.GreaterOrEqual(t, ev.Score, 0.0)
		require.LessOrEqual(t, ev.Score, 1.0)
		require.GreaterOrEqual(t, ev.ActivationWindowDays, 1)
		if len(ev.Exclusions) > 0 {
			require.Zero(t, ev.Score)
			require.False(t, ev.Eligible)
			if ev.Exclusions.Only(domain.ExclTooSoonAfterSwap) {
				require.Equal(t, domain.ActionHold, ev.NextAction)
			} else {
				require.Equal(t, domain.ActionExclude, ev.NextAction)
			}
		}
	}
}

func TestActivationWindowUsesFractionalDays(t *testing.T) {
	ev := New(DefaultConfig()).Evaluate(dormantSignal(4.5), now)
	assert.Equal(t, 4, ev.DaysSinceSwap)
	assert.Equal(t, 10, ev.ActivationWindowDays) // ceil(14 - 4.5)
}

func TestWeightedScoreDecay(t *testing.T) {
	c := Components{Swap: 1, Unreachable: 1, Window: 1, SwapCount: 1}

	assert.InDelta(t, 1.0, WeightedScore(c, 1, 1), 1e-9)
	assert.InDelta(t, 0.25, WeightedScore(c, 0, 0), 1e-9)
	assert.InDelta(t, 0.20+0.175+0.25, WeightedScore(c, 0.5, 0.5), 1e-9)
	assert.InDelta(t, 1.0, WeightedScore(c, 3, 3), 1e-9, "weights above one are clamped")
}

func TestWindowSignalDegenerateWindow(t *testing.T) {
	e := New(Config{MinDaysAfterSwap: 5, MaxActivationWindowDays: 5})
	assert.Equal(t, 1.0, e.windowSignal(5))
	assert.Zero(t, e.windowSignal(6))
}
