package signal

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dormant-leads/internal/domain"
)

// Facts is everything known about one line at one moment, as reported by a
// Source plus the outreach history kept on the lead.
type Facts struct {
	SimSwap       domain.SimSwapStatus
	Reachability  domain.ReachabilityStatus
	Profile       domain.LineProfile
	LastContactAt *time.Time
}

// Normalizer converts source facts into canonical signals and raw events.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer on the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize builds the scoring input for line.
func (n *Normalizer) Normalize(line string, f Facts) (domain.CanonicalSignal, error) {
	if line == "" {
		return domain.CanonicalSignal{}, ErrEmptyLine
	}
	lineType := f.Profile.LineType
	if !lineType.Valid() {
		lineType = domain.LineConsumer
	}

	sig := domain.CanonicalSignal{
		HashedLine: line,
		Swap: domain.SwapSignal{
			Occurred: f.SimSwap.SwappedAt != nil,
			At:       f.SimSwap.SwappedAt,
		},
		Reachability: domain.ReachabilitySignal{
			Reachable:    f.Reachability.Reachable,
			Connectivity: f.Reachability.Connectivity,
		},
		LineType: lineType,
		Fraud:    f.Profile.Fraud,
		Metadata: domain.SignalMetadata{
			SwapCount30d:  f.SimSwap.SwapCount30d,
			OptedOut:      f.Profile.OptedOut,
			LastContactAt: f.LastContactAt,
		},
	}
	// Last status time marks the last moment the device was seen on the
	// network; it only means "last activity" while unreachable.
	if !f.Reachability.Reachable {
		sig.Reachability.LastActivityAt = f.Reachability.LastStatusTime
	}
	return sig, nil
}

// Events returns the raw observations to append for line. A nil profile
// means the source could not report one.
func (n *Normalizer) Events(line string, swap domain.SimSwapStatus, reach domain.ReachabilityStatus, profile *domain.LineProfile) ([]domain.NetworkEvent, error) {
	if line == "" {
		return nil, ErrEmptyLine
	}
	at := n.now()
	newEvent := func(t domain.EventType, p domain.EventPayload) domain.NetworkEvent {
		return domain.NetworkEvent{
			ID:         uuid.New().String(),
			HashedLine: line,
			Type:       t,
			Payload:    p,
			CreatedAt:  at,
		}
	}

	events := []domain.NetworkEvent{
		newEvent(domain.EventSimSwap, domain.EventPayload{SimSwap: &domain.SimSwapPayload{
			SwappedAt:    swap.SwappedAt,
			SwapCount30d: swap.SwapCount30d,
		}}),
		newEvent(domain.EventReachability, domain.EventPayload{Reachability: &domain.ReachabilityPayload{
			Reachable:      reach.Reachable,
			LastActivityAt: reach.LastStatusTime,
			Connectivity:   reach.Connectivity,
		}}),
	}
	if profile != nil {
		p := *profile
		events = append(events, newEvent(domain.EventLineProfile, domain.EventPayload{LineProfile: &domain.LineProfilePayload{
			LineType: p.LineType,
			Fraud:    p.Fraud,
			OptedOut: p.OptedOut,
		}}))
	}
	return events, nil
}
