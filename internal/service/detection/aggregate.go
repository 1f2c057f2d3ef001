package detection

import (
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
)

type lineEvents struct {
	line   string
	events []domain.NetworkEvent
}

// groupByLine keeps the first-seen order of lines.
func groupByLine(events []domain.NetworkEvent) []lineEvents {
	idx := make(map[string]int)
	var out []lineEvents
	for _, e := range events {
		i, ok := idx[e.HashedLine]
		if !ok {
			i = len(out)
			idx[e.HashedLine] = i
			out = append(out, lineEvents{line: e.HashedLine})
		}
		out[i].events = append(out[i].events, e)
	}
	return out
}

// aggregate is the newest observation of each event type for a line.
type aggregate struct {
	swap        *domain.SimSwapPayload
	swapSeenAt  time.Time
	reach       *domain.ReachabilityPayload
	reachSeenAt time.Time
	profile     *domain.LineProfilePayload
}

func (g lineEvents) aggregate() aggregate {
	var a aggregate
	var profileAt time.Time
	for _, e := range g.events {
		switch e.Type {
		case domain.EventSimSwap:
			if e.Payload.SimSwap != nil && !e.CreatedAt.Before(a.swapSeenAt) {
				a.swap, a.swapSeenAt = e.Payload.SimSwap, e.CreatedAt
			}
		case domain.EventReachability:
			if e.Payload.Reachability != nil && !e.CreatedAt.Before(a.reachSeenAt) {
				a.reach, a.reachSeenAt = e.Payload.Reachability, e.CreatedAt
			}
		case domain.EventLineProfile:
			if e.Payload.LineProfile != nil && !e.CreatedAt.Before(profileAt) {
				a.profile, profileAt = e.Payload.LineProfile, e.CreatedAt
			}
		}
	}
	return a
}

// signal builds the canonical signal. Contact history comes from the line's
// most recent lead.
func (a aggregate) signal(line string, prev *domain.Lead) domain.CanonicalSignal {
	sig := domain.CanonicalSignal{
		HashedLine: line,
		LineType:   domain.LineConsumer,
	}
	if a.swap != nil {
		sig.Swap = domain.SwapSignal{Occurred: a.swap.SwappedAt != nil, At: a.swap.SwappedAt}
		sig.Metadata.SwapCount30d = a.swap.SwapCount30d
	}
	if a.reach != nil {
		sig.Reachability = domain.ReachabilitySignal{
			Reachable:      a.reach.Reachable,
			LastActivityAt: a.reach.LastActivityAt,
			Connectivity:   a.reach.Connectivity,
		}
	}
	if a.profile != nil {
		if a.profile.LineType.Valid() {
			sig.LineType = a.profile.LineType
		}
		sig.Fraud = a.profile.Fraud
		sig.Metadata.OptedOut = a.profile.OptedOut
	}
	if prev != nil {
		sig.Metadata.LastContactAt = prev.LastContactAt
	}
	return sig
}
