package signal

import (
	"context"

	"github.com/ignite/dormant-leads/internal/domain"
)

// Source reports network facts for a hashed line. Implementations are
// chosen once at startup: StubSource outside production, LiveSource against
// the operator's network APIs.
type Source interface {
	SimSwapStatus(ctx context.Context, hashedLine string) (domain.SimSwapStatus, error)
	Reachability(ctx context.Context, hashedLine string) (domain.ReachabilityStatus, error)
}

// Profiler is implemented by sources that also know line metadata.
type Profiler interface {
	LineProfile(ctx context.Context, hashedLine string) (domain.LineProfile, error)
}

// NumberLookup resolves a hashed line back to the consented phone number.
// It returns ErrNoNumber when the subscriber has not shared one.
type NumberLookup interface {
	PhoneNumber(ctx context.Context, hashedLine string) (string, error)
}
