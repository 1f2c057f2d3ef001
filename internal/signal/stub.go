package signal

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
)

// StubSource fabricates stable signals from the hashed line so that staging
// environments exercise every branch of the scoring rules without touching
// operator APIs. The same line always yields the same facts relative to now.
type StubSource struct {
	now func() time.Time
}

// NewStubSource creates a stub source on the wall clock.
func NewStubSource() *StubSource {
	return &StubSource{now: time.Now}
}

func (s *StubSource) seed(line string) ([32]byte, error) {
	if line == "" {
		return [32]byte{}, ErrEmptyLine
	}
	return sha256.Sum256([]byte(line)), nil
}

// SimSwapStatus reports a swap for roughly four lines in five, 0-20 days ago.
func (s *StubSource) SimSwapStatus(_ context.Context, line string) (domain.SimSwapStatus, error) {
	b, err := s.seed(line)
	if err != nil {
		return domain.SimSwapStatus{}, err
	}
	out := domain.SimSwapStatus{MonitoredPeriod: 30 * 24}
	if b[0] < 205 {
		at := s.now().Add(-time.Duration(b[1]%21) * 24 * time.Hour)
		out.SwappedAt = &at
		out.SwapCount30d = 1 + int(b[2]%4)/3
	}
	return out, nil
}

// Reachability reports about one line in four as still connected.
func (s *StubSource) Reachability(_ context.Context, line string) (domain.ReachabilityStatus, error) {
	b, err := s.seed(line)
	if err != nil {
		return domain.ReachabilityStatus{}, err
	}
	last := s.now().Add(-time.Duration(b[4]%30) * 24 * time.Hour)
	if b[3] < 64 {
		return domain.ReachabilityStatus{
			Reachable:      true,
			Connectivity:   []string{"DATA"},
			LastStatusTime: &last,
		}, nil
	}
	return domain.ReachabilityStatus{LastStatusTime: &last}, nil
}

// LineProfile reports mostly consumer lines with rare fraud and opt-out flags.
func (s *StubSource) LineProfile(_ context.Context, line string) (domain.LineProfile, error) {
	b, err := s.seed(line)
	if err != nil {
		return domain.LineProfile{}, err
	}
	p := domain.LineProfile{LineType: domain.LineConsumer}
	switch {
	case b[5] >= 245:
		p.LineType = domain.LineM2M
	case b[5] >= 230:
		p.LineType = domain.LineBusiness
	}
	p.Fraud = b[6] < 5
	p.OptedOut = b[7] < 8
	return p, nil
}
