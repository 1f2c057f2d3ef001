package campaign

import (
	"context"
	"time"
)

// SetClock replaces the service clock in tests.
func SetClock(s *Service, now func() time.Time) { s.now = now }

// SetSleep replaces the inter-batch wait in tests.
func SetSleep(s *Service, sleep func(ctx context.Context, d time.Duration) error) { s.sleep = sleep }
