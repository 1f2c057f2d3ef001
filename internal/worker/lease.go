package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/dormant-leads/internal/pkg/distlock"
)

// defaultLeaseTTL matches the scheduler.lock_ttl_minutes default.
const defaultLeaseTTL = time.Hour

// lease settings shared by the workers that hold a fleet-wide lock for the
// whole of a run.
type lease struct {
	ttl   time.Duration
	renew time.Duration // zero means ttl/3
}

func newLease(ttl time.Duration) lease {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return lease{ttl: ttl}
}

// hold acquires key and keeps it renewed until release is called. The
// returned context is cancelled if a renewal fails. ErrRunInProgress means
// another holder owns the key. With no factory the run is guarded by the
// in-process flag only.
func (l lease) hold(ctx context.Context, locks distlock.Factory, key string) (context.Context, func(), error) {
	if locks == nil {
		return ctx, func() {}, nil
	}
	lock := locks(key)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire %s lock: %w", key, err)
	}
	if !acquired {
		return nil, nil, ErrRunInProgress
	}
	runCtx, stop := distlock.KeepAlive(ctx, lock, l.ttl, l.renew)
	return runCtx, func() {
		stop()
		lock.Release(context.WithoutCancel(ctx))
	}, nil
}
