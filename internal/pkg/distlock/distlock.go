package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotHeld is returned when releasing or extending a lease this
	// instance does not own.
	ErrNotHeld = errors.New("distlock: lease not held")
	// ErrLeaseLost is the cancellation cause of a KeepAlive context whose
	// renewal failed.
	ErrLeaseLost = errors.New("distlock: lease lost")
)

// DistLock is a cross-process lease. A DistLock instance represents one
// holder; create a new instance for each independent acquisition.
type DistLock interface {
	// Acquire tries to take the lease without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lease back if this instance still owns it.
	Release(ctx context.Context) error
	// Extend resets the lease expiry to ttl from now.
	Extend(ctx context.Context, ttl time.Duration) error
}

// Factory builds a fresh lease for key. Schedulers call it once per run.
type Factory func(key string) DistLock

// NewFactory returns a Factory using the best available backend: Redis when
// redisClient is non-nil, PostgreSQL advisory locks otherwise.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	return func(key string) DistLock {
		return NewLock(redisClient, db, key, ttl)
	}
}

// KeepAlive extends a held lease by ttl every interval until stop is called.
// An interval of zero means ttl/3. When an extension fails the returned
// context is cancelled with ErrLeaseLost as its cause.
func KeepAlive(ctx context.Context, lock DistLock, ttl, interval time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if ttl <= 0 {
		return ctx, func() { cancel(nil) }
	}
	if interval <= 0 {
		interval = ttl / 3
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Extend(ctx, ttl); err != nil {
					cancel(fmt.Errorf("%w: %v", ErrLeaseLost, err))
					return
				}
			}
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			<-exited
			cancel(nil)
		})
	}
}

// NewLock creates a lease for key on Redis, or on PostgreSQL when Redis is
// not configured.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks are session scoped, so the lease pins one pooled connection from
// Acquire until Release. A dropped connection frees the lock.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewPGAdvisoryLock derives a stable advisory lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to take the advisory lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ErrNotHeld
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.conn.Close()
	l.conn = nil
	return err
}

// Extend is a no-op while the lock is held: an advisory lock lives as long as
// its session.
func (l *PGAdvisoryLock) Extend(context.Context, time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ErrNotHeld
	}
	return nil
}
