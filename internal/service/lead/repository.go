package lead

import (
	"context"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
)

// Repository defines the data access contract for leads.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Upsert inserts l or, when a row for (HashedLine, LeadDay) exists,
	// overwrites its scoring fields in place. It must be atomic. On return l
	// carries the stored ID, CreatedAt, ExpiresAt and contact counters, and
	// created reports whether a new row was inserted. New rows inherit
	// contact counters and estimated value from the line's previous lead.
	Upsert(ctx context.Context, l *domain.Lead) (created bool, err error)

	// Get returns a lead by ID. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Lead, error)

	// Latest returns the most recent lead for a line, or ErrNotFound.
	Latest(ctx context.Context, hashedLine string) (*domain.Lead, error)

	// Query returns leads matching f ordered by dormant_score DESC, id.
	Query(ctx context.Context, f domain.LeadFilter) ([]domain.Lead, error)

	// Stale returns up to limit unexpired leads whose next action is one of
	// actions, oldest updated_at first.
	Stale(ctx context.Context, actions []domain.NextAction, now time.Time, limit int) ([]domain.Lead, error)

	// DeleteExpired hard-deletes at most batch leads with expires_at < before
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time, batch int) (int64, error)

	// RecordContact increments contact_count and sets last_contact_at.
	RecordContact(ctx context.Context, id string, at time.Time) error

	// SetEstimatedValue stores the device trade-in estimate for a lead.
	SetEstimatedValue(ctx context.Context, id string, value float64) error
}
