package cohort

import (
	"context"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
)

// LeadSnapshot is the slice of a lead the classifier needs.
type LeadSnapshot struct {
	LeadID         string
	HashedLine     string
	DormantScore   float64
	EstimatedValue *float64
	ContactCount   int
	LastContactAt  *time.Time
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Repository defines the data access contract for cohorts.
type Repository interface {
	// UpsertDefinitions creates or updates cohorts by name and reports how
	// many were newly created.
	UpsertDefinitions(ctx context.Context, defs []domain.Cohort) (int, error)

	// Snapshots returns the latest lead of every line still in the store.
	Snapshots(ctx context.Context) ([]LeadSnapshot, error)

	// ReplaceMemberships atomically soft-removes all current memberships,
	// inserts members and writes the per-cohort statistics in stats.
	ReplaceMemberships(ctx context.Context, members []domain.CohortMember, stats []domain.Cohort, at time.Time) error

	// Members returns current members of a cohort, newest first, and the
	// total count.
	Members(ctx context.Context, name string, limit, offset int) ([]domain.CohortMember, int, error)

	// List returns all cohort definitions with their cached statistics.
	List(ctx context.Context) ([]domain.Cohort, error)
}
