package campaign

import (
	"context"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Transition moves a campaign to status to if it is currently in one of
	// from. Returns ErrInvalidTransition when it is not, ErrNotFound when
	// the campaign doesn't exist.
	Transition(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, at time.Time) error

	// Schedule sets scheduled_at on a draft or scheduled campaign and moves
	// it to scheduled.
	Schedule(ctx context.Context, id string, when, at time.Time) error

	// Complete marks the campaign completed and stores its totals.
	Complete(ctx context.Context, id string, totals Totals, at time.Time) error
}

// TemplateRepository stores message templates.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error)
	CreateTemplate(ctx context.Context, t *domain.MessageTemplate) error
}

// AttemptRepository is the append-only contact attempt log.
type AttemptRepository interface {
	Record(ctx context.Context, a *domain.ContactAttempt) error

	// MarkClicked flags the attempt with this token as clicked and bumps
	// the campaign's click total. It reports false when the token is
	// unknown or was already clicked.
	MarkClicked(ctx context.Context, token string, at time.Time) (bool, error)
}

// LeadStore is the slice of the lead service used for targeting.
type LeadStore interface {
	Query(ctx context.Context, f domain.LeadFilter) ([]domain.Lead, error)
	RecordContact(ctx context.Context, leadID string, at time.Time) error
}

// AddressBook resolves a consented delivery address for a hashed line.
// It returns ErrNoAddress when the line has none for the channel.
type AddressBook interface {
	Address(ctx context.Context, hashedLine string, ch domain.Channel) (string, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Totals are the counters written when a campaign completes.
type Totals struct {
	Sent      int
	Delivered int
}
