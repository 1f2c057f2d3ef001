package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/service/sending"
)

// Options wires the service's collaborators.
type Options struct {
	Templates   TemplateRepository
	Attempts    AttemptRepository
	Leads       LeadStore
	Addresses   AddressBook
	Deliverer   sending.Deliverer
	Signer      *Signer
	TrackingURL string
	Metrics     metrics.Recorder
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repositories are.
type Service struct {
	repo        Repository
	templates   TemplateRepository
	attempts    AttemptRepository
	leads       LeadStore
	addresses   AddressBook
	deliverer   sending.Deliverer
	renderer    *Renderer
	signer      *Signer
	trackingURL string
	metrics     metrics.Recorder

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Signer == nil {
		opts.Signer = NewSigner("")
	}
	return &Service{
		repo:        repo,
		templates:   opts.Templates,
		attempts:    opts.Attempts,
		leads:       opts.Leads,
		addresses:   opts.Addresses,
		deliverer:   opts.Deliverer,
		renderer:    NewRenderer(),
		signer:      opts.Signer,
		trackingURL: strings.TrimRight(opts.TrackingURL, "/"),
		metrics:     opts.Metrics,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name       string              `json:"name"`
	Filter     domain.TargetFilter `json:"filter"`
	TemplateID string              `json:"template_id"`
	Channel    domain.Channel      `json:"channel"`
	MaxPerHour int                 `json:"max_per_hour"`
	BatchSize  int                 `json:"batch_size"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}
	if !in.Channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidCampaign, in.Channel)
	}
	if !validRate(in.MaxPerHour, in.BatchSize) {
		return nil, ErrInvalidRate
	}
	for _, a := range in.Filter.Actions {
		if !a.Valid() {
			return nil, fmt.Errorf("%w: unknown next action %q", ErrInvalidCampaign, a)
		}
	}
	if in.Filter.Limit < 0 {
		return nil, fmt.Errorf("%w: negative target limit", ErrInvalidCampaign)
	}
	tpl, err := s.templates.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl.Channel != in.Channel {
		return nil, fmt.Errorf("%w: template is for %s", ErrInvalidCampaign, tpl.Channel)
	}

	now := s.now()
	c := &domain.Campaign{
		ID:         uuid.New().String(),
		Name:       in.Name,
		Filter:     in.Filter,
		TemplateID: in.TemplateID,
		Channel:    in.Channel,
		MaxPerHour: in.MaxPerHour,
		BatchSize:  in.BatchSize,
		Status:     domain.CampaignDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Schedule marks a draft campaign scheduled for when. Sending still
// happens through Send.
func (s *Service) Schedule(ctx context.Context, id string, when time.Time) error {
	if !when.After(s.now()) {
		return fmt.Errorf("%w: schedule time must be in the future", ErrInvalidCampaign)
	}
	return s.mapTransition(s.repo.Schedule(ctx, id, when, s.now()))
}

// Cancel stops a campaign that has not started sending.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.mapTransition(s.repo.Transition(ctx, id,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled},
		domain.CampaignCancelled, s.now()))
}

func (s *Service) mapTransition(err error) error {
	if errors.Is(err, ErrInvalidTransition) {
		return ErrInvalidStatus
	}
	return err
}

// CreateTemplate validates the Liquid sources and stores the template.
func (s *Service) CreateTemplate(ctx context.Context, t *domain.MessageTemplate) error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("%w: name and body are required", ErrInvalidTemplate)
	}
	if !t.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidTemplate, t.Channel)
	}
	if _, ok := t.Variants[ControlVariant]; ok {
		return fmt.Errorf("%w: variant name %q is reserved", ErrInvalidTemplate, ControlVariant)
	}
	if err := s.renderer.Validate(t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return s.templates.CreateTemplate(ctx, t)
}

// GetTemplate returns a message template.
func (s *Service) GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error) {
	return s.templates.GetTemplate(ctx, id)
}

// Click records a click on a tracking token. Repeated clicks are accepted
// but counted once.
func (s *Service) Click(ctx context.Context, token string) error {
	if _, ok := s.signer.Verify(token); !ok {
		return ErrInvalidToken
	}
	first, err := s.attempts.MarkClicked(ctx, token, s.now())
	if err != nil {
		return fmt.Errorf("mark clicked: %w", err)
	}
	if first {
		logger.Debug("tracking click recorded", "token", token)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
