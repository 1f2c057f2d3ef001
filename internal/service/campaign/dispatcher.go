package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
)

// targetPage is the page size used when resolving a campaign's leads.
const targetPage = 1000

// Result summarizes one dispatch.
type Result struct {
	CampaignID     string        `json:"campaign_id"`
	TotalSent      int           `json:"total_sent"`
	TotalDelivered int           `json:"total_delivered"`
	TotalFailed    int           `json:"total_failed"`
	Batches        int           `json:"batches"`
	Interrupted    bool          `json:"interrupted,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// MaxRate bounds max_per_hour and batch_size. MaxRate hours still fit in a
// time.Duration.
const MaxRate = 1_000_000

func validRate(maxPerHour, batchSize int) bool {
	return maxPerHour > 0 && maxPerHour <= MaxRate && batchSize > 0 && batchSize <= MaxRate
}

// BatchDelay is the pause between two batches that keeps the campaign at
// max_per_hour: one hour divided by the number of batches per hour. Both
// arguments are clamped to [1, MaxRate].
func BatchDelay(maxPerHour, batchSize int) time.Duration {
	maxPerHour = min(max(maxPerHour, 1), MaxRate)
	batchSize = min(max(batchSize, 1), MaxRate)
	return time.Duration(batchSize) * time.Hour / time.Duration(maxPerHour)
}

// Send dispatches a draft or scheduled campaign to its target leads and
// marks it completed with the aggregated totals.
func (s *Service) Send(ctx context.Context, id string) (*Result, error) {
	start := s.now()
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanSend() {
		return nil, ErrInvalidStatus
	}
	if !validRate(c.MaxPerHour, c.BatchSize) {
		return nil, ErrInvalidRate
	}
	tpl, err := s.templates.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	leads, err := s.targets(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("resolve targets: %w", err)
	}

	res := &Result{CampaignID: c.ID}
	if len(leads) == 0 {
		if err := s.repo.Complete(ctx, c.ID, Totals{}, s.now()); err != nil {
			return nil, s.mapTransition(err)
		}
		logger.Info("campaign has no targets", "campaign_id", c.ID)
		res.Duration = s.now().Sub(start)
		return res, nil
	}

	if err := s.repo.Transition(ctx, c.ID,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled},
		domain.CampaignSending, s.now()); err != nil {
		return nil, s.mapTransition(err)
	}
	logger.Info("campaign sending", "campaign_id", c.ID, "targets", len(leads),
		"batch_size", c.BatchSize, "max_per_hour", c.MaxPerHour)

	var (
		sent, delivered int64
		stopErr         error
	)
	delay := BatchDelay(c.MaxPerHour, c.BatchSize)
	for i := 0; i < len(leads); i += c.BatchSize {
		if i > 0 {
			s.metrics.BatchDelay(delay)
			if err := s.sleep(ctx, delay); err != nil {
				res.Interrupted = true
				stopErr = err
				break
			}
		}
		end := i + c.BatchSize
		if end > len(leads) {
			end = len(leads)
		}
		s.sendBatch(ctx, c, tpl, leads[i:end], &sent, &delivered)
		res.Batches++
	}

	res.TotalSent = int(sent)
	res.TotalDelivered = int(delivered)
	res.TotalFailed = res.TotalSent - res.TotalDelivered

	// Totals are stored even if the caller went away mid-campaign.
	if err := s.repo.Complete(context.WithoutCancel(ctx), c.ID,
		Totals{Sent: res.TotalSent, Delivered: res.TotalDelivered}, s.now()); err != nil {
		return nil, fmt.Errorf("complete campaign: %w", err)
	}
	res.Duration = s.now().Sub(start)

	if res.Interrupted {
		logger.Warn("campaign interrupted", "campaign_id", c.ID, "sent", res.TotalSent,
			"remaining", len(leads)-res.TotalSent)
		return res, stopErr
	}
	logger.Info("campaign completed", "campaign_id", c.ID, "sent", res.TotalSent,
		"delivered", res.TotalDelivered, "batches", res.Batches)
	return res, nil
}

// targets pages through the filter's leads, keeping the best-scored lead of
// each line so a line is nudged at most once per campaign.
func (s *Service) targets(ctx context.Context, c *domain.Campaign) ([]domain.Lead, error) {
	f := c.Filter.LeadFilter()
	now := s.now()
	f.ActiveAt = &now
	limit := c.Filter.Limit

	seen := make(map[string]bool)
	var out []domain.Lead
	for offset := 0; ; offset += targetPage {
		f.Limit = targetPage
		f.Offset = offset
		page, err := s.leads.Query(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, l := range page {
			if seen[l.HashedLine] {
				continue
			}
			seen[l.HashedLine] = true
			out = append(out, l)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if len(page) < targetPage {
			return out, nil
		}
	}
}

// sendBatch fans the batch out with one goroutine per lead.
func (s *Service) sendBatch(ctx context.Context, c *domain.Campaign, tpl *domain.MessageTemplate, batch []domain.Lead, sent, delivered *int64) {
	var g errgroup.Group
	g.SetLimit(len(batch))
	for i := range batch {
		l := batch[i]
		g.Go(func() error {
			ok := s.sendOne(ctx, c, tpl, l)
			atomic.AddInt64(sent, 1)
			if ok {
				atomic.AddInt64(delivered, 1)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// sendOne delivers to one lead and records the attempt. It reports whether
// the message was delivered; every failure ends up on the attempt record.
func (s *Service) sendOne(ctx context.Context, c *domain.Campaign, tpl *domain.MessageTemplate, l domain.Lead) bool {
	attemptID := uuid.New().String()
	token := s.signer.Sign(attemptID)
	variant := ChooseVariant(tpl, l.HashedLine, c.ID)

	attempt := &domain.ContactAttempt{
		ID:            attemptID,
		CampaignID:    c.ID,
		LeadID:        l.ID,
		Channel:       c.Channel,
		Variant:       variant,
		TrackingToken: token,
		Status:        domain.AttemptFailed,
	}

	result, err := s.deliver(ctx, c, tpl, l, variant, token)
	switch {
	case err != nil:
		attempt.Error = err.Error()
	case !result.Delivered:
		attempt.Error = result.Error
		attempt.ProviderID = result.ProviderID
	default:
		attempt.Status = domain.AttemptDelivered
		attempt.ProviderID = result.ProviderID
		at := s.now()
		attempt.DeliveredAt = &at
	}
	attempt.CreatedAt = s.now()

	if err := s.attempts.Record(ctx, attempt); err != nil {
		logger.Error("record contact attempt", "campaign_id", c.ID, "lead_id", l.ID, "error", err.Error())
	}
	if err := s.leads.RecordContact(ctx, l.ID, attempt.CreatedAt); err != nil {
		logger.Error("record lead contact", "campaign_id", c.ID, "lead_id", l.ID, "error", err.Error())
	}
	s.metrics.DispatchAttempt(string(c.Channel), string(attempt.Status))
	return attempt.Status == domain.AttemptDelivered
}

func (s *Service) deliver(ctx context.Context, c *domain.Campaign, tpl *domain.MessageTemplate, l domain.Lead, variant, token string) (*domain.DeliveryResult, error) {
	addr, err := s.addresses.Address(ctx, l.HashedLine, c.Channel)
	if err != nil {
		if errors.Is(err, ErrNoAddress) {
			return nil, ErrNoAddress
		}
		return nil, fmt.Errorf("resolve address: %w", err)
	}

	subject, body, err := s.renderer.Render(tpl, variant, messageVars(c, l, s.trackingURL+"/t/"+token))
	if err != nil {
		return nil, err
	}

	return s.deliverer.Deliver(ctx, &domain.Message{
		CampaignID:    c.ID,
		LeadID:        l.ID,
		HashedLine:    l.HashedLine,
		Address:       addr,
		Channel:       c.Channel,
		Subject:       subject,
		Body:          body,
		Variant:       variant,
		TrackingToken: token,
	})
}

func messageVars(c *domain.Campaign, l domain.Lead, trackingURL string) map[string]interface{} {
	vars := map[string]interface{}{
		"campaign_name":          c.Name,
		"tracking_url":           trackingURL,
		"activation_window_days": l.ActivationWindowDays,
		"dormant_score":          l.DormantScore,
		"estimated_value":        nil,
	}
	if l.EstimatedValue != nil {
		vars["estimated_value"] = *l.EstimatedValue
	}
	return vars
}
