package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/distlock"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/service/campaign"
)

const (
	schedulerLockKey = "dormant-leads:campaign-scheduler"

	// DefaultSchedulerPollInterval is how often scheduled campaigns are checked.
	DefaultSchedulerPollInterval = 30 * time.Second

	dueBatch = 20
)

// DueCampaigns lists scheduled campaigns whose send time has passed.
type DueCampaigns interface {
	Due(ctx context.Context, at time.Time, limit int) ([]domain.Campaign, error)
}

// CampaignSender dispatches one campaign to completion. Cancel retires a
// scheduled campaign that could not start.
type CampaignSender interface {
	Send(ctx context.Context, id string) (*campaign.Result, error)
	Cancel(ctx context.Context, id string) error
}

// CampaignScheduler starts scheduled campaigns once scheduled_at arrives.
// Each campaign is dispatched on its own goroutine; the draft|scheduled to
// sending transition inside Send keeps a campaign from starting twice. A
// campaign whose Send fails before that transition is cancelled, so it is
// attempted once and never polled again.
type CampaignScheduler struct {
	due          DueCampaigns
	sender       CampaignSender
	locks        distlock.Factory
	pollInterval time.Duration

	wg  sync.WaitGroup
	now func() time.Time
}

// NewCampaignScheduler creates a scheduler. locks may be nil.
func NewCampaignScheduler(due DueCampaigns, sender CampaignSender, locks distlock.Factory) *CampaignScheduler {
	return &CampaignScheduler{
		due:          due,
		sender:       sender,
		locks:        locks,
		pollInterval: DefaultSchedulerPollInterval,
		now:          time.Now,
	}
}

// Start polls until ctx is cancelled, then waits for in-flight dispatches,
// which stop early on the same cancellation.
func (cs *CampaignScheduler) Start(ctx context.Context) {
	log.Printf("[CampaignScheduler] Starting with poll interval: %v", cs.pollInterval)

	ticker := time.NewTicker(cs.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[CampaignScheduler] Stopping, waiting for in-flight campaigns")
			cs.wg.Wait()
			return
		case <-ticker.C:
			if n, err := cs.poll(ctx); err != nil {
				log.Printf("[CampaignScheduler] Poll failed: %v", err)
			} else if n > 0 {
				log.Printf("[CampaignScheduler] Started %d campaigns", n)
			}
		}
	}
}

// poll starts every due campaign and reports how many were started.
func (cs *CampaignScheduler) poll(ctx context.Context) (int, error) {
	if cs.locks != nil {
		lock := cs.locks(schedulerLockKey)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return 0, fmt.Errorf("acquire scheduler lock: %w", err)
		}
		if !acquired {
			return 0, nil
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	due, err := cs.due.Due(ctx, cs.now(), dueBatch)
	if err != nil {
		return 0, err
	}
	for _, c := range due {
		id := c.ID
		cs.wg.Add(1)
		go func() {
			defer cs.wg.Done()
			cs.dispatch(ctx, id)
		}()
	}
	return len(due), nil
}

func (cs *CampaignScheduler) dispatch(ctx context.Context, id string) {
	res, err := cs.sender.Send(ctx, id)
	switch {
	case errors.Is(err, campaign.ErrInvalidStatus):
		logger.Debug("scheduled campaign already started", "campaign_id", id)
	case err != nil && res == nil && ctx.Err() == nil:
		logger.Error("scheduled campaign could not start, cancelling", "campaign_id", id, "error", err.Error())
		cerr := cs.sender.Cancel(context.WithoutCancel(ctx), id)
		if cerr != nil && !errors.Is(cerr, campaign.ErrInvalidStatus) {
			logger.Error("cancel scheduled campaign", "campaign_id", id, "error", cerr.Error())
		}
	case err != nil:
		logger.Error("scheduled campaign failed", "campaign_id", id, "error", err.Error())
	default:
		logger.Info("scheduled campaign finished", "campaign_id", id,
			"sent", res.TotalSent, "delivered", res.TotalDelivered, "interrupted", res.Interrupted)
	}
}

// Wait blocks until every dispatch started by the scheduler has returned.
func (cs *CampaignScheduler) Wait() { cs.wg.Wait() }
