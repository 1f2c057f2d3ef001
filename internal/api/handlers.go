package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/httputil"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/service/campaign"
	"github.com/ignite/dormant-leads/internal/service/cohort"
	"github.com/ignite/dormant-leads/internal/service/lead"
	"github.com/ignite/dormant-leads/internal/service/pipeline"
	"github.com/ignite/dormant-leads/internal/signal"
	"github.com/ignite/dormant-leads/internal/worker"
)

// Evaluator scores a single line synchronously.
type Evaluator interface {
	Evaluate(ctx context.Context, sig domain.CanonicalSignal) (*domain.LeadOutput, error)
	EvaluateLine(ctx context.Context, line string) (*domain.LeadOutput, error)
}

// Leads is the read side of the lead store.
type Leads interface {
	Get(ctx context.Context, id string) (*domain.Lead, error)
	Query(ctx context.Context, f domain.LeadFilter) ([]domain.Lead, error)
	Eligible(ctx context.Context, limit int) ([]domain.Lead, error)
	SetEstimatedValue(ctx context.Context, leadID string, value float64) error
}

// Refresher runs the daily refresh on demand.
type Refresher interface {
	Run(ctx context.Context, trigger domain.Trigger, triggeredBy string) (*worker.RunResult, error)
}

// Purger runs the TTL reaper on demand.
type Purger interface {
	PurgeNow(ctx context.Context, trigger domain.Trigger, triggeredBy string) (*worker.PurgeResult, error)
}

// Cohorts reads cohort definitions and memberships.
type Cohorts interface {
	List(ctx context.Context) ([]domain.Cohort, error)
	Members(ctx context.Context, name string, page, limit int) (*cohort.MembersPage, error)
}

// CohortRebuilder rebuilds cohorts on demand.
type CohortRebuilder interface {
	RebuildNow(ctx context.Context, trigger domain.Trigger, triggeredBy string) (*worker.RebuildResult, error)
}

// Campaigns manages campaigns, templates and click tracking.
type Campaigns interface {
	Create(ctx context.Context, in campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Schedule(ctx context.Context, id string, when time.Time) error
	Cancel(ctx context.Context, id string) error
	Send(ctx context.Context, id string) (*campaign.Result, error)
	CreateTemplate(ctx context.Context, t *domain.MessageTemplate) error
	GetTemplate(ctx context.Context, id string) (*domain.MessageTemplate, error)
	Click(ctx context.Context, token string) error
}

// Runs reads the WorkerRun audit trail.
type Runs interface {
	Get(ctx context.Context, id string) (*domain.WorkerRun, error)
	List(ctx context.Context, runType domain.RunType, limit int) ([]domain.WorkerRun, error)
}

// Services are the operations the HTTP surface exposes. A nil service
// leaves its routes answering 503.
type Services struct {
	Evaluator Evaluator
	Leads     Leads
	Refresh   Refresher
	Reaper    Purger
	Cohorts   Cohorts
	Rebuild   CohortRebuilder
	Campaigns Campaigns
	Runs      Runs
}

// Handlers holds the HTTP handlers. Handlers contain no business logic; they
// decode, call one operation and encode.
type Handlers struct {
	svc        Services
	landingURL string

	// bg outlives requests; asynchronous campaign sends run on it.
	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandlers creates handlers over svc. landingURL is where tracked clicks
// are redirected; empty answers 204.
func NewHandlers(svc Services, landingURL string) *Handlers {
	bg, cancel := context.WithCancel(context.Background())
	return &Handlers{svc: svc, landingURL: landingURL, bg: bg, cancel: cancel}
}

// Close cancels background sends and waits for them until ctx is done.
func (h *Handlers) Close(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	httputil.Error(w, status, message)
}

// respondServiceError maps a service error to its HTTP status. Internal
// errors are logged and replaced by publicMsg.
func respondServiceError(w http.ResponseWriter, err error, publicMsg string) {
	code := statusFor(err)
	if code < http.StatusInternalServerError {
		respondError(w, code, err.Error())
		return
	}
	logger.Error(publicMsg, "status", code, "error", err.Error())
	respondError(w, code, publicMsg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lead.ErrNotFound),
		errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, campaign.ErrTemplateNotFound),
		errors.Is(err, campaign.ErrInvalidToken),
		errors.Is(err, cohort.ErrUnknownCohort),
		errors.Is(err, worker.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrInvalidStatus),
		errors.Is(err, worker.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, lead.ErrInvalidLine),
		errors.Is(err, lead.ErrInvalidLimit),
		errors.Is(err, lead.ErrInvalidValue),
		errors.Is(err, campaign.ErrInvalidRate),
		errors.Is(err, campaign.ErrInvalidCampaign),
		errors.Is(err, campaign.ErrInvalidTemplate),
		errors.Is(err, cohort.ErrInvalidPage),
		errors.Is(err, worker.ErrInvalidTrigger),
		errors.Is(err, signal.ErrEmptyLine):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoSource):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// operator identifies who triggered a manual run.
func operator(r *http.Request) string {
	if v := r.Header.Get("X-Operator"); v != "" {
		return v
	}
	return "api"
}

func unavailable(w http.ResponseWriter) {
	respondError(w, http.StatusServiceUnavailable, "not configured")
}
