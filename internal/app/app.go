// Package app composes the repositories, services and workers from
// configuration. The server and worker binaries share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/dormant-leads/internal/api"
	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/metrics"
	"github.com/ignite/dormant-leads/internal/pkg/distlock"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/repository/postgres"
	"github.com/ignite/dormant-leads/internal/scoring"
	"github.com/ignite/dormant-leads/internal/service/campaign"
	"github.com/ignite/dormant-leads/internal/service/cohort"
	"github.com/ignite/dormant-leads/internal/service/detection"
	"github.com/ignite/dormant-leads/internal/service/lead"
	"github.com/ignite/dormant-leads/internal/service/pipeline"
	"github.com/ignite/dormant-leads/internal/service/sending"
	"github.com/ignite/dormant-leads/internal/signal"
	"github.com/ignite/dormant-leads/internal/worker"
)

// App holds every long-lived component.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Redis   *redis.Client // nil when REDIS_URL is unset
	Metrics *metrics.Prometheus

	Leads     *lead.Service
	Cohorts   *cohort.Classifier
	Campaigns *campaign.Service
	Evaluator *pipeline.Evaluator
	Runs      *postgres.WorkerRunRepo

	Refresh   *worker.DailyRefresh
	Reaper    *worker.Reaper
	Rebuild   *worker.CohortRebuild
	Scheduler *worker.CampaignScheduler
}

// New connects to PostgreSQL (and Redis when configured) and wires the
// services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	configureLogger(cfg.Logging)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{Config: cfg, DB: db, Redis: rdb, Metrics: metrics.NewPrometheus()}
	if err := a.wire(ctx, loc); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, loc *time.Location) error {
	cfg := a.Config
	rec := a.Metrics

	leadRepo := postgres.NewLeadRepo(a.DB)
	eventRepo := postgres.NewEventRepo(a.DB)
	addresses := postgres.NewAddressBook(a.DB)
	a.Runs = postgres.NewWorkerRunRepo(a.DB)

	engine := scoring.New(scoring.FromDetection(cfg.Detection))
	a.Leads = lead.NewService(leadRepo, lead.Options{
		TTL:        cfg.Leads.TTL(),
		PurgeBatch: cfg.Leads.PurgeBatchSize,
		Location:   loc,
		Metrics:    rec,
	})
	a.Cohorts = cohort.NewClassifier(postgres.NewCohortRepo(a.DB), rec)

	source, err := newSource(cfg.Signals, addresses)
	if err != nil {
		return err
	}
	normalizer := signal.NewNormalizer()

	deliverer, err := newDeliverer(ctx, cfg)
	if err != nil {
		return err
	}
	a.Campaigns = campaign.NewService(postgres.NewCampaignRepo(a.DB), campaign.Options{
		Templates:   postgres.NewTemplateRepo(a.DB),
		Attempts:    postgres.NewAttemptRepo(a.DB),
		Leads:       a.Leads,
		Addresses:   addresses,
		Deliverer:   deliverer,
		Signer:      campaign.NewSigner(cfg.Dispatch.SigningKey),
		TrackingURL: cfg.Dispatch.TrackingURL,
		Metrics:     rec,
	})

	a.Evaluator = pipeline.NewEvaluator(engine, a.Leads, pipeline.Options{
		Source:     source,
		Normalizer: normalizer,
		Events:     eventRepo,
	})

	locks := distlock.NewFactory(a.Redis, a.DB, cfg.Scheduler.LockTTL())
	detector := detection.NewDetector(eventRepo, a.Leads, engine, detection.PolicyFromConfig(cfg.Detection))

	a.Refresh, err = worker.NewDailyRefresh(worker.RefreshDeps{
		Leads:      a.Leads,
		Events:     eventRepo,
		Source:     source,
		SourceName: cfg.Signals.Mode,
		Normalizer: normalizer,
		Detector:   detector,
		Cohorts:    a.Cohorts,
		Runs:       a.Runs,
		Locks:      locks,
		Metrics:    rec,
	}, cfg.Scheduler, loc)
	if err != nil {
		return err
	}
	a.Reaper = worker.NewReaper(worker.ReaperDeps{
		Leads:   a.Leads,
		Events:  eventRepo,
		Runs:    a.Runs,
		Locks:   locks,
		Metrics: rec,
	}, cfg.Leads, cfg.Scheduler)
	a.Rebuild = worker.NewCohortRebuild(a.Cohorts, a.Runs, rec)
	a.Scheduler = worker.NewCampaignScheduler(postgres.NewCampaignRepo(a.DB), a.Campaigns, locks)
	return nil
}

// Services exposes the operations served over HTTP.
func (a *App) Services() api.Services {
	return api.Services{
		Evaluator: a.Evaluator,
		Leads:     a.Leads,
		Refresh:   a.Refresh,
		Reaper:    a.Reaper,
		Cohorts:   a.Cohorts,
		Rebuild:   a.Rebuild,
		Campaigns: a.Campaigns,
		Runs:      a.Runs,
	}
}

// StartWorkers runs the daily refresh, the TTL reaper and the campaign
// scheduler until ctx is cancelled.
func (a *App) StartWorkers(ctx context.Context) {
	go a.Refresh.Start(ctx)
	go a.Reaper.Start(ctx)
	go a.Scheduler.Start(ctx)
	log.Println("Workers started (daily refresh, TTL reaper, campaign scheduler)")
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func configureLogger(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	if cfg.RedactPII != nil {
		logger.SetRedactPII(*cfg.RedactPII)
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Lifetime())
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Println("Connected to database")
	return db, nil
}

// openRedis returns nil without a URL; distributed locks then fall back to
// PostgreSQL advisory locks.
func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		log.Println("Redis not configured, using PostgreSQL advisory locks")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Println("Connected to Redis")
	return client, nil
}

// newSource selects the signal source once at startup.
func newSource(cfg config.SignalsConfig, numbers signal.NumberLookup) (signal.Source, error) {
	switch cfg.Mode {
	case "live":
		src, err := signal.NewLiveSource(cfg, numbers)
		if err != nil {
			return nil, err
		}
		log.Printf("Signal source: live (%s)", cfg.BaseURL)
		return src, nil
	case "stub", "":
		log.Println("Signal source: stub")
		return signal.NewStubSource(), nil
	}
	return nil, fmt.Errorf("unknown signals.mode %q", cfg.Mode)
}

// newDeliverer routes each channel to its provider. Outside production, or
// when a provider is not configured, the channel falls back to the mock.
func newDeliverer(ctx context.Context, cfg *config.Config) (sending.Router, error) {
	mock := sending.NewMockDeliverer(cfg.Dispatch.MockSuccessRate, nil)
	router := sending.Router{
		domain.ChannelSMS:   mock,
		domain.ChannelEmail: mock,
		domain.ChannelPush:  mock,
	}
	if !cfg.IsProduction() {
		log.Println("Deliverers: mock (non-production)")
		return router, nil
	}

	d := cfg.Dispatch
	if d.SES.FromEmail != "" {
		ses, err := sending.NewSESDeliverer(ctx, d.SES)
		if err != nil {
			return nil, err
		}
		router[domain.ChannelEmail] = ses
	} else {
		logger.Warn("ses not configured, email uses the mock deliverer")
	}
	if d.Gateway.SMSURL != "" {
		router[domain.ChannelSMS] = sending.NewGatewayDeliverer(d.Gateway.SMSURL, d.Gateway)
	} else {
		logger.Warn("sms gateway not configured, sms uses the mock deliverer")
	}
	if d.Gateway.PushURL != "" {
		router[domain.ChannelPush] = sending.NewGatewayDeliverer(d.Gateway.PushURL, d.Gateway)
	} else {
		logger.Warn("push gateway not configured, push uses the mock deliverer")
	}
	return router, nil
}
