package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/dormant-leads/internal/config"
)

// RouteOptions carry the non-API handlers mounted next to /api.
type RouteOptions struct {
	Metrics http.Handler
	Health  *HealthChecker
}

// SetupRoutes configures every route.
func SetupRoutes(h *Handlers, cfg config.ServerConfig, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Operator"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if opts.Health != nil {
		r.Get("/health", opts.Health.HandleHealth)
		r.Get("/health/live", opts.Health.HandleLiveness)
		r.Get("/health/ready", opts.Health.HandleReadiness)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// Tracking links are opened by subscribers and carry their own signature.
	r.Get("/t/{token}", h.TrackClick)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(requireAPIKey(cfg.APIKey))
		}

		r.Post("/evaluate", h.Evaluate)
		r.Post("/lines/{line}/evaluate", h.EvaluateLine)

		r.Get("/leads", h.ListLeads)
		r.Get("/leads/eligible", h.EligibleLeads)
		r.Post("/leads/purge", h.PurgeLeads)
		r.Get("/leads/{id}", h.GetLead)
		r.Put("/leads/{id}/estimated-value", h.SetEstimatedValue)

		r.Post("/refresh", h.TriggerRefresh)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)

		r.Get("/cohorts", h.ListCohorts)
		r.Post("/cohorts/rebuild", h.RebuildCohorts)
		r.Get("/cohorts/{name}/members", h.CohortMembers)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/{id}", h.GetCampaign)
			r.Post("/{id}/schedule", h.ScheduleCampaign)
			r.Post("/{id}/cancel", h.CancelCampaign)
			r.Post("/{id}/send", h.SendCampaign)
		})

		r.Post("/templates", h.CreateTemplate)
		r.Get("/templates/{id}", h.GetTemplate)
	})

	return r
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := []byte(req.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
