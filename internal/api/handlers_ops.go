package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/dormant-leads/internal/domain"
)

// TriggerRefresh runs the daily refresh now. It shares the scheduler's
// in-progress guard and answers 409 while a run is executing.
//
//	POST /api/v1/refresh
func (h *Handlers) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if h.svc.Refresh == nil {
		unavailable(w)
		return
	}
	res, err := h.svc.Refresh.Run(r.Context(), domain.TriggerManual, operator(r))
	if err != nil {
		if res != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error": "refresh failed", "worker_run_id": res.WorkerRunID,
			})
			return
		}
		respondServiceError(w, err, "refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// PurgeLeads deletes expired leads and aged events now.
//
//	POST /api/v1/leads/purge
func (h *Handlers) PurgeLeads(w http.ResponseWriter, r *http.Request) {
	if h.svc.Reaper == nil {
		unavailable(w)
		return
	}
	res, err := h.svc.Reaper.PurgeNow(r.Context(), domain.TriggerManual, operator(r))
	if err != nil {
		respondServiceError(w, err, "purge failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// RebuildCohorts reassigns every lead to its cohort now.
//
//	POST /api/v1/cohorts/rebuild
func (h *Handlers) RebuildCohorts(w http.ResponseWriter, r *http.Request) {
	if h.svc.Rebuild == nil {
		unavailable(w)
		return
	}
	res, err := h.svc.Rebuild.RebuildNow(r.Context(), domain.TriggerManual, operator(r))
	if err != nil {
		respondServiceError(w, err, "cohort rebuild failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ListCohorts returns the cohort definitions with cached statistics.
//
//	GET /api/v1/cohorts
func (h *Handlers) ListCohorts(w http.ResponseWriter, r *http.Request) {
	if h.svc.Cohorts == nil {
		unavailable(w)
		return
	}
	cohorts, err := h.svc.Cohorts.List(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to list cohorts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cohorts": cohorts})
}

// CohortMembers pages through the current members of a cohort.
//
//	GET /api/v1/cohorts/{name}/members?page=1&limit=100
func (h *Handlers) CohortMembers(w http.ResponseWriter, r *http.Request) {
	if h.svc.Cohorts == nil {
		unavailable(w)
		return
	}
	p := ParsePagination(r, 100, 1000)
	page, err := h.svc.Cohorts.Members(r.Context(), chi.URLParam(r, "name"), p.Page, p.Limit)
	if err != nil {
		respondServiceError(w, err, "failed to list cohort members")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// ListRuns returns recent worker runs.
//
//	GET /api/v1/runs?type=daily_refresh&limit=20
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.svc.Runs == nil {
		unavailable(w)
		return
	}
	runType := domain.RunType(r.URL.Query().Get("type"))
	switch runType {
	case "", domain.RunDailyRefresh, domain.RunTTLPurge, domain.RunCohortRebuild:
	default:
		respondError(w, http.StatusBadRequest, "unknown run type")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	runs, err := h.svc.Runs.List(r.Context(), runType, limit)
	if err != nil {
		respondServiceError(w, err, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun returns one worker run.
//
//	GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.svc.Runs == nil {
		unavailable(w)
		return
	}
	run, err := h.svc.Runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}
