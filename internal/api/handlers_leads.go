package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/service/lead"
)

// Evaluate scores one canonical signal and stores the lead.
//
//	POST /api/v1/evaluate
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	if h.svc.Evaluator == nil {
		unavailable(w)
		return
	}
	var sig domain.CanonicalSignal
	if err := decodeJSON(r, &sig); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if sig.LineType == "" {
		sig.LineType = domain.LineConsumer
	}
	if !sig.LineType.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown line_type %q", sig.LineType))
		return
	}
	out, err := h.svc.Evaluator.Evaluate(r.Context(), sig)
	if err != nil {
		respondServiceError(w, err, "evaluation failed")
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// EvaluateLine reads fresh signals for a hashed line and scores them.
//
//	POST /api/v1/lines/{line}/evaluate
func (h *Handlers) EvaluateLine(w http.ResponseWriter, r *http.Request) {
	if h.svc.Evaluator == nil {
		unavailable(w)
		return
	}
	out, err := h.svc.Evaluator.EvaluateLine(r.Context(), chi.URLParam(r, "line"))
	if err != nil {
		respondServiceError(w, err, "evaluation failed")
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// ListLeads queries leads for dashboards and targeting.
//
//	GET /api/v1/leads?action=send_nudge&cohort=dormant&eligible=true&min_score=0.6&created_after=2026-06-01
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	if h.svc.Leads == nil {
		unavailable(w)
		return
	}
	p := ParsePagination(r, lead.DefaultLimit, lead.MaxLimit)
	f, err := parseLeadFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Limit, f.Offset = p.Limit, p.Offset

	leads, err := h.svc.Leads.Query(r.Context(), f)
	if err != nil {
		respondServiceError(w, err, "failed to query leads")
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(leads, len(leads), p, -1))
}

// EligibleLeads lists unexpired send_nudge leads, best score first.
//
//	GET /api/v1/leads/eligible?limit=100
func (h *Handlers) EligibleLeads(w http.ResponseWriter, r *http.Request) {
	if h.svc.Leads == nil {
		unavailable(w)
		return
	}
	p := ParsePagination(r, lead.DefaultLimit, lead.MaxLimit)
	leads, err := h.svc.Leads.Eligible(r.Context(), p.Limit)
	if err != nil {
		respondServiceError(w, err, "failed to list eligible leads")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"leads": leads, "count": len(leads)})
}

// GetLead returns one lead.
//
//	GET /api/v1/leads/{id}
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	if h.svc.Leads == nil {
		unavailable(w)
		return
	}
	l, err := h.svc.Leads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load lead")
		return
	}
	respondJSON(w, http.StatusOK, l)
}

// SetEstimatedValue stores the trade-in estimate for a lead.
//
//	PUT /api/v1/leads/{id}/estimated-value {"value": 180}
func (h *Handlers) SetEstimatedValue(w http.ResponseWriter, r *http.Request) {
	if h.svc.Leads == nil {
		unavailable(w)
		return
	}
	var in struct {
		Value *float64 `json:"value"`
	}
	if err := decodeJSON(r, &in); err != nil || in.Value == nil {
		respondError(w, http.StatusBadRequest, "value is required")
		return
	}
	if err := h.svc.Leads.SetEstimatedValue(r.Context(), chi.URLParam(r, "id"), *in.Value); err != nil {
		respondServiceError(w, err, "failed to store estimated value")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLeadFilter(r *http.Request) (domain.LeadFilter, error) {
	q := r.URL.Query()
	var f domain.LeadFilter
	for _, a := range q["action"] {
		action := domain.NextAction(a)
		if !action.Valid() {
			return f, fmt.Errorf("unknown action %q", a)
		}
		f.Actions = append(f.Actions, action)
	}
	f.Cohort = q.Get("cohort")
	f.EligibleOnly = q.Get("eligible") == "true"
	if v := q.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil || score < 0 || score > 1 {
			return f, fmt.Errorf("min_score must be within [0,1]")
		}
		f.MinScore = score
	}
	var err error
	if f.CreatedAfter, err = parseTimeParam(q.Get("created_after")); err != nil {
		return f, err
	}
	if f.CreatedBefore, err = parseTimeParam(q.Get("created_before")); err != nil {
		return f, err
	}
	if q.Get("active") == "true" {
		now := time.Now()
		f.ActiveAt = &now
	}
	return f, nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates.
func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", v)
}
