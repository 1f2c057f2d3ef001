package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
	"github.com/ignite/dormant-leads/internal/service/campaign"
)

// ListCampaigns lists campaigns, newest first.
//
//	GET /api/v1/campaigns?status=draft&page=1&limit=50
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	p := ParsePagination(r, 50, 200)
	list, total, err := h.svc.Campaigns.List(r.Context(), campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondServiceError(w, err, "failed to list campaigns")
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(list, len(list), p, total))
}

// CreateCampaign creates a draft campaign.
//
//	POST /api/v1/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	var in campaign.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	c, err := h.svc.Campaigns.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "failed to create campaign")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GetCampaign returns one campaign with its running totals.
//
//	GET /api/v1/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	c, err := h.svc.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// ScheduleCampaign sets the send time of a draft or scheduled campaign.
//
//	POST /api/v1/campaigns/{id}/schedule {"scheduled_at": "2026-06-03T09:00:00Z"}
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	var in struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := decodeJSON(r, &in); err != nil || in.ScheduledAt.IsZero() {
		respondError(w, http.StatusBadRequest, "scheduled_at is required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.Campaigns.Schedule(r.Context(), id, in.ScheduledAt); err != nil {
		respondServiceError(w, err, "failed to schedule campaign")
		return
	}
	h.respondCampaign(w, r, id)
}

// CancelCampaign cancels a draft or scheduled campaign.
//
//	POST /api/v1/campaigns/{id}/cancel
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.Campaigns.Cancel(r.Context(), id); err != nil {
		respondServiceError(w, err, "failed to cancel campaign")
		return
	}
	h.respondCampaign(w, r, id)
}

// SendCampaign dispatches a campaign. Sends are paced over hours, so by
// default the dispatch runs in the background and the call answers 202;
// ?wait=true blocks until the campaign completes.
//
//	POST /api/v1/campaigns/{id}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("wait") == "true" {
		res, err := h.svc.Campaigns.Send(r.Context(), id)
		if err != nil && res == nil {
			respondServiceError(w, err, "campaign send failed")
			return
		}
		respondJSON(w, http.StatusOK, res)
		return
	}

	c, err := h.svc.Campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	if !c.CanSend() {
		respondServiceError(w, campaign.ErrInvalidStatus, "")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res, err := h.svc.Campaigns.Send(h.bg, id)
		switch {
		case err != nil && !errors.Is(err, campaign.ErrInvalidStatus):
			logger.Error("campaign send failed", "campaign_id", id, "error", err.Error())
		case err != nil:
			logger.Warn("campaign already dispatched", "campaign_id", id)
		default:
			logger.Info("campaign send finished", "campaign_id", id,
				"sent", res.TotalSent, "delivered", res.TotalDelivered, "failed", res.TotalFailed)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaign_id": id,
		"status":      domain.CampaignSending,
	})
}

// CreateTemplate stores a message template.
//
//	POST /api/v1/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	var t domain.MessageTemplate
	if err := decodeJSON(r, &t); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.svc.Campaigns.CreateTemplate(r.Context(), &t); err != nil {
		respondServiceError(w, err, "failed to create template")
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// GetTemplate returns one message template.
//
//	GET /api/v1/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	t, err := h.svc.Campaigns.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load template")
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// TrackClick records a click on a nudge link and redirects to the landing
// page.
//
//	GET /t/{token}
func (h *Handlers) TrackClick(w http.ResponseWriter, r *http.Request) {
	if h.svc.Campaigns == nil {
		unavailable(w)
		return
	}
	if err := h.svc.Campaigns.Click(r.Context(), chi.URLParam(r, "token")); err != nil {
		respondServiceError(w, err, "failed to record click")
		return
	}
	if h.landingURL == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, h.landingURL, http.StatusFound)
}

func (h *Handlers) respondCampaign(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.svc.Campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	respondJSON(w, http.StatusOK, c)
}
