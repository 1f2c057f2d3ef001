package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Channel is the medium a nudge is delivered through.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail || c == ChannelPush
}

// TargetFilter selects the leads a campaign is sent to.
type TargetFilter struct {
	Actions       []NextAction `json:"actions,omitempty"`
	Cohort        string       `json:"cohort,omitempty"`
	CreatedAfter  *time.Time   `json:"created_after,omitempty"`
	CreatedBefore *time.Time   `json:"created_before,omitempty"`
	EligibleOnly  bool         `json:"eligible_only"`
	MinScore      float64      `json:"min_score,omitempty"`
	Limit         int          `json:"limit,omitempty"`
}

// LeadFilter converts the target filter into a lead query.
func (f TargetFilter) LeadFilter() LeadFilter {
	return LeadFilter{
		Actions:       f.Actions,
		Cohort:        f.Cohort,
		CreatedAfter:  f.CreatedAfter,
		CreatedBefore: f.CreatedBefore,
		EligibleOnly:  f.EligibleOnly,
		MinScore:      f.MinScore,
		Limit:         f.Limit,
	}
}

// Campaign is an outreach definition with running totals.
type Campaign struct {
	ID         string         `json:"id" db:"id"`
	Name       string         `json:"name" db:"name"`
	Filter     TargetFilter   `json:"filter" db:"target_filter"`
	TemplateID string         `json:"template_id" db:"template_id"`
	Channel    Channel        `json:"channel" db:"channel"`
	MaxPerHour int            `json:"max_per_hour" db:"max_per_hour"`
	BatchSize  int            `json:"batch_size" db:"batch_size"`
	Status     CampaignStatus `json:"status" db:"status"`

	TotalSent      int `json:"total_sent" db:"total_sent"`
	TotalDelivered int `json:"total_delivered" db:"total_delivered"`
	TotalClicked   int `json:"total_clicked" db:"total_clicked"`
	TotalConverted int `json:"total_converted" db:"total_converted"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled
}

// CanSend reports whether the campaign may start dispatching.
func (c *Campaign) CanSend() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled
}

// MessageTemplate is a Liquid message body with optional A/B variants.
type MessageTemplate struct {
	ID       string            `json:"id" db:"id"`
	Name     string            `json:"name" db:"name"`
	Channel  Channel           `json:"channel" db:"channel"`
	Subject  string            `json:"subject" db:"subject"`
	Body     string            `json:"body" db:"body"`
	Variants map[string]string `json:"variants,omitempty" db:"variants"`
}

// AttemptStatus enumerates the outcomes of a single dispatch attempt.
type AttemptStatus string

const (
	AttemptSent      AttemptStatus = "sent"
	AttemptDelivered AttemptStatus = "delivered"
	AttemptFailed    AttemptStatus = "failed"
	AttemptClicked   AttemptStatus = "clicked"
)

// ContactAttempt is the append-only audit record of one send to one lead.
type ContactAttempt struct {
	ID            string        `json:"id" db:"id"`
	CampaignID    string        `json:"campaign_id" db:"campaign_id"`
	LeadID        string        `json:"lead_id" db:"lead_id"`
	Channel       Channel       `json:"channel" db:"channel"`
	Variant       string        `json:"variant" db:"variant"`
	TrackingToken string        `json:"tracking_token" db:"tracking_token"`
	Status        AttemptStatus `json:"status" db:"status"`
	ProviderID    string        `json:"provider_id,omitempty" db:"provider_id"`
	Error         string        `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	DeliveredAt   *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
}

// Message is the fully-resolved nudge ready for a deliverer.
type Message struct {
	CampaignID    string  `json:"campaign_id"`
	LeadID        string  `json:"lead_id"`
	HashedLine    string  `json:"hashed_line"`
	Address       string  `json:"-"`
	Channel       Channel `json:"channel"`
	Subject       string  `json:"subject"`
	Body          string  `json:"body"`
	Variant       string  `json:"variant"`
	TrackingToken string  `json:"tracking_token"`
}

// DeliveryResult is returned by a deliverer after attempting delivery.
type DeliveryResult struct {
	Delivered  bool   `json:"delivered"`
	ProviderID string `json:"provider_id,omitempty"`
	Error      string `json:"error,omitempty"`
}
