package domain

import (
	"sort"
	"time"
)

// NextAction is the state of a lead in the outreach state machine.
type NextAction string

const (
	ActionSendNudge NextAction = "send_nudge"
	ActionHold      NextAction = "hold"
	ActionExclude   NextAction = "exclude"
	ActionExpired   NextAction = "expired"
)

// Valid reports whether a is a known next action.
func (a NextAction) Valid() bool {
	switch a {
	case ActionSendNudge, ActionHold, ActionExclude, ActionExpired:
		return true
	}
	return false
}

// ExclusionReason enumerates why a line is not eligible for outreach.
type ExclusionReason string

const (
	ExclNoSimSwap         ExclusionReason = "no_sim_swap"
	ExclTooSoonAfterSwap  ExclusionReason = "too_soon_after_swap"
	ExclBusinessLine      ExclusionReason = "business_line"
	ExclFraud             ExclusionReason = "fraud_flag"
	ExclOptedOut          ExclusionReason = "opted_out"
	ExclRecentlyContacted ExclusionReason = "recently_contacted"
	ExclTooManySwaps      ExclusionReason = "too_many_swaps"
	ExclDeviceReachable   ExclusionReason = "device_reachable"

	// Applied by batch detection on top of the scoring rules.
	ExclContactLimit ExclusionReason = "contact_limit_reached"
)

// ExclusionSet is an order-independent set of exclusion reasons.
type ExclusionSet map[ExclusionReason]struct{}

// NewExclusionSet builds a set from the given reasons.
func NewExclusionSet(reasons ...ExclusionReason) ExclusionSet {
	s := make(ExclusionSet, len(reasons))
	for _, r := range reasons {
		s[r] = struct{}{}
	}
	return s
}

// Add inserts r into the set.
func (s ExclusionSet) Add(r ExclusionReason) { s[r] = struct{}{} }

// Has reports whether r is in the set.
func (s ExclusionSet) Has(r ExclusionReason) bool {
	_, ok := s[r]
	return ok
}

// Only reports whether the set contains exactly r and nothing else.
func (s ExclusionSet) Only(r ExclusionReason) bool {
	return len(s) == 1 && s.Has(r)
}

// Sorted returns the reasons in a stable order, for storage and JSON.
func (s ExclusionSet) Sorted() []ExclusionReason {
	out := make([]ExclusionReason, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SwapHistory is the derived SIM-swap part of a lead's signals.
type SwapHistory struct {
	DaysSinceSwap int `json:"days_since_swap"`
	SwapCount30d  int `json:"swap_count_30d"`
}

// ReachabilityHistory is the derived reachability part of a lead's signals.
type ReachabilityHistory struct {
	Reachable       bool `json:"reachable"`
	DaysUnreachable int  `json:"days_unreachable"`
}

// ContactHistory is the derived outreach part of a lead's signals.
type ContactHistory struct {
	ContactCount     int  `json:"contact_count"`
	DaysSinceContact *int `json:"days_since_contact,omitempty"`
}

// LeadSignals is the structured record of derived signals stored per lead.
type LeadSignals struct {
	Swap         SwapHistory         `json:"swap"`
	Reachability ReachabilityHistory `json:"reachability"`
	History      ContactHistory      `json:"history"`
}

// Lead is one scored line for one calendar day.
type Lead struct {
	ID                   string            `json:"id" db:"id"`
	HashedLine           string            `json:"hashed_line" db:"hashed_line"`
	LeadDay              time.Time         `json:"lead_day" db:"lead_day"`
	DormantScore         float64           `json:"dormant_score" db:"dormant_score"`
	Eligible             bool              `json:"eligible" db:"eligible"`
	ActivationWindowDays int               `json:"activation_window_days" db:"activation_window_days"`
	NextAction           NextAction        `json:"next_action" db:"next_action"`
	Exclusions           []ExclusionReason `json:"exclusions" db:"exclusions"`
	Signals              LeadSignals       `json:"signals" db:"signals"`
	EstimatedValue       *float64          `json:"estimated_value,omitempty" db:"estimated_value"`
	ContactCount         int               `json:"contact_count" db:"contact_count"`
	LastContactAt        *time.Time        `json:"last_contact_at,omitempty" db:"last_contact_at"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
	ExpiresAt            time.Time         `json:"expires_at" db:"expires_at"`
}

// IsExpired reports whether the lead's TTL has passed at now.
func (l *Lead) IsExpired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

// LeadFilter selects leads for dashboards and campaign targeting.
// Zero-value fields are not applied.
type LeadFilter struct {
	Actions       []NextAction
	Cohort        string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	EligibleOnly  bool
	MinScore      float64
	// ActiveAt, when set, keeps only leads with expires_at after it.
	ActiveAt *time.Time
	Limit    int
	Offset   int
}

// LeadOutput is the synchronous answer to a single-line evaluation.
type LeadOutput struct {
	LeadID               string            `json:"lead_id"`
	HashedLine           string            `json:"hashed_line"`
	DormantScore         float64           `json:"dormant_score"`
	Eligible             bool              `json:"eligible"`
	NextAction           NextAction        `json:"next_action"`
	Exclusions           []ExclusionReason `json:"exclusions"`
	ActivationWindowDays int               `json:"activation_window_days"`
	Created              bool              `json:"created"`
	ExpiresAt            time.Time         `json:"expires_at"`
}
