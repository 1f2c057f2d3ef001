package domain

import "time"

// LineType classifies the subscription behind a line.
type LineType string

const (
	LineConsumer LineType = "consumer"
	LineBusiness LineType = "business"
	LineM2M      LineType = "m2m"
)

// Valid reports whether t is one of the known line categories.
func (t LineType) Valid() bool {
	return t == LineConsumer || t == LineBusiness || t == LineM2M
}

// SwapSignal is the SIM-swap half of a canonical signal.
type SwapSignal struct {
	Occurred bool       `json:"occurred"`
	At       *time.Time `json:"at,omitempty"`
}

// ReachabilitySignal is the device-reachability half of a canonical signal.
type ReachabilitySignal struct {
	Reachable      bool       `json:"reachable"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	Connectivity   []string   `json:"connectivity,omitempty"`
}

// SignalMetadata carries the optional per-line history used by exclusions.
type SignalMetadata struct {
	SwapCount30d  int        `json:"swap_count_30d"`
	OptedOut      bool       `json:"opted_out"`
	LastContactAt *time.Time `json:"last_contact_at,omitempty"`
}

// CanonicalSignal is the normalized input to the scoring engine. It is
// produced per evaluation and never persisted verbatim.
type CanonicalSignal struct {
	HashedLine   string             `json:"hashed_line"`
	Swap         SwapSignal         `json:"swap"`
	Reachability ReachabilitySignal `json:"reachability"`
	LineType     LineType           `json:"line_type"`
	Fraud        bool               `json:"fraud"`
	Metadata     SignalMetadata     `json:"metadata"`
}

// SimSwapStatus is what a signal source reports about SIM swaps on a line.
type SimSwapStatus struct {
	SwappedAt       *time.Time `json:"swapped_at,omitempty"`
	MonitoredPeriod int        `json:"monitored_period,omitempty"`
	SwapCount30d    int        `json:"swap_count_30d"`
}

// ReachabilityStatus is what a signal source reports about device reachability.
type ReachabilityStatus struct {
	Reachable      bool       `json:"reachable"`
	Connectivity   []string   `json:"connectivity,omitempty"`
	LastStatusTime *time.Time `json:"last_status_time,omitempty"`
}

// LineProfile is the line metadata that accompanies network facts.
type LineProfile struct {
	LineType LineType `json:"line_type"`
	Fraud    bool     `json:"fraud"`
	OptedOut bool     `json:"opted_out"`
}
