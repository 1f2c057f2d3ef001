package domain

import (
	"errors"
	"time"
)

// EventType enumerates raw network observations.
type EventType string

const (
	EventSimSwap      EventType = "sim_swap"
	EventReachability EventType = "reachability"
	EventLineProfile  EventType = "line_profile"
)

// SimSwapPayload is the body of a sim_swap event.
type SimSwapPayload struct {
	SwappedAt    *time.Time `json:"swapped_at,omitempty"`
	SwapCount30d int        `json:"swap_count_30d"`
}

// ReachabilityPayload is the body of a reachability event.
type ReachabilityPayload struct {
	Reachable      bool       `json:"reachable"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	Connectivity   []string   `json:"connectivity,omitempty"`
}

// LineProfilePayload is the body of a line_profile event.
type LineProfilePayload struct {
	LineType LineType `json:"line_type"`
	Fraud    bool     `json:"fraud"`
	OptedOut bool     `json:"opted_out"`
}

// EventPayload is a tagged variant: exactly one field is set, matching the
// event type.
type EventPayload struct {
	SimSwap      *SimSwapPayload      `json:"sim_swap,omitempty"`
	Reachability *ReachabilityPayload `json:"reachability,omitempty"`
	LineProfile  *LineProfilePayload  `json:"line_profile,omitempty"`
}

var errPayloadMismatch = errors.New("event payload does not match event type")

// NetworkEvent is a raw, append-only signal observation.
type NetworkEvent struct {
	ID         string       `json:"id" db:"id"`
	HashedLine string       `json:"hashed_line" db:"hashed_line"`
	Type       EventType    `json:"type" db:"event_type"`
	Payload    EventPayload `json:"payload" db:"payload"`
	Processed  bool         `json:"processed" db:"processed"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// Validate checks that the payload variant agrees with the event type.
func (e *NetworkEvent) Validate() error {
	set := 0
	if e.Payload.SimSwap != nil {
		set++
	}
	if e.Payload.Reachability != nil {
		set++
	}
	if e.Payload.LineProfile != nil {
		set++
	}
	if set != 1 {
		return errPayloadMismatch
	}
	switch e.Type {
	case EventSimSwap:
		if e.Payload.SimSwap == nil {
			return errPayloadMismatch
		}
	case EventReachability:
		if e.Payload.Reachability == nil {
			return errPayloadMismatch
		}
	case EventLineProfile:
		if e.Payload.LineProfile == nil {
			return errPayloadMismatch
		}
	default:
		return errPayloadMismatch
	}
	return nil
}
