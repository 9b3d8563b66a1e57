package domain

import (
	"encoding/json"
	"fmt"
)

// EventType tags one case of the outbound event union.
type EventType string

// Event types pushed to subscribers. The set is additive-only: consumers
// must ignore unknown types.
const (
	EventPositionUpdate      EventType = "position_update"
	EventPriceUpdate         EventType = "price_update"
	EventAlert               EventType = "alert"
	EventRebalance           EventType = "rebalance_event"
	EventAutoRebalanceStatus EventType = "auto_rebalance_status"
)

// Event is the envelope broadcast to subscribers. Exactly one payload
// field is set, matching Type.
type Event struct {
	Type        EventType        `json:"type"`
	TimestampMs int64            `json:"timestamp_ms"`
	Position    *Position        `json:"position,omitempty"`
	Price       *PriceUpdate     `json:"price,omitempty"`
	Alert       *Alert           `json:"alert,omitempty"`
	Rebalance   *RebalanceAction `json:"rebalance,omitempty"`
	Status      *RebalanceStatus `json:"status,omitempty"`
}

// PriceUpdate is the price_update payload.
type PriceUpdate struct {
	Pool        string  `json:"pool"`
	Price       float64 `json:"price"`
	ActiveID    int32   `json:"active_id"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// RebalanceStatus is the auto_rebalance_status payload.
type RebalanceStatus struct {
	Enabled       bool    `json:"enabled"`
	Threshold     float64 `json:"threshold"`
	LastCheckMs   int64   `json:"last_check_ms"`
	PositionCount int     `json:"position_count"`
}

// EncodeEvent serializes an event envelope to JSON.
func EncodeEvent(e *Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("encode event: nil event")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return data, nil
}

// DecodeEvent deserializes an event envelope and checks that the payload
// matches the declared type.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var ok bool
	switch e.Type {
	case EventPositionUpdate:
		ok = e.Position != nil
	case EventPriceUpdate:
		ok = e.Price != nil
	case EventAlert:
		ok = e.Alert != nil
	case EventRebalance:
		ok = e.Rebalance != nil
	case EventAutoRebalanceStatus:
		ok = e.Status != nil
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", e.Type)
	}
	if !ok {
		return nil, fmt.Errorf("decode event: missing payload for type %q", e.Type)
	}

	return &e, nil
}
