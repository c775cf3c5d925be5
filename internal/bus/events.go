package bus

import (
	"time"

	"weathertrader/pkg/types"
)

// EventType names the engine's published event kinds.
type EventType string

const (
	EventCycleStarted  EventType = "cycle_started"
	EventCycleComplete EventType = "cycle_complete"
	EventCycleFailed   EventType = "cycle_failed"
	EventTradePlaced   EventType = "trade_placed"
	EventEdgesUpdated  EventType = "edges_updated"
	EventLagged        EventType = "lagged"
)

// Event is the wrapper for everything published on the bus. Data holds a
// JSON-serializable payload specific to the event type.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id,omitempty"` // "<station>/<event_day>"
	Data      any       `json:"data,omitempty"`
}

// DecisionSummary is the cycle_complete payload.
type DecisionSummary struct {
	StationCode  string  `json:"station_code"`
	EventDay     string  `json:"event_day"`
	Candidates   int     `json:"candidates"`
	Accepted     int     `json:"accepted"`
	TotalSizeUSD float64 `json:"total_size_usd"`
	Mu           float64 `json:"mu"`
	Sigma        float64 `json:"sigma"`
}

// CycleFailure is the cycle_failed payload.
type CycleFailure struct {
	Reason types.ErrorKind `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// EdgeUpdate is one entry of the edges_updated payload list.
type EdgeUpdate struct {
	MarketID    string  `json:"market_id"`
	BracketName string  `json:"bracket_name"`
	PZeus       float64 `json:"p_zeus"`
	PMarket     float64 `json:"p_market"`
	Edge        float64 `json:"edge"`
}

// LaggedNotice reports how many events a slow subscriber missed.
type LaggedNotice struct {
	Dropped int `json:"dropped"`
}

// NewLagged builds a lagged notice event.
func NewLagged(n int) Event {
	return Event{
		Type:      EventLagged,
		Timestamp: time.Now().UTC(),
		Data:      LaggedNotice{Dropped: n},
	}
}
