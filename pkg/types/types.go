// Package types defines the shared domain model for the weather trading agent:
// stations, forecasts, market brackets, probabilities, decisions, and trades.
//
// These are plain value types passed forward through the evaluation cycle.
// Components never share mutable state; the engine owns orchestration and each
// stage receives inputs by value (or immutable pointer) from the previous one.
package types

import (
	"fmt"
	"sort"
	"time"
)

// Station is one row of the static station registry. Loaded once at startup
// and immutable afterwards.
type Station struct {
	Code      string  `json:"code"`       // ICAO code, e.g. "KLGA", "EGLC"
	City      string  `json:"city"`       // venue city key, e.g. "nyc", "london"
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IANAZone  string  `json:"iana_zone"` // e.g. "America/New_York"
	VenueTag  string  `json:"venue_tag"` // e.g. "polymarket"
}

// Location resolves the station's IANA zone. Registry loading validates every
// zone, so failures here indicate a programming error.
func (s Station) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.IANAZone)
	if err != nil {
		return nil, fmt.Errorf("station %s: load zone %q: %w", s.Code, s.IANAZone, err)
	}
	return loc, nil
}

// TemperaturePoint is one hourly forecast sample. Kelvin is the transport
// unit; conversion to Fahrenheit happens in the probability mapper.
type TemperaturePoint struct {
	Time  time.Time `json:"time"`
	TempK float64   `json:"temp_k"`
}

// Forecast is one fetched hourly temperature timeseries for a station and
// event day. Forecasts are dynamic: the same (station, event day) is fetched
// repeatedly and every fetch is retained as a snapshot.
type Forecast struct {
	StationCode string             `json:"station_code"`
	EventDay    string             `json:"event_day"` // local calendar day, YYYY-MM-DD
	StartUTC    time.Time          `json:"start_utc"` // local midnight of EventDay in UTC
	Hours       int                `json:"hours"`
	FetchedAt   time.Time          `json:"fetched_at"`
	Points      []TemperaturePoint `json:"points"`
}

// Bracket is a half-open interval [LowerF, UpperF) of whole Fahrenheit
// degrees, or a sentinel under/over tail.
type Bracket struct {
	MarketID string  `json:"market_id"`
	Name     string  `json:"name"` // venue label, e.g. "45-46°F"
	LowerF   float64 `json:"lower_f"`
	UpperF   float64 `json:"upper_f"`
	IsUnder  bool    `json:"is_under"` // resolves YES when high < UpperF
	IsOver   bool    `json:"is_over"`  // resolves YES when high >= LowerF
}

// Contains reports whether a daily-high temperature resolves this bracket YES.
func (b Bracket) Contains(tempF float64) bool {
	switch {
	case b.IsUnder:
		return tempF < b.UpperF
	case b.IsOver:
		return tempF >= b.LowerF
	default:
		return tempF >= b.LowerF && tempF < b.UpperF
	}
}

// BracketPrice is the market's view of one bracket at fetch time.
type BracketPrice struct {
	MarketID     string    `json:"market_id"`
	MidProb      float64   `json:"mid_prob"` // (best_bid+best_ask)/2, in [0,1]
	BestBid      float64   `json:"best_bid"`
	BestAsk      float64   `json:"best_ask"`
	AvailableUSD float64   `json:"available_usd"` // top-of-book depth
	FetchedAt    time.Time `json:"fetched_at"`
}

// BracketProb is the mapper's probability for one bracket. Over a full bracket
// set the PZeus values sum to 1 within 1e-6.
type BracketProb struct {
	Bracket   Bracket `json:"bracket"`
	PZeus     float64 `json:"p_zeus"`
	SigmaUsed float64 `json:"sigma_used"`
}

// Reason tags explain why a candidate was sized or rejected. Tags are
// non-exclusive; a decision carries every tag that applied.
type Reason string

const (
	ReasonStrongEdge            Reason = "strong_edge"
	ReasonKellyCapped           Reason = "kelly_capped"
	ReasonPerMarketCapped       Reason = "per_market_capped"
	ReasonLiquidityCapped       Reason = "liquidity_capped"
	ReasonDailyCapExhausted     Reason = "daily_cap_exhausted"
	ReasonBelowEdgeMin          Reason = "below_edge_min"
	ReasonDegeneratePrice       Reason = "degenerate_price"
	ReasonInsufficientLiquidity Reason = "insufficient_liquidity"
)

// Decision is the sizer's verdict for one bracket in one cycle. Rejected
// candidates are decisions too, with SizeUSD zero; every candidate is written
// into the decision snapshot either way.
type Decision struct {
	Bracket      Bracket   `json:"bracket"`
	PZeus        float64   `json:"p_zeus"`
	PMarket      float64   `json:"p_market"`
	Edge         float64   `json:"edge"`
	FKelly       float64   `json:"f_kelly"`
	SizeUSD      float64   `json:"size_usd"`
	SigmaUsed    float64   `json:"sigma_used"`
	Reasons      []Reason  `json:"reasons"`
	DecisionTime time.Time `json:"decision_time"`
	StationCode  string    `json:"station_code"`
	EventDay     string    `json:"event_day"`
}

// Accepted reports whether the decision results in a trade.
func (d Decision) Accepted() bool { return d.SizeUSD > 0 }

// HasReason reports whether tag is among the decision's reasons.
func (d Decision) HasReason(tag Reason) bool {
	for _, r := range d.Reasons {
		if r == tag {
			return true
		}
	}
	return false
}

// Outcome is the resolution state of a trade.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
)

// Trade is a persisted decision. Written by the broker at decision time with
// OutcomePending; the resolution process fills the trailing fields later.
type Trade struct {
	Decision
	Venue         string     `json:"venue"`
	Outcome       Outcome    `json:"outcome"`
	RealizedPnL   float64    `json:"realized_pnl"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	WinnerBracket string     `json:"winner_bracket,omitempty"`
}

// ValidateBracketSet checks that a bracket set is a valid market partition:
// interior brackets tile an interval of whole Fahrenheit degrees with unit
// width and no gaps, and at most one under and one over sentinel sit flush
// against the interior edges.
func ValidateBracketSet(brackets []Bracket) error {
	var under, over *Bracket
	var interior []Bracket

	for i := range brackets {
		b := brackets[i]
		switch {
		case b.IsUnder && b.IsOver:
			return NewCycleError(KindInvalidBrackets, fmt.Errorf("bracket %s is both under and over", b.MarketID))
		case b.IsUnder:
			if under != nil {
				return NewCycleError(KindInvalidBrackets, fmt.Errorf("duplicate under bracket %s", b.MarketID))
			}
			under = &b
		case b.IsOver:
			if over != nil {
				return NewCycleError(KindInvalidBrackets, fmt.Errorf("duplicate over bracket %s", b.MarketID))
			}
			over = &b
		default:
			interior = append(interior, b)
		}
	}

	if len(interior) == 0 {
		return NewCycleError(KindInvalidBrackets, fmt.Errorf("no interior brackets"))
	}

	sort.Slice(interior, func(i, j int) bool { return interior[i].LowerF < interior[j].LowerF })

	for i, b := range interior {
		if b.LowerF != float64(int(b.LowerF)) || b.UpperF != float64(int(b.UpperF)) {
			return NewCycleError(KindInvalidBrackets,
				fmt.Errorf("bracket %s bounds not whole degrees: [%v,%v)", b.MarketID, b.LowerF, b.UpperF))
		}
		if b.UpperF-b.LowerF != 1 {
			return NewCycleError(KindInvalidBrackets,
				fmt.Errorf("bracket %s width %v, want 1", b.MarketID, b.UpperF-b.LowerF))
		}
		if i > 0 && interior[i-1].UpperF != b.LowerF {
			return NewCycleError(KindInvalidBrackets,
				fmt.Errorf("gap or overlap between %v and %v", interior[i-1].UpperF, b.LowerF))
		}
	}

	if under != nil && under.UpperF != interior[0].LowerF {
		return NewCycleError(KindInvalidBrackets,
			fmt.Errorf("under bracket ends at %v, interior starts at %v", under.UpperF, interior[0].LowerF))
	}
	if over != nil && over.LowerF != interior[len(interior)-1].UpperF {
		return NewCycleError(KindInvalidBrackets,
			fmt.Errorf("over bracket starts at %v, interior ends at %v", over.LowerF, interior[len(interior)-1].UpperF))
	}

	return nil
}

// SortBrackets orders a bracket set under-first, interiors ascending, over-last.
func SortBrackets(brackets []Bracket) {
	sort.Slice(brackets, func(i, j int) bool {
		a, b := brackets[i], brackets[j]
		switch {
		case a.IsUnder != b.IsUnder:
			return a.IsUnder
		case a.IsOver != b.IsOver:
			return b.IsOver
		default:
			return a.LowerF < b.LowerF
		}
	})
}
