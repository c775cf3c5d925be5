// Package sizing turns bracket probabilities and market prices into sized
// trading decisions under a capped Kelly rule.
//
// For each bracket: edge = p_zeus - p_market - fees - slippage. Candidates
// below the edge floor or at degenerate prices are rejected outright; the
// rest are sized at f = edge/(1-p_market), capped by kelly_cap, then run
// through the per-market dollar ceiling, the top-of-book liquidity floor, and
// the process-wide daily bankroll cap, in that order. Every candidate yields
// a Decision (rejected ones with size zero), so the decision snapshot always
// records the full bracket set.
package sizing

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"weathertrader/internal/config"
	"weathertrader/pkg/types"
)

// priceEps bounds what counts as a tradeable market probability; mids at or
// outside (eps, 1-eps) carry no sizing information.
const priceEps = 0.005

// Candidate pairs the mapper's probability with the market's price for one bracket.
type Candidate struct {
	Prob  types.BracketProb
	Price types.BracketPrice
}

// Sizer applies one config snapshot's trading parameters. Create a fresh
// Sizer per cycle from the cycle's config snapshot.
type Sizer struct {
	cfg    config.TradingConfig
	logger *slog.Logger
}

// NewSizer creates a sizer for one trading config snapshot.
func NewSizer(cfg config.TradingConfig, logger *slog.Logger) *Sizer {
	return &Sizer{cfg: cfg, logger: logger.With("component", "sizer")}
}

// Decide sizes every candidate in order, drawing accepted sizes from ledger
// under budgetDay's daily cap. Candidates are processed in the given order;
// with a shared daily cap the order determines who exhausts it.
func (s *Sizer) Decide(candidates []Candidate, ledger *DailyLedger, budgetDay string, now time.Time, stationCode, eventDay string) []types.Decision {
	decisions := make([]types.Decision, 0, len(candidates))
	for _, c := range candidates {
		decisions = append(decisions, s.decideOne(c, ledger, budgetDay, now, stationCode, eventDay))
	}
	return decisions
}

func (s *Sizer) decideOne(c Candidate, ledger *DailyLedger, budgetDay string, now time.Time, stationCode, eventDay string) types.Decision {
	pz := c.Prob.PZeus
	pm := c.Price.MidProb
	edge := pz - pm - s.cfg.FeeBp*1e-4 - s.cfg.SlippageBp*1e-4

	d := types.Decision{
		Bracket:      c.Prob.Bracket,
		PZeus:        pz,
		PMarket:      pm,
		Edge:         edge,
		SigmaUsed:    c.Prob.SigmaUsed,
		DecisionTime: now,
		StationCode:  stationCode,
		EventDay:     eventDay,
	}

	reject := func(tag types.Reason) types.Decision {
		d.SizeUSD = 0
		d.Reasons = append(d.Reasons, tag)
		return d
	}

	if pm <= priceEps || pm >= 1-priceEps {
		return reject(types.ReasonDegeneratePrice)
	}
	if edge < s.cfg.EdgeMin {
		return reject(types.ReasonBelowEdgeMin)
	}

	fKelly := edge / (1 - pm)
	kellyCapped := false
	if fKelly > s.cfg.KellyCap {
		fKelly = s.cfg.KellyCap
		kellyCapped = true
	}
	d.FKelly = fKelly

	size := fKelly * s.cfg.Bankroll

	perMarketCapped := false
	if size > s.cfg.PerMarketCap {
		size = s.cfg.PerMarketCap
		perMarketCapped = true
	}

	if c.Price.AvailableUSD < s.cfg.LiquidityMinUSD {
		return reject(types.ReasonInsufficientLiquidity)
	}
	liquidityCapped := false
	if size > c.Price.AvailableUSD {
		size = c.Price.AvailableUSD
		liquidityCapped = true
	}

	// Dollar sizes are rounded down to cents before committing bankroll.
	size, _ = decimal.NewFromFloat(size).RoundDown(2).Float64()
	if size < s.cfg.MinTradeUSD {
		return reject(types.ReasonBelowEdgeMin)
	}

	if !ledger.Reserve(budgetDay, size, s.cfg.DailyBankrollCap) {
		return reject(types.ReasonDailyCapExhausted)
	}

	d.SizeUSD = size
	d.Reasons = append(d.Reasons, types.ReasonStrongEdge)
	if kellyCapped {
		d.Reasons = append(d.Reasons, types.ReasonKellyCapped)
	}
	if perMarketCapped {
		d.Reasons = append(d.Reasons, types.ReasonPerMarketCapped)
	}
	if liquidityCapped {
		d.Reasons = append(d.Reasons, types.ReasonLiquidityCapped)
	}
	return d
}
