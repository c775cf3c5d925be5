package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"weathertrader/internal/bus"
	"weathertrader/internal/config"
	"weathertrader/internal/metar"
	"weathertrader/internal/prob"
	"weathertrader/internal/sizing"
	"weathertrader/internal/snapshot"
	"weathertrader/internal/venue"
	"weathertrader/pkg/types"
	"weathertrader/pkg/units"
)

// zeusSnapshot is the persisted forecast artifact.
type zeusSnapshot struct {
	Station  types.Station   `json:"station"`
	Forecast *types.Forecast `json:"forecast"`
}

// marketSnapshot is the persisted market artifact: the discovered bracket set
// and the quotes fetched for it in the same cycle.
type marketSnapshot struct {
	City      string                        `json:"city"`
	EventDay  string                        `json:"event_day"`
	Venue     string                        `json:"venue"`
	Brackets  []types.Bracket               `json:"brackets"`
	Prices    map[string]types.BracketPrice `json:"prices"`
	FetchedAt time.Time                     `json:"fetched_at"`
}

// decisionSnapshot records every candidate's verdict together with the
// computed model inputs, so a decision is replayable without refetching.
type decisionSnapshot struct {
	StationCode  string                 `json:"station_code"`
	EventDay     string                 `json:"event_day"`
	Mu           float64                `json:"mu"`
	Sigma        float64                `json:"sigma"`
	Decisions    []types.Decision       `json:"decisions"`
	Observations *metar.DayObservations `json:"observations,omitempty"`
}

// executeTask runs one full evaluation for (station, event day): parallel
// fetch, probability mapping, sizing, the snapshot triplet, and the broker
// append for accepted decisions. Failures are reported through failTask and
// never touch sibling tasks.
func (e *Engine) executeTask(cfg *config.Config, task Task, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(e.ctx, cfg.Engine.CycleTimeout)
	defer cancel()

	log = log.With("task", task.ID())
	e.publish(bus.EventCycleStarted, task.ID(), nil)

	station, ok := e.registry.Get(task.StationCode)
	if !ok {
		e.failTask(task, types.Errorf(types.KindConfigInvalid, "station %s not in registry", task.StationCode), log)
		return
	}
	zone, _ := e.registry.Zone(task.StationCode)
	vn, ok := e.venues[station.VenueTag]
	if !ok {
		e.failTask(task, types.Errorf(types.KindConfigInvalid, "no venue %q for station %s", station.VenueTag, station.Code), log)
		return
	}

	startUTC, err := units.DayWindow(task.EventDay, zone)
	if err != nil {
		e.failTask(task, types.Errorf(types.KindConfigInvalid, "bad event day: %v", err), log)
		return
	}

	// Forecast and market fetches are independent; run them in parallel. The
	// METAR enrichment is best effort and never fails the task.
	var (
		forecast *types.Forecast
		brackets []types.Bracket
		prices   map[string]types.BracketPrice
		obs      *metar.DayObservations
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		forecast, err = e.zeus.Fetch(gctx, station, task.EventDay, startUTC, 24)
		return err
	})
	g.Go(func() error {
		var err error
		brackets, err = vn.ListBrackets(gctx, station.City, task.EventDay)
		if err != nil {
			return err
		}
		ids := make([]string, len(brackets))
		for i, b := range brackets {
			ids[i] = b.MarketID
		}
		prices, err = vn.Prices(gctx, ids)
		return err
	})
	if e.obs != nil && cfg.Metar.Enabled {
		g.Go(func() error {
			var err error
			obs, err = e.obs.DayMax(gctx, station, task.EventDay)
			if err != nil {
				log.Warn("metar fetch failed", "error", err)
				obs = nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, venue.ErrNoMarkets) {
			log.Debug("no markets listed yet", "event_day", task.EventDay)
			return
		}
		e.failTask(task, err, log)
		return
	}

	// Either input going stale aborts the task: a decision is only as fresh
	// as its oldest fetch.
	now := time.Now().UTC()
	if age := now.Sub(forecast.FetchedAt); age > cfg.Engine.InputAge() {
		e.failTask(task, types.Errorf(types.KindStaleInput, "forecast is %s old, bound %s", age, cfg.Engine.InputAge()), log)
		return
	}
	for _, p := range prices {
		if age := now.Sub(p.FetchedAt); age > cfg.Engine.InputAge() {
			e.failTask(task, types.Errorf(types.KindStaleInput, "market price %s is %s old, bound %s", p.MarketID, age, cfg.Engine.InputAge()), log)
			return
		}
	}

	var calib *prob.Calibration
	if cfg.Toggles.StationCalibration {
		calib, err = prob.LoadCalibration(cfg.DataDir, station.Code)
		if err != nil {
			log.Warn("calibration load failed, running uncalibrated", "error", err)
			calib = nil
		}
	}

	mapper := prob.NewMapper(cfg.Model, log)
	result, err := mapper.Map(prob.Inputs{
		Forecast:       forecast,
		Brackets:       brackets,
		WholeDegrees:   vn.ResolvesOnWholeDegrees(),
		DoubleRounding: cfg.Toggles.PolymarketDoubleRounding,
		Calibration:    calib,
		Zone:           zone,
	})
	if err != nil {
		e.failTask(task, err, log)
		return
	}

	// Candidates keep bracket order. A bracket the prices response skipped
	// gets a zero quote, which the sizer rejects as a degenerate price.
	candidates := make([]sizing.Candidate, len(result.Probs))
	for i, p := range result.Probs {
		candidates[i] = sizing.Candidate{Prob: p, Price: prices[p.Bracket.MarketID]}
	}

	budgetDay := units.LocalDay(now, zone)
	sizer := sizing.NewSizer(cfg.Trading, log)
	decisions := sizer.Decide(candidates, e.ledger, budgetDay, now, station.Code, task.EventDay)

	// Persistence and the broker append run to completion even during
	// shutdown; the grace period in Stop covers this tail.
	tail := context.WithoutCancel(ctx)
	fetchTime := now

	if _, err := e.store.Write(snapshot.KindZeus, station.Code, task.EventDay, fetchTime, zeusSnapshot{
		Station:  station,
		Forecast: forecast,
	}); err != nil {
		log.Error("zeus snapshot write failed", "error", err)
	}
	if _, err := e.store.Write(snapshot.KindMarket, station.City, task.EventDay, fetchTime, marketSnapshot{
		City:      station.City,
		EventDay:  task.EventDay,
		Venue:     vn.Name(),
		Brackets:  brackets,
		Prices:    prices,
		FetchedAt: fetchTime,
	}); err != nil {
		log.Error("market snapshot write failed", "error", err)
	}

	// The decision snapshot gates execution: no persisted decision record, no
	// trade.
	if _, err := e.store.Write(snapshot.KindDecisions, station.Code, task.EventDay, fetchTime, decisionSnapshot{
		StationCode:  station.Code,
		EventDay:     task.EventDay,
		Mu:           result.Mu,
		Sigma:        result.Sigma,
		Decisions:    decisions,
		Observations: obs,
	}); err != nil {
		e.failTask(task, err, log)
		return
	}

	accepted := 0
	totalSize := 0.0
	for _, d := range decisions {
		if !d.Accepted() {
			continue
		}
		trade := types.Trade{
			Decision: d,
			Venue:    e.broker.Venue(),
			Outcome:  types.OutcomePending,
		}
		if err := e.broker.Place(tail, trade); err != nil {
			e.failTask(task, err, log)
			return
		}
		accepted++
		totalSize += d.SizeUSD
		e.publish(bus.EventTradePlaced, task.ID(), trade)
		log.Info("trade placed",
			"bracket", d.Bracket.Name,
			"size_usd", d.SizeUSD,
			"edge", d.Edge,
			"reasons", d.Reasons,
		)
	}

	edges := make([]bus.EdgeUpdate, len(decisions))
	for i, d := range decisions {
		edges[i] = bus.EdgeUpdate{
			MarketID:    d.Bracket.MarketID,
			BracketName: d.Bracket.Name,
			PZeus:       d.PZeus,
			PMarket:     d.PMarket,
			Edge:        d.Edge,
		}
	}
	e.publish(bus.EventEdgesUpdated, task.ID(), edges)

	e.publish(bus.EventCycleComplete, task.ID(), bus.DecisionSummary{
		StationCode:  station.Code,
		EventDay:     task.EventDay,
		Candidates:   len(decisions),
		Accepted:     accepted,
		TotalSizeUSD: totalSize,
		Mu:           result.Mu,
		Sigma:        result.Sigma,
	})
	log.Info("task complete",
		"candidates", len(decisions),
		"accepted", accepted,
		"total_size_usd", totalSize,
		"mu", result.Mu,
		"sigma", result.Sigma,
	)
}
