// Weather Trader is an automated trading agent for daily-high temperature
// bracket markets, pricing them from probabilistic hourly forecasts.
//
// Architecture:
//
//	main.go              entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	engine/              scheduler + per-task cycle: fetch, probability map, size, snapshot, trade
//	prob/                Normal(mu, sigma) daily-high model over the venue's bracket partition
//	sizing/              capped Kelly sizing with per-market, liquidity, and daily bankroll caps
//	zeus/                hourly forecast API client (Kelvin timeseries per station)
//	venue/polymarket/    bracket market discovery + best bid/ask prices
//	metar/               official airport observations, enriches decision snapshots
//	snapshot/            immutable per-cycle JSON artifacts (forecast, market, decisions)
//	broker/              paper trade log (CSV, one file per event day)
//	lifecycle/           start/stop/restart state machine, PID file, persisted engine config
//	api/                 HTTP/WebSocket control surface and live event stream
//
// How it makes money:
//
//	The agent compares its forecast-implied probability for each temperature
//	bracket against the market's mid price. When the gap survives fees,
//	slippage, and the edge floor, it sizes a position with a capped Kelly
//	fraction and records the trade. Paper mode proves the edge before any
//	capital is at risk.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"weathertrader/internal/api"
	"weathertrader/internal/broker"
	"weathertrader/internal/bus"
	"weathertrader/internal/config"
	"weathertrader/internal/engine"
	"weathertrader/internal/lifecycle"
	"weathertrader/internal/metar"
	"weathertrader/internal/registry"
	"weathertrader/internal/snapshot"
	"weathertrader/internal/venue"
	"weathertrader/internal/venue/polymarket"
	"weathertrader/internal/zeus"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("WX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}

	// Persisted toggles from a previous run override the YAML values.
	if toggles, err := config.LoadToggles(cfg.DataDir); err != nil {
		slog.Warn("failed to load persisted toggles, using config values", "error", err)
	} else if toggles != (config.FeatureToggles{}) {
		cfg.Toggles = toggles
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error("failed to load station registry", "error", err, "path", cfg.RegistryPath)
		os.Exit(1)
	}

	store, err := snapshot.Open(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}

	cfgStore := config.NewStore(cfg)
	events := bus.New(logger)

	forecasts := zeus.NewClient(cfg.Zeus, logger)
	venues := map[string]venue.Venue{
		polymarket.VenueName: polymarket.NewClient(cfg.Venue, logger),
	}

	var observations engine.ObservationFetcher
	if cfg.Metar.Enabled {
		observations = metar.NewClient(cfg.Metar, logger)
	}

	factory := func() (*engine.Engine, error) {
		snap := cfgStore.Snapshot()
		var exec broker.Broker
		switch snap.Engine.ExecutionMode {
		case config.ModePaper:
			exec = broker.NewPaper(snap.DataDir, logger)
		default:
			return nil, fmt.Errorf("execution mode %q is not implemented", snap.Engine.ExecutionMode)
		}
		return engine.New(engine.Params{
			Config:       cfgStore,
			Registry:     reg,
			Forecasts:    forecasts,
			Venues:       venues,
			Observations: observations,
			Snapshots:    store,
			Broker:       exec,
			Bus:          events,
			Logger:       logger,
		}), nil
	}

	ctrl := lifecycle.NewController(cfgStore, factory, logger)

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, ctrl, cfgStore, events, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("control server failed", "error", err)
			}
		}()
		logger.Info("control server started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := ctrl.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("weather trader started",
		"stations", cfg.Engine.ActiveStations,
		"interval", cfg.Engine.Interval().String(),
		"mode", string(cfg.Engine.ExecutionMode),
		"edge_min", cfg.Trading.EdgeMin,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop control server", "error", err)
		}
	}

	if err := ctrl.Stop(); err != nil {
		logger.Error("failed to stop engine", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
