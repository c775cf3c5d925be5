// Package api runs the HTTP/WebSocket control surface: engine lifecycle
// endpoints, config reads and live updates, status reads, feature toggle
// updates, and a live event stream bridged from the in-process bus.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"weathertrader/internal/bus"
	"weathertrader/internal/config"
	"weathertrader/internal/lifecycle"
)

// Server is the dashboard HTTP/WebSocket server.
type Server struct {
	cfg      config.DashboardConfig
	hub      *Hub
	handlers *Handlers
	events   *bus.Bus
	server   *http.Server
	logger   *slog.Logger

	stopBridge context.CancelFunc
}

// NewServer wires the control server. Start launches it.
func NewServer(cfg config.DashboardConfig, ctrl *lifecycle.Controller, cfgStore *config.Store, events *bus.Bus, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(ctrl, cfgStore, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/status", handlers.HandleStatus)
	mux.HandleFunc("/api/config", handlers.HandleConfig)
	mux.HandleFunc("/api/engine/start", handlers.HandleEngineStart)
	mux.HandleFunc("/api/engine/stop", handlers.HandleEngineStop)
	mux.HandleFunc("/api/engine/restart", handlers.HandleEngineRestart)
	mux.HandleFunc("/api/toggles", handlers.HandleToggles)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		events:   events,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the hub, the bus bridge, and the listener. Blocks until Stop.
func (s *Server) Start() error {
	go s.hub.Run()

	bridgeCtx, cancel := context.WithCancel(context.Background())
	s.stopBridge = cancel
	go s.bridgeEvents(bridgeCtx)

	s.logger.Info("control server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop drains the listener and detaches the bus bridge.
func (s *Server) Stop() error {
	s.logger.Info("stopping control server")
	if s.stopBridge != nil {
		s.stopBridge()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// bridgeEvents subscribes to the engine bus and forwards every event to the
// WebSocket hub. Bus overflow handling (lagged notices) happens upstream in
// the subscription, so slow dashboards never stall the engine.
func (s *Server) bridgeEvents(ctx context.Context) {
	sub := s.events.Subscribe(256)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			s.hub.BroadcastEvent(evt)
		}
	}
}
