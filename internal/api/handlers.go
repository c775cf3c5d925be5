package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"weathertrader/internal/bus"
	"weathertrader/internal/config"
	"weathertrader/internal/engine"
	"weathertrader/internal/lifecycle"
	"weathertrader/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for local development
		return true
	},
}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	ctrl     *lifecycle.Controller
	cfgStore *config.Store
	hub      *Hub
	logger   *slog.Logger
}

// NewHandlers creates a handlers instance.
func NewHandlers(ctrl *lifecycle.Controller, cfgStore *config.Store, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		ctrl:     ctrl,
		cfgStore: cfgStore,
		hub:      hub,
		logger:   logger.With("component", "api-handlers"),
	}
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	Running bool                  `json:"running"`
	Engine  engine.Status         `json:"engine"`
	Config  config.EngineConfig   `json:"engine_config"`
	Toggles config.FeatureToggles `json:"feature_toggles"`
}

// errorResponse is the body of every non-2xx API reply.
type errorResponse struct {
	Error string          `json:"error"`
	Kind  types.ErrorKind `json:"kind,omitempty"`
}

// HandleHealth returns a simple liveness response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus returns the engine's scheduler state and active config.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfgStore.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Running: h.ctrl.IsRunning(),
		Engine:  h.ctrl.Status(),
		Config:  cfg.Engine,
		Toggles: cfg.Toggles,
	})
}

// configUpdateResponse reports how a PUT /api/config landed. Restart-only
// changes leave the live config untouched until the caller restarts.
type configUpdateResponse struct {
	Applied         bool `json:"applied"`
	RequiresRestart bool `json:"requires_restart"`
}

// HandleConfig reads (GET) the live config with secrets redacted, or replaces
// it (PUT). The PUT body is decoded over the current snapshot, so partial
// bodies update only the fields they name.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		redacted := *h.cfgStore.Snapshot()
		if redacted.Zeus.Token != "" {
			redacted.Zeus.Token = "***"
		}
		writeJSON(w, http.StatusOK, redacted)

	case http.MethodPut:
		cur := h.cfgStore.Snapshot()
		next := *cur
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			writeError(w, http.StatusBadRequest, "", "invalid config body: "+err.Error())
			return
		}
		// A round-tripped GET body carries the redaction marker, not a token.
		if next.Zeus.Token == "***" {
			next.Zeus.Token = cur.Zeus.Token
		}
		requiresRestart, err := h.ctrl.UpdateConfig(&next)
		if err != nil {
			h.logger.Warn("config update rejected", "error", err)
			writeError(w, http.StatusBadRequest, types.KindOf(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, configUpdateResponse{
			Applied:         !requiresRestart,
			RequiresRestart: requiresRestart,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "", "GET or PUT only")
	}
}

// HandleEngineStart starts the engine.
func (h *Handlers) HandleEngineStart(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "start", h.ctrl.Start)
}

// HandleEngineStop stops the engine.
func (h *Handlers) HandleEngineStop(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "stop", h.ctrl.Stop)
}

// HandleEngineRestart restarts the engine, picking up restart-only config changes.
func (h *Handlers) HandleEngineRestart(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "restart", h.ctrl.Restart)
}

// lifecycleOp runs one controller transition and maps its error taxonomy to
// HTTP statuses: invalid transitions are 409, everything else 500.
func (h *Handlers) lifecycleOp(w http.ResponseWriter, r *http.Request, name string, op func() error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "POST only")
		return
	}
	if err := op(); err != nil {
		kind := types.KindOf(err)
		status := http.StatusInternalServerError
		if kind == types.KindAlreadyRunning || kind == types.KindNotRunning {
			status = http.StatusConflict
		}
		h.logger.Warn("lifecycle op failed", "op", name, "kind", string(kind), "error", err)
		writeError(w, status, kind, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  "ok",
		"op":      name,
		"running": h.ctrl.IsRunning(),
	})
}

// HandleToggles reads (GET) or replaces (PUT) the feature toggles. Updates
// take effect on the next cycle; in-flight cycles keep their snapshot.
func (h *Handlers) HandleToggles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.cfgStore.Snapshot().Toggles)

	case http.MethodPut:
		var t config.FeatureToggles
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "", "invalid toggle body: "+err.Error())
			return
		}
		if err := h.ctrl.UpdateFeatureToggles(t); err != nil {
			h.logger.Error("toggle update failed", "error", err)
			writeError(w, http.StatusInternalServerError, types.KindOf(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, t)

	default:
		writeError(w, http.StatusMethodNotAllowed, "", "GET or PUT only")
	}
}

// HandleWebSocket upgrades the connection and registers the client. The first
// frame is a status event so a fresh dashboard renders without waiting for
// the next cycle.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	cfg := h.cfgStore.Snapshot()
	initial := bus.Event{
		Type:      "status",
		Timestamp: time.Now().UTC(),
		Data: statusResponse{
			Running: h.ctrl.IsRunning(),
			Engine:  h.ctrl.Status(),
			Config:  cfg.Engine,
			Toggles: cfg.Toggles,
		},
	}
	data, err := json.Marshal(initial)
	if err != nil {
		h.logger.Error("failed to marshal initial status", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial status to client")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind types.ErrorKind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
