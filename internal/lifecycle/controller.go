// Package lifecycle owns the engine's start/stop state machine and its
// on-disk footprint: a PID file guaranteeing one engine per host and a
// persisted engine_config.json recording the parameters the running engine
// was started with.
//
// The controller is the only component allowed to create or destroy an
// engine. The dashboard's start/stop/restart endpoints and the process's
// signal handler both go through it, so double starts and stops of a stopped
// engine fail cleanly with ALREADY_RUNNING / NOT_RUNNING instead of racing.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"weathertrader/internal/config"
	"weathertrader/internal/engine"
	"weathertrader/pkg/types"
)

// EngineFactory builds a fresh engine from the current config snapshot.
// Called on every Start so restarts pick up restart-only config changes.
type EngineFactory func() (*engine.Engine, error)

// Controller serializes engine lifecycle transitions.
type Controller struct {
	cfgStore *config.Store
	factory  EngineFactory
	logger   *slog.Logger

	mu      sync.Mutex
	eng     *engine.Engine
	running bool
}

// NewController creates a lifecycle controller. The engine is not started.
func NewController(cfgStore *config.Store, factory EngineFactory, logger *slog.Logger) *Controller {
	return &Controller{
		cfgStore: cfgStore,
		factory:  factory,
		logger:   logger.With("component", "lifecycle"),
	}
}

// Start builds and launches the engine. Fails with ALREADY_RUNNING when an
// engine is live, either in this process or (via the PID file) in another one.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	if c.running {
		return types.Errorf(types.KindAlreadyRunning, "engine already running")
	}

	cfg := c.cfgStore.Snapshot()
	if err := c.acquirePIDFile(cfg.DataDir); err != nil {
		return err
	}

	eng, err := c.factory()
	if err != nil {
		c.releasePIDFile(cfg.DataDir)
		return fmt.Errorf("build engine: %w", err)
	}
	if err := eng.Start(); err != nil {
		c.releasePIDFile(cfg.DataDir)
		return err
	}

	if err := saveEngineConfig(cfg.DataDir, cfg.Engine); err != nil {
		c.logger.Warn("persist engine config failed", "error", err)
	}

	c.eng = eng
	c.running = true
	c.logger.Info("engine started", "pid", os.Getpid())
	return nil
}

// Stop shuts the engine down. Fails with NOT_RUNNING when nothing is live.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if !c.running {
		return types.Errorf(types.KindNotRunning, "engine is not running")
	}

	c.eng.Stop()
	c.eng = nil
	c.running = false
	c.releasePIDFile(c.cfgStore.Snapshot().DataDir)
	c.logger.Info("engine stopped")
	return nil
}

// Restart stops and starts the engine, picking up restart-only config
// changes. A restart of a stopped engine fails with NOT_RUNNING. The lock is
// held across both transitions so no other caller can slip in between.
func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stopLocked(); err != nil {
		return err
	}
	return c.startLocked()
}

// IsRunning reports whether this controller's engine is live.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns the running engine's scheduler state, or a zero Status when
// stopped.
func (c *Controller) Status() engine.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return engine.Status{}
	}
	return c.eng.GetStatus()
}

// GetEngineConfig returns the engine parameters of the current snapshot.
func (c *Controller) GetEngineConfig() config.EngineConfig {
	return c.cfgStore.Snapshot().Engine
}

// UpdateConfig validates next and publishes it as the live snapshot. Cycles
// already in flight keep the snapshot they started with. When next changes
// the task set or cadence the live config is left untouched and
// requiresRestart is true: the caller decides when to Restart.
func (c *Controller) UpdateConfig(next *config.Config) (requiresRestart bool, err error) {
	requiresRestart, err = c.cfgStore.Apply(next)
	if err != nil {
		return false, err
	}
	if requiresRestart {
		c.logger.Info("config change needs an engine restart, live config unchanged")
	} else {
		c.logger.Info("config updated live, next cycle picks it up")
	}
	return requiresRestart, nil
}

// UpdateFeatureToggles publishes new toggles to the live config and persists
// them. In-flight cycles keep the snapshot they started with; the next cycle
// sees the new toggles.
func (c *Controller) UpdateFeatureToggles(t config.FeatureToggles) error {
	c.cfgStore.SetToggles(t)
	if err := config.SaveToggles(c.cfgStore.Snapshot().DataDir, t); err != nil {
		return fmt.Errorf("persist feature toggles: %w", err)
	}
	c.logger.Info("feature toggles updated",
		"polymarket_double_rounding", t.PolymarketDoubleRounding,
		"station_calibration", t.StationCalibration,
	)
	return nil
}

// PIDPath returns the engine PID file location.
func PIDPath(dataDir string) string {
	return filepath.Join(dataDir, "engine.pid")
}

// acquirePIDFile claims the single-instance lock. A PID file whose process is
// dead is stale and gets cleaned up; a live one means another engine owns
// this data directory.
func (c *Controller) acquirePIDFile(dataDir string) error {
	path := PIDPath(dataDir)
	if data, err := os.ReadFile(path); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && pid != os.Getpid() && processAlive(pid) {
			return types.Errorf(types.KindAlreadyRunning, "engine already running with pid %d", pid)
		}
		c.logger.Warn("removing stale pid file", "path", path, "stale_pid", strings.TrimSpace(string(data)))
		os.Remove(path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (c *Controller) releasePIDFile(dataDir string) {
	if err := os.Remove(PIDPath(dataDir)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("remove pid file failed", "error", err)
	}
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// EngineConfigPath returns the persisted engine parameters location.
func EngineConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config", "engine_config.json")
}

// saveEngineConfig records the parameters the engine started with, with an
// atomic replace.
func saveEngineConfig(dataDir string, ec config.EngineConfig) error {
	path := EngineConfigPath(dataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(engineConfigRecord{
		ActiveStations:     ec.ActiveStations,
		IntervalSeconds:    ec.IntervalSeconds,
		LookaheadDays:      ec.LookaheadDays,
		ExecutionMode:      string(ec.ExecutionMode),
		MaxConcurrentTasks: ec.MaxConcurrentTasks,
		StartedPID:         os.Getpid(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal engine config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write engine config: %w", err)
	}
	return os.Rename(tmp, path)
}

// engineConfigRecord is the JSON shape of engine_config.json.
type engineConfigRecord struct {
	ActiveStations     []string `json:"active_stations"`
	IntervalSeconds    int      `json:"interval_seconds"`
	LookaheadDays      int      `json:"lookahead_days"`
	ExecutionMode      string   `json:"execution_mode"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks"`
	StartedPID         int      `json:"started_pid"`
}
