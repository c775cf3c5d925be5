// Package engine is the dynamic evaluation loop at the center of the agent.
//
// Every interval_seconds the scheduler issues one cycle. A cycle enumerates
// the active Tasks, one per (station, event day) within the lookahead, and
// dispatches each to a bounded worker pool. Within one Task the forecast and
// market fetches run in parallel; probability mapping, sizing, snapshotting,
// and the broker append are sequential. The same Task never runs concurrently
// with itself: if a tick fires while a Task is still draining, that Task's
// enqueue is skipped (skip_overlap) and the rest of the cycle proceeds.
//
// Lifecycle: New() → Start() → [runs until Stop()] → Stop()
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"weathertrader/internal/broker"
	"weathertrader/internal/bus"
	"weathertrader/internal/config"
	"weathertrader/internal/metar"
	"weathertrader/internal/registry"
	"weathertrader/internal/sizing"
	"weathertrader/internal/snapshot"
	"weathertrader/internal/venue"
	"weathertrader/pkg/types"
	"weathertrader/pkg/units"
)

// Task is the unit of scheduling: one station evaluated for one event day.
type Task struct {
	StationCode string
	EventDay    string
}

// ID renders the task as "<station>/<event_day>" for logs and events.
func (t Task) ID() string { return t.StationCode + "/" + t.EventDay }

// ForecastFetcher is the forecast client capability the engine needs.
type ForecastFetcher interface {
	Fetch(ctx context.Context, station types.Station, eventDay string, startUTC time.Time, hours int) (*types.Forecast, error)
}

// ObservationFetcher is the optional METAR capability used to enrich
// decision snapshots. May be nil.
type ObservationFetcher interface {
	DayMax(ctx context.Context, station types.Station, eventDay string) (*metar.DayObservations, error)
}

// Params wires the engine's collaborators.
type Params struct {
	Config       *config.Store
	Registry     *registry.Registry
	Forecasts    ForecastFetcher
	Venues       map[string]venue.Venue // keyed by venue tag
	Observations ObservationFetcher     // optional
	Snapshots    *snapshot.Store
	Broker       broker.Broker
	Bus          *bus.Bus
	Logger       *slog.Logger
}

// Engine owns the scheduler, the worker pool, and the per-cycle orchestration
// of fetch → map → size → snapshot → broker → publish.
type Engine struct {
	cfgStore *config.Store
	registry *registry.Registry
	zeus     ForecastFetcher
	venues   map[string]venue.Venue
	obs      ObservationFetcher
	store    *snapshot.Store
	broker   broker.Broker
	bus      *bus.Bus
	ledger   *sizing.DailyLedger
	logger   *slog.Logger

	// inFlight guards per-task non-overlap across cycles.
	inFlightMu sync.Mutex
	inFlight   map[string]bool

	cycleMu   sync.Mutex
	cycleSeq  uint64
	lastCycle time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine. Start launches it.
func New(p Params) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfgStore: p.Config,
		registry: p.Registry,
		zeus:     p.Forecasts,
		venues:   p.Venues,
		obs:      p.Observations,
		store:    p.Snapshots,
		broker:   p.Broker,
		bus:      p.Bus,
		ledger:   sizing.NewDailyLedger(),
		logger:   p.Logger.With("component", "engine"),
		inFlight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the scheduler goroutine. The first cycle runs immediately;
// subsequent cycles follow the configured tick cadence.
func (e *Engine) Start() error {
	cfg := e.cfgStore.Snapshot()
	e.logger.Info("engine starting",
		"stations", cfg.Engine.ActiveStations,
		"interval", cfg.Engine.Interval().String(),
		"lookahead_days", cfg.Engine.LookaheadDays,
		"mode", string(cfg.Engine.ExecutionMode),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.schedule()
	}()
	return nil
}

// Stop cancels the scheduler and all fetch stages, then waits up to
// shutdown_grace for running workers to finish the snapshot/broker tail of
// their current task. Workers still alive after the grace period are
// abandoned; the atomic snapshot rename keeps the store consistent either way.
func (e *Engine) Stop() {
	cfg := e.cfgStore.Snapshot()
	e.logger.Info("engine stopping")
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine stopped")
	case <-time.After(cfg.Engine.ShutdownGrace):
		e.logger.Warn("shutdown grace expired with workers still running")
	}
}

// schedule drives the tick clock. The ticker interval comes from the config
// snapshot active at start; cadence changes require a restart.
func (e *Engine) schedule() {
	cfg := e.cfgStore.Snapshot()

	e.runCycle()

	ticker := time.NewTicker(cfg.Engine.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runCycle()
		}
	}
}

// runCycle enumerates active tasks and dispatches each to the worker pool
// exactly once. Tasks still running from a previous cycle are skipped.
func (e *Engine) runCycle() {
	cfg := e.cfgStore.Snapshot()

	e.cycleMu.Lock()
	e.cycleSeq++
	cycleID := e.cycleSeq
	e.lastCycle = time.Now().UTC()
	e.cycleMu.Unlock()

	tasks := e.enumerateTasks(cfg)
	if len(tasks) == 0 {
		e.logger.Warn("cycle has no tasks", "cycle", cycleID)
		return
	}

	e.pruneLedger(cfg, tasks)

	pool := semaphore.NewWeighted(e.poolSize(cfg, len(tasks)))
	log := e.logger.With("cycle", cycleID)
	log.Info("cycle dispatch", "tasks", len(tasks))

	for _, task := range tasks {
		if !e.claim(task) {
			log.Warn("skip_overlap", "task", task.ID())
			continue
		}

		e.wg.Add(1)
		go func(task Task) {
			defer e.wg.Done()
			defer e.release(task)

			if err := pool.Acquire(e.ctx, 1); err != nil {
				return
			}
			defer pool.Release(1)

			e.executeTask(cfg, task, log)
		}(task)
	}
}

// enumerateTasks builds the task set: every active station crossed with
// event days {today_local .. today_local+lookahead-1} in the station's zone.
func (e *Engine) enumerateTasks(cfg *config.Config) []Task {
	now := time.Now()
	var tasks []Task
	for _, code := range cfg.Engine.ActiveStations {
		station, ok := e.registry.Get(code)
		if !ok {
			e.logger.Error("active station not in registry", "station", code)
			continue
		}
		if _, ok := e.venues[station.VenueTag]; !ok {
			e.logger.Error("no venue for station", "station", code, "venue", station.VenueTag)
			continue
		}
		zone, _ := e.registry.Zone(code)
		for d := 0; d < cfg.Engine.LookaheadDays; d++ {
			day := units.LocalDay(now.AddDate(0, 0, d), zone)
			tasks = append(tasks, Task{StationCode: station.Code, EventDay: day})
		}
	}
	return tasks
}

// pruneLedger keeps only budget days still reachable by the current task set.
func (e *Engine) pruneLedger(cfg *config.Config, tasks []Task) {
	keep := make(map[string]bool, len(tasks)+len(cfg.Engine.ActiveStations))
	now := time.Now()
	for _, t := range tasks {
		keep[t.EventDay] = true
	}
	for _, code := range cfg.Engine.ActiveStations {
		if zone, ok := e.registry.Zone(code); ok {
			keep[units.LocalDay(now, zone)] = true
		}
	}
	e.ledger.Prune(keep)
}

func (e *Engine) poolSize(cfg *config.Config, tasks int) int64 {
	n := cfg.Engine.MaxConcurrentTasks
	if n <= 0 {
		n = tasks
	}
	return int64(n)
}

func (e *Engine) claim(task Task) bool {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	if e.inFlight[task.ID()] {
		return false
	}
	e.inFlight[task.ID()] = true
	return true
}

func (e *Engine) release(task Task) {
	e.inFlightMu.Lock()
	delete(e.inFlight, task.ID())
	e.inFlightMu.Unlock()
}

// Status is a point-in-time view of the engine for the dashboard.
type Status struct {
	Running       bool      `json:"running"`
	CycleSeq      uint64    `json:"cycle_seq"`
	LastCycleUTC  time.Time `json:"last_cycle_utc"`
	InFlightTasks []string  `json:"in_flight_tasks"`
}

// GetStatus reports the current scheduler state.
func (e *Engine) GetStatus() Status {
	e.cycleMu.Lock()
	seq, last := e.cycleSeq, e.lastCycle
	e.cycleMu.Unlock()

	e.inFlightMu.Lock()
	tasks := make([]string, 0, len(e.inFlight))
	for id := range e.inFlight {
		tasks = append(tasks, id)
	}
	e.inFlightMu.Unlock()

	return Status{
		Running:       e.ctx.Err() == nil,
		CycleSeq:      seq,
		LastCycleUTC:  last,
		InFlightTasks: tasks,
	}
}

// publish sends an event to the bus, stamping the time.
func (e *Engine) publish(evtType bus.EventType, taskID string, data any) {
	e.bus.Publish(bus.Event{
		Type:      evtType,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Data:      data,
	})
}

// failTask logs a task failure, classifies it, and emits cycle_failed.
// Per-task failures are isolated: the cycle proceeds for every other task.
func (e *Engine) failTask(task Task, err error, log *slog.Logger) {
	kind := types.KindOf(err)
	if kind == "" {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = types.KindCancelled
		} else {
			kind = types.KindTransientFetch
		}
	}
	log.Error("task failed", "task", task.ID(), "kind", string(kind), "error", err)
	e.publish(bus.EventCycleFailed, task.ID(), bus.CycleFailure{
		Reason: kind,
		Detail: fmt.Sprintf("%v", err),
	})
}
