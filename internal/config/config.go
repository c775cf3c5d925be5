// Package config defines all configuration for the weather trading agent.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via WX_* environment variables.
//
// A loaded Config is immutable. Live updates go through Store, which swaps a
// new validated snapshot atomically between engine cycles; a cycle in flight
// always keeps the snapshot it started with.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"weathertrader/pkg/types"
)

// ExecutionMode selects the broker backing the engine.
type ExecutionMode string

const (
	ModePaper ExecutionMode = "paper"
	ModeLive  ExecutionMode = "live"
)

// ModelMode selects how the probability mapper derives sigma.
type ModelMode string

const (
	ModelSpread ModelMode = "spread"
	ModelBands  ModelMode = "bands"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure; the json tags are the wire shape of the config API.
type Config struct {
	DataDir      string          `mapstructure:"data_dir" json:"data_dir"`
	RegistryPath string          `mapstructure:"registry_path" json:"registry_path"`
	Engine       EngineConfig    `mapstructure:"engine" json:"engine"`
	Trading      TradingConfig   `mapstructure:"trading" json:"trading"`
	Model        ModelConfig     `mapstructure:"probability_model" json:"probability_model"`
	Zeus         ZeusConfig      `mapstructure:"zeus" json:"zeus"`
	Venue        VenueConfig     `mapstructure:"venue" json:"venue"`
	Metar        MetarConfig     `mapstructure:"metar" json:"metar"`
	Toggles      FeatureToggles  `mapstructure:"feature_toggles" json:"feature_toggles"`
	Logging      LoggingConfig   `mapstructure:"logging" json:"logging"`
	Dashboard    DashboardConfig `mapstructure:"dashboard" json:"dashboard"`
}

// EngineConfig controls the scheduler: which tasks exist and how often they run.
// Changing any of these fields requires an engine restart.
type EngineConfig struct {
	ActiveStations     []string      `mapstructure:"active_stations" json:"active_stations"`
	IntervalSeconds    int           `mapstructure:"interval_seconds" json:"interval_seconds"`
	LookaheadDays      int           `mapstructure:"lookahead_days" json:"lookahead_days"`
	ExecutionMode      ExecutionMode `mapstructure:"execution_mode" json:"execution_mode"`
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" json:"max_concurrent_tasks"`
	CycleTimeout       time.Duration `mapstructure:"cycle_timeout" json:"cycle_timeout"`
	MaxInputAge        time.Duration `mapstructure:"max_input_age" json:"max_input_age"` // 0 = same as cycle_timeout
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace" json:"shutdown_grace"`
}

// Interval returns the tick cadence.
func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}

// InputAge returns the staleness bound for fetched inputs.
func (e EngineConfig) InputAge() time.Duration {
	if e.MaxInputAge > 0 {
		return e.MaxInputAge
	}
	return e.CycleTimeout
}

// TradingConfig tunes the edge threshold and position sizing caps.
//
//   - EdgeMin:          minimum net edge to act on.
//   - FeeBp/SlippageBp: costs subtracted from raw edge, in basis points.
//   - KellyCap:         ceiling on the Kelly fraction.
//   - Bankroll:         notional bankroll the Kelly fraction applies to.
//   - PerMarketCap:     absolute dollar ceiling per bracket per cycle.
//   - LiquidityMinUSD:  minimum top-of-book depth to accept a candidate.
//   - DailyBankrollCap: process-wide spend ceiling per local day.
//   - MinTradeUSD:      dust floor; sizes below it are rejected.
type TradingConfig struct {
	EdgeMin          float64 `mapstructure:"edge_min" json:"edge_min"`
	FeeBp            float64 `mapstructure:"fee_bp" json:"fee_bp"`
	SlippageBp       float64 `mapstructure:"slippage_bp" json:"slippage_bp"`
	KellyCap         float64 `mapstructure:"kelly_cap" json:"kelly_cap"`
	Bankroll         float64 `mapstructure:"bankroll" json:"bankroll"`
	PerMarketCap     float64 `mapstructure:"per_market_cap" json:"per_market_cap"`
	LiquidityMinUSD  float64 `mapstructure:"liquidity_min_usd" json:"liquidity_min_usd"`
	DailyBankrollCap float64 `mapstructure:"daily_bankroll_cap" json:"daily_bankroll_cap"`
	MinTradeUSD      float64 `mapstructure:"min_trade_usd" json:"min_trade_usd"`
}

// ModelConfig tunes the forecast-to-probability mapper.
type ModelConfig struct {
	Mode            ModelMode `mapstructure:"model_mode" json:"model_mode"`
	ZeusLikelyPct   float64   `mapstructure:"zeus_likely_pct" json:"zeus_likely_pct"`
	ZeusPossiblePct float64   `mapstructure:"zeus_possible_pct" json:"zeus_possible_pct"`
	SigmaDefault    float64   `mapstructure:"sigma_default" json:"sigma_default"`
	SigmaMin        float64   `mapstructure:"sigma_min" json:"sigma_min"`
	SigmaMax        float64   `mapstructure:"sigma_max" json:"sigma_max"`
	StrictSigma     bool      `mapstructure:"strict_sigma" json:"strict_sigma"` // clamp violations abort instead of clamping
}

// ZeusConfig points at the hourly forecast source.
type ZeusConfig struct {
	BaseURL    string        `mapstructure:"base_url" json:"base_url"`
	Token      string        `mapstructure:"token" json:"token"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
}

// VenueConfig points at the market data source.
type VenueConfig struct {
	BaseURL    string        `mapstructure:"base_url" json:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
}

// MetarConfig points at the aviation weather observation API. Observations
// only enrich decision snapshots; the engine runs fine with Enabled=false.
type MetarConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// FeatureToggles are the runtime-flippable model behaviors. They persist to
// config/feature_toggles.json under the data directory.
type FeatureToggles struct {
	PolymarketDoubleRounding bool `mapstructure:"polymarket_double_rounding" json:"polymarket_double_rounding"`
	StationCalibration       bool `mapstructure:"station_calibration" json:"station_calibration"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// DashboardConfig controls the HTTP/WebSocket control server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	Port    int  `mapstructure:"port" json:"port"`
}

// Load reads config from a YAML file with env var overrides.
// The forecast API token uses WX_ZEUS_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("WX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if token := os.Getenv("WX_ZEUS_TOKEN"); token != "" {
		cfg.Zeus.Token = token
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("registry_path", "registry/stations.csv")
	v.SetDefault("engine.interval_seconds", 900)
	v.SetDefault("engine.lookahead_days", 1)
	v.SetDefault("engine.execution_mode", string(ModePaper))
	v.SetDefault("engine.cycle_timeout", "120s")
	v.SetDefault("engine.shutdown_grace", "30s")
	v.SetDefault("trading.edge_min", 0.05)
	v.SetDefault("trading.kelly_cap", 0.10)
	v.SetDefault("trading.min_trade_usd", 1.0)
	v.SetDefault("probability_model.model_mode", string(ModelSpread))
	v.SetDefault("probability_model.sigma_default", 2.0)
	v.SetDefault("probability_model.sigma_min", 0.5)
	v.SetDefault("probability_model.sigma_max", 6.0)
	v.SetDefault("probability_model.zeus_likely_pct", 0.6827)
	v.SetDefault("probability_model.zeus_possible_pct", 0.9545)
	v.SetDefault("zeus.timeout", "20s")
	v.SetDefault("zeus.max_retries", 3)
	v.SetDefault("venue.timeout", "15s")
	v.SetDefault("venue.max_retries", 3)
	v.SetDefault("metar.base_url", "https://aviationweather.gov/api/data")
	v.SetDefault("metar.timeout", "15s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.port", 8080)
}

// Validate checks all required fields and value ranges. Violations carry
// kind CONFIG_INVALID.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return types.Errorf(types.KindConfigInvalid, format, args...)
	}

	if c.DataDir == "" {
		return fail("data_dir is required")
	}
	if c.RegistryPath == "" {
		return fail("registry_path is required")
	}
	if len(c.Engine.ActiveStations) == 0 {
		return fail("engine.active_stations must not be empty")
	}
	if c.Engine.IntervalSeconds <= 0 {
		return fail("engine.interval_seconds must be > 0")
	}
	if c.Engine.LookaheadDays <= 0 {
		return fail("engine.lookahead_days must be > 0")
	}
	switch c.Engine.ExecutionMode {
	case ModePaper, ModeLive:
	default:
		return fail("engine.execution_mode must be %q or %q", ModePaper, ModeLive)
	}
	if c.Engine.CycleTimeout <= 0 {
		return fail("engine.cycle_timeout must be > 0")
	}
	if c.Trading.EdgeMin <= 0 {
		return fail("trading.edge_min must be > 0")
	}
	if c.Trading.FeeBp < 0 || c.Trading.SlippageBp < 0 {
		return fail("trading.fee_bp and trading.slippage_bp must be >= 0")
	}
	if c.Trading.KellyCap <= 0 || c.Trading.KellyCap > 1 {
		return fail("trading.kelly_cap must be in (0,1]")
	}
	if c.Trading.Bankroll <= 0 {
		return fail("trading.bankroll must be > 0")
	}
	if c.Trading.PerMarketCap <= 0 {
		return fail("trading.per_market_cap must be > 0")
	}
	if c.Trading.DailyBankrollCap <= 0 {
		return fail("trading.daily_bankroll_cap must be > 0")
	}
	switch c.Model.Mode {
	case ModelSpread, ModelBands:
	default:
		return fail("probability_model.model_mode must be %q or %q", ModelSpread, ModelBands)
	}
	if c.Model.SigmaMin <= 0 || c.Model.SigmaMax < c.Model.SigmaMin {
		return fail("probability_model sigma clamps invalid: [%v, %v]", c.Model.SigmaMin, c.Model.SigmaMax)
	}
	if c.Model.Mode == ModelBands {
		if !(0.5 < c.Model.ZeusLikelyPct && c.Model.ZeusLikelyPct < c.Model.ZeusPossiblePct && c.Model.ZeusPossiblePct < 1) {
			return fail("bands model requires 0.5 < zeus_likely_pct < zeus_possible_pct < 1")
		}
	}
	if c.Zeus.BaseURL == "" {
		return fail("zeus.base_url is required")
	}
	if c.Venue.BaseURL == "" {
		return fail("venue.base_url is required")
	}
	return nil
}

// RequiresRestart reports whether switching from c to next changes the task
// set or cadence, which can only happen through a stop/start.
func (c *Config) RequiresRestart(next *Config) bool {
	return !slices.Equal(c.Engine.ActiveStations, next.Engine.ActiveStations) ||
		c.Engine.IntervalSeconds != next.Engine.IntervalSeconds ||
		c.Engine.LookaheadDays != next.Engine.LookaheadDays ||
		c.Engine.ExecutionMode != next.Engine.ExecutionMode
}
