package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"weathertrader/pkg/types"
)

const testYAML = `
data_dir: data
registry_path: registry/stations.csv
engine:
  active_stations: ["KLGA"]
  interval_seconds: 900
  lookahead_days: 1
  execution_mode: paper
  cycle_timeout: 120s
trading:
  edge_min: 0.05
  fee_bp: 50
  slippage_bp: 30
  kelly_cap: 0.10
  bankroll: 3000
  per_market_cap: 500
  daily_bankroll_cap: 3000
probability_model:
  model_mode: spread
  sigma_default: 2.0
zeus:
  base_url: https://zeus.example
venue:
  base_url: https://venue.example
`

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	if cfg.Engine.Interval() != 15*time.Minute {
		t.Errorf("interval = %v", cfg.Engine.Interval())
	}
	if cfg.Engine.InputAge() != 120*time.Second {
		t.Errorf("input age should default to cycle timeout, got %v", cfg.Engine.InputAge())
	}
	if cfg.Model.SigmaMin != 0.5 || cfg.Model.SigmaMax != 6.0 {
		t.Errorf("sigma clamp defaults = [%v, %v]", cfg.Model.SigmaMin, cfg.Model.SigmaMax)
	}
	if cfg.Trading.MinTradeUSD != 1.0 {
		t.Errorf("min trade default = %v", cfg.Trading.MinTradeUSD)
	}
}

func TestZeusTokenFromEnv(t *testing.T) {
	t.Setenv("WX_ZEUS_TOKEN", "secret-token")
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Zeus.Token != "secret-token" {
		t.Errorf("token = %q", cfg.Zeus.Token)
	}
}

func TestValidateRejections(t *testing.T) {
	base, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no stations", func(c *Config) { c.Engine.ActiveStations = nil }},
		{"zero interval", func(c *Config) { c.Engine.IntervalSeconds = 0 }},
		{"bad mode", func(c *Config) { c.Engine.ExecutionMode = "turbo" }},
		{"zero edge", func(c *Config) { c.Trading.EdgeMin = 0 }},
		{"kelly over one", func(c *Config) { c.Trading.KellyCap = 1.5 }},
		{"negative fee", func(c *Config) { c.Trading.FeeBp = -1 }},
		{"no bankroll", func(c *Config) { c.Trading.Bankroll = 0 }},
		{"bad model", func(c *Config) { c.Model.Mode = "oracle" }},
		{"inverted clamps", func(c *Config) { c.Model.SigmaMin = 5; c.Model.SigmaMax = 1 }},
		{"bands bounds", func(c *Config) {
			c.Model.Mode = ModelBands
			c.Model.ZeusLikelyPct = 0.99
			c.Model.ZeusPossiblePct = 0.90
		}},
		{"no zeus url", func(c *Config) { c.Zeus.BaseURL = "" }},
		{"no registry", func(c *Config) { c.RegistryPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !types.IsKind(err, types.KindConfigInvalid) {
				t.Errorf("kind = %q", types.KindOf(err))
			}
		})
	}
}

func TestStoreApply(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(cfg)

	// Live-updatable change swaps immediately.
	next := *cfg
	next.Trading.EdgeMin = 0.08
	restart, err := store.Apply(&next)
	if err != nil || restart {
		t.Fatalf("Apply = (%v, %v)", restart, err)
	}
	if store.Snapshot().Trading.EdgeMin != 0.08 {
		t.Error("live update not visible")
	}

	// Cadence change demands a restart and leaves the store untouched.
	next2 := next
	next2.Engine.IntervalSeconds = 60
	restart, err = store.Apply(&next2)
	if err != nil || !restart {
		t.Fatalf("Apply = (%v, %v), want restart", restart, err)
	}
	if store.Snapshot().Engine.IntervalSeconds != 900 {
		t.Error("restart-gated change leaked into the live snapshot")
	}

	// Invalid config never lands.
	bad := next
	bad.Trading.EdgeMin = 0
	if _, err := store.Apply(&bad); err == nil {
		t.Fatal("invalid config accepted")
	}
	if store.Snapshot().Trading.EdgeMin != 0.08 {
		t.Error("failed Apply mutated the snapshot")
	}
}

func TestTogglesRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Missing file is the zero value, not an error.
	got, err := LoadToggles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != (FeatureToggles{}) {
		t.Errorf("missing toggles = %+v", got)
	}

	want := FeatureToggles{PolymarketDoubleRounding: true, StationCalibration: true}
	if err := SaveToggles(dir, want); err != nil {
		t.Fatal(err)
	}
	got, err = LoadToggles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}
