package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"weathertrader/pkg/types"
)

// Store holds the live configuration as an immutable snapshot behind an
// atomic pointer. Workers call Snapshot() once at cycle start and use that
// value for the whole cycle; Apply publishes a new snapshot that only
// subsequent cycles observe.
type Store struct {
	ptr atomic.Pointer[Config]
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.ptr.Store(cfg)
	return s
}

// Snapshot returns the current immutable config. Callers must not mutate it.
func (s *Store) Snapshot() *Config {
	return s.ptr.Load()
}

// Apply validates next and, if it only changes live-updatable fields, swaps it
// in and returns (false, nil). If next changes the task set or cadence the
// store is left untouched and (true, nil) is returned: the caller must
// restart the engine with the new config. Validation failures leave the live
// value unchanged.
func (s *Store) Apply(next *Config) (requiresRestart bool, err error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	cur := s.ptr.Load()
	if cur.RequiresRestart(next) {
		return true, nil
	}
	s.ptr.Store(next)
	return false, nil
}

// SetToggles publishes a snapshot with updated feature toggles.
func (s *Store) SetToggles(t FeatureToggles) {
	cur := s.ptr.Load()
	next := *cur
	next.Toggles = t
	s.ptr.Store(&next)
}

// TogglesPath returns the on-disk location of the persisted feature toggles.
func TogglesPath(dataDir string) string {
	return filepath.Join(dataDir, "config", "feature_toggles.json")
}

// LoadToggles reads persisted feature toggles. A missing file returns the
// zero value without error.
func LoadToggles(dataDir string) (FeatureToggles, error) {
	var t FeatureToggles
	data, err := os.ReadFile(TogglesPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("read feature toggles: %w", err)
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, types.Errorf(types.KindInvalidResponse, "parse feature toggles: %v", err)
	}
	return t, nil
}

// SaveToggles persists feature toggles with an atomic replace.
func SaveToggles(dataDir string, t FeatureToggles) error {
	path := TogglesPath(dataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feature toggles: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write feature toggles: %w", err)
	}
	return os.Rename(tmp, path)
}
