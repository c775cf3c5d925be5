// Package snapshot persists the per-cycle forecast/market/decision artifacts
// that make every evaluation replayable.
//
// The store is the sole writer of the snapshot tree. Each artifact is written
// to a temp file in its target directory, fsynced, and renamed into place
// under the UTC HHMMSS of the cycle's fetch time, so a reader never sees a
// partial file and names sort lexicographically by time within a day. Files
// are never rewritten: if two cycles land in the same second, a monotonic
// .seq suffix disambiguates.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind selects the subtree an artifact belongs to.
type Kind string

const (
	KindZeus      Kind = "zeus"       // forecast payload + metadata, keyed by station
	KindMarket    Kind = "polymarket" // market payload + metadata, keyed by city
	KindDecisions Kind = "decisions"  // decision list + computed inputs, keyed by station
)

// Store writes immutable JSON snapshots under <dataDir>/snapshots/dynamic.
type Store struct {
	root   string
	logger *slog.Logger
	mu     sync.Mutex // serializes name allocation within one second
}

// Open creates a store rooted at the configured data directory.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	root := filepath.Join(dataDir, "snapshots", "dynamic")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot root: %w", err)
	}
	return &Store{
		root:   root,
		logger: logger.With("component", "snapshot"),
	}, nil
}

// Write persists one artifact addressed by (kind, key, eventDay, fetchTime)
// and returns the final path. key is the station code for zeus/decisions and
// the city for market snapshots.
func (s *Store) Write(kind Kind, key, eventDay string, fetchTime time.Time, payload any) (string, error) {
	dir := filepath.Join(s.root, string(kind), key, eventDay)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s snapshot: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.allocateLocked(dir, fetchTime)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".snap-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename snapshot into place: %w", err)
	}

	s.logger.Debug("snapshot written", "kind", string(kind), "path", path)
	return path, nil
}

// allocateLocked picks the first free HHMMSS[.seq].json name for fetchTime.
func (s *Store) allocateLocked(dir string, fetchTime time.Time) (string, error) {
	stamp := fetchTime.UTC().Format("150405")
	path := filepath.Join(dir, stamp+".json")
	for seq := 1; ; seq++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("probe snapshot name: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s.%d.json", stamp, seq))
	}
}

// Root returns the snapshot tree root, for readers and tests.
func (s *Store) Root() string { return s.root }
