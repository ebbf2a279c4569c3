// Package state persists the last-run marker that drives the rerun guard.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Store reads and writes the last successful run marker. The marker is
// only written after a run completes, so a crash mid-run leaves no
// marker and the next run proceeds without a prompt.
type Store struct {
	host   target.Host
	logger zerolog.Logger
}

// New creates a marker store.
func New(logger zerolog.Logger, host target.Host) *Store {
	return &Store{host: host, logger: logger}
}

// Read returns the recorded timestamp of the last successful run and
// whether a marker exists at all.
func (s *Store) Read(path string) (string, bool, error) {
	exists, err := s.host.Exists(path)
	if err != nil {
		return "", false, fmt.Errorf("checking marker %s: %w", path, err)
	}
	if !exists {
		return "", false, nil
	}

	data, err := s.host.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("reading marker %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Write records t as the last successful run, creating the parent
// directory if needed.
func (s *Store) Write(path string, t time.Time) error {
	if err := s.host.MkdirAll(filepath.Dir(path), os.FileMode(0o755)); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}
	stamp := t.Format(time.RFC3339)
	if err := s.host.WriteFile(path, []byte(stamp+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing marker %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Str("timestamp", stamp).Msg("last-run marker written")
	return nil
}
