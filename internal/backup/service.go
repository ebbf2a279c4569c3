// Package backup makes timestamped copies of config files before they
// are overwritten and keeps the per-file backup count bounded.
package backup

import (
	"fmt"
	"sort"
	"time"

	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// TimestampFormat is the suffix appended to backup files. Fixed-width,
// so lexicographic order equals chronological order.
const TimestampFormat = "20060102150405"

// Service defines the interface for config file backups.
type Service interface {
	Backup(path string, maxPerFile int) (*models.BackupResult, error)
}

// Impl implements the backup Service interface.
type Impl struct {
	host   target.Host
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new backup service.
func New(logger zerolog.Logger, host target.Host) *Impl {
	return &Impl{
		host:   host,
		logger: logger,
		now:    time.Now,
	}
}

// NewWithClock creates a new backup service with a custom clock (for testing).
func NewWithClock(logger zerolog.Logger, host target.Host, now func() time.Time) *Impl {
	return &Impl{
		host:   host,
		logger: logger,
		now:    now,
	}
}

// Backup copies path to path.bak-<timestamp> if it exists, then evicts
// the oldest backups beyond maxPerFile. The original file is never
// touched. A failed copy is returned as an error; a failed eviction is
// logged and swallowed.
func (s *Impl) Backup(path string, maxPerFile int) (*models.BackupResult, error) {
	result := &models.BackupResult{}

	exists, err := s.host.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}
	if !exists {
		s.logger.Debug().Str("path", path).Msg("nothing to back up")
		return result, nil
	}

	data, err := s.host.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	backupPath := fmt.Sprintf("%s.bak-%s", path, s.now().Format(TimestampFormat))
	if err := s.host.WriteFile(backupPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing backup %s: %w", backupPath, err)
	}
	result.BackupPath = backupPath

	s.logger.Info().Str("path", path).Str("backup", backupPath).Msg("config file backed up")

	result.Evicted = s.evictOld(path, maxPerFile)
	return result, nil
}

// evictOld removes all but the newest maxPerFile backups of path.
// Best effort only.
func (s *Impl) evictOld(path string, maxPerFile int) []string {
	backups, err := s.host.Glob(path + ".bak-*")
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("listing backups failed, skipping retention")
		return nil
	}

	if maxPerFile < 1 {
		maxPerFile = 1
	}
	if len(backups) <= maxPerFile {
		return nil
	}

	// Newest first; the timestamp suffix sorts lexicographically.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	var evicted []string
	for _, old := range backups[maxPerFile:] {
		if err := s.host.Remove(old); err != nil {
			s.logger.Warn().Err(err).Str("backup", old).Msg("could not remove old backup")
			continue
		}
		s.logger.Debug().Str("backup", old).Msg("old backup removed")
		evicted = append(evicted, old)
	}
	return evicted
}
