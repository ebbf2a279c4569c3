// Package logrotate installs the rotation policy for the firewall log.
package logrotate

import (
	"context"
	"fmt"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Service defines the interface for logrotate configuration.
type Service interface {
	Apply(ctx context.Context, cfg models.Config) error
}

// Impl implements the logrotate Service interface.
type Impl struct {
	host    target.Host
	backups backup.Service
	logger  zerolog.Logger
}

// New creates a new logrotate service.
func New(logger zerolog.Logger, host target.Host, backups backup.Service) *Impl {
	return &Impl{host: host, backups: backups, logger: logger}
}

// Render returns the logrotate dropin: daily rotation, seven days kept.
func Render(_ models.Config) string {
	return `/var/log/iptables.log {
	daily
	rotate 7
	compress
	delaycompress
	missingok
	notifempty
}
`
}

// Apply backs up and overwrites the logrotate dropin.
func (s *Impl) Apply(ctx context.Context, cfg models.Config) error {
	_ = ctx

	if _, err := s.backups.Backup(cfg.Paths.Logrotate, cfg.Backup.MaxPerFile); err != nil {
		return err
	}

	if err := s.host.WriteFile(cfg.Paths.Logrotate, []byte(Render(cfg)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.Logrotate, err)
	}

	s.logger.Info().Str("path", cfg.Paths.Logrotate).Msg("log rotation configured")
	return nil
}
