// Package chrony configures time sync: upstream pools plus NTP service
// for the LAN.
package chrony

import (
	"context"
	"fmt"
	"strings"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Service defines the interface for chrony configuration.
type Service interface {
	Apply(ctx context.Context, cfg models.Config) error
}

// Impl implements the chrony Service interface.
type Impl struct {
	host    target.Host
	backups backup.Service
	logger  zerolog.Logger
}

// New creates a new chrony service.
func New(logger zerolog.Logger, host target.Host, backups backup.Service) *Impl {
	return &Impl{host: host, backups: backups, logger: logger}
}

// Render returns the chrony.conf body.
func Render(cfg models.Config) string {
	var b strings.Builder

	for _, pool := range cfg.NTP.Pools {
		fmt.Fprintf(&b, "pool %s iburst\n", pool)
	}
	b.WriteString("\n")
	b.WriteString("driftfile /var/lib/chrony/chrony.drift\n")
	b.WriteString("rtcsync\n")
	b.WriteString("makestep 1.0 3\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "allow %s\n", cfg.Router.LANSubnet)
	b.WriteString("cmdport 0\n")

	return b.String()
}

// Apply backs up and overwrites chrony.conf.
func (s *Impl) Apply(ctx context.Context, cfg models.Config) error {
	_ = ctx

	if _, err := s.backups.Backup(cfg.Paths.Chrony, cfg.Backup.MaxPerFile); err != nil {
		return err
	}

	if err := s.host.WriteFile(cfg.Paths.Chrony, []byte(Render(cfg)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.Chrony, err)
	}

	s.logger.Info().
		Str("path", cfg.Paths.Chrony).
		Strs("pools", cfg.NTP.Pools).
		Msg("chrony configured")

	return nil
}
