// Package sysctl enables IPv4 forwarding and a set of kernel hardening
// parameters.
package sysctl

import (
	"context"
	"fmt"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Service defines the interface for sysctl configuration.
type Service interface {
	Apply(ctx context.Context, cfg models.Config) error
}

// Impl implements the sysctl Service interface.
type Impl struct {
	host    target.Host
	backups backup.Service
	logger  zerolog.Logger
}

// New creates a new sysctl service.
func New(logger zerolog.Logger, host target.Host, backups backup.Service) *Impl {
	return &Impl{host: host, backups: backups, logger: logger}
}

// Render returns the sysctl.conf body. Forwarding is the one parameter
// the router cannot work without; the rest hardens the forwarding path.
func Render(_ models.Config) string {
	return `# Managed by routersetup. Manual edits are overwritten on the next run.
net.ipv4.ip_forward=1

net.ipv4.conf.all.rp_filter=1
net.ipv4.conf.default.rp_filter=1
net.ipv4.conf.all.accept_redirects=0
net.ipv4.conf.default.accept_redirects=0
net.ipv4.conf.all.send_redirects=0
net.ipv4.conf.all.accept_source_route=0
net.ipv4.conf.default.accept_source_route=0
net.ipv4.conf.all.log_martians=1
net.ipv4.icmp_echo_ignore_broadcasts=1
net.ipv4.icmp_ignore_bogus_error_responses=1
net.ipv4.tcp_syncookies=1
`
}

// Apply backs up and overwrites sysctl.conf, then loads it into the
// running kernel.
func (s *Impl) Apply(ctx context.Context, cfg models.Config) error {
	if _, err := s.backups.Backup(cfg.Paths.Sysctl, cfg.Backup.MaxPerFile); err != nil {
		return err
	}

	if err := s.host.WriteFile(cfg.Paths.Sysctl, []byte(Render(cfg)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.Sysctl, err)
	}

	if out, err := s.host.Run(ctx, "sysctl", "-p", cfg.Paths.Sysctl); err != nil {
		return fmt.Errorf("loading sysctl settings: %w, output: %s", err, string(out))
	}

	s.logger.Info().Str("path", cfg.Paths.Sysctl).Msg("kernel parameters applied")
	return nil
}
