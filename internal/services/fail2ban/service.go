// Package fail2ban writes the jail and filter definitions that ban
// repeat SSH offenders and hosts probing the WAN port.
package fail2ban

import (
	"context"
	"fmt"
	"strings"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Service defines the interface for fail2ban configuration.
type Service interface {
	Apply(ctx context.Context, cfg models.Config) error
}

// Impl implements the fail2ban Service interface.
type Impl struct {
	host    target.Host
	backups backup.Service
	logger  zerolog.Logger
}

// New creates a new fail2ban service.
func New(logger zerolog.Logger, host target.Host, backups backup.Service) *Impl {
	return &Impl{host: host, backups: backups, logger: logger}
}

// RenderJail returns the jail.local body with the sshd and wan-access
// jails.
func RenderJail(cfg models.Config) string {
	return fmt.Sprintf(`[DEFAULT]
bantime = 1h
findtime = 10m
maxretry = 5
backend = polling
ignoreip = 127.0.0.1/8 %s

[sshd]
enabled = true
port = %d
logpath = /var/log/messages

[wan-access]
enabled = true
filter = wan-access
logpath = /var/log/messages
maxretry = 3
bantime = 24h
`, cfg.Router.LANSubnet, cfg.SSH.Port)
}

// RenderFilter returns the wan-access filter. It matches the kernel log
// lines produced by the firewall's LOG rule, so banned hosts are the
// ones repeatedly probing the WAN port.
func RenderFilter(_ models.Config) string {
	return fmt.Sprintf(`[Definition]
failregex = ^.*%s .*SRC=<HOST>.*$
ignoreregex =
`, strings.TrimSpace(models.FirewallLogPrefix))
}

// Apply backs up and overwrites jail.local and the wan-access filter.
func (s *Impl) Apply(ctx context.Context, cfg models.Config) error {
	_ = ctx

	if _, err := s.backups.Backup(cfg.Paths.Fail2banJail, cfg.Backup.MaxPerFile); err != nil {
		return err
	}
	if err := s.host.WriteFile(cfg.Paths.Fail2banJail, []byte(RenderJail(cfg)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.Fail2banJail, err)
	}

	if _, err := s.backups.Backup(cfg.Paths.Fail2banFilter, cfg.Backup.MaxPerFile); err != nil {
		return err
	}
	if err := s.host.WriteFile(cfg.Paths.Fail2banFilter, []byte(RenderFilter(cfg)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.Fail2banFilter, err)
	}

	s.logger.Info().
		Str("jail", cfg.Paths.Fail2banJail).
		Str("filter", cfg.Paths.Fail2banFilter).
		Msg("fail2ban configured")

	return nil
}
