// Package dnsmasq writes the combined DHCP and DNS forwarder
// configuration for the LAN.
package dnsmasq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Service defines the interface for dnsmasq configuration.
type Service interface {
	Apply(ctx context.Context, cfg models.Config) error
}

// Impl implements the dnsmasq Service interface.
type Impl struct {
	host    target.Host
	backups backup.Service
	logger  zerolog.Logger
}

// New creates a new dnsmasq service.
func New(logger zerolog.Logger, host target.Host, backups backup.Service) *Impl {
	return &Impl{host: host, backups: backups, logger: logger}
}

// Render returns the dnsmasq.conf body. The daemon binds only the LAN
// interface, hands out the router as gateway, DNS and NTP server, and
// forwards everything else to the configured upstreams.
func Render(cfg models.Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "interface=%s\n", cfg.Router.LANInterface)
	b.WriteString("bind-interfaces\n")
	b.WriteString("\n")
	b.WriteString("domain-needed\n")
	b.WriteString("bogus-priv\n")
	b.WriteString("no-resolv\n")
	b.WriteString("stop-dns-rebind\n")
	b.WriteString("\n")
	for _, upstream := range cfg.DNS.Upstreams {
		fmt.Fprintf(&b, "server=%s\n", upstream)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "dhcp-range=%s,%s,%s\n", cfg.DHCP.RangeStart, cfg.DHCP.RangeEnd, leaseTime(cfg.DHCP.LeaseTime))
	fmt.Fprintf(&b, "dhcp-option=option:router,%s\n", cfg.Router.LANAddress)
	fmt.Fprintf(&b, "dhcp-option=option:dns-server,%s\n", cfg.Router.LANAddress)
	fmt.Fprintf(&b, "dhcp-option=option:ntp-server,%s\n", cfg.Router.LANAddress)
	b.WriteString("dhcp-authoritative\n")
	b.WriteString("\n")
	b.WriteString("cache-size=1000\n")
	b.WriteString("log-queries\n")
	b.WriteString("log-dhcp\n")

	return b.String()
}

// Apply backs up and overwrites dnsmasq.conf. Networking must already be
// restarted with the new interfaces file, otherwise dnsmasq has no LAN
// address to bind.
func (s *Impl) Apply(ctx context.Context, cfg models.Config) error {
	_ = ctx

	if _, err := s.backups.Backup(cfg.Paths.Dnsmasq, cfg.Backup.MaxPerFile); err != nil {
		return err
	}

	if err := s.host.WriteFile(cfg.Paths.Dnsmasq, []byte(Render(cfg)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.Dnsmasq, err)
	}

	s.logger.Info().
		Str("path", cfg.Paths.Dnsmasq).
		Str("range", cfg.DHCP.RangeStart+"-"+cfg.DHCP.RangeEnd).
		Strs("upstreams", cfg.DNS.Upstreams).
		Msg("dnsmasq configured")

	return nil
}

// leaseTime renders a duration the way dnsmasq expects it: whole hours
// as "12h", anything finer in minutes.
func leaseTime(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
