// Package network writes the ifupdown interfaces file for the WAN and
// LAN ports.
package network

import (
	"context"
	"fmt"
	"net"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Service defines the interface for network interface configuration.
type Service interface {
	Apply(ctx context.Context, cfg models.Config) error
}

// Impl implements the network Service interface.
type Impl struct {
	host    target.Host
	backups backup.Service
	logger  zerolog.Logger
}

// New creates a new network service.
func New(logger zerolog.Logger, host target.Host, backups backup.Service) *Impl {
	return &Impl{host: host, backups: backups, logger: logger}
}

// Render returns the complete interfaces file: loopback, WAN via DHCP
// and the LAN port with the static router address.
func Render(cfg models.Config) string {
	return fmt.Sprintf(`auto lo
iface lo inet loopback

auto %s
iface %s inet dhcp

auto %s
iface %s inet static
	address %s
	netmask %s
`,
		cfg.Router.WANInterface, cfg.Router.WANInterface,
		cfg.Router.LANInterface, cfg.Router.LANInterface,
		cfg.Router.LANAddress, netmask(cfg.Router.LANSubnet))
}

// Apply backs up and overwrites the interfaces file. The caller is
// responsible for restarting networking afterwards; dnsmasq cannot bind
// the LAN interface until that happened.
func (s *Impl) Apply(ctx context.Context, cfg models.Config) error {
	_ = ctx

	if _, err := s.backups.Backup(cfg.Paths.Interfaces, cfg.Backup.MaxPerFile); err != nil {
		return err
	}

	body := Render(cfg)
	if err := s.host.WriteFile(cfg.Paths.Interfaces, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.Interfaces, err)
	}

	s.logger.Info().
		Str("path", cfg.Paths.Interfaces).
		Str("wan", cfg.Router.WANInterface).
		Str("lan", cfg.Router.LANInterface).
		Msg("network interfaces configured")

	return nil
}

// netmask converts a CIDR subnet to dotted-quad notation; ifupdown on
// Alpine predates CIDR addresses in the interfaces file.
func netmask(cidr string) string {
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		// Config validation rejects bad subnets before we get here.
		return "255.255.255.0"
	}
	return net.IP(subnet.Mask).String()
}
