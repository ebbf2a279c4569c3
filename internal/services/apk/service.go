// Package apk installs the packages the router setup depends on.
package apk

import (
	"context"
	"fmt"
	"time"

	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Package maps an apk package to the command it is expected to provide.
type Package struct {
	Name    string
	Command string
}

// Required is the fixed set of dependencies. The command column is
// verified after installation so a broken package does not slip through.
var Required = []Package{
	{Name: "iproute2", Command: "ip"},
	{Name: "iptables", Command: "iptables"},
	{Name: "dnsmasq", Command: "dnsmasq"},
	{Name: "chrony", Command: "chronyd"},
	{Name: "fail2ban", Command: "fail2ban-server"},
	{Name: "logrotate", Command: "logrotate"},
}

// Service defines the interface for package installation.
type Service interface {
	EnsurePackages(ctx context.Context) (*models.PackagesResult, error)
}

// Impl implements the apk Service interface.
type Impl struct {
	host     target.Host
	logger   zerolog.Logger
	packages []Package
}

// New creates a new apk service.
func New(logger zerolog.Logger, host target.Host) *Impl {
	return &Impl{
		host:     host,
		logger:   logger,
		packages: Required,
	}
}

// NewWithPackages creates an apk service for a custom package set (for testing).
func NewWithPackages(logger zerolog.Logger, host target.Host, packages []Package) *Impl {
	return &Impl{
		host:     host,
		logger:   logger,
		packages: packages,
	}
}

// EnsurePackages refreshes the apk index, installs every missing
// required package and verifies that each expected command resolves.
// Any failure is fatal.
func (s *Impl) EnsurePackages(ctx context.Context) (*models.PackagesResult, error) {
	start := time.Now()
	result := &models.PackagesResult{}

	s.logger.Info().Msg("updating package index")
	if out, err := s.host.Run(ctx, "apk", "update"); err != nil {
		return nil, fmt.Errorf("apk update failed: %w, output: %s", err, string(out))
	}

	for _, pkg := range s.packages {
		if s.installed(ctx, pkg.Name) {
			s.logger.Debug().Str("package", pkg.Name).Msg("package already installed")
			result.AlreadyPresent = append(result.AlreadyPresent, pkg.Name)
			continue
		}

		s.logger.Info().Str("package", pkg.Name).Msg("installing package")
		if out, err := s.host.Run(ctx, "apk", "add", pkg.Name); err != nil {
			return nil, fmt.Errorf("installing %s failed: %w, output: %s", pkg.Name, err, string(out))
		}
		result.Installed = append(result.Installed, pkg.Name)
	}

	for _, pkg := range s.packages {
		if pkg.Command == "" {
			continue
		}
		if out, err := s.host.Run(ctx, "sh", "-c", "command -v "+pkg.Command); err != nil {
			return nil, fmt.Errorf("command %q still missing after installing %s: %w, output: %s",
				pkg.Command, pkg.Name, err, string(out))
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("installed", len(result.Installed)).
		Int("already_present", len(result.AlreadyPresent)).
		Dur("duration", result.Duration).
		Msg("dependencies ready")

	return result, nil
}

func (s *Impl) installed(ctx context.Context, name string) bool {
	_, err := s.host.Run(ctx, "apk", "info", "-e", name)
	return err == nil
}
