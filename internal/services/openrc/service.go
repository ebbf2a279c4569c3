// Package openrc restarts daemons and registers them in the default
// boot runlevel.
package openrc

import (
	"context"
	"fmt"

	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// Service defines the interface for OpenRC operations.
type Service interface {
	Restart(ctx context.Context, name string) error
	Enable(ctx context.Context, name string) error
}

// Impl implements the OpenRC Service interface.
type Impl struct {
	host   target.Host
	logger zerolog.Logger
}

// New creates a new OpenRC service.
func New(logger zerolog.Logger, host target.Host) *Impl {
	return &Impl{host: host, logger: logger}
}

// Restart restarts a service. Failure is fatal under the run's
// fail-fast policy.
func (s *Impl) Restart(ctx context.Context, name string) error {
	s.logger.Info().Str("service", name).Msg("restarting service")
	if out, err := s.host.Run(ctx, "rc-service", name, "restart"); err != nil {
		return fmt.Errorf("restarting %s: %w, output: %s", name, err, string(out))
	}
	return nil
}

// Enable adds a service to the default runlevel. Re-adding an already
// registered service is fine; rc-update exits zero.
func (s *Impl) Enable(ctx context.Context, name string) error {
	s.logger.Info().Str("service", name).Msg("enabling service at boot")
	if out, err := s.host.Run(ctx, "rc-update", "add", name, "default"); err != nil {
		return fmt.Errorf("enabling %s: %w, output: %s", name, err, string(out))
	}
	return nil
}
