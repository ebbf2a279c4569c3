// Package runner orchestrates the provisioning workflow. Stages run
// strictly in sequence and the first failure aborts the run; there is
// no rollback, the operator fixes the cause and reruns.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/prompt"
	"github.com/hkropp/routersetup/internal/services/apk"
	"github.com/hkropp/routersetup/internal/services/chrony"
	"github.com/hkropp/routersetup/internal/services/dnsmasq"
	"github.com/hkropp/routersetup/internal/services/fail2ban"
	"github.com/hkropp/routersetup/internal/services/firewall"
	"github.com/hkropp/routersetup/internal/services/logrotate"
	"github.com/hkropp/routersetup/internal/services/network"
	"github.com/hkropp/routersetup/internal/services/openrc"
	"github.com/hkropp/routersetup/internal/services/sysctl"
	"github.com/hkropp/routersetup/internal/state"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// StageError identifies the workflow stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Service defines the interface for the provisioning runner.
type Service interface {
	Run(ctx context.Context, cfg models.Config) error
}

// Services bundles the per-subsystem services the runner drives.
type Services struct {
	Apk       apk.Service
	Network   network.Service
	Sysctl    sysctl.Service
	Dnsmasq   dnsmasq.Service
	Firewall  firewall.Service
	Chrony    chrony.Service
	Fail2ban  fail2ban.Service
	Logrotate logrotate.Service
	OpenRC    openrc.Service
}

// Impl implements the runner Service interface.
type Impl struct {
	host      target.Host
	confirmer prompt.Confirmer
	store     *state.Store
	services  Services
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a runner wired with the real services against host.
func New(logger zerolog.Logger, host target.Host, confirmer prompt.Confirmer) *Impl {
	backups := backup.New(logger, host)
	return NewWithServices(logger, host, confirmer, Services{
		Apk:       apk.New(logger, host),
		Network:   network.New(logger, host, backups),
		Sysctl:    sysctl.New(logger, host, backups),
		Dnsmasq:   dnsmasq.New(logger, host, backups),
		Firewall:  firewall.New(logger, host, backups),
		Chrony:    chrony.New(logger, host, backups),
		Fail2ban:  fail2ban.New(logger, host, backups),
		Logrotate: logrotate.New(logger, host, backups),
		OpenRC:    openrc.New(logger, host),
	})
}

// NewWithServices creates a runner with custom services (for testing).
func NewWithServices(logger zerolog.Logger, host target.Host, confirmer prompt.Confirmer, services Services) *Impl {
	return &Impl{
		host:      host,
		confirmer: confirmer,
		store:     state.New(logger, host),
		services:  services,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes the complete provisioning workflow.
//
//nolint:gocognit,gocyclo // the workflow is a fixed sequence of stages by design
func (s *Impl) Run(ctx context.Context, cfg models.Config) error {
	startTime := time.Now()

	s.logger.Info().
		Str("wan", cfg.Router.WANInterface).
		Str("lan", cfg.Router.LANInterface).
		Str("subnet", cfg.Router.LANSubnet).
		Msg("starting router setup")

	if err := s.preflight(ctx); err != nil {
		return &StageError{Stage: "preflight", Err: err}
	}

	proceed, err := s.rerunGuard(cfg.Paths.LastRun)
	if err != nil {
		return &StageError{Stage: "rerun-guard", Err: err}
	}
	if !proceed {
		s.logger.Info().Msg("rerun declined, leaving configuration untouched")
		return nil
	}

	if _, err := s.services.Apk.EnsurePackages(ctx); err != nil {
		return &StageError{Stage: "packages", Err: err}
	}

	// Interfaces first: dnsmasq binds the LAN address the restart brings up.
	if err := s.services.Network.Apply(ctx, cfg); err != nil {
		return &StageError{Stage: "network", Err: err}
	}
	if err := s.services.OpenRC.Restart(ctx, "networking"); err != nil {
		return &StageError{Stage: "network", Err: err}
	}

	if err := s.services.Sysctl.Apply(ctx, cfg); err != nil {
		return &StageError{Stage: "sysctl", Err: err}
	}

	if err := s.applyDaemon(ctx, cfg, "dnsmasq", s.services.Dnsmasq.Apply, "dnsmasq"); err != nil {
		return err
	}

	if _, err := s.services.Firewall.Apply(ctx, cfg); err != nil {
		return &StageError{Stage: "firewall", Err: err}
	}
	if err := s.services.OpenRC.Enable(ctx, "iptables-load"); err != nil {
		return &StageError{Stage: "firewall", Err: err}
	}

	if err := s.applyDaemon(ctx, cfg, "chrony", s.services.Chrony.Apply, "chronyd"); err != nil {
		return err
	}
	if err := s.applyDaemon(ctx, cfg, "fail2ban", s.services.Fail2ban.Apply, "fail2ban"); err != nil {
		return err
	}

	if err := s.services.Logrotate.Apply(ctx, cfg); err != nil {
		return &StageError{Stage: "logrotate", Err: err}
	}

	if err := s.store.Write(cfg.Paths.LastRun, s.now()); err != nil {
		return &StageError{Stage: "marker", Err: err}
	}

	s.logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("router setup completed successfully")

	return nil
}

// applyDaemon writes a subsystem's config, restarts its daemon and
// registers it in the default runlevel.
func (s *Impl) applyDaemon(
	ctx context.Context,
	cfg models.Config,
	stage string,
	apply func(context.Context, models.Config) error,
	daemon string,
) error {
	if err := apply(ctx, cfg); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if err := s.services.OpenRC.Restart(ctx, daemon); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if err := s.services.OpenRC.Enable(ctx, daemon); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// preflight checks that we are root on the target and (advisory) that
// the target runs Alpine.
func (s *Impl) preflight(ctx context.Context) error {
	out, err := s.host.Run(ctx, "id", "-u")
	if err != nil {
		return fmt.Errorf("checking effective UID: %w", err)
	}
	if uid := strings.TrimSpace(string(out)); uid != "0" {
		return fmt.Errorf("must run as root, got UID %s", uid)
	}

	osRelease, err := s.host.ReadFile("/etc/os-release")
	if err != nil || !strings.Contains(string(osRelease), "ID=alpine") {
		s.logger.Warn().Msg("target does not look like Alpine Linux, continuing anyway")
	}

	return nil
}

// rerunGuard prompts when a previous successful run left its marker.
// Returns false when the operator declines.
func (s *Impl) rerunGuard(markerPath string) (bool, error) {
	stamp, ok, err := s.store.Read(markerPath)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	s.logger.Info().Str("last_run", stamp).Msg("previous setup detected")
	question := fmt.Sprintf("This host was already configured on %s. Run setup again?", stamp)
	return s.confirmer.Confirm(question)
}
