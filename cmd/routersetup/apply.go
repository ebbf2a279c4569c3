package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hkropp/routersetup/internal/config"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/prompt"
	"github.com/hkropp/routersetup/internal/services/runner"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var assumeYes bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Provision the host as a NAT router",
	Long: `Provision the host as a NAT router:
1. Check root privileges and previous runs (rerun prompt)
2. Install required packages via apk
3. Write the network interfaces file and restart networking
4. Enable IP forwarding and kernel hardening via sysctl
5. Configure dnsmasq (DHCP + DNS for the LAN)
6. Build, apply and persist the default-deny iptables NAT ruleset
7. Configure chrony (NTP) and fail2ban
8. Install log rotation and write the last-run marker

With a remote section in the config file, the same workflow runs against
a remote host over SSH instead of the local machine.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the rerun confirmation prompt")
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Str("wan", cfg.Router.WANInterface).
		Str("lan", cfg.Router.LANInterface).
		Str("subnet", cfg.Router.LANSubnet).
		Bool("remote", cfg.Remote != nil).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	host, closeHost, err := buildHost(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to reach target host")
		return err
	}
	defer closeHost()

	var confirmer prompt.Confirmer = prompt.NewStdin()
	if assumeYes {
		confirmer = prompt.Auto{}
	}

	runnerSvc := runner.New(log.Logger, host, confirmer)
	if err := runnerSvc.Run(ctx, *cfg); err != nil {
		log.Error().Err(err).Msg("router setup failed")
		return err
	}

	log.Info().Msg("router setup finished")
	return nil
}

func loadConfig() (*models.Config, error) {
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}
	return cfg, nil
}

// buildHost returns the target host and a cleanup func. Local unless a
// remote section is configured.
func buildHost(cfg *models.Config) (target.Host, func(), error) {
	if cfg.Remote == nil {
		return target.NewLocal(), func() {}, nil
	}

	if cfg.Remote.PrivateKey == nil && cfg.Remote.KeyPath != "" {
		key, err := os.ReadFile(cfg.Remote.KeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		cfg.Remote.PrivateKey = key
	}

	remote, err := target.Dial(*cfg.Remote, log.Logger)
	if err != nil {
		return nil, nil, err
	}
	return remote, func() { _ = remote.Close() }, nil
}
