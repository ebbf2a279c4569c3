package main

import (
	"fmt"
	"os"

	"github.com/hkropp/routersetup/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and print a summary without touching the system.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	if configFile == "" {
		fmt.Println("No config file given, built-in defaults are valid!")
	} else {
		fmt.Println("Configuration is valid!")
	}
	fmt.Println()
	fmt.Println("Router:")
	fmt.Printf("  WAN interface: %s (DHCP)\n", cfg.Router.WANInterface)
	fmt.Printf("  LAN interface: %s\n", cfg.Router.LANInterface)
	fmt.Printf("  LAN address: %s\n", cfg.Router.LANAddress)
	fmt.Printf("  LAN subnet: %s\n", cfg.Router.LANSubnet)
	fmt.Println()
	fmt.Println("DHCP:")
	fmt.Printf("  Range: %s - %s\n", cfg.DHCP.RangeStart, cfg.DHCP.RangeEnd)
	fmt.Printf("  Lease time: %s\n", cfg.DHCP.LeaseTime)
	fmt.Println()
	fmt.Println("DNS upstreams:")
	for _, upstream := range cfg.DNS.Upstreams {
		fmt.Printf("  %s\n", upstream)
	}
	fmt.Println()
	fmt.Println("NTP pools:")
	for _, pool := range cfg.NTP.Pools {
		fmt.Printf("  %s\n", pool)
	}
	fmt.Println()
	fmt.Printf("SSH port: %d\n", cfg.SSH.Port)
	fmt.Printf("Backups kept per file: %d\n", cfg.Backup.MaxPerFile)
	fmt.Printf("Remote target: %v\n", cfg.Remote != nil)

	if cfg.Remote != nil {
		fmt.Println()
		fmt.Println("Remote:")
		fmt.Printf("  Host: %s\n", cfg.Remote.Host)
		fmt.Printf("  Port: %d\n", cfg.Remote.Port)
		fmt.Printf("  Username: %s\n", cfg.Remote.Username)
		fmt.Printf("  Key: %s\n", cfg.Remote.KeyPath)
	}

	return nil
}
