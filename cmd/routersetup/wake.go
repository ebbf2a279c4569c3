package main

import (
	"context"
	"fmt"
	"net"

	"github.com/hkropp/routersetup/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var wakeBroadcast string

var wakeCmd = &cobra.Command{
	Use:   "wake <mac-address>",
	Short: "Wake a LAN host with a Wake-on-LAN magic packet",
	Long: `Send a Wake-on-LAN magic packet to a machine on the LAN.
The broadcast address defaults to the configured LAN subnet's broadcast.`,
	Args: cobra.ExactArgs(1),
	RunE: runWake,
}

func init() {
	wakeCmd.Flags().StringVar(&wakeBroadcast, "broadcast", "", "broadcast IP (default: LAN subnet broadcast)")
}

func runWake(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	broadcast := wakeBroadcast
	if broadcast == "" {
		broadcast, err = subnetBroadcast(cfg.Router.LANSubnet)
		if err != nil {
			return err
		}
	}

	wolSvc := wol.New(log.Logger)
	result, err := wolSvc.Wake(context.Background(), args[0], broadcast)
	if err != nil {
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("wake failed")
		return result.Error
	}

	log.Info().Str("mac", args[0]).Str("broadcast", broadcast).Msg("magic packet sent")
	return nil
}

// subnetBroadcast computes the highest address of an IPv4 subnet.
func subnetBroadcast(cidr string) (string, error) {
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid LAN subnet %q: %w", cidr, err)
	}

	ip := subnet.IP.To4()
	if ip == nil {
		return "", fmt.Errorf("LAN subnet %q is not IPv4", cidr)
	}

	broadcast := make(net.IP, len(ip))
	for i := range ip {
		broadcast[i] = ip[i] | ^subnet.Mask[i]
	}
	return broadcast.String(), nil
}
