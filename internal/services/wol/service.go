// Package wol wakes LAN hosts behind the router with a magic packet.
package wol

import (
	"context"
	"fmt"
	"net"

	"github.com/hkropp/routersetup/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, macAddress, broadcastIP string) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	if err := client.Wake(ip.String()+":9", mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	client Client
	logger zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		client: &DefaultClient{},
		logger: logger,
	}
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, client Client) *Impl {
	return &Impl{
		client: client,
		logger: logger,
	}
}

// Wake sends a magic packet towards the LAN broadcast address.
func (s *Impl) Wake(_ context.Context, macAddress, broadcastIP string) (*models.WOLResult, error) {
	result := &models.WOLResult{}

	mac, err := net.ParseMAC(macAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", macAddress, err)
		return result, nil
	}

	s.logger.Info().
		Str("mac", macAddress).
		Str("broadcast", broadcastIP).
		Msg("sending WOL packet")

	if err := s.client.Wake(broadcastIP, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.PacketSent = true
	s.logger.Info().Msg("WOL packet sent successfully")
	return result, nil
}
