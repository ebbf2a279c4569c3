package dnsmasq

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/config"
	"github.com/hkropp/routersetup/internal/target/targettest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	cfg := *config.Default()
	body := Render(cfg)

	assert.Contains(t, body, "interface=eth1")
	assert.Contains(t, body, "bind-interfaces")
	assert.Contains(t, body, "server=1.1.1.1")
	assert.Contains(t, body, "server=8.8.8.8")
	assert.Contains(t, body, "dhcp-range=10.0.0.10,10.0.0.100,12h")
	assert.Contains(t, body, "dhcp-option=option:router,10.0.0.1")
	assert.Contains(t, body, "dhcp-option=option:ntp-server,10.0.0.1")
	assert.Contains(t, body, "no-resolv")
	assert.Contains(t, body, "stop-dns-rebind")
	assert.Contains(t, body, "dhcp-authoritative")
	assert.Contains(t, body, "log-dhcp")
}

func TestRender_Deterministic(t *testing.T) {
	cfg := *config.Default()
	assert.Equal(t, Render(cfg), Render(cfg))
}

func TestRender_SubHourLease(t *testing.T) {
	cfg := *config.Default()
	cfg.DHCP.LeaseTime = 90 * time.Minute

	assert.Contains(t, Render(cfg), "dhcp-range=10.0.0.10,10.0.0.100,90m")
}

func TestApply_OverwritesFile(t *testing.T) {
	logger := zerolog.New(io.Discard)
	host := targettest.New()
	require.NoError(t, host.WriteFile("/etc/dnsmasq.conf", []byte("stale"), 0o644))

	cfg := *config.Default()
	svc := New(logger, host, backup.New(logger, host))
	require.NoError(t, svc.Apply(context.Background(), cfg))

	data, err := host.ReadFile("/etc/dnsmasq.conf")
	require.NoError(t, err)
	assert.Equal(t, Render(cfg), string(data))

	backups, err := host.Glob("/etc/dnsmasq.conf.bak-*")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
