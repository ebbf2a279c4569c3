// Package config provides configuration file parsing.
package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hkropp/routersetup/internal/models"
	"github.com/spf13/viper"
)

// Parser handles configuration file parsing. Every key has a built-in
// default, so running without a config file provisions the stock
// 10.0.0.0/24 router.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return &Parser{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("router.wan_interface", "eth0")
	v.SetDefault("router.lan_interface", "eth1")
	v.SetDefault("router.lan_address", "10.0.0.1")
	v.SetDefault("router.lan_subnet", "10.0.0.0/24")

	v.SetDefault("dhcp.range_start", "10.0.0.10")
	v.SetDefault("dhcp.range_end", "10.0.0.100")
	v.SetDefault("dhcp.lease_time", 12*time.Hour)

	v.SetDefault("dns.upstreams", []string{"1.1.1.1", "8.8.8.8"})
	v.SetDefault("ntp.pools", []string{"pool.ntp.org"})
	v.SetDefault("ssh.port", 22)
	v.SetDefault("backup.max_per_file", 5)

	v.SetDefault("paths.interfaces", "/etc/network/interfaces")
	v.SetDefault("paths.dnsmasq", "/etc/dnsmasq.conf")
	v.SetDefault("paths.sysctl", "/etc/sysctl.conf")
	v.SetDefault("paths.firewall_rules", "/etc/iptables/rules")
	v.SetDefault("paths.firewall_init", "/etc/init.d/iptables-load")
	v.SetDefault("paths.chrony", "/etc/chrony/chrony.conf")
	v.SetDefault("paths.fail2ban_jail", "/etc/fail2ban/jail.local")
	v.SetDefault("paths.fail2ban_filter", "/etc/fail2ban/filter.d/wan-access.conf")
	v.SetDefault("paths.logrotate", "/etc/logrotate.d/iptables")
	v.SetDefault("paths.last_run", "/etc/router-setup/last-run")
}

// Default returns the built-in configuration.
func Default() *models.Config {
	cfg, err := NewParser().parse()
	if err != nil {
		// Defaults are constants; failing to parse them is a bug.
		panic(err)
	}
	return cfg
}

// LoadFile loads configuration from a file path. An empty path yields
// the defaults.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	if path == "" {
		return p.parse()
	}

	p.v.SetConfigFile(path)
	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(bytes.NewReader([]byte(content))); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	cfg.Router = models.RouterSettings{
		WANInterface: p.v.GetString("router.wan_interface"),
		LANInterface: p.v.GetString("router.lan_interface"),
		LANAddress:   p.v.GetString("router.lan_address"),
		LANSubnet:    p.v.GetString("router.lan_subnet"),
	}

	cfg.DHCP = models.DHCPSettings{
		RangeStart: p.v.GetString("dhcp.range_start"),
		RangeEnd:   p.v.GetString("dhcp.range_end"),
		LeaseTime:  p.v.GetDuration("dhcp.lease_time"),
	}

	cfg.DNS = models.DNSSettings{Upstreams: p.v.GetStringSlice("dns.upstreams")}
	cfg.NTP = models.NTPSettings{Pools: p.v.GetStringSlice("ntp.pools")}
	cfg.SSH = models.SSHSettings{Port: p.v.GetInt("ssh.port")}
	cfg.Backup = models.BackupSettings{MaxPerFile: p.v.GetInt("backup.max_per_file")}

	cfg.Paths = models.Paths{
		Interfaces:     p.v.GetString("paths.interfaces"),
		Dnsmasq:        p.v.GetString("paths.dnsmasq"),
		Sysctl:         p.v.GetString("paths.sysctl"),
		FirewallRules:  p.v.GetString("paths.firewall_rules"),
		FirewallInit:   p.v.GetString("paths.firewall_init"),
		Chrony:         p.v.GetString("paths.chrony"),
		Fail2banJail:   p.v.GetString("paths.fail2ban_jail"),
		Fail2banFilter: p.v.GetString("paths.fail2ban_filter"),
		Logrotate:      p.v.GetString("paths.logrotate"),
		LastRun:        p.v.GetString("paths.last_run"),
	}

	// Optional remote target.
	if p.v.IsSet("remote") {
		cfg.Remote = &models.RemoteSettings{
			Host:     p.v.GetString("remote.host"),
			Port:     p.v.GetInt("remote.port"),
			Username: p.v.GetString("remote.username"),
			KeyPath:  p.expandEnv(p.v.GetString("remote.key_path")),
		}

		if cfg.Remote.Host == "" {
			return nil, fmt.Errorf("remote.host is required when remote is configured")
		}
		if cfg.Remote.Port == 0 {
			cfg.Remote.Port = 22
		}
		if cfg.Remote.Username == "" {
			cfg.Remote.Username = "root"
		}
		if cfg.Remote.KeyPath == "" {
			return nil, fmt.Errorf("remote.key_path is required when remote is configured")
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Router.WANInterface == "" || cfg.Router.LANInterface == "" {
		return fmt.Errorf("router.wan_interface and router.lan_interface are required")
	}
	if cfg.Router.WANInterface == cfg.Router.LANInterface {
		return fmt.Errorf("router.wan_interface and router.lan_interface must differ")
	}

	_, subnet, err := net.ParseCIDR(cfg.Router.LANSubnet)
	if err != nil {
		return fmt.Errorf("router.lan_subnet is not a valid CIDR: %w", err)
	}

	lanIP := net.ParseIP(cfg.Router.LANAddress)
	if lanIP == nil {
		return fmt.Errorf("router.lan_address is not a valid IP: %s", cfg.Router.LANAddress)
	}
	if !subnet.Contains(lanIP) {
		return fmt.Errorf("router.lan_address %s is outside %s", cfg.Router.LANAddress, cfg.Router.LANSubnet)
	}

	start := net.ParseIP(cfg.DHCP.RangeStart)
	end := net.ParseIP(cfg.DHCP.RangeEnd)
	if start == nil || end == nil {
		return fmt.Errorf("dhcp.range_start and dhcp.range_end must be valid IPs")
	}
	if !subnet.Contains(start) || !subnet.Contains(end) {
		return fmt.Errorf("DHCP range must lie inside %s", cfg.Router.LANSubnet)
	}
	if bytes.Compare(start.To4(), end.To4()) > 0 {
		return fmt.Errorf("dhcp.range_start must not be above dhcp.range_end")
	}
	if cfg.DHCP.LeaseTime <= 0 {
		return fmt.Errorf("dhcp.lease_time must be positive")
	}

	if len(cfg.DNS.Upstreams) == 0 {
		return fmt.Errorf("dns.upstreams must not be empty")
	}
	for _, u := range cfg.DNS.Upstreams {
		if net.ParseIP(u) == nil {
			return fmt.Errorf("dns.upstreams entry is not a valid IP: %s", u)
		}
	}

	if len(cfg.NTP.Pools) == 0 {
		return fmt.Errorf("ntp.pools must not be empty")
	}
	for _, pool := range cfg.NTP.Pools {
		if strings.TrimSpace(pool) == "" {
			return fmt.Errorf("ntp.pools entries must not be blank")
		}
	}

	if cfg.SSH.Port < 1 || cfg.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535")
	}

	if cfg.Backup.MaxPerFile < 1 {
		return fmt.Errorf("backup.max_per_file must be at least 1")
	}

	return nil
}
