// Package models contains the data structures used throughout routersetup.
package models

import "time"

// Config holds the complete configuration for a provisioning run.
type Config struct {
	Router RouterSettings
	DHCP   DHCPSettings
	DNS    DNSSettings
	NTP    NTPSettings
	SSH    SSHSettings
	Backup BackupSettings
	Paths  Paths
	Remote *RemoteSettings // nil when provisioning the local host
}

// RouterSettings describes the two router interfaces and the LAN addressing.
type RouterSettings struct {
	WANInterface string
	LANInterface string
	LANAddress   string // router address on the LAN, e.g. 10.0.0.1
	LANSubnet    string // LAN network in CIDR form, e.g. 10.0.0.0/24
}

// DHCPSettings describes the dnsmasq DHCP pool.
type DHCPSettings struct {
	RangeStart string
	RangeEnd   string
	LeaseTime  time.Duration
}

// DNSSettings lists the upstream resolvers dnsmasq forwards to.
type DNSSettings struct {
	Upstreams []string
}

// NTPSettings lists the chrony upstream pools.
type NTPSettings struct {
	Pools []string
}

// SSHSettings holds the SSH port opened towards the LAN.
type SSHSettings struct {
	Port int
}

// BackupSettings bounds the per-file backup retention.
type BackupSettings struct {
	MaxPerFile int
}

// RemoteSettings selects a remote target host reached over SSH.
type RemoteSettings struct {
	Host       string
	Port       int
	Username   string
	KeyPath    string
	PrivateKey []byte // loaded from KeyPath before dialing
}

// Paths lists every file the tool writes. All of them are overridable so
// tests can root a whole run in a temporary directory.
type Paths struct {
	Interfaces     string
	Dnsmasq        string
	Sysctl         string
	FirewallRules  string
	FirewallInit   string
	Chrony         string
	Fail2banJail   string
	Fail2banFilter string
	Logrotate      string
	LastRun        string
}

// FirewallLogPrefix is the LOG target prefix on dropped WAN packets. The
// fail2ban wan-access filter matches on it, so the two must stay in sync.
const FirewallLogPrefix = "wan-drop: "
