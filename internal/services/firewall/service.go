// Package firewall applies the fixed NAT ruleset. This is not a rule
// compiler: the ruleset is an ordered list of iptables invocations and
// the order is load-bearing, since iptables evaluates chains top to
// bottom and the LOG rule must sit directly above its DROP.
package firewall

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/models"
	"github.com/hkropp/routersetup/internal/target"
	"github.com/rs/zerolog"
)

// LogDropChain collects WAN packets that matched no allow rule; they are
// logged with models.FirewallLogPrefix and then dropped.
const LogDropChain = "LOGDROP"

// Rule is a single iptables append in a table/chain.
type Rule struct {
	Table string // "filter" or "nat"
	Chain string
	Spec  []string
}

// Policy is a chain default policy.
type Policy struct {
	Chain  string
	Target string
}

// Policies returns the default-deny baseline.
func Policies() []Policy {
	return []Policy{
		{Chain: "INPUT", Target: "DROP"},
		{Chain: "FORWARD", Target: "DROP"},
		{Chain: "OUTPUT", Target: "ACCEPT"},
	}
}

// Chains returns the custom chains created before any rule is appended.
func Chains() []string {
	return []string{LogDropChain}
}

// RuleSet returns the complete ordered ruleset for cfg.
func RuleSet(cfg models.Config) []Rule {
	wan := cfg.Router.WANInterface
	lan := cfg.Router.LANInterface
	subnet := cfg.Router.LANSubnet
	sshPort := strconv.Itoa(cfg.SSH.Port)

	return []Rule{
		// Loopback and return traffic first.
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", "lo", "-j", "ACCEPT"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"}},

		// Services offered to the LAN: SSH, DNS, DHCP, ICMP echo, NTP.
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", lan, "-p", "tcp", "--dport", sshPort, "-j", "ACCEPT"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", lan, "-p", "udp", "--dport", "53", "-j", "ACCEPT"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", lan, "-p", "tcp", "--dport", "53", "-j", "ACCEPT"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", lan, "-p", "udp", "--dport", "67:68", "-j", "ACCEPT"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", lan, "-p", "icmp", "--icmp-type", "echo-request", "-j", "ACCEPT"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", lan, "-p", "udp", "--dport", "123", "-j", "ACCEPT"}},

		// Forwarding: LAN out to WAN, established replies back in.
		{Table: "filter", Chain: "FORWARD", Spec: []string{"-i", lan, "-o", wan, "-s", subnet, "-j", "ACCEPT"}},
		{Table: "filter", Chain: "FORWARD", Spec: []string{"-i", wan, "-o", lan, "-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"}},

		// Masquerade LAN sources leaving on the WAN port.
		{Table: "nat", Chain: "POSTROUTING", Spec: []string{"-s", subnet, "-o", wan, "-j", "MASQUERADE"}},

		// Log-then-drop pair for everything else arriving on the WAN.
		{Table: "filter", Chain: LogDropChain, Spec: []string{"-m", "limit", "--limit", "5/min", "-j", "LOG", "--log-prefix", models.FirewallLogPrefix, "--log-level", "4"}},
		{Table: "filter", Chain: LogDropChain, Spec: []string{"-j", "DROP"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", wan, "-j", LogDropChain}},
	}
}

// RenderInitScript returns the OpenRC service that restores the saved
// ruleset at boot and opens the firewall again on stop.
func RenderInitScript(cfg models.Config) string {
	return fmt.Sprintf(`#!/sbin/openrc-run

description="Load the saved NAT router iptables ruleset"

depend() {
	need localmount
	before net
}

start() {
	ebegin "Restoring iptables rules"
	iptables-restore < %s
	eend $?
}

stop() {
	ebegin "Flushing iptables rules"
	iptables -F
	iptables -X
	iptables -t nat -F
	iptables -t nat -X
	iptables -P INPUT ACCEPT
	iptables -P FORWARD ACCEPT
	iptables -P OUTPUT ACCEPT
	eend $?
}
`, cfg.Paths.FirewallRules)
}

// Service defines the interface for firewall configuration.
type Service interface {
	Apply(ctx context.Context, cfg models.Config) (*models.FirewallResult, error)
}

// Impl implements the firewall Service interface.
type Impl struct {
	host    target.Host
	backups backup.Service
	logger  zerolog.Logger
}

// New creates a new firewall service.
func New(logger zerolog.Logger, host target.Host, backups backup.Service) *Impl {
	return &Impl{host: host, backups: backups, logger: logger}
}

// Apply rebuilds the live ruleset from scratch and persists it:
// flush, default policies, custom chains, rules, iptables-save to the
// rules file, then the boot init script. Every command failure is fatal.
func (s *Impl) Apply(ctx context.Context, cfg models.Config) (*models.FirewallResult, error) {
	result := &models.FirewallResult{}

	s.logger.Info().Msg("rebuilding firewall ruleset")

	flush := [][]string{
		{"-F"},
		{"-X"},
		{"-t", "nat", "-F"},
		{"-t", "nat", "-X"},
	}
	for _, args := range flush {
		if err := s.iptables(ctx, args); err != nil {
			return nil, err
		}
	}

	for _, p := range Policies() {
		if err := s.iptables(ctx, []string{"-P", p.Chain, p.Target}); err != nil {
			return nil, err
		}
	}

	for _, chain := range Chains() {
		if err := s.iptables(ctx, []string{"-N", chain}); err != nil {
			return nil, err
		}
	}

	for _, rule := range RuleSet(cfg) {
		args := []string{}
		if rule.Table != "filter" {
			args = append(args, "-t", rule.Table)
		}
		args = append(args, "-A", rule.Chain)
		args = append(args, rule.Spec...)
		if err := s.iptables(ctx, args); err != nil {
			return nil, err
		}
		result.RulesApplied++
	}

	if err := s.persist(ctx, cfg); err != nil {
		return nil, err
	}
	result.SavedTo = cfg.Paths.FirewallRules

	if err := s.installInitScript(cfg); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("rules", result.RulesApplied).
		Str("saved_to", result.SavedTo).
		Msg("firewall applied and persisted")

	return result, nil
}

func (s *Impl) iptables(ctx context.Context, args []string) error {
	out, err := s.host.Run(ctx, "iptables", args...)
	if err != nil {
		return fmt.Errorf("iptables %v failed: %w, output: %s", args, err, string(out))
	}
	return nil
}

func (s *Impl) persist(ctx context.Context, cfg models.Config) error {
	out, err := s.host.Run(ctx, "iptables-save")
	if err != nil {
		return fmt.Errorf("iptables-save failed: %w, output: %s", err, string(out))
	}

	if _, err := s.backups.Backup(cfg.Paths.FirewallRules, cfg.Backup.MaxPerFile); err != nil {
		return err
	}

	if err := s.host.MkdirAll(filepath.Dir(cfg.Paths.FirewallRules), 0o755); err != nil {
		return fmt.Errorf("creating rules directory: %w", err)
	}
	if err := s.host.WriteFile(cfg.Paths.FirewallRules, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.FirewallRules, err)
	}
	return nil
}

func (s *Impl) installInitScript(cfg models.Config) error {
	if _, err := s.backups.Backup(cfg.Paths.FirewallInit, cfg.Backup.MaxPerFile); err != nil {
		return err
	}
	if err := s.host.WriteFile(cfg.Paths.FirewallInit, []byte(RenderInitScript(cfg)), 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Paths.FirewallInit, err)
	}
	return nil
}
