package main

import (
	"fmt"

	"github.com/hkropp/routersetup/internal/services/chrony"
	"github.com/hkropp/routersetup/internal/services/dnsmasq"
	"github.com/hkropp/routersetup/internal/services/fail2ban"
	"github.com/hkropp/routersetup/internal/services/firewall"
	"github.com/hkropp/routersetup/internal/services/logrotate"
	"github.com/hkropp/routersetup/internal/services/network"
	"github.com/hkropp/routersetup/internal/services/sysctl"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print every generated config file",
	Long:  `Print the config files an apply run would write, without touching the system.`,
	RunE:  renderConfigs,
}

func renderConfigs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files := []struct {
		path string
		body string
	}{
		{cfg.Paths.Interfaces, network.Render(*cfg)},
		{cfg.Paths.Sysctl, sysctl.Render(*cfg)},
		{cfg.Paths.Dnsmasq, dnsmasq.Render(*cfg)},
		{cfg.Paths.FirewallInit, firewall.RenderInitScript(*cfg)},
		{cfg.Paths.Chrony, chrony.Render(*cfg)},
		{cfg.Paths.Fail2banJail, fail2ban.RenderJail(*cfg)},
		{cfg.Paths.Fail2banFilter, fail2ban.RenderFilter(*cfg)},
		{cfg.Paths.Logrotate, logrotate.Render(*cfg)},
	}

	for _, file := range files {
		fmt.Printf("# ==== %s ====\n%s\n", file.path, file.body)
	}

	fmt.Printf("# ==== %s ====\n", cfg.Paths.FirewallRules)
	fmt.Println("# written from live iptables-save output; ordered ruleset:")
	for _, rule := range firewall.RuleSet(*cfg) {
		table := ""
		if rule.Table != "filter" {
			table = fmt.Sprintf("-t %s ", rule.Table)
		}
		fmt.Printf("# iptables %s-A %s %v\n", table, rule.Chain, rule.Spec)
	}

	return nil
}
