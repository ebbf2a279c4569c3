package models

import "time"

// BackupResult holds the result of backing up a single config file.
type BackupResult struct {
	BackupPath string   // empty when the original did not exist
	Evicted    []string // old backups removed by retention
}

// PackagesResult holds the result of the dependency installation stage.
type PackagesResult struct {
	Installed      []string
	AlreadyPresent []string
	Duration       time.Duration
}

// FirewallResult holds the result of applying the firewall ruleset.
type FirewallResult struct {
	RulesApplied int
	SavedTo      string
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent bool
	Error      error
}
