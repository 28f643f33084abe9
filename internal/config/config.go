// Package config handles configuration for the sync daemon, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the vaultsync daemon.
//
// Fields:
//   - DatabaseDSN: SQLite DSN of the local encrypted store.
//   - AppName: credential-store namespace for escrowed keys.
//   - DeviceName: human-readable name registered for this device.
//   - TickInterval: scheduler tick cadence.
//   - SyncConcurrency: maximum sync passes running at once.
//   - ConflictRetentionDays: age after which resolved conflicts are purged.
//
// Units: TickInterval is a time.Duration (e.g., 60*time.Second).
type Config struct {
	DatabaseDSN           string
	AppName               string
	DeviceName            string
	TickInterval          time.Duration
	SyncConcurrency       int
	ConflictRetentionDays int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "file:vaultsync.db"
	c.AppName = "vaultsync"
	c.DeviceName = ""
	c.TickInterval = 60 * time.Second
	c.SyncConcurrency = 1
	c.ConflictRetentionDays = 30
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
