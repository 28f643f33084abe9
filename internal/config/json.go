package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals are
// given in whole seconds; after parsing, values are copied into the runtime
// Config (which uses time.Duration).
type JsonConfig struct {
	DatabaseDSN           string `json:"database_dsn"`
	AppName               string `json:"app_name"`
	DeviceName            string `json:"device_name"`
	TickIntervalSeconds   int    `json:"tick_interval_seconds"`
	SyncConcurrency       int    `json:"sync_concurrency"`
	ConflictRetentionDays int    `json:"conflict_retention_days"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Fields absent from the JSON keep their current values. Panics on read or
// unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.AppName != "" {
		cfg.AppName = jc.AppName
	}
	if jc.DeviceName != "" {
		cfg.DeviceName = jc.DeviceName
	}
	if jc.TickIntervalSeconds > 0 {
		cfg.TickInterval = time.Duration(jc.TickIntervalSeconds) * time.Second
	}
	if jc.SyncConcurrency > 0 {
		cfg.SyncConcurrency = jc.SyncConcurrency
	}
	if jc.ConflictRetentionDays > 0 {
		cfg.ConflictRetentionDays = jc.ConflictRetentionDays
	}
}
