package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   SQLite DSN of the local store (default from Config)
//	-n string   device name registered for this device
//	-t int      scheduler tick interval in seconds
//	-w int      maximum concurrent sync passes
//	-r int      resolved-conflict retention in days
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-n", "-t", "-w", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite DSN of the local store")
	fs.StringVar(&cfg.DeviceName, "n", cfg.DeviceName, "device name")
	tickInterval := fs.Int("t", int(cfg.TickInterval.Seconds()), "scheduler tick interval (in seconds)")
	fs.IntVar(&cfg.SyncConcurrency, "w", cfg.SyncConcurrency, "maximum concurrent sync passes")
	fs.IntVar(&cfg.ConflictRetentionDays, "r", cfg.ConflictRetentionDays, "resolved-conflict retention (in days)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.TickInterval = time.Duration(*tickInterval) * time.Second
}
