package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
)

// ConflictStrategy selects how concurrent edits are resolved.
type ConflictStrategy string

const (
	StrategyLastWriteWins  ConflictStrategy = "last_write_wins"
	StrategyFirstWriteWins ConflictStrategy = "first_write_wins"
	StrategyManualResolve  ConflictStrategy = "manual_resolve"
)

// SyncDirection constrains which way records flow during a pass.
type SyncDirection string

const (
	DirectionBidirectional SyncDirection = "bidirectional"
	DirectionPushOnly      SyncDirection = "push_only"
	DirectionPullOnly      SyncDirection = "pull_only"
)

// SyncSettings is the sync policy for one target (or the global default when
// TargetID is empty). Interval changes take effect on the next scheduler
// tick, not retroactively.
type SyncSettings struct {
	TargetID            string           `json:"target_id"`
	AutoSyncEnabled     bool             `json:"auto_sync_enabled"`
	SyncIntervalMinutes int              `json:"sync_interval_minutes"`
	ConflictStrategy    ConflictStrategy `json:"conflict_strategy"`
	SyncDirection       SyncDirection    `json:"sync_direction"`
	LastSyncAt          *time.Time       `json:"last_sync_at,omitempty"`
}

// DefaultSyncSettings returns the global defaults applied when a target has
// no settings row of its own.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		AutoSyncEnabled:     true,
		SyncIntervalMinutes: 15,
		ConflictStrategy:    StrategyLastWriteWins,
		SyncDirection:       DirectionBidirectional,
	}
}

// Validate rejects settings the scheduler cannot honor.
func (s *SyncSettings) Validate() error {
	if s.SyncIntervalMinutes < 1 {
		return fmt.Errorf("%w: sync interval must be at least 1 minute, got %d",
			common.ErrValidation, s.SyncIntervalMinutes)
	}
	switch s.ConflictStrategy {
	case StrategyLastWriteWins, StrategyFirstWriteWins, StrategyManualResolve:
	default:
		return fmt.Errorf("%w: unknown conflict strategy %q", common.ErrValidation, s.ConflictStrategy)
	}
	switch s.SyncDirection {
	case DirectionBidirectional, DirectionPushOnly, DirectionPullOnly:
	default:
		return fmt.Errorf("%w: unknown sync direction %q", common.ErrValidation, s.SyncDirection)
	}
	return nil
}

// Interval returns the configured interval as a duration.
func (s *SyncSettings) Interval() time.Duration {
	return time.Duration(s.SyncIntervalMinutes) * time.Minute
}
