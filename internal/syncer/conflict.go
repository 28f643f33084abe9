// Package syncer orchestrates sync passes against external targets: conflict
// detection and resolution, the bounded-concurrency queue, the pass engine
// and the periodic scheduler.
package syncer

import (
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// DetectConflict classifies a disagreement between the local and remote copy
// of one entity. It returns false when the two copies represent identical
// logical state (same version and either same device or same timestamp).
func DetectConflict(local, remote models.BaseModel) (models.ConflictType, bool) {
	if local.Version != remote.Version {
		return models.ConflictTypeVersion, true
	}
	if local.DeviceID != remote.DeviceID && !local.UpdatedAt.Equal(remote.UpdatedAt) {
		return models.ConflictTypeData, true
	}
	return "", false
}

// Resolve picks the canonical side for a detected conflict. ManualResolve
// always yields ResolutionManual; the caller records a ConflictRecord and
// leaves both copies untouched until a human decides.
//
// LastWriteWins keeps the local copy only when it is strictly newer, so a
// timestamp tie resolves to the remote side. The losing copy is never
// deleted outright; the resolution only marks which copy the next push or
// pull treats as canonical.
func Resolve(strategy models.ConflictStrategy, local, remote models.BaseModel) (models.Resolution, error) {
	switch strategy {
	case models.StrategyLastWriteWins:
		if local.UpdatedAt.After(remote.UpdatedAt) {
			return models.ResolutionUseLocal, nil
		}
		return models.ResolutionUseRemote, nil
	case models.StrategyFirstWriteWins:
		if local.CreatedAt.Before(remote.CreatedAt) {
			return models.ResolutionUseLocal, nil
		}
		return models.ResolutionUseRemote, nil
	case models.StrategyManualResolve:
		return models.ResolutionManual, nil
	default:
		return "", fmt.Errorf("%w: unknown conflict strategy %q", common.ErrConfig, strategy)
	}
}
