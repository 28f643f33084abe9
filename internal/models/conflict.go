package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies why two versions of the same entity disagree.
type ConflictType string

const (
	ConflictTypeVersion ConflictType = "version_conflict"
	ConflictTypeData    ConflictType = "data_conflict"
	ConflictTypeDevice  ConflictType = "device_conflict"
)

// Resolution names which copy became canonical.
type Resolution string

const (
	ResolutionUseLocal  Resolution = "use_local"
	ResolutionUseRemote Resolution = "use_remote"
	ResolutionManual    Resolution = "manual"
)

// ConflictRecord is a detected, possibly unresolved conflict. Resolved
// records are retained for audit until explicit cleanup, not deleted.
type ConflictRecord struct {
	ID            string       `json:"id"`
	TargetID      string       `json:"target_id"`
	EntityType    string       `json:"entity_type"`
	EntityID      string       `json:"entity_id"`
	ConflictType  ConflictType `json:"conflict_type"`
	LocalVersion  int64        `json:"local_version"`
	RemoteVersion int64        `json:"remote_version"`
	DetectedAt    time.Time    `json:"detected_at"`
	ResolvedAt    *time.Time   `json:"resolved_at,omitempty"`
	Resolution    Resolution   `json:"resolution,omitempty"`
	// Note carries the human description for manual resolutions.
	Note string `json:"note,omitempty"`
}

// NewConflictRecord opens an unresolved conflict for an entity on a target.
func NewConflictRecord(targetID, entityType, entityID string, ct ConflictType, localVersion, remoteVersion int64) *ConflictRecord {
	return &ConflictRecord{
		ID:            uuid.NewString(),
		TargetID:      targetID,
		EntityType:    entityType,
		EntityID:      entityID,
		ConflictType:  ct,
		LocalVersion:  localVersion,
		RemoteVersion: remoteVersion,
		DetectedAt:    time.Now().UTC(),
	}
}

// Resolve stamps the record with the applied resolution.
func (c *ConflictRecord) Resolve(r Resolution, note string) {
	now := time.Now().UTC()
	c.ResolvedAt = &now
	c.Resolution = r
	c.Note = note
}

// Resolved reports whether a resolution has been applied.
func (c *ConflictRecord) Resolved() bool {
	return c.ResolvedAt != nil
}
