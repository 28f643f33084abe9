package models

import (
	"encoding/json"
	"time"
)

// SyncRecord is the opaque shape pushed to and pulled from sync targets, and
// the canonical local copy of every syncable entity. Payload is an encrypted
// JSON document the sync core never interprets; the surrounding metadata is
// what conflict detection runs on.
//
// Deleted is a tombstone: deletions propagate through sync as upserts of a
// tombstoned record rather than disappearing from the wire.
type SyncRecord struct {
	ID        string          `json:"id"`
	Table     string          `json:"table"`
	DeviceID  string          `json:"device_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int64           `json:"version"`
	Deleted   bool            `json:"deleted"`
	Payload   json.RawMessage `json:"payload"`
}

// Base projects the record's sync metadata into a BaseModel for conflict
// detection.
func (r *SyncRecord) Base() BaseModel {
	return BaseModel{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		DeviceID:  r.DeviceID,
		Version:   r.Version,
	}
}
