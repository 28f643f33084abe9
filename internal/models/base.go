// Package models defines the versioned entity model shared by every syncable
// record, plus the configuration and audit entities the sync core persists.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncStatus describes where a record stands relative to its sync targets.
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// BaseModel carries the common sync metadata embedded by every syncable
// entity. Version starts at 1 and only ever increases; every mutation goes
// through Touch so a logical edit increments the version exactly once.
type BaseModel struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeviceID   string     `json:"device_id"`
	Version    int64      `json:"version"`
	SyncStatus SyncStatus `json:"sync_status"`
}

// NewBase returns fresh sync metadata for a record created on the given
// device: a new UUID, version 1, pending status, timestamps set to now (UTC).
func NewBase(deviceID string) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
		DeviceID:   deviceID,
		Version:    1,
		SyncStatus: SyncStatusPending,
	}
}

// Touch records one logical edit: it advances UpdatedAt, increments Version
// by exactly one and flags the record pending. Callers must route every
// mutation through a single entry point so Touch runs once per edit.
func (b *BaseModel) Touch() {
	b.UpdatedAt = time.Now().UTC()
	b.Version++
	b.SyncStatus = SyncStatusPending
}

// Checksum returns a sha256 hex digest of v's JSON serialization, used as a
// cheap equality probe before full field comparison. The hash covers the
// whole structure including sync metadata, so two records with identical
// business data but different versions are never checksum-identical.
func Checksum(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
