package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncLogStatus is the lifecycle state of one sync pass.
type SyncLogStatus string

const (
	SyncLogInProgress SyncLogStatus = "in_progress"
	SyncLogCompleted  SyncLogStatus = "completed"
	SyncLogFailed     SyncLogStatus = "failed"
	SyncLogCancelled  SyncLogStatus = "cancelled"
)

// SyncLog is the audit record of one sync pass against one target. A missing
// CompletedAt means the pass crashed or is still running; the scheduler
// treats such a target as due immediately.
type SyncLog struct {
	ID                string        `json:"id"`
	TargetID          string        `json:"target_id"`
	Direction         SyncDirection `json:"direction"`
	Status            SyncLogStatus `json:"status"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	RecordsSynced     int           `json:"records_synced"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	ErrorMessage      string        `json:"error_message,omitempty"`
}

// NewSyncLog opens an in-progress log for a pass that just started.
func NewSyncLog(targetID string, direction SyncDirection) *SyncLog {
	return &SyncLog{
		ID:        uuid.NewString(),
		TargetID:  targetID,
		Direction: direction,
		Status:    SyncLogInProgress,
		StartedAt: time.Now().UTC(),
	}
}

// Complete closes the log as successful.
func (l *SyncLog) Complete(recordsSynced, conflictsResolved int) {
	now := time.Now().UTC()
	l.Status = SyncLogCompleted
	l.CompletedAt = &now
	l.RecordsSynced = recordsSynced
	l.ConflictsResolved = conflictsResolved
}

// Fail closes the log as failed, keeping whatever counts were accumulated
// before the failure. The error message must never contain key material or
// plaintext passwords; callers pass err.Error() of wrapped sentinel errors.
func (l *SyncLog) Fail(recordsSynced, conflictsResolved int, errMsg string) {
	now := time.Now().UTC()
	l.Status = SyncLogFailed
	l.CompletedAt = &now
	l.RecordsSynced = recordsSynced
	l.ConflictsResolved = conflictsResolved
	l.ErrorMessage = errMsg
}
