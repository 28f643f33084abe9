// Package synctarget defines the uniform contract every sync backend
// implements, covering the local store and each external database family,
// and the factory that selects an implementation by database type.
package synctarget

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// Target is the push/pull/version contract of one sync backend. All writes
// are upserts keyed by record id: insert if absent, full replace if present,
// never a partial patch.
type Target interface {
	// Connect establishes the backend connection.
	Connect(ctx context.Context) error

	// TestConnection verifies the backend is reachable without mutating it.
	TestConnection(ctx context.Context) error

	// Close releases the connection. Safe to call after a failed Connect.
	Close(ctx context.Context) error

	// PushRecords upserts the records into the named table and returns how
	// many were applied.
	PushRecords(ctx context.Context, table string, records []*models.SyncRecord) (int, error)

	// PullRecords returns records changed after since, ordered by updated_at
	// ascending. A nil since means all records.
	PullRecords(ctx context.Context, table string, since *time.Time) ([]*models.SyncRecord, error)

	// GetRecordVersions maps id -> version for the requested ids, used for
	// cheap conflict pre-checks without transferring payloads.
	GetRecordVersions(ctx context.Context, table string, ids []string) (map[string]int64, error)
}

// validTable guards table names interpolated into DDL/DML. Table names come
// from the local record store, not from user input, but a broken name must
// fail loudly rather than produce malformed SQL.
func validTable(table string) error {
	if table == "" {
		return fmt.Errorf("%w: empty table name", common.ErrValidation)
	}
	for _, r := range table {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("%w: invalid table name %q", common.ErrValidation, table)
		}
	}
	return nil
}

// New returns the Target implementation for the given database type. An
// unknown or not-yet-implemented family yields common.ErrUnsupportedProvider
// so the engine surfaces "not supported" instead of "synced 0 records".
func New(dbType models.DatabaseType, details *models.ConnectionDetails) (Target, error) {
	switch dbType {
	case models.DatabaseTypePostgreSQL:
		return NewPostgresTarget(details), nil
	case models.DatabaseTypeMySQL:
		return NewMySQLTarget(details), nil
	case models.DatabaseTypeMongoDB:
		return NewMongoTarget(details), nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedProvider, dbType)
	}
}
