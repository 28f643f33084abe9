// Package records persists the canonical local copy of every syncable
// entity as an opaque payload plus sync metadata. It backs both the local
// application surface and the local side of the sync target contract.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// Repository describes record storage for all syncable tables.
type Repository interface {
	// Upsert inserts or fully replaces a record by (table, id).
	Upsert(ctx context.Context, rec *models.SyncRecord, status models.SyncStatus) error

	// GetByID returns one record or common.ErrNotFound.
	GetByID(ctx context.Context, table, id string) (*models.SyncRecord, error)

	// ListChangedSince returns records with updated_at > since, ordered by
	// updated_at ascending. A nil since means all records.
	ListChangedSince(ctx context.Context, table string, since *time.Time) ([]*models.SyncRecord, error)

	// ListPending returns records awaiting push, ordered by updated_at ascending.
	ListPending(ctx context.Context, table string) ([]*models.SyncRecord, error)

	// GetVersions maps id -> version for the requested ids.
	GetVersions(ctx context.Context, table string, ids []string) (map[string]int64, error)

	// SetStatus updates sync_status for the given ids.
	SetStatus(ctx context.Context, table string, ids []string, status models.SyncStatus) error

	// Tables lists the distinct table names present in the store.
	Tables(ctx context.Context) ([]string, error)
}

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.SyncRecord, status models.SyncStatus) error {
	query := `
		INSERT INTO records (table_name, id, device_id, created_at, updated_at, version, sync_status, deleted, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, id) DO UPDATE SET
			device_id = excluded.device_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			version = excluded.version,
			sync_status = excluded.sync_status,
			deleted = excluded.deleted,
			payload = excluded.payload
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.Table, rec.ID, rec.DeviceID,
		dbx.FormatTime(rec.CreatedAt), dbx.FormatTime(rec.UpdatedAt),
		rec.Version, string(status), rec.Deleted, []byte(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert record %s/%s: %w", rec.Table, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, table, id string) (*models.SyncRecord, error) {
	query := `
		SELECT id, device_id, created_at, updated_at, version, deleted, payload
		FROM records WHERE table_name = ? AND id = ?
	`
	row := r.db.QueryRowContext(ctx, query, table, id)

	rec, err := scanRecord(table, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s/%s: %w", table, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListChangedSince(ctx context.Context, table string, since *time.Time) ([]*models.SyncRecord, error) {
	query := `
		SELECT id, device_id, created_at, updated_at, version, deleted, payload
		FROM records WHERE table_name = ?
	`
	args := []any{table}
	if since != nil {
		query += ` AND updated_at > ?`
		args = append(args, dbx.FormatTime(*since))
	}
	query += ` ORDER BY updated_at ASC`

	return r.queryRecords(ctx, table, query, args...)
}

func (r *SQLiteRepository) ListPending(ctx context.Context, table string) ([]*models.SyncRecord, error) {
	query := `
		SELECT id, device_id, created_at, updated_at, version, deleted, payload
		FROM records WHERE table_name = ? AND sync_status = ?
		ORDER BY updated_at ASC
	`
	return r.queryRecords(ctx, table, query, table, string(models.SyncStatusPending))
}

func (r *SQLiteRepository) GetVersions(ctx context.Context, table string, ids []string) (map[string]int64, error) {
	result := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, version FROM records WHERE table_name = ? AND id IN (?` +
		repeatPlaceholder(len(ids)-1) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, table)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select record versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var version int64
		if err := rows.Scan(&id, &version); err != nil {
			return nil, err
		}
		result[id] = version
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, table string, ids []string, status models.SyncStatus) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE records SET sync_status = ? WHERE table_name = ? AND id IN (?` +
		repeatPlaceholder(len(ids)-1) + `)`
	args := make([]any, 0, len(ids)+2)
	args = append(args, string(status), table)
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT table_name FROM records ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list record tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, table, query string, args ...any) ([]*models.SyncRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncRecord
	for rows.Next() {
		rec, err := scanRecord(table, rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanRecord(table string, scan func(...any) error) (*models.SyncRecord, error) {
	var rec models.SyncRecord
	var createdAt, updatedAt string
	var payload []byte

	if err := scan(&rec.ID, &rec.DeviceID, &createdAt, &updatedAt, &rec.Version, &rec.Deleted, &payload); err != nil {
		return nil, err
	}

	var err error
	if rec.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	rec.Table = table
	rec.Payload = payload
	return &rec, nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
