// Package conflicts persists detected conflicts and their resolutions.
// Resolved rows are retained for audit until explicit cleanup.
package conflicts

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

// Repository describes storage for ConflictRecord rows.
type Repository interface {
	Save(ctx context.Context, c *models.ConflictRecord) error
	GetByID(ctx context.Context, id string) (*models.ConflictRecord, error)
	ListUnresolved(ctx context.Context, targetID string) ([]*models.ConflictRecord, error)

	// DeleteResolvedBefore removes resolved rows whose resolution is older
	// than cutoff and reports how many were removed.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const conflictColumns = `id, target_id, entity_type, entity_id, conflict_type,
	local_version, remote_version, detected_at, resolved_at, resolution, note`

func (r *SQLiteRepository) Save(ctx context.Context, c *models.ConflictRecord) error {
	query := `
		INSERT INTO conflict_records (` + conflictColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resolved_at = excluded.resolved_at,
			resolution = excluded.resolution,
			note = excluded.note
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.TargetID, c.EntityType, c.EntityID, string(c.ConflictType),
		c.LocalVersion, c.RemoteVersion, dbx.FormatTime(c.DetectedAt),
		dbx.FormatNullTime(c.ResolvedAt), string(c.Resolution), c.Note)
	if err != nil {
		return fmt.Errorf("failed to save conflict %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM conflict_records WHERE id = ?`, id)

	c, err := scanConflict(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict %s: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListUnresolved(ctx context.Context, targetID string) ([]*models.ConflictRecord, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflict_records
		WHERE target_id = ? AND resolved_at IS NULL ORDER BY detected_at ASC`

	rows, err := r.db.QueryContext(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM conflict_records WHERE resolved_at IS NOT NULL AND resolved_at < ?`,
		dbx.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up resolved conflicts: %w", err)
	}
	return res.RowsAffected()
}

func scanConflict(scan func(...any) error) (*models.ConflictRecord, error) {
	var c models.ConflictRecord
	var conflictType, detectedAt string
	var resolvedAt, resolution, note sql.NullString

	if err := scan(&c.ID, &c.TargetID, &c.EntityType, &c.EntityID, &conflictType,
		&c.LocalVersion, &c.RemoteVersion, &detectedAt, &resolvedAt, &resolution, &note); err != nil {
		return nil, err
	}

	var err error
	c.ConflictType = models.ConflictType(conflictType)
	if c.DetectedAt, err = dbx.ParseTime(detectedAt); err != nil {
		return nil, err
	}
	if c.ResolvedAt, err = dbx.ParseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	c.Resolution = models.Resolution(resolution.String)
	c.Note = note.String
	return &c, nil
}
