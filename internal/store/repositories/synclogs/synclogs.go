// Package synclogs persists the audit trail of sync passes.
package synclogs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// Repository describes storage for SyncLog rows.
type Repository interface {
	// Save inserts a new log or updates the row with the same id (a pass
	// writes in_progress first, then its terminal state).
	Save(ctx context.Context, l *models.SyncLog) error

	// GetLatest returns the most recently started log for the target, or nil
	// when the target was never synced.
	GetLatest(ctx context.Context, targetID string) (*models.SyncLog, error)

	// List returns up to limit logs for the target, most recent first.
	List(ctx context.Context, targetID string, limit int) ([]*models.SyncLog, error)
}

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const logColumns = `id, target_id, direction, status, started_at, completed_at,
	records_synced, conflicts_resolved, error_message`

func (r *SQLiteRepository) Save(ctx context.Context, l *models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (` + logColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			records_synced = excluded.records_synced,
			conflicts_resolved = excluded.conflicts_resolved,
			error_message = excluded.error_message
	`
	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.TargetID, string(l.Direction), string(l.Status),
		dbx.FormatTime(l.StartedAt), dbx.FormatNullTime(l.CompletedAt),
		l.RecordsSynced, l.ConflictsResolved, l.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to save sync log %s: %w", l.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetLatest(ctx context.Context, targetID string) (*models.SyncLog, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM sync_logs WHERE target_id = ? ORDER BY started_at DESC LIMIT 1`,
		targetID)

	l, err := scanLog(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync log for %s: %w", targetID, err)
	}
	return l, nil
}

func (r *SQLiteRepository) List(ctx context.Context, targetID string, limit int) ([]*models.SyncLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM sync_logs WHERE target_id = ? ORDER BY started_at DESC LIMIT ?`,
		targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync logs: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncLog
	for rows.Next() {
		l, err := scanLog(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func scanLog(scan func(...any) error) (*models.SyncLog, error) {
	var l models.SyncLog
	var direction, status, startedAt string
	var completedAt, errorMessage sql.NullString

	if err := scan(&l.ID, &l.TargetID, &direction, &status, &startedAt, &completedAt,
		&l.RecordsSynced, &l.ConflictsResolved, &errorMessage); err != nil {
		return nil, err
	}

	var err error
	l.Direction = models.SyncDirection(direction)
	l.Status = models.SyncLogStatus(status)
	if l.StartedAt, err = dbx.ParseTime(startedAt); err != nil {
		return nil, err
	}
	if l.CompletedAt, err = dbx.ParseNullTime(completedAt); err != nil {
		return nil, err
	}
	l.ErrorMessage = errorMessage.String
	return &l, nil
}
