// Package settings persists per-target and global sync policy. The global
// row is keyed by an empty target id.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// GlobalTargetID keys the store-wide default settings row.
const GlobalTargetID = ""

// Repository describes storage for SyncSettings rows.
type Repository interface {
	Save(ctx context.Context, s *models.SyncSettings) error

	// GetForTarget returns the target's settings, falling back to the global
	// row, falling back to built-in defaults.
	GetForTarget(ctx context.Context, targetID string) (*models.SyncSettings, error)

	// SetLastSyncAt advances last_sync_at for the target, creating the row
	// from defaults if necessary.
	SetLastSyncAt(ctx context.Context, targetID string, at time.Time) error
}

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, s *models.SyncSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO sync_settings (target_id, auto_sync_enabled, sync_interval_minutes, conflict_strategy, sync_direction, last_sync_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			auto_sync_enabled = excluded.auto_sync_enabled,
			sync_interval_minutes = excluded.sync_interval_minutes,
			conflict_strategy = excluded.conflict_strategy,
			sync_direction = excluded.sync_direction,
			last_sync_at = excluded.last_sync_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.TargetID, s.AutoSyncEnabled, s.SyncIntervalMinutes,
		string(s.ConflictStrategy), string(s.SyncDirection), dbx.FormatNullTime(s.LastSyncAt))
	if err != nil {
		return fmt.Errorf("failed to save sync settings for %q: %w", s.TargetID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetForTarget(ctx context.Context, targetID string) (*models.SyncSettings, error) {
	s, err := r.get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if s == nil && targetID != GlobalTargetID {
		if s, err = r.get(ctx, GlobalTargetID); err != nil {
			return nil, err
		}
	}
	if s == nil {
		def := models.DefaultSyncSettings()
		def.TargetID = targetID
		return &def, nil
	}
	s.TargetID = targetID
	return s, nil
}

func (r *SQLiteRepository) SetLastSyncAt(ctx context.Context, targetID string, at time.Time) error {
	s, err := r.GetForTarget(ctx, targetID)
	if err != nil {
		return err
	}
	at = at.UTC()
	s.LastSyncAt = &at
	return r.Save(ctx, s)
}

func (r *SQLiteRepository) get(ctx context.Context, targetID string) (*models.SyncSettings, error) {
	query := `
		SELECT target_id, auto_sync_enabled, sync_interval_minutes, conflict_strategy, sync_direction, last_sync_at
		FROM sync_settings WHERE target_id = ?
	`
	row := r.db.QueryRowContext(ctx, query, targetID)

	var s models.SyncSettings
	var strategy, direction string
	var lastSync sql.NullString
	err := row.Scan(&s.TargetID, &s.AutoSyncEnabled, &s.SyncIntervalMinutes, &strategy, &direction, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync settings for %q: %w", targetID, err)
	}

	s.ConflictStrategy = models.ConflictStrategy(strategy)
	s.SyncDirection = models.SyncDirection(direction)
	if s.LastSyncAt, err = dbx.ParseNullTime(lastSync); err != nil {
		return nil, err
	}
	return &s, nil
}
