// Package targets persists configured external database targets.
package targets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// Repository describes storage for ExternalDatabaseConfig rows.
type Repository interface {
	Save(ctx context.Context, cfg *models.ExternalDatabaseConfig) error
	GetByID(ctx context.Context, id string) (*models.ExternalDatabaseConfig, error)
	List(ctx context.Context) ([]*models.ExternalDatabaseConfig, error)
	ListActive(ctx context.Context) ([]*models.ExternalDatabaseConfig, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const targetColumns = `id, created_at, updated_at, device_id, version, sync_status,
	name, db_type, connection_details_encrypted, is_active`

func (r *SQLiteRepository) Save(ctx context.Context, cfg *models.ExternalDatabaseConfig) error {
	query := `
		INSERT INTO external_targets (` + targetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			device_id = excluded.device_id,
			version = excluded.version,
			sync_status = excluded.sync_status,
			name = excluded.name,
			db_type = excluded.db_type,
			connection_details_encrypted = excluded.connection_details_encrypted,
			is_active = excluded.is_active
	`
	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, dbx.FormatTime(cfg.CreatedAt), dbx.FormatTime(cfg.UpdatedAt),
		cfg.DeviceID, cfg.Version, string(cfg.SyncStatus),
		cfg.Name, string(cfg.DBType), cfg.ConnectionDetailsEncrypted, cfg.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save external target %s: %w", cfg.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.ExternalDatabaseConfig, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM external_targets WHERE id = ?`, id)

	cfg, err := scanTarget(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external target %s: %w", id, err)
	}
	return cfg, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.ExternalDatabaseConfig, error) {
	return r.query(ctx, `SELECT `+targetColumns+` FROM external_targets ORDER BY name`)
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]*models.ExternalDatabaseConfig, error) {
	return r.query(ctx, `SELECT `+targetColumns+` FROM external_targets WHERE is_active = 1 ORDER BY name`)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM external_targets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete external target %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.ExternalDatabaseConfig, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select external targets: %w", err)
	}
	defer rows.Close()

	var result []*models.ExternalDatabaseConfig
	for rows.Next() {
		cfg, err := scanTarget(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}

func scanTarget(scan func(...any) error) (*models.ExternalDatabaseConfig, error) {
	var cfg models.ExternalDatabaseConfig
	var createdAt, updatedAt, syncStatus, dbType string

	if err := scan(&cfg.ID, &createdAt, &updatedAt, &cfg.DeviceID, &cfg.Version, &syncStatus,
		&cfg.Name, &dbType, &cfg.ConnectionDetailsEncrypted, &cfg.IsActive); err != nil {
		return nil, err
	}

	var err error
	if cfg.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if cfg.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	cfg.SyncStatus = models.SyncStatus(syncStatus)
	if cfg.DBType, err = models.ParseDatabaseType(dbType); err != nil {
		return nil, err
	}
	return &cfg, nil
}
