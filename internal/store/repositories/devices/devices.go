// Package devices persists installation identities seen by this store.
package devices

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

// Repository describes storage for Device rows.
type Repository interface {
	Save(ctx context.Context, d *models.Device) error
	GetByID(ctx context.Context, deviceID string) (*models.Device, error)
	List(ctx context.Context) ([]*models.Device, error)
	TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error
}

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds the repository to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (device_id, device_name, device_type, os_info, app_version, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			device_name = excluded.device_name,
			device_type = excluded.device_type,
			os_info = excluded.os_info,
			app_version = excluded.app_version,
			last_seen = excluded.last_seen
	`
	_, err := r.db.ExecContext(ctx, query,
		d.DeviceID, d.DeviceName, d.DeviceType, d.OSInfo, d.AppVersion,
		dbx.FormatTime(d.CreatedAt), dbx.FormatTime(d.LastSeen))
	if err != nil {
		return fmt.Errorf("failed to save device %s: %w", d.DeviceID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, deviceID string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT device_id, device_name, device_type, os_info, app_version, created_at, last_seen
		FROM devices WHERE device_id = ?`, deviceID)

	d, err := scanDevice(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	return d, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, device_name, device_type, os_info, app_version, created_at, last_seen
		FROM devices ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to select devices: %w", err)
	}
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = ? WHERE device_id = ?`,
		dbx.FormatTime(at), deviceID)
	if err != nil {
		return fmt.Errorf("failed to touch device %s: %w", deviceID, err)
	}
	return nil
}

func scanDevice(scan func(...any) error) (*models.Device, error) {
	var d models.Device
	var createdAt, lastSeen string

	if err := scan(&d.DeviceID, &d.DeviceName, &d.DeviceType, &d.OSInfo, &d.AppVersion,
		&createdAt, &lastSeen); err != nil {
		return nil, err
	}

	var err error
	if d.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if d.LastSeen, err = dbx.ParseTime(lastSeen); err != nil {
		return nil, err
	}
	return &d, nil
}
