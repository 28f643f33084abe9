// Package store opens the local SQLite datastore, runs its migrations and
// wires the per-entity repositories. The local store owns the canonical copy
// of every syncable entity.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/vaultsync/internal/store/migrations"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/conflicts"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/devices"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/metadata"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/records"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/settings"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/synclogs"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/targets"
)

// Store bundles the open database handle and its repositories.
type Store struct {
	DB        *sql.DB
	Metadata  metadata.Repository
	Records   records.Repository
	Targets   targets.Repository
	Settings  settings.Repository
	Conflicts conflicts.Repository
	SyncLogs  synclogs.Repository
	Devices   devices.Repository
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the local store at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}

	return &Store{
		DB:        db,
		Metadata:  metadata.NewSQLiteRepository(db),
		Records:   records.NewSQLiteRepository(db),
		Targets:   targets.NewSQLiteRepository(db),
		Settings:  settings.NewSQLiteRepository(db),
		Conflicts: conflicts.NewSQLiteRepository(db),
		SyncLogs:  synclogs.NewSQLiteRepository(db),
		Devices:   devices.NewSQLiteRepository(db),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}
