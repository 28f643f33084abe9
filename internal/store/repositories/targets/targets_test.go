package targets

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE external_targets (
  id                           TEXT PRIMARY KEY,
  created_at                   TEXT NOT NULL,
  updated_at                   TEXT NOT NULL,
  device_id                    TEXT NOT NULL,
  version                      INTEGER NOT NULL DEFAULT 1,
  sync_status                  TEXT NOT NULL DEFAULT 'pending',
  name                         TEXT NOT NULL,
  db_type                      TEXT NOT NULL,
  connection_details_encrypted TEXT NOT NULL,
  is_active                    INTEGER NOT NULL DEFAULT 1
);`)
	require.NoError(t, err)
	return db
}

func testTarget(name string, active bool) *models.ExternalDatabaseConfig {
	return &models.ExternalDatabaseConfig{
		BaseModel:                  models.NewBase("device-1"),
		Name:                       name,
		DBType:                     models.DatabaseTypePostgreSQL,
		ConnectionDetailsEncrypted: "b64-ciphertext",
		IsActive:                   active,
	}
}

func TestSaveAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	cfg := testTarget("prod", true)
	require.NoError(t, r.Save(ctx, cfg))

	got, err := r.GetByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Name)
	assert.Equal(t, models.DatabaseTypePostgreSQL, got.DBType)
	assert.Equal(t, "b64-ciphertext", got.ConnectionDetailsEncrypted)
	assert.Equal(t, int64(1), got.Version)
}

func TestGetByID_Missing(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.GetByID(context.Background(), "absent")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSave_UpsertsByID(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	cfg := testTarget("prod", true)
	require.NoError(t, r.Save(ctx, cfg))

	cfg.Name = "prod-eu"
	cfg.Touch()
	require.NoError(t, r.Save(ctx, cfg))

	got, err := r.GetByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "prod-eu", got.Name)
	assert.Equal(t, int64(2), got.Version)
}

func TestListActive_FiltersInactive(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, testTarget("active", true)))
	require.NoError(t, r.Save(ctx, testTarget("disabled", false)))

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active", active[0].Name)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
