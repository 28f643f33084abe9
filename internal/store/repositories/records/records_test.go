package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

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
CREATE TABLE records (
  table_name  TEXT NOT NULL,
  id          TEXT NOT NULL,
  device_id   TEXT NOT NULL,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL,
  version     INTEGER NOT NULL DEFAULT 1,
  sync_status TEXT NOT NULL DEFAULT 'pending',
  deleted     INTEGER NOT NULL DEFAULT 0,
  payload     BLOB NOT NULL,
  PRIMARY KEY (table_name, id)
);`)
	require.NoError(t, err)
	return db
}

func testRecord(id string, updatedAt time.Time) *models.SyncRecord {
	return &models.SyncRecord{
		ID:        id,
		Table:     "notes",
		DeviceID:  "device-1",
		CreatedAt: updatedAt.Add(-time.Hour),
		UpdatedAt: updatedAt,
		Version:   1,
		Payload:   json.RawMessage(`{"cipher":"abc"}`),
	}
}

func TestUpsert_InsertThenReplace(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := testRecord("id-1", now)
	require.NoError(t, r.Upsert(ctx, rec, models.SyncStatusPending))

	rec.Version = 2
	rec.UpdatedAt = now.Add(time.Minute)
	rec.Payload = json.RawMessage(`{"cipher":"def"}`)
	require.NoError(t, r.Upsert(ctx, rec, models.SyncStatusSynced))

	got, err := r.GetByID(ctx, "notes", "id-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, `{"cipher":"def"}`, string(got.Payload))
	assert.True(t, got.UpdatedAt.Equal(now.Add(time.Minute)))
}

func TestGetByID_Missing(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.GetByID(context.Background(), "notes", "absent")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListChangedSince_OrderAndFilter(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		rec := testRecord(id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, r.Upsert(ctx, rec, models.SyncStatusPending))
	}

	all, err := r.ListChangedSince(ctx, "notes", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "b", all[2].ID)

	since := base.Add(30 * time.Second)
	changed, err := r.ListChangedSince(ctx, "notes", &since)
	require.NoError(t, err)
	require.Len(t, changed, 2)
	assert.Equal(t, "a", changed[0].ID)
	assert.Equal(t, "b", changed[1].ID)
}

func TestListPending_And_SetStatus(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.Upsert(ctx, testRecord("p1", now), models.SyncStatusPending))
	require.NoError(t, r.Upsert(ctx, testRecord("s1", now.Add(time.Second)), models.SyncStatusSynced))

	pending, err := r.ListPending(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].ID)

	require.NoError(t, r.SetStatus(ctx, "notes", []string{"p1"}, models.SyncStatusSynced))

	pending, err = r.ListPending(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGetVersions(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	rec := testRecord("v1", now)
	rec.Version = 7
	require.NoError(t, r.Upsert(ctx, rec, models.SyncStatusPending))

	versions, err := r.GetVersions(ctx, "notes", []string{"v1", "absent"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"v1": 7}, versions)

	empty, err := r.GetVersions(ctx, "notes", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTables(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	rec := testRecord("x", now)
	require.NoError(t, r.Upsert(ctx, rec, models.SyncStatusPending))

	other := testRecord("y", now)
	other.Table = "credentials"
	require.NoError(t, r.Upsert(ctx, other, models.SyncStatusPending))

	tables, err := r.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"credentials", "notes"}, tables)
}
