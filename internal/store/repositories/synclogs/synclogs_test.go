package synclogs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_logs (
  id                 TEXT PRIMARY KEY,
  target_id          TEXT NOT NULL,
  direction          TEXT NOT NULL,
  status             TEXT NOT NULL,
  started_at         TEXT NOT NULL,
  completed_at       TEXT,
  records_synced     INTEGER NOT NULL DEFAULT 0,
  conflicts_resolved INTEGER NOT NULL DEFAULT 0,
  error_message      TEXT
);`)
	require.NoError(t, err)
	return db
}

func TestGetLatest_NeverSynced(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	l, err := r.GetLatest(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestSave_InProgressThenCompleted(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	l := models.NewSyncLog("t1", models.DirectionBidirectional)
	require.NoError(t, r.Save(ctx, l))

	got, err := r.GetLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.SyncLogInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)

	l.Complete(12, 3)
	require.NoError(t, r.Save(ctx, l))

	got, err = r.GetLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncLogCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 12, got.RecordsSynced)
	assert.Equal(t, 3, got.ConflictsResolved)
}

func TestSave_FailedKeepsAccumulatedCounts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	l := models.NewSyncLog("t1", models.DirectionBidirectional)
	l.Fail(4, 1, "connection failed: dial tcp: timeout")
	require.NoError(t, r.Save(ctx, l))

	got, err := r.GetLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncLogFailed, got.Status)
	assert.Equal(t, 4, got.RecordsSynced)
	assert.Equal(t, "connection failed: dial tcp: timeout", got.ErrorMessage)
}

func TestList_MostRecentFirstWithLimit(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	var last *models.SyncLog
	for i := 0; i < 3; i++ {
		l := models.NewSyncLog("t1", models.DirectionBidirectional)
		l.StartedAt = l.StartedAt.Add(-time.Duration(3-i) * time.Hour)
		l.Complete(i, 0)
		require.NoError(t, r.Save(ctx, l))
		last = l
	}

	logs, err := r.List(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, last.ID, logs[0].ID)
}
