package store

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/models"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/records"
	"github.com/dmitrijs2005/vaultsync/internal/synctarget"
)

// LocalTarget exposes the local record store through the same sync target
// contract external databases implement. Records landing here via sync are
// marked synced, not pending, so they are not pushed back out.
type LocalTarget struct {
	records records.Repository
}

var _ synctarget.Target = (*LocalTarget)(nil)

// Local returns the store's sync target view.
func (s *Store) Local() *LocalTarget {
	return &LocalTarget{records: s.Records}
}

// Connect is a no-op: the local store is already open.
func (t *LocalTarget) Connect(ctx context.Context) error { return nil }

// TestConnection is a no-op for the local store.
func (t *LocalTarget) TestConnection(ctx context.Context) error { return nil }

// Close is a no-op: the owning Store manages the handle.
func (t *LocalTarget) Close(ctx context.Context) error { return nil }

func (t *LocalTarget) PushRecords(ctx context.Context, table string, recs []*models.SyncRecord) (int, error) {
	count := 0
	for _, rec := range recs {
		if err := t.records.Upsert(ctx, rec, models.SyncStatusSynced); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (t *LocalTarget) PullRecords(ctx context.Context, table string, since *time.Time) ([]*models.SyncRecord, error) {
	return t.records.ListChangedSince(ctx, table, since)
}

func (t *LocalTarget) GetRecordVersions(ctx context.Context, table string, ids []string) (map[string]int64, error) {
	return t.records.GetVersions(ctx, table, ids)
}
