package synctarget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// MySQLTarget syncs against a MySQL database. Same remote table layout as
// the PostgreSQL target, with MySQL upsert syntax.
type MySQLTarget struct {
	details *models.ConnectionDetails
	db      *sql.DB
}

// NewMySQLTarget builds an unconnected target from decrypted connection
// details.
func NewMySQLTarget(details *models.ConnectionDetails) *MySQLTarget {
	return &MySQLTarget{details: details}
}

func (t *MySQLTarget) dsn() string {
	tls := "false"
	if t.details.SSLEnabled {
		tls = "true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s",
		t.details.Username, t.details.Password,
		t.details.Host, t.details.Port, t.details.DatabaseName, tls)
}

// classifyMySQLConnectErr maps a dial or ping failure to a sentinel. Server
// error 1045 (ER_ACCESS_DENIED_ERROR) means the credentials were rejected,
// which the engine treats as permanent instead of retrying.
func classifyMySQLConnectErr(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1045 {
		return fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
}

func (t *MySQLTarget) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", t.dsn())
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return classifyMySQLConnectErr(err)
	}
	t.db = db
	return nil
}

func (t *MySQLTarget) TestConnection(ctx context.Context) error {
	if t.db != nil {
		if err := t.db.PingContext(ctx); err != nil {
			return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
		}
		return nil
	}
	if err := t.Connect(ctx); err != nil {
		return err
	}
	return t.Close(ctx)
}

func (t *MySQLTarget) Close(ctx context.Context) error {
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}

func (t *MySQLTarget) ensureTable(ctx context.Context, table string) error {
	if err := validTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			device_id VARCHAR(36) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			version BIGINT NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			payload LONGBLOB NOT NULL
		)`, table)
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: ensure table %s: %v", common.ErrQueryFailed, table, err)
	}
	return nil
}

func (t *MySQLTarget) PushRecords(ctx context.Context, table string, records []*models.SyncRecord) (int, error) {
	if t.db == nil {
		return 0, common.ErrConnectionFailed
	}
	if err := t.ensureTable(ctx, table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, device_id, created_at, updated_at, version, deleted, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			device_id = VALUES(device_id),
			created_at = VALUES(created_at),
			updated_at = VALUES(updated_at),
			version = VALUES(version),
			deleted = VALUES(deleted),
			payload = VALUES(payload)`, table)

	count := 0
	for _, rec := range records {
		_, err := t.db.ExecContext(ctx, query,
			rec.ID, rec.DeviceID, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
			rec.Version, rec.Deleted, []byte(rec.Payload))
		if err != nil {
			return count, fmt.Errorf("%w: push %s/%s: %v", common.ErrQueryFailed, table, rec.ID, err)
		}
		count++
	}
	return count, nil
}

func (t *MySQLTarget) PullRecords(ctx context.Context, table string, since *time.Time) ([]*models.SyncRecord, error) {
	if t.db == nil {
		return nil, common.ErrConnectionFailed
	}
	if err := t.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, device_id, created_at, updated_at, version, deleted, payload
		FROM %s`, table)
	var args []any
	if since != nil {
		query += ` WHERE updated_at > ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pull %s: %v", common.ErrQueryFailed, table, err)
	}
	defer rows.Close()

	var result []*models.SyncRecord
	for rows.Next() {
		rec := &models.SyncRecord{Table: table}
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.CreatedAt, &rec.UpdatedAt,
			&rec.Version, &rec.Deleted, &payload); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", common.ErrQueryFailed, table, err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		rec.Payload = payload
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (t *MySQLTarget) GetRecordVersions(ctx context.Context, table string, ids []string) (map[string]int64, error) {
	if t.db == nil {
		return nil, common.ErrConnectionFailed
	}
	if err := t.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, version FROM %s WHERE id IN (%s)`, table, placeholders)
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: versions %s: %v", common.ErrQueryFailed, table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var version int64
		if err := rows.Scan(&id, &version); err != nil {
			return nil, err
		}
		result[id] = version
	}
	return result, rows.Err()
}
