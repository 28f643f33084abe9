package synctarget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// PostgresTarget syncs against a PostgreSQL database through the pgx stdlib
// driver. Each logical table maps to one remote table holding the opaque
// payload plus sync metadata columns; missing tables are created on first
// push.
type PostgresTarget struct {
	details *models.ConnectionDetails
	db      *sql.DB
}

// NewPostgresTarget builds an unconnected target from decrypted connection
// details.
func NewPostgresTarget(details *models.ConnectionDetails) *PostgresTarget {
	return &PostgresTarget{details: details}
}

func (t *PostgresTarget) dsn() string {
	sslmode := "disable"
	if t.details.SSLEnabled {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		t.details.Username, t.details.Password,
		t.details.Host, t.details.Port, t.details.DatabaseName, sslmode)
}

// classifyPostgresConnectErr maps a dial or ping failure to a sentinel.
// SQLSTATE class 28 (invalid_authorization_specification, including 28P01
// invalid_password) means the credentials were rejected, which the engine
// treats as permanent instead of retrying.
func classifyPostgresConnectErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "28") {
		return fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
}

func (t *PostgresTarget) Connect(ctx context.Context) error {
	db, err := sql.Open("pgx", t.dsn())
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return classifyPostgresConnectErr(err)
	}
	t.db = db
	return nil
}

func (t *PostgresTarget) TestConnection(ctx context.Context) error {
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

func (t *PostgresTarget) Close(ctx context.Context) error {
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}

func (t *PostgresTarget) ensureTable(ctx context.Context, table string) error {
	if err := validTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			payload BYTEA NOT NULL
		)`, table)
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: ensure table %s: %v", common.ErrQueryFailed, table, err)
	}
	return nil
}

func (t *PostgresTarget) PushRecords(ctx context.Context, table string, records []*models.SyncRecord) (int, error) {
	if t.db == nil {
		return 0, common.ErrConnectionFailed
	}
	if err := t.ensureTable(ctx, table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, device_id, created_at, updated_at, version, deleted, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			device_id = EXCLUDED.device_id,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version,
			deleted = EXCLUDED.deleted,
			payload = EXCLUDED.payload`, table)

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

func (t *PostgresTarget) PullRecords(ctx context.Context, table string, since *time.Time) ([]*models.SyncRecord, error) {
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
		query += ` WHERE updated_at > $1`
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

func (t *PostgresTarget) GetRecordVersions(ctx context.Context, table string, ids []string) (map[string]int64, error) {
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

	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
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
