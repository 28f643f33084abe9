package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/models"
	"github.com/dmitrijs2005/vaultsync/internal/store"
	"github.com/dmitrijs2005/vaultsync/internal/synctarget"
)

const (
	connectAttempts = 3
	connectBackoff  = 500 * time.Millisecond
)

// KeyDecrypter is the slice of the key manager the engine needs: decrypting
// a target's connection profile under the key of the device that wrote it.
type KeyDecrypter interface {
	DecryptString(ciphertext string, deviceID string) (string, error)
}

// TargetFactory builds a Target for a database family. Swapped in tests.
type TargetFactory func(models.DatabaseType, *models.ConnectionDetails) (synctarget.Target, error)

// Engine runs one end-to-end sync pass for one external target: decrypt its
// connection profile, connect, pull, detect and resolve conflicts, push,
// persist the results.
type Engine struct {
	store     *store.Store
	keys      KeyDecrypter
	log       logging.Logger
	newTarget TargetFactory
	now       func() time.Time
}

// NewEngine wires the engine to the local store and key manager.
func NewEngine(st *store.Store, keys KeyDecrypter, log logging.Logger) *Engine {
	return &Engine{
		store:     st,
		keys:      keys,
		log:       log,
		newTarget: synctarget.New,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunPass executes one sync pass against the target described by cfg and
// returns its SyncLog. It fails fast with common.ErrMasterPasswordRequired,
// before any log is written, when the key manager is locked; the caller
// unlocks and retries. Every other failure closes the pass with a Failed
// log carrying the counts accumulated before the failure, and last_sync_at
// advances only when the pass fully completed.
func (e *Engine) RunPass(ctx context.Context, cfg *models.ExternalDatabaseConfig) (*models.SyncLog, error) {
	settings, err := e.store.Settings.GetForTarget(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("loading sync settings: %w", err)
	}

	details, err := e.decryptDetails(cfg)
	if err != nil {
		return nil, err
	}

	log := models.NewSyncLog(cfg.ID, settings.SyncDirection)
	if err := e.store.SyncLogs.Save(ctx, log); err != nil {
		return nil, fmt.Errorf("opening sync log: %w", err)
	}

	target, err := e.newTarget(cfg.DBType, details)
	if err != nil {
		return e.fail(ctx, log, 0, 0, err)
	}

	if err := e.connect(ctx, target); err != nil {
		return e.fail(ctx, log, 0, 0, err)
	}
	defer func() { _ = target.Close(ctx) }()

	e.log.Info(ctx, "sync pass started", "target", cfg.Name, "direction", settings.SyncDirection)

	tables, err := e.store.Records.Tables(ctx)
	if err != nil {
		return e.fail(ctx, log, 0, 0, err)
	}

	var synced, resolved int
	for _, table := range tables {
		if settings.SyncDirection != models.DirectionPushOnly {
			n, c, err := e.pullTable(ctx, cfg, settings, target, table)
			synced += n
			resolved += c
			if err != nil {
				return e.fail(ctx, log, synced, resolved, err)
			}
		}
		if settings.SyncDirection != models.DirectionPullOnly {
			n, err := e.pushTable(ctx, target, table)
			synced += n
			if err != nil {
				return e.fail(ctx, log, synced, resolved, err)
			}
		}
	}

	log.Complete(synced, resolved)
	if err := e.store.SyncLogs.Save(ctx, log); err != nil {
		return log, fmt.Errorf("closing sync log: %w", err)
	}
	if err := e.store.Settings.SetLastSyncAt(ctx, cfg.ID, e.now()); err != nil {
		return log, fmt.Errorf("advancing last_sync_at: %w", err)
	}

	cfg.SyncStatus = models.SyncStatusSynced
	if err := e.store.Targets.Save(ctx, cfg); err != nil {
		return log, fmt.Errorf("marking target synced: %w", err)
	}

	e.log.Info(ctx, "sync pass completed", "target", cfg.Name,
		"records", synced, "conflicts", resolved)
	return log, nil
}

// decryptDetails recovers the connection profile written by the device that
// authored the target config. Plaintext details never leave this pass.
func (e *Engine) decryptDetails(cfg *models.ExternalDatabaseConfig) (*models.ConnectionDetails, error) {
	plain, err := e.keys.DecryptString(cfg.ConnectionDetailsEncrypted, cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("decrypting connection details for %q: %w", cfg.Name, err)
	}
	var details models.ConnectionDetails
	if err := json.Unmarshal([]byte(plain), &details); err != nil {
		return nil, fmt.Errorf("%w: connection details for %q: %v", common.ErrSerialization, cfg.Name, err)
	}
	return &details, nil
}

// connect dials the target with bounded exponential backoff. Whole-pass
// retries stay with the scheduler tick; this only smooths transient dial
// failures within one pass.
func (e *Engine) connect(ctx context.Context, target synctarget.Target) error {
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(connectBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := target.Connect(ctx); err != nil {
			if errors.Is(err, common.ErrAuthenticationFailed) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

// pullTable merges remote changes for one table into the local store and
// returns (records applied, conflicts resolved or flagged).
func (e *Engine) pullTable(ctx context.Context, cfg *models.ExternalDatabaseConfig,
	settings *models.SyncSettings, target synctarget.Target, table string) (int, int, error) {

	remote, err := target.PullRecords(ctx, table, settings.LastSyncAt)
	if err != nil {
		return 0, 0, err
	}

	var applied, conflicts int
	for _, rec := range remote {
		local, err := e.store.Records.GetByID(ctx, table, rec.ID)
		if errors.Is(err, common.ErrNotFound) {
			if err := e.store.Records.Upsert(ctx, rec, models.SyncStatusSynced); err != nil {
				return applied, conflicts, err
			}
			applied++
			continue
		}
		if err != nil {
			return applied, conflicts, err
		}

		ct, found := DetectConflict(local.Base(), rec.Base())
		if !found {
			continue
		}

		n, err := e.resolveConflict(ctx, cfg, settings, table, local, rec, ct)
		conflicts += n
		if err != nil {
			return applied, conflicts, err
		}
	}
	return applied, conflicts, nil
}

// resolveConflict applies the configured strategy to one local/remote pair.
// Manual strategy flags a ConflictRecord and leaves both copies untouched.
func (e *Engine) resolveConflict(ctx context.Context, cfg *models.ExternalDatabaseConfig,
	settings *models.SyncSettings, table string, local, remote *models.SyncRecord,
	ct models.ConflictType) (int, error) {

	resolution, err := Resolve(settings.ConflictStrategy, local.Base(), remote.Base())
	if err != nil {
		return 0, err
	}

	record := models.NewConflictRecord(cfg.ID, table, local.ID, ct, local.Version, remote.Version)

	if resolution == models.ResolutionManual {
		if err := e.store.Conflicts.Save(ctx, record); err != nil {
			return 0, err
		}
		if err := e.store.Records.SetStatus(ctx, table, []string{local.ID}, models.SyncStatusConflict); err != nil {
			return 1, err
		}
		e.log.Warn(ctx, "conflict requires manual resolution",
			"target", cfg.Name, "table", table, "id", local.ID, "type", ct)
		return 1, nil
	}

	switch resolution {
	case models.ResolutionUseRemote:
		if err := e.store.Records.Upsert(ctx, remote, models.SyncStatusSynced); err != nil {
			return 0, err
		}
	case models.ResolutionUseLocal:
		// The local copy stays canonical and must reach the target on the
		// push half of this pass.
		if err := e.store.Records.SetStatus(ctx, table, []string{local.ID}, models.SyncStatusPending); err != nil {
			return 0, err
		}
	}

	record.Resolve(resolution, "")
	if err := e.store.Conflicts.Save(ctx, record); err != nil {
		return 1, err
	}
	e.log.Debug(ctx, "conflict resolved",
		"table", table, "id", local.ID, "type", ct, "resolution", resolution)
	return 1, nil
}

// pushTable upserts every locally pending record of one table to the target
// and marks the pushed records synced.
func (e *Engine) pushTable(ctx context.Context, target synctarget.Target, table string) (int, error) {
	pending, err := e.store.Records.ListPending(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	n, err := target.PushRecords(ctx, table, pending)
	if err != nil {
		return n, err
	}

	ids := make([]string, 0, len(pending))
	for _, rec := range pending {
		ids = append(ids, rec.ID)
	}
	if err := e.store.Records.SetStatus(ctx, table, ids, models.SyncStatusSynced); err != nil {
		return n, err
	}
	return n, nil
}

// ApplyResolution resolves a flagged conflict by hand. UseLocal marks the
// local copy pending so the next pass pushes it; UseRemote fetches the
// remote copy from the target and makes it canonical; Manual records the
// description and unflags the record without changing either copy.
func (e *Engine) ApplyResolution(ctx context.Context, cfg *models.ExternalDatabaseConfig,
	conflictID string, resolution models.Resolution, note string) error {

	conflict, err := e.store.Conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict.Resolved() {
		return fmt.Errorf("%w: conflict %s already resolved", common.ErrValidation, conflictID)
	}

	table, id := conflict.EntityType, conflict.EntityID

	switch resolution {
	case models.ResolutionUseLocal:
		if err := e.store.Records.SetStatus(ctx, table, []string{id}, models.SyncStatusPending); err != nil {
			return err
		}
	case models.ResolutionUseRemote:
		remote, err := e.fetchRemote(ctx, cfg, table, id)
		if err != nil {
			return err
		}
		if err := e.store.Records.Upsert(ctx, remote, models.SyncStatusSynced); err != nil {
			return err
		}
	case models.ResolutionManual:
		if err := e.store.Records.SetStatus(ctx, table, []string{id}, models.SyncStatusSynced); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown resolution %q", common.ErrValidation, resolution)
	}

	conflict.Resolve(resolution, note)
	if err := e.store.Conflicts.Save(ctx, conflict); err != nil {
		return err
	}
	e.log.Info(ctx, "conflict resolved manually",
		"table", table, "id", id, "resolution", resolution)
	return nil
}

// fetchRemote retrieves one record from the target. Pull has no by-id form,
// so this scans the table's full change stream.
func (e *Engine) fetchRemote(ctx context.Context, cfg *models.ExternalDatabaseConfig,
	table, id string) (*models.SyncRecord, error) {

	details, err := e.decryptDetails(cfg)
	if err != nil {
		return nil, err
	}
	target, err := e.newTarget(cfg.DBType, details)
	if err != nil {
		return nil, err
	}
	if err := e.connect(ctx, target); err != nil {
		return nil, err
	}
	defer func() { _ = target.Close(ctx) }()

	recs, err := target.PullRecords(ctx, table, nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: record %s/%s on target %q", common.ErrNotFound, table, id, cfg.Name)
}

// fail closes the log with whatever counts were accumulated before the
// failure. The message carries wrapped sentinel errors only, never key
// material or plaintext credentials.
func (e *Engine) fail(ctx context.Context, log *models.SyncLog, synced, resolved int, cause error) (*models.SyncLog, error) {
	log.Fail(synced, resolved, cause.Error())
	if err := e.store.SyncLogs.Save(ctx, log); err != nil {
		e.log.Error(ctx, "failed to record sync failure", "error", err)
	}
	e.log.Error(ctx, "sync pass failed", "target", log.TargetID, "error", cause)
	return log, fmt.Errorf("%w: %w", common.ErrSync, cause)
}
