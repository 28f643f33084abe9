// Package app initializes and runs the sync daemon. It opens the local
// store, establishes the device identity, walks the unlock flow and drives
// the scheduler until shutdown.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/config"
	"github.com/dmitrijs2005/vaultsync/internal/keymanager"
	"github.com/dmitrijs2005/vaultsync/internal/keyring"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/models"
	"github.com/dmitrijs2005/vaultsync/internal/store"
	"github.com/dmitrijs2005/vaultsync/internal/syncer"
)

const (
	appVersion       = "0.1.0"
	deviceIDKey      = "device_id"
	unlockAttempts   = 3
	maintenancePause = 24 * time.Hour
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	store     *store.Store
	keys      *keymanager.Manager
	queue     *syncer.Queue
	scheduler *syncer.Scheduler
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	st, err := store.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	deviceID, err := ensureDevice(ctx, st, c.DeviceName)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	keys := keymanager.New(st.DB, keyring.NewSystemStore(), c.AppName, deviceID)
	queue := syncer.NewQueue(c.SyncConcurrency)
	engine := syncer.NewEngine(st, keys, logger)
	scheduler := syncer.NewScheduler(st, engine, queue, logger, c.TickInterval)

	return &App{
		config:    c,
		logger:    logger,
		store:     st,
		keys:      keys,
		queue:     queue,
		scheduler: scheduler,
	}, nil
}

// ensureDevice loads the stable installation identity, registering it on
// first run.
func ensureDevice(ctx context.Context, st *store.Store, name string) (string, error) {
	now := time.Now().UTC()

	existing, err := st.Metadata.Get(ctx, deviceIDKey)
	if err != nil {
		return "", err
	}
	if existing != nil {
		deviceID := string(existing)
		if err := st.Devices.TouchLastSeen(ctx, deviceID, now); err != nil {
			return "", err
		}
		return deviceID, nil
	}

	if name == "" {
		if name, err = os.Hostname(); err != nil {
			name = "unknown"
		}
	}
	dev := models.NewDevice(name, "desktop", runtime.GOOS, appVersion)
	if err := st.Devices.Save(ctx, dev); err != nil {
		return "", err
	}
	if err := st.Metadata.Set(ctx, deviceIDKey, []byte(dev.DeviceID)); err != nil {
		return "", err
	}
	return dev.DeviceID, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// unlock walks the startup unlock flow: first-run setup, then the escrowed
// auto-unlock attempt, then an interactive prompt with a bounded number of
// attempts. The master password is wiped after each use.
func (app *App) unlock(ctx context.Context) error {
	isSetUp, err := app.keys.IsSetUp(ctx)
	if err != nil {
		return err
	}

	if !isSetUp {
		return app.setupMasterPassword(ctx)
	}

	pcfg, err := app.keys.LoadConfig(ctx)
	if err != nil {
		return err
	}
	ok, err := app.keys.TryAutoUnlock(ctx, pcfg)
	if err != nil {
		return err
	}
	if ok {
		app.logger.Info(ctx, "unlocked from credential store")
		return nil
	}

	for attempt := 1; attempt <= unlockAttempts; attempt++ {
		pw, err := promptPassword(os.Stdout, "Enter master password: ")
		if err != nil {
			return err
		}
		err = app.keys.Unlock(ctx, pw)
		common.WipeByteArray(pw)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrInvalidPassword) {
			return err
		}
		fmt.Println("Invalid password.")
	}
	return common.ErrInvalidPassword
}

func (app *App) setupMasterPassword(ctx context.Context) error {
	fmt.Println("No master password configured yet.")
	pw, err := promptPassword(os.Stdout, "Choose master password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := promptPassword(os.Stdout, "Confirm master password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return fmt.Errorf("%w: passwords do not match", common.ErrValidation)
	}
	if err := app.keys.Setup(ctx, pw); err != nil {
		return err
	}
	return app.keys.Unlock(ctx, pw)
}

// enableActiveTargets seeds the scheduler's enabled set from the configured
// targets.
func (app *App) enableActiveTargets(ctx context.Context) error {
	targets, err := app.store.Targets.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, t := range targets {
		app.scheduler.Enable(t.ID)
		app.logger.Info(ctx, "sync target enabled", "name", t.Name, "type", t.DBType)
	}
	return nil
}

// runMaintenance purges resolved conflicts past the retention window, once
// at startup and then daily.
func (app *App) runMaintenance(ctx context.Context) {
	retention := time.Duration(app.config.ConflictRetentionDays) * 24 * time.Hour

	cleanup := func() {
		cutoff := time.Now().UTC().Add(-retention)
		n, err := app.store.Conflicts.DeleteResolvedBefore(ctx, cutoff)
		if err != nil {
			app.logger.Error(ctx, "conflict cleanup failed", "error", err)
			return
		}
		if n > 0 {
			app.logger.Info(ctx, "purged resolved conflicts", "count", n)
		}
	}

	cleanup()
	ticker := time.NewTicker(maintenancePause)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanup()
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "version", appVersion)

	app.initSignalHandler(cancelFunc)

	if err := app.unlock(ctx); err != nil {
		app.logger.Error(ctx, "unlock failed", "error", err)
		return
	}

	if err := app.enableActiveTargets(ctx); err != nil {
		app.logger.Error(ctx, "failed to enable sync targets", "error", err)
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error(ctx, "scheduler error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runMaintenance(ctx)
	}()

	wg.Wait()

	app.keys.Lock()
	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "store close error", "error", err)
	}
	app.logger.Info(ctx, "Shutdown complete")
}
