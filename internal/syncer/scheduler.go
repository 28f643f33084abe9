package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/store"
)

// Scheduler drives periodic sync passes. On every tick it asks, per enabled
// target, whether a pass is due, and if so launches the engine through the
// queue. Passes for different targets run concurrently, gated by the queue.
type Scheduler struct {
	store  *store.Store
	engine *Engine
	queue  *Queue
	log    logging.Logger
	tick   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	enabled map[string]struct{}

	wg sync.WaitGroup
}

// NewScheduler builds a scheduler ticking at the given cadence.
func NewScheduler(st *store.Store, engine *Engine, queue *Queue, log logging.Logger, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		store:   st,
		engine:  engine,
		queue:   queue,
		log:     log,
		tick:    tick,
		now:     func() time.Time { return time.Now().UTC() },
		enabled: make(map[string]struct{}),
	}
}

// Enable adds the target to the scheduling set. It does not itself trigger
// a pass; the next tick decides.
func (s *Scheduler) Enable(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[targetID] = struct{}{}
}

// Disable removes the target from the scheduling set. An in-flight pass for
// the target is not cancelled.
func (s *Scheduler) Disable(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enabled, targetID)
}

// IsEnabled reports whether the target is in the scheduling set.
func (s *Scheduler) IsEnabled(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.enabled[targetID]
	return ok
}

// Run ticks until the context is cancelled, then waits for in-flight passes
// to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info(ctx, "scheduler started", "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue launches a pass for every enabled, active, due target that the
// queue admits. A rejected acquire is not an error; the target is simply
// retried on a later tick.
func (s *Scheduler) runDue(ctx context.Context) {
	targets, err := s.store.Targets.ListActive(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to list sync targets", "error", err)
		return
	}

	for _, cfg := range targets {
		if !s.IsEnabled(cfg.ID) {
			continue
		}
		due, err := s.isSyncDue(ctx, cfg.ID)
		if err != nil {
			s.log.Error(ctx, "failed to compute sync due", "target", cfg.Name, "error", err)
			continue
		}
		if !due {
			continue
		}

		guard, ok := s.queue.Acquire(cfg.ID)
		if !ok {
			s.log.Debug(ctx, "sync slot unavailable", "target", cfg.Name)
			continue
		}

		cfg := cfg
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer guard.Release()
			if _, err := s.engine.RunPass(ctx, cfg); err != nil {
				if errors.Is(err, common.ErrMasterPasswordRequired) {
					s.log.Warn(ctx, "sync deferred until unlock", "target", cfg.Name)
					return
				}
				s.log.Error(ctx, "sync pass error", "target", cfg.Name, "error", err)
			}
		}()
	}
}

// isSyncDue decides from the most recent SyncLog and the target's settings.
// Never synced is due; a last pass that never completed (crashed or still
// running) is due; otherwise due once the interval has elapsed since the
// last completion.
func (s *Scheduler) isSyncDue(ctx context.Context, targetID string) (bool, error) {
	settings, err := s.store.Settings.GetForTarget(ctx, targetID)
	if err != nil {
		return false, err
	}
	if !settings.AutoSyncEnabled {
		return false, nil
	}

	last, err := s.store.SyncLogs.GetLatest(ctx, targetID)
	if err != nil {
		return false, err
	}
	if last == nil || last.CompletedAt == nil {
		return true, nil
	}
	return !s.now().Before(last.CompletedAt.Add(settings.Interval())), nil
}
