package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/jpfrdev/folder-sync/internal/config"
)

// Manager owns the mirror pipeline: the replica lock, the reconciliation
// engine, the pass scheduler, and the optional source watcher.
type Manager struct {
	cfg       *config.Config
	log       *slog.Logger
	lock      *ReplicaLock
	engine    *Engine
	scheduler *Scheduler
	watcher   *FileWatcher
}

func NewManager(cfg *config.Config, log *slog.Logger) (*Manager, error) {
	fs := afero.NewOsFs()

	ignore := NewIgnoreList(fs, log, cfg.SourceDir, cfg.Excludes)
	ignore.Load()

	hasher := NewHasher(fs, log)
	if cfg.HashCache > 0 {
		if err := hasher.EnableCache(cfg.HashCache); err != nil {
			return nil, fmt.Errorf("failed to enable hash cache: %w", err)
		}
	}

	engine := NewEngine(fs, hasher, ignore, log, cfg.SourceDir, cfg.ReplicaDir)
	engine.SetDryRun(cfg.DryRun)

	m := &Manager{
		cfg:       cfg,
		log:       log,
		lock:      NewReplicaLock(cfg.ReplicaDir),
		engine:    engine,
		scheduler: NewScheduler(engine, log, cfg.Interval, cfg.Once),
	}

	if cfg.Watch {
		m.watcher = NewFileWatcher(cfg.SourceDir, log)
		m.watcher.FilterPaths(ignore.ShouldIgnore)
	}

	return m, nil
}

// Start acquires the replica lock and blocks until the context is
// cancelled, a pass fails fatally, or the single pass finishes in once
// mode.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("sync manager start",
		"source", m.cfg.SourceDir,
		"replica", m.cfg.ReplicaDir,
		"interval", m.cfg.Interval,
	)

	if err := m.lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.log.Warn("failed to release replica lock", "error", err)
		}
	}()

	eg, egCtx := errgroup.WithContext(ctx)

	if m.watcher != nil {
		if err := m.watcher.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
		defer m.watcher.Stop()

		eg.Go(func() error {
			for {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				case event, ok := <-m.watcher.Events():
					if !ok {
						return nil
					}
					m.log.Debug("source changed", "path", event.Path())
					m.scheduler.Nudge()
				}
			}
		})
	}

	eg.Go(func() error {
		return m.scheduler.Run(egCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		m.log.Error("sync manager failure", "error", err)
		return err
	}

	m.log.Info("sync manager stopped")
	return nil
}
