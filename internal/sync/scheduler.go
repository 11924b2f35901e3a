package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var ErrSyncAlreadyRunning = errors.New("sync already running")

// Syncer runs one reconciliation pass.
type Syncer interface {
	Sync(ctx context.Context) (*Result, error)
}

// Scheduler drives a Syncer: one pass immediately on start, then one pass
// per interval, plus on-demand passes via Nudge. Passes never overlap.
type Scheduler struct {
	syncer   Syncer
	log      *slog.Logger
	interval time.Duration
	once     bool
	nudge    chan struct{}
	muSync   sync.Mutex
}

func NewScheduler(syncer Syncer, log *slog.Logger, interval time.Duration, once bool) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		log:      log,
		interval: interval,
		once:     once,
		nudge:    make(chan struct{}, 1),
	}
}

// Nudge requests an extra pass as soon as the scheduler is idle. It never
// blocks; one pending request is enough.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, a pass fails fatally, or the single
// requested pass finishes in once mode.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.runPass(ctx); err != nil {
		return err
	}
	if s.once {
		return nil
	}

	// a timer instead of a ticker, so a pass slower than the interval
	// never has ticks queued behind it
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := s.runPass(ctx); err != nil {
				return err
			}
			timer.Reset(s.interval)
		case <-s.nudge:
			if err := s.runPass(ctx); err != nil {
				return err
			}
			timer.Reset(s.interval)
		}
	}
}

// runPass executes one reconciliation pass with summary logging. A non-nil
// error is fatal and stops the scheduler.
func (s *Scheduler) runPass(ctx context.Context) error {
	if !s.muSync.TryLock() {
		return ErrSyncAlreadyRunning
	}
	defer s.muSync.Unlock()

	log := s.log.With("passId", uuid.NewString())
	log.Debug("sync pass started")

	start := time.Now()
	res, err := s.syncer.Sync(ctx)
	took := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Error("sync pass failed", "took", took, "error", err)
		return err
	}

	log.Info("sync pass finished",
		"took", took,
		"dirs", res.Dirs,
		"copied", res.Copied,
		"updated", res.Updated,
		"replaced", res.Replaced,
		"skipped", res.Skipped,
		"deleted", res.Deleted,
		"errors", res.Errors,
		"bytes", humanize.Bytes(uint64(res.Bytes)),
	)
	return nil
}
