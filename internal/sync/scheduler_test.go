package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	mu     sync.Mutex
	passes int
	err    error
}

func (f *fakeSyncer) Sync(ctx context.Context) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes++
	if f.err != nil {
		return nil, f.err
	}
	return &Result{}, nil
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passes
}

func TestScheduler_OnceMode(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(syncer, testLogger(), time.Hour, true)

	err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, syncer.count())
}

func TestScheduler_PeriodicPasses(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(syncer, testLogger(), 20*time.Millisecond, false)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, syncer.count(), 3)
}

func TestScheduler_FatalPassStops(t *testing.T) {
	boom := errors.New("boom")
	syncer := &fakeSyncer{err: boom}
	s := NewScheduler(syncer, testLogger(), 10*time.Millisecond, false)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, syncer.count())
}

func TestScheduler_NudgeTriggersExtraPass(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(syncer, testLogger(), time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return syncer.count() == 1 }, time.Second, 5*time.Millisecond)

	s.Nudge()
	require.Eventually(t, func() bool { return syncer.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
