package sync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/jpfrdev/folder-sync/internal/utils"
)

var ErrReplicaLocked = errors.New("replica is locked by another process")

// ReplicaLock guards a replica directory against concurrent mirror
// processes. The lock file lives NEXT TO the replica root, not inside it,
// so the sweep never sees it as an orphan.
type ReplicaLock struct {
	lock *flock.Flock
}

func NewReplicaLock(replicaDir string) *ReplicaLock {
	return &ReplicaLock{
		lock: flock.New(filepath.Clean(replicaDir) + ".lock"),
	}
}

// Lock acquires the replica lock without blocking. It returns
// ErrReplicaLocked when another process already holds it.
func (r *ReplicaLock) Lock() error {
	if err := utils.EnsureDir(filepath.Dir(r.lock.Path())); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := r.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire replica lock: %w", err)
	}
	if !locked {
		return ErrReplicaLocked
	}
	return nil
}

// Unlock releases the lock and removes the lock file. It is a no-op when
// the lock is not held.
func (r *ReplicaLock) Unlock() error {
	if !r.lock.Locked() {
		return nil
	}
	if err := r.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release replica lock: %w", err)
	}
	if err := os.Remove(r.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
