package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfrdev/folder-sync/internal/config"
)

func testConfig(t *testing.T, once bool) *config.Config {
	t.Helper()
	tmp := t.TempDir()
	cfg := &config.Config{
		SourceDir:  filepath.Join(tmp, "src"),
		ReplicaDir: filepath.Join(tmp, "dst"),
		Interval:   time.Hour,
		LogFile:    filepath.Join(tmp, "sync.log"),
		Once:       once,
	}
	require.NoError(t, os.MkdirAll(cfg.SourceDir, 0o755))
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestManager_OncePassEndToEnd(t *testing.T) {
	cfg := testConfig(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceDir, "a.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.SourceDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceDir, "sub", "b.txt"), []byte("bye"), 0o644))

	mgr, err := NewManager(cfg, testLogger())
	require.NoError(t, err)

	require.NoError(t, mgr.Start(context.Background()))

	data, err := os.ReadFile(filepath.Join(cfg.ReplicaDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	data, err = os.ReadFile(filepath.Join(cfg.ReplicaDir, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))

	// the lock is released after the run
	assert.NoFileExists(t, cfg.ReplicaDir+".lock")
}

func TestManager_RefusesLockedReplica(t *testing.T) {
	cfg := testConfig(t, true)

	held := NewReplicaLock(cfg.ReplicaDir)
	require.NoError(t, held.Lock())
	t.Cleanup(func() { _ = held.Unlock() })

	mgr, err := NewManager(cfg, testLogger())
	require.NoError(t, err)

	err = mgr.Start(context.Background())
	assert.ErrorIs(t, err, ErrReplicaLocked)
}
