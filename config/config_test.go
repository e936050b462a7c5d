package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, runtime.NumCPU(), cfg.WorkerCount())
	assert.Equal(t, filepath.Join("out", "progress.db"), cfg.CheckpointPath())
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anvil2voxel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
world: /data/worlds/city
output: /data/out
workers: 6
dimension: DIM-1
checkpoint: /data/state.db
retry_failed: true
`), 0o644))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/worlds/city", cfg.World)
	assert.Equal(t, 6, cfg.WorkerCount())
	assert.Equal(t, "DIM-1", cfg.Dimension)
	assert.Equal(t, "/data/state.db", cfg.CheckpointPath())
	assert.True(t, cfg.RetryFailed)
	// untouched keys keep their defaults
	assert.Equal(t, 24, cfg.MaxSections)
	assert.Equal(t, filepath.Join("assets", "blockstates.txt"), cfg.Registry)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
