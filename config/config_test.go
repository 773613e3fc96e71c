package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 840, cfg.SoftTimeLimitSeconds)
	assert.Equal(t, 900, cfg.HardTimeLimitSeconds)
	assert.GreaterOrEqual(t, cfg.SyncWorkers, 1)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAILGRAPH_LOG_LEVEL", "debug")
	t.Setenv("MAILGRAPH_BATCH_SIZE", "10")
	t.Setenv("MAILGRAPH_POSTGRES_DSN", "postgres://localhost/mailgraph?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, "postgres://localhost/mailgraph?sslmode=disable", cfg.PostgresDSN)

	// Untouched keys keep their defaults
	assert.Equal(t, 100, cfg.PageSize)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mailgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\npage_size: 25\n"), 0o644))

	t.Setenv("MAILGRAPH_CONFIG", path)
	t.Setenv("MAILGRAPH_LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)

	// Env wins over file, file wins over defaults
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 25, cfg.PageSize)
}

func TestValidate(t *testing.T) {
	cfg := New()
	cfg.StoragePath = ""
	cfg.PostgresDSN = ""
	assert.Error(t, cfg.Validate())

	cfg = New()
	cfg.PageSize = 0
	assert.Error(t, cfg.Validate())

	cfg = New()
	cfg.HardTimeLimitSeconds = 100
	cfg.SoftTimeLimitSeconds = 200
	assert.Error(t, cfg.Validate())
}
