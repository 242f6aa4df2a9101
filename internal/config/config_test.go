package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "simple", cfg.Run.Profile)
	assert.Equal(t, 10, cfg.Simple.Weights.GetRecord)
	assert.Equal(t, 5, cfg.Simple.Weights.CreateRecord)
	assert.Equal(t, 50, cfg.Simple.MaxRecordsPerStore)
	assert.Equal(t, 30*time.Second, cfg.Simple.VerifyInterval)
	assert.Len(t, cfg.Simple.GameIDs, 5)
	assert.False(t, cfg.Simple.CleanupEnabled, "cleanup defaults off, test data accumulates")
	assert.Equal(t, "opensaves", cfg.Run.CSVPrefix)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "savesbench.yaml")
	data := `
target:
  base_url: http://opensaves.test:8080
  timeout: 5s
run:
  profile: structured
  users: 25
  duration: 2m
simple:
  blob_size_kb: 64
  cleanup_enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://opensaves.test:8080", cfg.Target.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Target.Timeout)
	assert.Equal(t, "structured", cfg.Run.Profile)
	assert.Equal(t, 25, cfg.Run.Users)
	assert.Equal(t, 64, cfg.Simple.BlobSizeKB)
	assert.True(t, cfg.Simple.CleanupEnabled)

	// Untouched fields keep defaults.
	assert.Equal(t, 10, cfg.Simple.Weights.GetRecord)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAVESBENCH_BASE_URL", "http://env.test:9000")
	t.Setenv("SAVESBENCH_USERS", "99")
	t.Setenv("SAVESBENCH_DURATION", "90s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://env.test:9000", cfg.Target.BaseURL)
	assert.Equal(t, 99, cfg.Run.Users)
	assert.Equal(t, 90*time.Second, cfg.Run.Duration)
}

func TestValidate(t *testing.T) {
	t.Run("rejects unknown profile", func(t *testing.T) {
		cfg := Default()
		cfg.Run.Profile = "chaos"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects inverted wait bounds", func(t *testing.T) {
		cfg := Default()
		cfg.Run.WaitMin = 5 * time.Second
		cfg.Run.WaitMax = time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects sample rate above one", func(t *testing.T) {
		cfg := Default()
		cfg.Verify.SchemaSampleRate = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects empty game id list", func(t *testing.T) {
		cfg := Default()
		cfg.Simple.GameIDs = nil
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
