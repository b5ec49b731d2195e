package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arclight-Systems/casetrail/pkg/storage"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 5, cfg.ExportRateLimitPerHour)
	assert.Equal(t, 50_000, cfg.ExportMaxRows)
	assert.Equal(t, 15, cfg.DownloadTTLMinutes)
	assert.Equal(t, "casetrail:export_jobs", cfg.QueueName)
	assert.Equal(t, storage.BackendFS, cfg.Storage.Backend)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("EXPORT_RATE_LIMIT_PER_HOUR", "10")
	t.Setenv("EXPORT_MAX_ROWS", "1000")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("STORAGE_S3_BUCKET", "casetrail-exports")

	cfg := Load()
	assert.Equal(t, 10, cfg.ExportRateLimitPerHour)
	assert.Equal(t, 1000, cfg.ExportMaxRows)
	assert.Equal(t, storage.BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "casetrail-exports", cfg.Storage.S3Bucket)
}

func TestLoadIgnoresMalformedInts(t *testing.T) {
	t.Setenv("EXPORT_MAX_ROWS", "plenty")
	cfg := Load()
	assert.Equal(t, 50_000, cfg.ExportMaxRows)
}

func TestProfileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: eu-sovereign
environment: production
export:
  rate_limit_per_hour: 2
  max_rows: 20000
storage:
  backend: gcs
  gcs_bucket: casetrail-eu
`), 0o644))
	t.Setenv("CASETRAIL_PROFILE", path)

	cfg := Load()
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 2, cfg.ExportRateLimitPerHour)
	assert.Equal(t, 20_000, cfg.ExportMaxRows)
	// Unset overlay values keep their env-derived defaults.
	assert.Equal(t, 15, cfg.DownloadTTLMinutes)
	assert.Equal(t, storage.BackendGCS, cfg.Storage.Backend)
	assert.Equal(t, "casetrail-eu", cfg.Storage.GCSBucket)
}

func TestProfileLoadErrors(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	_, err = LoadProfile(path)
	assert.Error(t, err)
}

func TestBrokenProfileFallsBackToEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	t.Setenv("CASETRAIL_PROFILE", path)
	t.Setenv("EXPORT_RATE_LIMIT_PER_HOUR", "7")

	cfg := Load()
	assert.Equal(t, 7, cfg.ExportRateLimitPerHour)
}
