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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "marketplace", cfg.Mongo.Database)
	assert.Equal(t, "bulk_jobs", cfg.Mongo.JobsCollection)
	assert.Equal(t, 30*time.Second, cfg.Mongo.Timeout)
	assert.True(t, cfg.Mongo.Transactions)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 10, cfg.Bulk.ProgressInterval)
	assert.Equal(t, 100, cfg.Bulk.MaxErrors)
	assert.Equal(t, 100, cfg.Bulk.SyncItemLimit)
	assert.Equal(t, DispatchInline, cfg.Worker.Dispatch)
	assert.Equal(t, 2, cfg.Worker.Count)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MONGO_DATABASE", "shop")
	t.Setenv("MONGO_TIMEOUT", "5s")
	t.Setenv("BULK_SYNC_ITEM_LIMIT", "0")
	t.Setenv("WORKER_COUNT", "not-a-number")
	t.Setenv("DISPATCH_MODE", "RabbitMQ")
	t.Setenv("MONGO_TRANSACTIONS", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "shop", cfg.Mongo.Database)
	assert.Equal(t, 5*time.Second, cfg.Mongo.Timeout)
	assert.Equal(t, 0, cfg.Bulk.SyncItemLimit)
	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, DispatchRabbitMQ, cfg.Worker.Dispatch)
	assert.False(t, cfg.Mongo.Transactions)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("METRICS_ADDR=:9999\nBULK_MAX_ERRORS=5\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("METRICS_ADDR")
		os.Unsetenv("BULK_MAX_ERRORS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.MetricsAddr)
	assert.Equal(t, 5, cfg.Bulk.MaxErrors)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"DISPATCH_MODE":          "kafka",
		"BULK_PROGRESS_INTERVAL": "0",
		"BULK_MAX_ERRORS":        "-1",
		"BULK_SYNC_ITEM_LIMIT":   "-5",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
