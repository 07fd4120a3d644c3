package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Indexer.Backend)
	assert.Equal(t, 20, cfg.Search.PageSize)
	assert.Equal(t, "index-rebuild", cfg.Kafka.Topics.IndexRebuild)
	assert.Equal(t, 5*time.Second, cfg.Search.QueryTimeout)
	assert.Equal(t, time.Hour, cfg.Analytics.SnapshotInterval)
	assert.Equal(t, "configs/dictionary.txt", cfg.Indexer.DictPath)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songsearch.yaml")
	data := []byte(`
server:
  port: 9999
indexer:
  backend: bolt
  boltPath: /tmp/idx.db
search:
  pageSize: 50
  queryTimeout: 2s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("SS_LOGGING_LEVEL", "debug")
	t.Setenv("SS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, BackendBolt, cfg.Indexer.Backend)
	assert.Equal(t, "/tmp/idx.db", cfg.Indexer.BoltPath)
	assert.Equal(t, 50, cfg.Search.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Search.QueryTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory backend", func(c *Config) { c.Indexer.Backend = BackendMemory }, false},
		{"unknown backend", func(c *Config) { c.Indexer.Backend = "sqlite" }, true},
		{"admin keys need postgres", func(c *Config) {
			c.Indexer.Backend = BackendMemory
			c.Admin.RequireKey = true
		}, true},
		{"bolt without path", func(c *Config) {
			c.Indexer.Backend = BackendBolt
			c.Indexer.BoltPath = ""
		}, true},
		{"zero page size", func(c *Config) { c.Search.PageSize = 0 }, true},
		{"rate limit without window", func(c *Config) { c.RateLimit.Window = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
