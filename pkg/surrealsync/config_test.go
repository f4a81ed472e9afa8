package surrealsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surrealsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
postgres:
  dsn: postgres://app@db/app
document_store: memory
sync:
  conflict_policy: document_wins
  guard_ttl: 3s
  max_retries: 8
server:
  addr: 127.0.0.1:9090
`), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db/app", config.Postgres.DSN)
	assert.Equal(t, DocumentStoreMemory, config.DocumentStore)
	assert.Equal(t, "document_wins", config.Sync.ConflictPolicy)
	assert.Equal(t, 3*time.Second, config.Sync.GuardTTL)
	assert.Equal(t, 8, config.Sync.MaxRetries)
	assert.Equal(t, "127.0.0.1:9090", config.Server.Addr)

	// Unset keys keep their defaults.
	assert.Equal(t, "relational", config.Sync.TieBreak)
	assert.Equal(t, "surrealsync", config.SurrealDB.Namespace)
	require.NoError(t, config.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync: [not, a, map]"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://env@db/env")
	t.Setenv("SURREALDB_URL", "ws://surreal:8000/rpc")
	t.Setenv("SURREALDB_NS", "ns")
	t.Setenv("SURREALSYNC_GUARD_TTL", "2s")
	t.Setenv("SURREALSYNC_READ_ONLY", "true")
	t.Setenv("SURREALDB_DB", "")

	config := DefaultConfig()
	require.NoError(t, config.ApplyEnv())
	assert.Equal(t, "postgres://env@db/env", config.Postgres.DSN)
	assert.Equal(t, "ws://surreal:8000/rpc", config.SurrealDB.URL)
	assert.Equal(t, "ns", config.SurrealDB.Namespace)
	assert.Equal(t, "surrealsync", config.SurrealDB.Database)
	assert.Equal(t, 2*time.Second, config.Sync.GuardTTL)
	assert.True(t, config.ReadOnly)
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("SURREALSYNC_GUARD_TTL", "soon")
	t.Setenv("SURREALSYNC_MAX_RETRIES", "many")
	err := DefaultConfig().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SURREALSYNC_GUARD_TTL")
	assert.Contains(t, err.Error(), "SURREALSYNC_MAX_RETRIES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown policy", func(c *Config) { c.Sync.ConflictPolicy = "merge" }},
		{"unknown tie break", func(c *Config) { c.Sync.TieBreak = "coin" }},
		{"zero guard ttl", func(c *Config) { c.Sync.GuardTTL = 0 }},
		{"missing dsn", func(c *Config) { c.Postgres.DSN = "" }},
		{"unknown document store", func(c *Config) { c.DocumentStore = "firestore" }},
		{"missing surrealdb url", func(c *Config) { c.SurrealDB.URL = "" }},
		{"max below initial backoff", func(c *Config) { c.Sync.MaxBackoff = time.Second }},
		{"bad addr", func(c *Config) { c.Server.Addr = "localhost" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}

	// The SurrealDB settings are only required for the surrealdb backend.
	config := DefaultConfig()
	config.DocumentStore = DocumentStoreMemory
	config.SurrealDB.URL = ""
	assert.NoError(t, config.Validate())
}
