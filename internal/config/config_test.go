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

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "prenos.sqlite3", cfg.DB.Path)
	assert.Equal(t, 5, cfg.Transfers.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Alerts.PendingCustomer)
	assert.Equal(t, 2*time.Hour, cfg.Alerts.Unconfirmed)
	assert.Equal(t, 24*time.Hour, cfg.Alerts.Stale)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prenos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: prod
http:
  addr: ":9090"
db:
  path: /var/lib/prenos/db.sqlite3
transfers:
  max_attempts: 3
alerts:
  pending_customer: 15m
`), 0o600))

	t.Setenv("PRENOS_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":7070", cfg.HTTP.Addr, "environment overrides the file")
	assert.Equal(t, "/var/lib/prenos/db.sqlite3", cfg.DB.Path)
	assert.Equal(t, 3, cfg.Transfers.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Alerts.PendingCustomer)
	assert.Equal(t, 2*time.Hour, cfg.Alerts.Unconfirmed)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("PRENOS_MAX_ATTEMPTS", "0")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestUsage(t *testing.T) {
	text, err := Usage()
	require.NoError(t, err)
	assert.Contains(t, text, "PRENOS_DB")
}
