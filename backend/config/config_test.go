package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, []string{"NAVIGATE"}, cfg.Gate.GatedActions)
	assert.Equal(t, "drop", cfg.Gate.OverlapPolicy)
	assert.Equal(t, "any", cfg.Gate.Match)
	assert.Equal(t, 2*time.Minute, cfg.Gate.ConfirmTTL)
	assert.Equal(t, 30*time.Minute, cfg.Registry.IdleTimeout)
	assert.Equal(t, 600, cfg.Ingest.RatePerMin)
	assert.Equal(t, "link", cfg.Brain.Engine)
	assert.Equal(t, "dev-secret", cfg.JWT.Secret)
	assert.Equal(t, "admin", cfg.Auth.BootstrapUser)
	assert.Empty(t, cfg.Auth.BootstrapPassword)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
backend:
  http:
    port: 9000
  db:
    driver: none
  gate:
    gated_actions: [NAVIGATE, CLICK]
    overlap_policy: queue
    match: prefix
    confirm_ttl: 0s
  brain:
    engine: noop
`)
	t.Setenv("RELAY_BACKEND_JWT_SECRET", "from-env")
	t.Setenv("RELAY_BACKEND_HTTP_HOST", "0.0.0.0")
	t.Setenv("RELAY_BACKEND_AUTH_BOOTSTRAP_PASSWORD", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, "none", cfg.DB.Driver)
	assert.Equal(t, []string{"NAVIGATE", "CLICK"}, cfg.Gate.GatedActions)
	assert.Equal(t, "queue", cfg.Gate.OverlapPolicy)
	assert.Equal(t, "prefix", cfg.Gate.Match)
	assert.Equal(t, time.Duration(0), cfg.Gate.ConfirmTTL)
	assert.Equal(t, "noop", cfg.Brain.Engine)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "s3cret", cfg.Auth.BootstrapPassword)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, dir, "backend:\n  gate:\n    match: fuzzy\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "match mode")
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "backend:\n  gate:\n    match: any\n")

	var (
		mu   sync.Mutex
		seen []string
	)
	require.NoError(t, Watch(path, func(c *Config) {
		mu.Lock()
		seen = append(seen, c.Gate.Match)
		mu.Unlock()
	}, nil))

	// give the watcher a moment to attach before editing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  gate:\n    match: exact\n"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range seen {
			if m == "exact" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}
