package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.Window.Cap)
	assert.Equal(t, 4*time.Hour, cfg.Window.Retention.Std())
	assert.Equal(t, 30*time.Minute, cfg.Rules.AlphaWindow.Std())
	assert.Equal(t, 15*time.Minute, cfg.Notify.Cooldown.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.Roster.Interval.Std())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alphawatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
window:
  cap: 25
  retention: 2h
  op_timeout: 250ms
rules:
  alpha_window: 10m
  alpha_min_wallets: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25, cfg.Window.Cap)
	assert.Equal(t, 2*time.Hour, cfg.Window.Retention.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Window.OpTimeout.Std())
	assert.Equal(t, 10*time.Minute, cfg.Rules.AlphaWindow.Std())
	assert.Equal(t, 3, cfg.Rules.AlphaMinWallets)

	// Untouched sections keep their defaults.
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Window.Cap)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TELEGRAM_TOKEN", "tok-123")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "tok-123", cfg.Notify.TelegramToken)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero window cap":       func(c *Config) { c.Window.Cap = 0 },
		"zero retention":        func(c *Config) { c.Window.Retention = 0 },
		"oversized op timeout":  func(c *Config) { c.Window.OpTimeout = Duration(2 * time.Second) },
		"alpha wallets below 2": func(c *Config) { c.Rules.AlphaMinWallets = 1 },
		"zero queue size":       func(c *Config) { c.Notify.QueueSize = 0 },
		"invalid port":          func(c *Config) { c.HTTP.Port = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window:\n  retention: fourhours\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
