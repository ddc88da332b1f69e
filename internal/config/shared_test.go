package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New(), []string{t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, "sim", cfg.Player.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, time.Second, cfg.Player.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Player.StallTimeout)
	assert.True(t, cfg.Player.StartMuted)
	assert.Equal(t, 5.0, cfg.Player.SkipSeconds)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PLAYER_PLAYER_BACKEND", "mpv")
	t.Setenv("PLAYER_PLAYER_POLL_INTERVAL", "250ms")
	t.Setenv("PLAYER_CATALOG_CATEGORY", "Movies")

	cfg, err := load(viper.New(), []string{t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "mpv", cfg.Player.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Player.PollInterval)
	assert.Equal(t, "Movies", cfg.Catalog.Category)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("server:\n  addr: \":9000\"\nplayer:\n  start_muted: false\n  skip_seconds: 10\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o644))

	cfg, err := load(viper.New(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.False(t, cfg.Player.StartMuted)
	assert.Equal(t, 10.0, cfg.Player.SkipSeconds)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Player.Backend = "vlc" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "gcs" }},
		{"s3 without key", func(c *Config) { c.Storage.Provider = "s3" }},
		{"zero poll", func(c *Config) { c.Player.PollInterval = 0 }},
		{"zero skip", func(c *Config) { c.Player.SkipSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(viper.New(), []string{t.TempDir()})
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
