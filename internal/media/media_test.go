package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momo-player/internal/config"
)

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("12.480000\n")
	require.NoError(t, err)
	assert.Equal(t, 12.48, d)

	_, err = parseDuration("N/A\n")
	assert.Error(t, err)
	_, err = parseDuration("abc")
	assert.Error(t, err)
}

func TestProbeMissingFile(t *testing.T) {
	_, err := Probe(context.Background(), "/does/not/exist.mp4")
	assert.Error(t, err)
}

func TestOpenSimFallsBackToConfiguredDuration(t *testing.T) {
	cfg := &config.Config{}
	cfg.Player.Backend = "sim"
	cfg.Player.SimDuration = 90 * time.Second

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Load("https://cdn.example.com/a.mp4"))
	require.Eventually(t, func() bool { return b.Duration() == 90 }, time.Second, 5*time.Millisecond)
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Player.Backend = "vlc"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
