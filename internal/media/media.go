// Package media opens the configured playback backend.
package media

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"momo-player/internal/config"
	plog "momo-player/internal/log"
	"momo-player/internal/media/mpv"
	"momo-player/internal/media/sim"
	"momo-player/internal/player"
)

// Backend is an element that owns a process or goroutines.
type Backend interface {
	player.Element
	Close() error
}

// Open starts the backend named by player.backend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	logger := plog.WithComponent("media")

	switch cfg.Player.Backend {
	case "sim":
		fallback := cfg.Player.SimDuration.Seconds()
		var mu sync.Mutex
		probed := make(map[string]float64)
		return sim.New(sim.Options{
			DurationOf: func(src string) float64 {
				if strings.Contains(src, "://") {
					return fallback
				}
				mu.Lock()
				d, ok := probed[src]
				mu.Unlock()
				if ok {
					return d
				}
				d, err := Probe(ctx, src)
				if err != nil || d <= 0 {
					logger.Debug().Err(err).Str("source", src).Msg("using simulated duration")
					d = fallback
				}
				mu.Lock()
				probed[src] = d
				mu.Unlock()
				return d
			},
		}), nil
	case "mpv":
		c, err := mpv.Launch(ctx, cfg.Player.MPVPath, cfg.Player.MPVSocket)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("socket", cfg.Player.MPVSocket).Msg("mpv started")
		return c, nil
	default:
		return nil, fmt.Errorf("unknown player backend %q", cfg.Player.Backend)
	}
}
