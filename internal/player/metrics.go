package player

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics
var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "player_commands_total", Help: "Player commands by name"},
		[]string{"command"},
	)
	loadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "player_loads_total", Help: "Media sources loaded"},
	)
	autoAdvanceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "player_auto_advance_total", Help: "Ended signals that advanced the playlist"},
	)
	staleSignalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "player_stale_signals_total", Help: "Element signals dropped because they belong to a superseded load"},
	)
	supersededLoadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "player_superseded_loads_total", Help: "Resolved sources discarded because a newer selection arrived"},
	)
	stalledLoadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "player_stalled_loads_total", Help: "Loads that exceeded the stall timeout"},
	)
	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "player_load_duration_seconds",
			Help:    "Time from load to can-play",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers the player collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(commandsTotal, loadsTotal, autoAdvanceTotal,
			staleSignalsTotal, supersededLoadsTotal, stalledLoadsTotal, loadDuration)
	})
}
