package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics
var (
	playsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "player_plays_recorded_total", Help: "Videos played to the end"},
	)
	publishTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "player_now_playing_publish_total", Help: "now_playing.json uploads"},
	)
	persistErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "player_persist_errors_total", Help: "Failed state writes"},
		[]string{"what"},
	)
)

var registerOnce sync.Once

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(playsRecorded, publishTotal, persistErrors)
	})
}
