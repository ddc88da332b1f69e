package player

import "math"

// EventType names a native media element signal.
type EventType string

const (
	EventCanPlay          EventType = "canplay"
	EventLoadedMetadata   EventType = "loadedmetadata"
	EventTimeUpdate       EventType = "timeupdate"
	EventEnded            EventType = "ended"
	EventPlay             EventType = "play"
	EventPause            EventType = "pause"
	EventFullscreenChange EventType = "fullscreenchange"
	EventError            EventType = "error"
)

// Event is a signal raised by an Element. Values are read back from the
// element itself; Err is only set for EventError.
type Event struct {
	Type EventType
	Err  error
}

// Element is the capability surface of a media playback engine. The
// element is the authority on position, duration, volume and pause state.
//
// Implementations must not invoke subscribers synchronously from inside a
// command method.
type Element interface {
	Load(source string) error
	Play() error
	Pause() error
	Paused() bool
	Seek(seconds float64) error
	CurrentTime() float64
	// Duration returns 0 or NaN while unknown.
	Duration() float64

	SetVolume(v float64) error
	Volume() float64
	SetMuted(m bool) error
	Muted() bool
	SetPlaybackRate(r float64) error
	PlaybackRate() float64

	RequestFullscreen() error
	ExitFullscreen() error
	Fullscreen() bool

	Subscribe(fn func(Event)) (unsubscribe func())
}

func knownDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
