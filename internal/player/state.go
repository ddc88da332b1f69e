package player

import (
	"fmt"
	"math"
)

// Volume level indicator values.
const (
	VolumeMuted = "muted"
	VolumeLow   = "low"
	VolumeHigh  = "high"
)

// State is a snapshot of the controller's mirrored view of the element.
type State struct {
	EntryID               string     `json:"entry_id"`
	Attached              bool       `json:"attached"`
	Playing               bool       `json:"playing"`
	Muted                 bool       `json:"muted"`
	Volume                float64    `json:"volume"`
	VolumeLevel           string     `json:"volume_level"`
	PlaybackRate          float64    `json:"playback_rate"`
	CurrentTime           float64    `json:"current_time"`
	Duration              float64    `json:"duration"`
	Fullscreen            bool       `json:"fullscreen"`
	Loading               bool       `json:"loading"`
	Stalled               bool       `json:"stalled"`
	Error                 string     `json:"error,omitempty"`
	Scrub                 ScrubPhase `json:"scrub"`
	WasPlayingBeforeScrub bool       `json:"was_playing_before_scrub"`
}

// Scrubbing reports whether a timeline drag is in progress.
func (s State) Scrubbing() bool {
	return s.Scrub == ScrubScrubbing
}

// Progress is the played share of the video in percent, 0 while the
// duration is unknown.
func (s State) Progress() float64 {
	if !knownDuration(s.Duration) {
		return 0
	}
	return clamp(s.CurrentTime/s.Duration*100, 0, 100)
}

// VolumeLevelFor reads "muted" whenever muted is set or the volume is zero.
func VolumeLevelFor(muted bool, volume float64) string {
	switch {
	case muted || volume == 0:
		return VolumeMuted
	case volume > 0.5:
		return VolumeHigh
	default:
		return VolumeLow
	}
}

// FormatTime renders seconds as MM:SS, or HH:MM:SS from one hour on.
// Negative and non-finite input renders as "00:00".
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
