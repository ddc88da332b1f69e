package player

import "encoding/json"

// ScrubPhase is the timeline drag sub-state.
type ScrubPhase int

const (
	ScrubIdle ScrubPhase = iota
	ScrubScrubbing
	ScrubCommitting
)

func (p ScrubPhase) String() string {
	switch p {
	case ScrubScrubbing:
		return "scrubbing"
	case ScrubCommitting:
		return "committing"
	default:
		return "idle"
	}
}

func (p ScrubPhase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *ScrubPhase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "scrubbing":
		*p = ScrubScrubbing
	case "committing":
		*p = ScrubCommitting
	default:
		*p = ScrubIdle
	}
	return nil
}

// Pointer is a pointer position over the timeline, all in the same units
// (usually CSS pixels).
type Pointer struct {
	X     float64 `json:"x"`
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// Fraction maps the pointer onto [0,1] along the timeline.
func (p Pointer) Fraction() float64 {
	if p.Width <= 0 {
		return 0
	}
	return clamp((p.X-p.Left)/p.Width, 0, 1)
}

// scrubber tracks one drag: idle -> scrubbing -> committing -> idle.
type scrubber struct {
	phase      ScrubPhase
	wasPlaying bool
	time       float64
}

func (s *scrubber) begin(wasPlaying bool, t float64) {
	s.phase = ScrubScrubbing
	s.wasPlaying = wasPlaying
	s.time = t
}

// move updates the provisional time; false unless a drag is active.
func (s *scrubber) move(t float64) bool {
	if s.phase != ScrubScrubbing {
		return false
	}
	s.time = t
	return true
}

// commit enters the committing phase and returns the final seek time and
// whether playback must resume. ok is false when no drag was active.
func (s *scrubber) commit() (t float64, resume bool, ok bool) {
	if s.phase != ScrubScrubbing {
		return 0, false, false
	}
	s.phase = ScrubCommitting
	return s.time, s.wasPlaying, true
}

func (s *scrubber) finish() {
	if s.phase == ScrubCommitting {
		s.reset()
	}
}

func (s *scrubber) reset() {
	*s = scrubber{}
}

func (s *scrubber) active() bool {
	return s.phase != ScrubIdle
}
