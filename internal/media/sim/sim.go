// Package sim is a media element that plays nothing. Position advances in
// real time at the playback rate, which is enough to drive the controller
// end to end on a machine without a video output.
package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"momo-player/internal/media/pump"
	"momo-player/internal/player"
)

var (
	errNotLoaded = errors.New("no source loaded")
	errClosed    = errors.New("element closed")
)

// Options tune the simulated element.
type Options struct {
	// Tick is the position refresh period.
	Tick time.Duration
	// DurationOf returns the length in seconds of src. Non-positive means
	// the source cannot be played. It runs off the caller of Load and may
	// block.
	DurationOf func(src string) float64
	Now        func() time.Time
}

type Element struct {
	opts Options
	pump *pump.Pump

	mu         sync.Mutex
	src        string
	paused     bool
	pos        float64
	duration   float64
	volume     float64
	muted      bool
	rate       float64
	fullscreen bool
	lastTick   time.Time
	loadSeq    uint64

	done chan struct{}
	wg   sync.WaitGroup
}

var _ player.Element = (*Element)(nil)

func New(opts Options) *Element {
	if opts.Tick <= 0 {
		opts.Tick = 250 * time.Millisecond
	}
	if opts.DurationOf == nil {
		opts.DurationOf = func(string) float64 { return 120 }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Element{
		opts:     opts,
		pump:     pump.New(),
		paused:   true,
		duration: math.NaN(),
		volume:   1,
		rate:     1,
		done:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Close stops the clock and signal delivery.
func (e *Element) Close() error {
	select {
	case <-e.done:
		return nil
	default:
	}
	close(e.done)
	e.wg.Wait()
	e.pump.Stop()
	return nil
}

func (e *Element) run() {
	defer e.wg.Done()
	t := time.NewTicker(e.opts.Tick)
	defer t.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-t.C:
			e.advance()
		}
	}
}

func (e *Element) advance() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.opts.Now()
	if e.paused || e.src == "" || math.IsNaN(e.duration) {
		e.lastTick = now
		return
	}
	e.pos += now.Sub(e.lastTick).Seconds() * e.rate
	e.lastTick = now
	if !math.IsNaN(e.duration) && e.pos >= e.duration {
		e.pos = e.duration
		e.paused = true
		e.pump.Emit(player.Event{Type: player.EventTimeUpdate})
		e.pump.Emit(player.Event{Type: player.EventPause})
		e.pump.Emit(player.Event{Type: player.EventEnded})
		return
	}
	e.pump.Emit(player.Event{Type: player.EventTimeUpdate})
}

// Load replaces the source and returns at once. Metadata and can-play
// follow when the duration lookup finishes, unless another Load came first.
func (e *Element) Load(src string) error {
	select {
	case <-e.done:
		return errClosed
	default:
	}

	e.mu.Lock()
	e.src = src
	e.paused = true
	e.pos = 0
	e.duration = math.NaN()
	e.loadSeq++
	seq := e.loadSeq
	e.mu.Unlock()

	e.wg.Add(1)
	go e.open(seq, src)
	return nil
}

func (e *Element) open(seq uint64, src string) {
	defer e.wg.Done()
	d := e.opts.DurationOf(src)

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.loadSeq {
		return
	}
	if d <= 0 {
		e.pump.Emit(player.Event{Type: player.EventError, Err: errors.New("unsupported source: " + src)})
		return
	}
	e.duration = d
	e.lastTick = e.opts.Now()
	e.pump.Emit(player.Event{Type: player.EventLoadedMetadata})
	e.pump.Emit(player.Event{Type: player.EventCanPlay})
}

func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == "" {
		return errNotLoaded
	}
	if !e.paused {
		return nil
	}
	if !math.IsNaN(e.duration) && e.pos >= e.duration {
		e.pos = 0
	}
	e.paused = false
	e.lastTick = e.opts.Now()
	e.pump.Emit(player.Event{Type: player.EventPlay})
	return nil
}

func (e *Element) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return nil
	}
	e.paused = true
	e.pump.Emit(player.Event{Type: player.EventPause})
	return nil
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Element) Seek(s float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == "" {
		return errNotLoaded
	}
	if s < 0 {
		s = 0
	}
	if !math.IsNaN(e.duration) && s > e.duration {
		s = e.duration
	}
	e.pos = s
	e.lastTick = e.opts.Now()
	e.pump.Emit(player.Event{Type: player.EventTimeUpdate})
	return nil
}

func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *Element) SetVolume(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return errors.New("volume out of range")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
	return nil
}

func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Element) SetMuted(m bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = m
	return nil
}

func (e *Element) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *Element) SetPlaybackRate(r float64) error {
	if r <= 0 || math.IsNaN(r) {
		return errors.New("playback rate must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = r
	return nil
}

func (e *Element) PlaybackRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *Element) RequestFullscreen() error { return e.setFullscreen(true) }
func (e *Element) ExitFullscreen() error    { return e.setFullscreen(false) }

func (e *Element) setFullscreen(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fullscreen == on {
		return nil
	}
	e.fullscreen = on
	e.pump.Emit(player.Event{Type: player.EventFullscreenChange})
	return nil
}

func (e *Element) Fullscreen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullscreen
}

func (e *Element) Subscribe(fn func(player.Event)) func() {
	return e.pump.Subscribe(fn)
}
