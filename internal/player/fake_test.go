package player

import (
	"sync"
	"time"
)

// fakeElement is an in-memory Element. Signals are only delivered when the
// test calls fire.
type fakeElement struct {
	mu         sync.Mutex
	paused     bool
	time       float64
	duration   float64
	volume     float64
	muted      bool
	rate       float64
	fullscreen bool
	loads      []string
	seeks      []float64
	playErr    error

	nextID int
	subs   map[int]func(Event)
}

func newFakeElement() *fakeElement {
	return &fakeElement{paused: true, volume: 1, rate: 1, subs: make(map[int]func(Event))}
}

func (f *fakeElement) Load(src string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, src)
	f.paused = true
	f.time = 0
	f.duration = 0
	return nil
}

func (f *fakeElement) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.paused = false
	return nil
}

func (f *fakeElement) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	return nil
}

func (f *fakeElement) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeElement) Seek(s float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.time = s
	f.seeks = append(f.seeks, s)
	return nil
}

func (f *fakeElement) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.time
}

func (f *fakeElement) Duration() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeElement) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
	return nil
}

func (f *fakeElement) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeElement) SetMuted(m bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = m
	return nil
}

func (f *fakeElement) Muted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted
}

func (f *fakeElement) SetPlaybackRate(r float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = r
	return nil
}

func (f *fakeElement) PlaybackRate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeElement) RequestFullscreen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullscreen = true
	return nil
}

func (f *fakeElement) ExitFullscreen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullscreen = false
	return nil
}

func (f *fakeElement) Fullscreen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullscreen
}

func (f *fakeElement) Subscribe(fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeElement) fire(t EventType) {
	f.mu.Lock()
	fns := make([]func(Event), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(Event{Type: t})
	}
}

func (f *fakeElement) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// ready simulates media that finished loading with a known duration.
func (f *fakeElement) ready(duration float64) {
	f.mu.Lock()
	f.duration = duration
	f.mu.Unlock()
	f.fire(EventLoadedMetadata)
	f.fire(EventCanPlay)
}

func (f *fakeElement) setTime(t float64) {
	f.mu.Lock()
	f.time = t
	f.mu.Unlock()
}

func (f *fakeElement) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

// fakeClock hands out tickers that only fire on tick.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// tick delivers one tick to the newest live ticker. It returns false when
// nothing is listening.
func (c *fakeClock) tick() bool {
	c.mu.Lock()
	var live *fakeTicker
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if !c.tickers[i].isStopped() {
			live = c.tickers[i]
			break
		}
	}
	now := c.now
	c.mu.Unlock()
	if live == nil {
		return false
	}
	select {
	case live.ch <- now:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func (c *fakeClock) liveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (f *fakeElement) loaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}
