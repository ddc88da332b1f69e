// Package player mirrors a media Element into a PlaybackState and exposes
// the transport commands (play/pause, mute, volume, speed, skip, scrub,
// fullscreen) that mutate the element and the state together.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	plog "momo-player/internal/log"
	"momo-player/internal/models"
	"momo-player/internal/playlist"
)

var errNoSource = errors.New("entry has no playable source")

// Selection is the part of the playlist store the controller drives.
type Selection interface {
	Current() (models.Video, bool)
	AdvanceFrom(id string) bool
	Subscribe(fn func(playlist.Change)) (unsubscribe func())
}

// Resolver turns an entry into the source handed to Element.Load.
type Resolver func(v models.Video) (string, error)

// Options tune a Controller. Zero values fall back to defaults.
type Options struct {
	Clock        Clock
	PollInterval time.Duration
	StallTimeout time.Duration
	StartMuted   bool
	SkipSeconds  float64
	Resolve      Resolver
	Logger       *zerolog.Logger
	// OnEnded is called with the entry id each time playback reaches the
	// end, before the playlist advances.
	OnEnded func(entryID string)
}

// Settings are the user preferences that survive a reload.
type Settings struct {
	Volume       float64 `json:"volume"`
	Muted        bool    `json:"muted"`
	PlaybackRate float64 `json:"playback_rate"`
}

// Controller owns the element handle and the mirrored PlaybackState.
type Controller struct {
	sel  Selection
	opts Options
	log  zerolog.Logger

	mu          sync.Mutex
	el          Element
	st          State
	scrub       scrubber
	gen         uint64
	loadStarted time.Time
	stallSeen   bool
	resolving   bool
	unsubEl     func()
	stopPoll    context.CancelFunc
	pollWG      sync.WaitGroup

	unsubSel func()

	lmu       sync.Mutex
	nextLID   int
	listeners map[int]func(State)
}

// New creates a controller bound to sel. Media is loaded once an element
// is attached.
func New(sel Selection, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.SkipSeconds <= 0 {
		opts.SkipSeconds = 5
	}
	if opts.Resolve == nil {
		opts.Resolve = func(v models.Video) (string, error) {
			if s := v.Source(); s != "" {
				return s, nil
			}
			return "", errNoSource
		}
	}
	l := plog.WithComponent("player")
	if opts.Logger != nil {
		l = *opts.Logger
	}

	c := &Controller{
		sel:       sel,
		opts:      opts,
		log:       l,
		listeners: make(map[int]func(State)),
	}
	c.st.Volume = 1
	c.st.Muted = opts.StartMuted
	c.st.PlaybackRate = 1
	if cur, ok := sel.Current(); ok {
		c.st.EntryID = cur.ID
		c.st.Loading = true
		c.loadStarted = opts.Clock.Now()
	}

	c.unsubSel = sel.Subscribe(c.onSelection)
	return c
}

// Restore applies persisted preferences. Call it before Attach.
func (c *Controller) Restore(s Settings) {
	c.mu.Lock()
	c.st.Volume = clamp(s.Volume, 0, 1)
	c.st.Muted = s.Muted || c.st.Volume == 0
	if s.PlaybackRate > 0 {
		c.st.PlaybackRate = s.PlaybackRate
	}
	if c.el != nil {
		c.applySettingsLocked()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

// Settings returns the current preferences.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Settings{Volume: c.st.Volume, Muted: c.st.Muted, PlaybackRate: c.st.PlaybackRate}
}

// Attach hands the controller an element and loads the current entry.
func (c *Controller) Attach(el Element) {
	c.Detach()

	c.mu.Lock()
	c.el = el
	c.st.Attached = true
	c.st.Fullscreen = el.Fullscreen()
	c.mu.Unlock()

	if cur, ok := c.sel.Current(); ok {
		c.load(cur)
		return
	}
	c.mu.Lock()
	c.applySettingsLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

// Detach drops the element, its listeners and the poll ticker. Commands
// become no-ops until the next Attach.
func (c *Controller) Detach() {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.el = nil
	c.st.Attached = false
	c.st.Playing = false
	c.scrub.reset()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.pollWG.Wait()
	c.emit(snap)
}

// Close detaches the element and stops following the playlist.
func (c *Controller) Close() {
	c.Detach()
	if c.unsubSel != nil {
		c.unsubSel()
	}
}

// State returns a snapshot of the playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnChange registers fn for every state change. The returned func removes it.
func (c *Controller) OnChange(fn func(State)) (unsubscribe func()) {
	c.lmu.Lock()
	id := c.nextLID
	c.nextLID++
	c.listeners[id] = fn
	c.lmu.Unlock()
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Controller) emit(s State) {
	c.lmu.Lock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (c *Controller) snapshotLocked() State {
	s := c.st
	s.Scrub = c.scrub.phase
	s.WasPlayingBeforeScrub = c.scrub.wasPlaying
	s.VolumeLevel = VolumeLevelFor(s.Muted, s.Volume)
	s.Stalled = s.Loading && c.stalledLocked()
	return s
}

func (c *Controller) stalledLocked() bool {
	if c.opts.StallTimeout <= 0 || c.loadStarted.IsZero() {
		return false
	}
	return c.opts.Clock.Now().Sub(c.loadStarted) >= c.opts.StallTimeout
}

func (c *Controller) onSelection(ch playlist.Change) {
	switch ch.Kind {
	case playlist.ChangeSelected:
		c.load(ch.Entry)
	case playlist.ChangeReordered:
		c.emit(c.State())
	}
}

// load supersedes whatever was loading before. The generation is taken
// before the source is resolved, so a slow resolve for an older selection
// is dropped once it returns instead of replacing the newer one.
func (c *Controller) load(entry models.Video) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.teardownLocked()

	c.scrub.reset()
	c.st.EntryID = entry.ID
	c.st.Playing = false
	c.st.Loading = true
	c.st.CurrentTime = 0
	c.st.Duration = 0
	c.st.Error = ""
	c.loadStarted = c.opts.Clock.Now()
	c.stallSeen = false

	if c.el == nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(snap)
		return
	}

	el := c.el
	c.resolving = true
	// Polls during the resolve only watch for a stall.
	c.startPollLocked(gen)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	src, resolveErr := c.opts.Resolve(entry)

	c.mu.Lock()
	if gen != c.gen || c.el != el {
		c.mu.Unlock()
		supersededLoadsTotal.Inc()
		c.log.Debug().Str("video", entry.ID).Msg("selection changed while resolving")
		return
	}
	c.resolving = false
	c.unsubEl = el.Subscribe(func(ev Event) { c.handleEvent(gen, ev) })

	if resolveErr != nil {
		// Left loading; surfaces as a stalled load.
		c.st.Error = resolveErr.Error()
		c.log.Warn().Err(resolveErr).Str("video", entry.ID).Msg("cannot resolve source")
	} else {
		loadsTotal.Inc()
		c.log.Info().Str("video", entry.ID).Str("source", src).Msg("loading")
		if err := el.Load(src); err != nil {
			c.st.Error = err.Error()
			c.log.Warn().Err(err).Str("video", entry.ID).Msg("load failed")
		} else {
			c.applySettingsLocked()
			if err := el.Play(); err != nil {
				c.log.Debug().Err(err).Msg("autoplay rejected")
			}
		}
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

func (c *Controller) applySettingsLocked() {
	if c.el == nil {
		return
	}
	if err := c.el.SetVolume(c.st.Volume); err != nil {
		c.log.Debug().Err(err).Msg("set volume")
	}
	if err := c.el.SetMuted(c.st.Muted); err != nil {
		c.log.Debug().Err(err).Msg("set muted")
	}
	if err := c.el.SetPlaybackRate(c.st.PlaybackRate); err != nil {
		c.log.Debug().Err(err).Msg("set playback rate")
	}
}

func (c *Controller) teardownLocked() {
	if c.unsubEl != nil {
		c.unsubEl()
		c.unsubEl = nil
	}
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
}

func (c *Controller) startPollLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopPoll = cancel
	t := c.opts.Clock.NewTicker(c.opts.PollInterval)

	c.pollWG.Add(1)
	go func() {
		defer c.pollWG.Done()
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				c.poll(gen)
			}
		}
	}()
}

func (c *Controller) poll(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.el == nil {
		c.mu.Unlock()
		return
	}
	changed := false
	if !c.scrub.active() && !c.resolving {
		if t := c.el.CurrentTime(); t != c.st.CurrentTime {
			c.st.CurrentTime = t
			changed = true
		}
	}
	if c.st.Loading && !c.stallSeen && c.stalledLocked() {
		c.stallSeen = true
		changed = true
		stalledLoadsTotal.Inc()
		c.log.Warn().Str("video", c.st.EntryID).Msg("load stalled")
	}
	if !changed {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

func (c *Controller) handleEvent(gen uint64, ev Event) {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return
	}
	if ev.Type == EventFullscreenChange {
		c.st.Fullscreen = c.el.Fullscreen()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(snap)
		return
	}
	if gen != c.gen {
		c.mu.Unlock()
		staleSignalsTotal.Inc()
		return
	}

	advance := false
	switch ev.Type {
	case EventCanPlay:
		if c.st.Loading {
			loadDuration.Observe(c.opts.Clock.Now().Sub(c.loadStarted).Seconds())
		}
		c.st.Loading = false
		// Autoplay may have been refused, or the user paused while loading.
		c.st.Playing = !c.el.Paused()
		c.st.Error = ""
		if d := c.el.Duration(); knownDuration(d) {
			c.st.Duration = d
		}
	case EventLoadedMetadata:
		if d := c.el.Duration(); knownDuration(d) {
			c.st.Duration = d
		}
	case EventTimeUpdate:
		if !c.scrub.active() {
			c.st.CurrentTime = c.el.CurrentTime()
		}
	case EventPlay, EventPause:
		if !c.st.Loading && !c.scrub.active() {
			c.st.Playing = !c.el.Paused()
		}
	case EventEnded:
		c.st.Playing = false
		if knownDuration(c.st.Duration) {
			c.st.CurrentTime = c.st.Duration
		}
		advance = true
	case EventError:
		if ev.Err != nil {
			c.st.Error = ev.Err.Error()
		} else {
			c.st.Error = "playback error"
		}
		c.log.Warn().Str("video", c.st.EntryID).Str("error", c.st.Error).Msg("element error")
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	if advance {
		if c.opts.OnEnded != nil {
			c.opts.OnEnded(snap.EntryID)
		}
		switch {
		case c.sel.AdvanceFrom(snap.EntryID):
			autoAdvanceTotal.Inc()
		case c.selectionMoved(snap.EntryID):
			c.log.Debug().Str("video", snap.EntryID).Msg("selection changed before advance")
		default:
			c.log.Info().Str("video", snap.EntryID).Msg("end of playlist")
		}
	}
}

func (c *Controller) selectionMoved(from string) bool {
	cur, ok := c.sel.Current()
	return ok && cur.ID != from
}

// command runs fn with the element under the lock and publishes the new
// state. It is a no-op while no element is attached.
func (c *Controller) command(name string, fn func(el Element)) {
	c.mu.Lock()
	if c.el == nil {
		c.mu.Unlock()
		return
	}
	commandsTotal.WithLabelValues(name).Inc()
	fn(c.el)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

// TogglePlay plays a paused element and pauses a playing one. The element's
// own pause state decides which.
func (c *Controller) TogglePlay() {
	c.command("toggle_play", func(el Element) {
		var err error
		if el.Paused() {
			err = el.Play()
		} else {
			err = el.Pause()
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("toggle play")
		}
		c.st.Playing = !el.Paused()
	})
}

// ToggleMute flips mute without touching the stored volume.
func (c *Controller) ToggleMute() {
	c.command("toggle_mute", func(el Element) {
		muted := !el.Muted()
		if err := el.SetMuted(muted); err != nil {
			c.log.Warn().Err(err).Msg("toggle mute")
			return
		}
		c.st.Muted = muted
	})
}

// SetVolume clamps v to [0,1]. Zero mutes, anything else unmutes.
func (c *Controller) SetVolume(v float64) {
	c.command("set_volume", func(el Element) {
		v = clamp(v, 0, 1)
		if err := el.SetVolume(v); err != nil {
			c.log.Warn().Err(err).Msg("set volume")
			return
		}
		muted := v == 0
		if err := el.SetMuted(muted); err != nil {
			c.log.Warn().Err(err).Msg("set muted")
		}
		c.st.Volume = v
		c.st.Muted = muted
	})
}

// NextPlaybackRate steps 0.5 -> 0.75 -> ... -> 2.0 -> 0.5.
func NextPlaybackRate(r float64) float64 {
	if r >= 2 {
		return 0.5
	}
	return r + 0.25
}

// CyclePlaybackRate advances the playback rate one step.
func (c *Controller) CyclePlaybackRate() {
	c.command("cycle_rate", func(el Element) {
		next := NextPlaybackRate(c.st.PlaybackRate)
		if err := el.SetPlaybackRate(next); err != nil {
			c.log.Warn().Err(err).Msg("set playback rate")
			return
		}
		c.st.PlaybackRate = next
	})
}

// Skip seeks by delta seconds, clamped to [0, duration].
func (c *Controller) Skip(delta float64) {
	c.command("skip", func(el Element) {
		t := el.CurrentTime() + delta
		if d := el.Duration(); knownDuration(d) {
			t = clamp(t, 0, d)
		} else if t < 0 {
			t = 0
		}
		if err := el.Seek(t); err != nil {
			c.log.Warn().Err(err).Msg("skip")
			return
		}
		c.st.CurrentTime = t
	})
}

// ToggleFullscreen asks the element to enter or leave fullscreen. State
// follows the element's fullscreen-change signal, not this call.
func (c *Controller) ToggleFullscreen() {
	c.command("toggle_fullscreen", func(el Element) {
		var err error
		if el.Fullscreen() {
			err = el.ExitFullscreen()
		} else {
			err = el.RequestFullscreen()
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("toggle fullscreen")
		}
	})
}

func (c *Controller) scrubTimeLocked(p Pointer) float64 {
	d := c.el.Duration()
	if !knownDuration(d) {
		d = c.st.Duration
	}
	if !knownDuration(d) {
		return 0
	}
	return p.Fraction() * d
}

// BeginScrub starts a timeline drag at p. Playback is paused for the drag
// and the element seeks to the provisional time immediately.
func (c *Controller) BeginScrub(p Pointer) {
	c.command("scrub_begin", func(el Element) {
		if c.scrub.phase == ScrubScrubbing {
			c.scrubSeekLocked(el, p)
			return
		}
		wasPlaying := !el.Paused()
		if wasPlaying {
			if err := el.Pause(); err != nil {
				c.log.Warn().Err(err).Msg("pause for scrub")
			}
			c.st.Playing = false
		}
		t := c.scrubTimeLocked(p)
		c.scrub.begin(wasPlaying, t)
		if err := el.Seek(t); err != nil {
			c.log.Warn().Err(err).Msg("scrub seek")
		}
		c.st.CurrentTime = t
	})
}

// MoveScrub re-seeks while a drag is active and is ignored otherwise.
func (c *Controller) MoveScrub(p Pointer) {
	c.command("scrub_move", func(el Element) {
		if c.scrub.phase != ScrubScrubbing {
			return
		}
		c.scrubSeekLocked(el, p)
	})
}

func (c *Controller) scrubSeekLocked(el Element, p Pointer) {
	t := c.scrubTimeLocked(p)
	c.scrub.move(t)
	if err := el.Seek(t); err != nil {
		c.log.Warn().Err(err).Msg("scrub seek")
	}
	c.st.CurrentTime = t
}

// EndScrub commits the drag and resumes playback if it was active before
// the drag began. Without an active drag it does nothing, so a global
// pointer-up can always call it.
func (c *Controller) EndScrub() {
	c.command("scrub_end", func(el Element) {
		t, resume, ok := c.scrub.commit()
		if !ok {
			return
		}
		if err := el.Seek(t); err != nil {
			c.log.Warn().Err(err).Msg("scrub commit")
		}
		c.st.CurrentTime = t
		if resume {
			if err := el.Play(); err != nil {
				c.log.Warn().Err(err).Msg("resume after scrub")
			}
			c.st.Playing = !el.Paused()
		}
		c.scrub.finish()
	})
}
