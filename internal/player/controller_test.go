package player

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"momo-player/internal/models"
	"momo-player/internal/playlist"
)

func testVideos(ids ...string) []models.Video {
	out := make([]models.Video, len(ids))
	for i, id := range ids {
		out[i] = models.Video{ID: id, Title: "Video " + id, Sources: []string{id + ".mp4"}}
	}
	return out
}

type harness struct {
	store *playlist.Store
	ctl   *Controller
	el    *fakeElement
	clock *fakeClock
}

func newHarness(t *testing.T, ids ...string) *harness {
	t.Helper()
	nop := zerolog.Nop()
	h := &harness{
		store: playlist.NewStore(testVideos(ids...)),
		el:    newFakeElement(),
		clock: newFakeClock(),
	}
	h.ctl = New(h.store, Options{
		Clock:        h.clock,
		PollInterval: time.Second,
		StallTimeout: 15 * time.Second,
		StartMuted:   true,
		SkipSeconds:  5,
		Logger:       &nop,
	})
	t.Cleanup(h.ctl.Close)
	return h
}

// attached returns a harness whose first entry has loaded and is playing.
func attached(t *testing.T, duration float64, ids ...string) *harness {
	t.Helper()
	h := newHarness(t, ids...)
	h.ctl.Attach(h.el)
	h.el.ready(duration)
	require.True(t, h.ctl.State().Playing)
	return h
}

func TestCommandsBeforeAttachAreNoOps(t *testing.T) {
	h := newHarness(t, "A", "B")
	before := h.ctl.State()

	assert.NotPanics(t, func() {
		h.ctl.TogglePlay()
		h.ctl.ToggleMute()
		h.ctl.SetVolume(0.3)
		h.ctl.CyclePlaybackRate()
		h.ctl.Skip(10)
		h.ctl.ToggleFullscreen()
		h.ctl.BeginScrub(Pointer{X: 50, Width: 100})
		h.ctl.MoveScrub(Pointer{X: 70, Width: 100})
		h.ctl.EndScrub()
		h.ctl.HandleKey("k")
	})
	assert.Equal(t, before, h.ctl.State())
	assert.False(t, before.Attached)
}

func TestInitialState(t *testing.T) {
	h := newHarness(t, "A", "B")
	s := h.ctl.State()

	assert.Equal(t, "A", s.EntryID)
	assert.True(t, s.Loading)
	assert.False(t, s.Playing)
	assert.True(t, s.Muted, "autoplay starts muted")
	assert.Equal(t, 1.0, s.Volume)
	assert.Equal(t, 1.0, s.PlaybackRate)
	assert.Equal(t, VolumeMuted, s.VolumeLevel)
}

func TestAttachLoadsAndAutoplays(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.ctl.Attach(h.el)

	assert.Equal(t, []string{"A.mp4"}, h.el.loads)
	assert.False(t, h.el.Paused())
	assert.True(t, h.el.Muted())
	assert.True(t, h.ctl.State().Loading)

	h.el.ready(120)
	s := h.ctl.State()
	assert.False(t, s.Loading)
	assert.True(t, s.Playing)
	assert.Equal(t, 120.0, s.Duration)
}

func TestTogglePlay(t *testing.T) {
	h := attached(t, 60, "A")

	h.ctl.TogglePlay()
	assert.False(t, h.ctl.State().Playing)
	assert.True(t, h.el.Paused())

	h.ctl.TogglePlay()
	assert.True(t, h.ctl.State().Playing)
	assert.False(t, h.el.Paused())
}

func TestTogglePlayRejectedKeepsElementTruth(t *testing.T) {
	h := attached(t, 60, "A")
	h.ctl.TogglePlay()
	h.el.playErr = errors.New("not allowed")

	h.ctl.TogglePlay()
	assert.False(t, h.ctl.State().Playing)
}

func TestSetVolume(t *testing.T) {
	h := attached(t, 60, "A")

	h.ctl.SetVolume(0)
	s := h.ctl.State()
	assert.True(t, s.Muted)
	assert.Equal(t, VolumeMuted, s.VolumeLevel)

	h.ctl.SetVolume(0.5)
	s = h.ctl.State()
	assert.False(t, s.Muted)
	assert.Equal(t, 0.5, s.Volume)
	assert.Equal(t, VolumeLow, s.VolumeLevel)
	assert.False(t, h.el.Muted())

	h.ctl.SetVolume(1.7)
	assert.Equal(t, 1.0, h.ctl.State().Volume)
	assert.Equal(t, VolumeHigh, h.ctl.State().VolumeLevel)

	h.ctl.SetVolume(-2)
	assert.Equal(t, 0.0, h.ctl.State().Volume)
	assert.True(t, h.ctl.State().Muted)
}

func TestToggleMuteKeepsVolume(t *testing.T) {
	h := attached(t, 60, "A")
	h.ctl.SetVolume(0.8)

	h.ctl.ToggleMute()
	s := h.ctl.State()
	assert.True(t, s.Muted)
	assert.Equal(t, 0.8, s.Volume)
	assert.Equal(t, VolumeMuted, s.VolumeLevel)

	h.ctl.ToggleMute()
	assert.False(t, h.ctl.State().Muted)
	assert.Equal(t, 0.8, h.ctl.State().Volume)
}

func TestCyclePlaybackRate(t *testing.T) {
	h := attached(t, 60, "A")

	var got []float64
	for i := 0; i < 7; i++ {
		h.ctl.CyclePlaybackRate()
		got = append(got, h.ctl.State().PlaybackRate)
	}
	assert.Equal(t, []float64{1.25, 1.5, 1.75, 2.0, 0.5, 0.75, 1.0}, got)
	assert.Equal(t, 1.0, h.el.PlaybackRate())
}

func TestSkipClamps(t *testing.T) {
	h := attached(t, 60, "A")

	h.el.setTime(58)
	h.ctl.Skip(5)
	assert.Equal(t, 60.0, h.ctl.State().CurrentTime)

	h.el.setTime(2)
	h.ctl.Skip(-5)
	assert.Equal(t, 0.0, h.ctl.State().CurrentTime)

	h.el.setTime(20)
	h.ctl.Skip(5)
	assert.Equal(t, 25.0, h.el.CurrentTime())
}

func TestSkipUnknownDuration(t *testing.T) {
	h := newHarness(t, "A")
	h.ctl.Attach(h.el)

	h.ctl.Skip(-5)
	assert.Equal(t, 0.0, h.ctl.State().CurrentTime)
	h.ctl.Skip(5)
	assert.Equal(t, 5.0, h.ctl.State().CurrentTime)
}

func TestScrubResumesWhenPlaying(t *testing.T) {
	h := attached(t, 100, "A")

	h.ctl.BeginScrub(Pointer{X: 30, Left: 10, Width: 200})
	s := h.ctl.State()
	assert.Equal(t, ScrubScrubbing, s.Scrub)
	assert.True(t, s.WasPlayingBeforeScrub)
	assert.False(t, s.Playing)
	assert.True(t, h.el.Paused())
	assert.Equal(t, 10.0, s.CurrentTime)

	h.ctl.MoveScrub(Pointer{X: 160, Left: 10, Width: 200})
	assert.Equal(t, 75.0, h.ctl.State().CurrentTime)

	h.ctl.EndScrub()
	s = h.ctl.State()
	assert.Equal(t, ScrubIdle, s.Scrub)
	assert.True(t, s.Playing)
	assert.False(t, h.el.Paused())
	assert.Equal(t, 75.0, h.el.CurrentTime())
}

func TestScrubStaysPausedWhenPaused(t *testing.T) {
	h := attached(t, 100, "A")
	h.ctl.TogglePlay()

	h.ctl.BeginScrub(Pointer{X: 50, Width: 100})
	assert.False(t, h.ctl.State().WasPlayingBeforeScrub)
	h.ctl.EndScrub()

	assert.False(t, h.ctl.State().Playing)
	assert.True(t, h.el.Paused())
	assert.Equal(t, 50.0, h.el.CurrentTime())
}

func TestScrubPointerOutsideTimelineClamps(t *testing.T) {
	h := attached(t, 100, "A")

	h.ctl.BeginScrub(Pointer{X: -40, Left: 0, Width: 100})
	assert.Equal(t, 0.0, h.ctl.State().CurrentTime)
	h.ctl.MoveScrub(Pointer{X: 400, Left: 0, Width: 100})
	assert.Equal(t, 100.0, h.ctl.State().CurrentTime)
	h.ctl.EndScrub()
}

func TestEndScrubWithoutDragIsNoOp(t *testing.T) {
	h := attached(t, 100, "A")
	h.el.setTime(12)
	seeks := len(h.el.seeks)

	h.ctl.EndScrub()
	h.ctl.MoveScrub(Pointer{X: 80, Width: 100})

	assert.Len(t, h.el.seeks, seeks)
	assert.True(t, h.ctl.State().Playing)
	assert.Equal(t, ScrubIdle, h.ctl.State().Scrub)
}

func TestTimeUpdatesIgnoredWhileScrubbing(t *testing.T) {
	h := attached(t, 100, "A")
	h.ctl.BeginScrub(Pointer{X: 40, Width: 100})

	h.el.setTime(90)
	h.el.fire(EventTimeUpdate)
	assert.Equal(t, 40.0, h.ctl.State().CurrentTime)

	h.ctl.EndScrub()
}

func TestFullscreenFollowsElementSignal(t *testing.T) {
	h := attached(t, 60, "A")

	h.ctl.ToggleFullscreen()
	assert.True(t, h.el.Fullscreen())
	assert.False(t, h.ctl.State().Fullscreen, "state waits for the change signal")

	h.el.fire(EventFullscreenChange)
	assert.True(t, h.ctl.State().Fullscreen)

	// Platform exits on its own (escape key).
	_ = h.el.ExitFullscreen()
	h.el.fire(EventFullscreenChange)
	assert.False(t, h.ctl.State().Fullscreen)

	h.ctl.ToggleFullscreen()
	assert.True(t, h.el.Fullscreen())
}

func TestEndedAdvances(t *testing.T) {
	h := attached(t, 60, "A", "B", "C")

	h.el.fire(EventEnded)

	assert.Equal(t, 1, h.store.Index())
	s := h.ctl.State()
	assert.Equal(t, "B", s.EntryID)
	assert.True(t, s.Loading)
	assert.Equal(t, 0.0, s.CurrentTime)
	assert.Equal(t, []string{"A.mp4", "B.mp4"}, h.el.loads)
}

func TestEndedOnLastEntryStops(t *testing.T) {
	h := attached(t, 60, "A", "B")
	h.store.SelectIndex(1)
	h.el.ready(30)

	h.el.fire(EventEnded)

	assert.Equal(t, 1, h.store.Index())
	s := h.ctl.State()
	assert.False(t, s.Playing)
	assert.Equal(t, 30.0, s.CurrentTime)
	assert.Equal(t, 2, h.el.loadCount())
}

func TestSelectionChangeReloadsAndResetsScrub(t *testing.T) {
	h := attached(t, 60, "A", "B", "C")
	h.ctl.BeginScrub(Pointer{X: 20, Width: 100})

	h.store.SelectIndex(2)

	s := h.ctl.State()
	assert.Equal(t, "C", s.EntryID)
	assert.Equal(t, ScrubIdle, s.Scrub)
	assert.False(t, s.WasPlayingBeforeScrub)
	assert.Equal(t, 1, h.el.subscribers(), "previous signal subscription is released")
	assert.Equal(t, "C.mp4", h.el.loads[len(h.el.loads)-1])

	// A later pointer-up must not resume anything.
	h.ctl.EndScrub()
	assert.Equal(t, ScrubIdle, h.ctl.State().Scrub)
}

func TestSelectSameIndexDoesNotReload(t *testing.T) {
	h := attached(t, 60, "A", "B")
	h.store.SelectIndex(0)
	assert.Equal(t, 1, h.el.loadCount())
}

func TestReorderKeepsPlayback(t *testing.T) {
	h := attached(t, 60, "A", "B", "C")
	to := 2
	h.store.Reorder(playlist.Drop{Source: 0, Destination: &to})

	assert.Equal(t, 1, h.el.loadCount())
	assert.Equal(t, 2, h.store.Index())
	assert.Equal(t, "A", h.ctl.State().EntryID)
	assert.True(t, h.ctl.State().Playing)
}

func TestVolumeSettingsSurviveReload(t *testing.T) {
	h := attached(t, 60, "A", "B")
	h.ctl.SetVolume(0.4)
	h.ctl.CyclePlaybackRate()

	h.store.Advance()

	assert.Equal(t, 0.4, h.el.Volume())
	assert.False(t, h.el.Muted())
	assert.Equal(t, 1.25, h.el.PlaybackRate())
}

func TestRestore(t *testing.T) {
	h := newHarness(t, "A")
	h.ctl.Restore(Settings{Volume: 0.3, Muted: false, PlaybackRate: 1.5})
	h.ctl.Attach(h.el)

	assert.Equal(t, 0.3, h.el.Volume())
	assert.False(t, h.el.Muted())
	assert.Equal(t, 1.5, h.el.PlaybackRate())
	assert.Equal(t, Settings{Volume: 0.3, PlaybackRate: 1.5}, h.ctl.Settings())
}

func TestErrorSignalKeepsLoading(t *testing.T) {
	h := newHarness(t, "A")
	h.ctl.Attach(h.el)

	h.el.fire(EventError)
	s := h.ctl.State()
	assert.True(t, s.Loading)
	assert.NotEmpty(t, s.Error)
}

func TestResolveFailure(t *testing.T) {
	nop := zerolog.Nop()
	store := playlist.NewStore([]models.Video{{ID: "A"}})
	ctl := New(store, Options{Clock: newFakeClock(), Logger: &nop})
	defer ctl.Close()
	el := newFakeElement()

	ctl.Attach(el)

	assert.Empty(t, el.loads)
	assert.True(t, ctl.State().Loading)
	assert.Contains(t, ctl.State().Error, "no playable source")
}

func TestPollRefreshesTimeAndDetectsStall(t *testing.T) {
	h := newHarness(t, "A")
	h.ctl.Attach(h.el)

	h.el.setTime(3)
	require.True(t, h.clock.tick())
	require.Eventually(t, func() bool { return h.ctl.State().CurrentTime == 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.ctl.State().Stalled)

	h.clock.Advance(16 * time.Second)
	require.True(t, h.clock.tick())
	require.Eventually(t, func() bool { return h.ctl.State().Stalled }, time.Second, 5*time.Millisecond)

	h.el.ready(60)
	assert.False(t, h.ctl.State().Stalled)
}

func TestOnChange(t *testing.T) {
	h := newHarness(t, "A")
	var got []State
	unsub := h.ctl.OnChange(func(s State) { got = append(got, s) })

	h.ctl.Attach(h.el)
	h.el.ready(60)
	require.NotEmpty(t, got)
	assert.True(t, got[len(got)-1].Playing)

	unsub()
	n := len(got)
	h.ctl.TogglePlay()
	assert.Len(t, got, n)
}

func TestListenerMayReadState(t *testing.T) {
	h := newHarness(t, "A")
	var seen []bool
	h.ctl.OnChange(func(State) { seen = append(seen, h.ctl.State().Attached) })

	h.ctl.Attach(h.el)
	require.NotEmpty(t, seen)
}

func TestDetach(t *testing.T) {
	h := attached(t, 60, "A")

	h.ctl.Detach()
	s := h.ctl.State()
	assert.False(t, s.Attached)
	assert.False(t, s.Playing)
	assert.Equal(t, 0, h.el.subscribers())
	assert.Equal(t, 0, h.clock.liveTickers())

	h.ctl.TogglePlay()
	assert.False(t, h.ctl.State().Playing)
}

func TestNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	nop := zerolog.Nop()
	store := playlist.NewStore(testVideos("A", "B", "C"))
	ctl := New(store, Options{Clock: newFakeClock(), Logger: &nop})
	el := newFakeElement()
	ctl.Attach(el)
	store.Advance()
	store.Advance()
	ctl.Close()
}

func TestHandleKey(t *testing.T) {
	tests := []struct {
		key   string
		bound bool
		check func(t *testing.T, h *harness)
	}{
		{" ", true, func(t *testing.T, h *harness) { assert.False(t, h.ctl.State().Playing) }},
		{"k", true, func(t *testing.T, h *harness) { assert.False(t, h.ctl.State().Playing) }},
		{"K", true, func(t *testing.T, h *harness) { assert.False(t, h.ctl.State().Playing) }},
		{"m", true, func(t *testing.T, h *harness) { assert.False(t, h.ctl.State().Muted) }},
		{"f", true, func(t *testing.T, h *harness) { assert.True(t, h.el.Fullscreen()) }},
		{"ArrowLeft", true, func(t *testing.T, h *harness) { assert.Equal(t, 25.0, h.el.CurrentTime()) }},
		{"j", true, func(t *testing.T, h *harness) { assert.Equal(t, 25.0, h.el.CurrentTime()) }},
		{"ArrowRight", true, func(t *testing.T, h *harness) { assert.Equal(t, 35.0, h.el.CurrentTime()) }},
		{"l", true, func(t *testing.T, h *harness) { assert.Equal(t, 35.0, h.el.CurrentTime()) }},
		{"x", false, func(t *testing.T, h *harness) { assert.True(t, h.ctl.State().Playing) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			h := attached(t, 60, "A")
			h.el.setTime(30)
			assert.Equal(t, tt.bound, h.ctl.HandleKey(tt.key))
			tt.check(t, h)
		})
	}
}

func TestPointerFraction(t *testing.T) {
	assert.Equal(t, 0.0, Pointer{X: 10, Width: 0}.Fraction())
	assert.Equal(t, 0.5, Pointer{X: 60, Left: 10, Width: 100}.Fraction())
	assert.Equal(t, 1.0, Pointer{X: 500, Width: 100}.Fraction())
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00"},
		{5.9, "00:05"},
		{65, "01:05"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{3725, "01:02:05"},
		{-3, "00:00"},
		{math.NaN(), "00:00"},
		{math.Inf(1), "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.in), "FormatTime(%v)", tt.in)
	}
}

func TestVolumeLevelFor(t *testing.T) {
	assert.Equal(t, VolumeMuted, VolumeLevelFor(true, 0.9))
	assert.Equal(t, VolumeMuted, VolumeLevelFor(false, 0))
	assert.Equal(t, VolumeLow, VolumeLevelFor(false, 0.5))
	assert.Equal(t, VolumeHigh, VolumeLevelFor(false, 0.51))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, State{CurrentTime: 5}.Progress())
	assert.Equal(t, 25.0, State{CurrentTime: 15, Duration: 60}.Progress())
}

func TestOnEndedRunsBeforeAdvance(t *testing.T) {
	nop := zerolog.Nop()
	store := playlist.NewStore(testVideos("A", "B"))
	var ended []string
	var indexAtEnd int
	ctl := New(store, Options{
		Clock:  newFakeClock(),
		Logger: &nop,
		OnEnded: func(id string) {
			ended = append(ended, id)
			indexAtEnd = store.Index()
		},
	})
	defer ctl.Close()
	el := newFakeElement()
	ctl.Attach(el)
	el.ready(10)

	el.fire(EventEnded)

	assert.Equal(t, []string{"A"}, ended)
	assert.Equal(t, 0, indexAtEnd)
	assert.Equal(t, 1, store.Index())
}

func TestSlowResolveLosesToNewerSelection(t *testing.T) {
	nop := zerolog.Nop()
	store := playlist.NewStore(testVideos("A", "B", "C"))
	resolvingB := make(chan struct{})
	release := make(chan struct{})
	ctl := New(store, Options{
		Clock:  newFakeClock(),
		Logger: &nop,
		Resolve: func(v models.Video) (string, error) {
			if v.ID == "B" {
				close(resolvingB)
				<-release
			}
			return v.Source(), nil
		},
	})
	defer ctl.Close()
	el := newFakeElement()
	ctl.Attach(el)

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.SelectIndex(1)
	}()
	<-resolvingB
	assert.Equal(t, "B", ctl.State().EntryID, "state follows the selection while it resolves")

	store.SelectIndex(2)
	close(release)
	<-done

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "C", cur.ID)
	assert.Equal(t, "C", ctl.State().EntryID)
	assert.Equal(t, []string{"A.mp4", "C.mp4"}, el.loaded())
	assert.Equal(t, 1, el.subscribers())

	el.ready(30)
	assert.True(t, ctl.State().Playing)
}

func TestSelectionDuringEndedIsNotSkipped(t *testing.T) {
	nop := zerolog.Nop()
	store := playlist.NewStore(testVideos("A", "B", "C", "D"))
	ctl := New(store, Options{
		Clock:  newFakeClock(),
		Logger: &nop,
		// The user picks C while the ended entry is being recorded.
		OnEnded: func(string) { store.SelectIndex(2) },
	})
	defer ctl.Close()
	el := newFakeElement()
	ctl.Attach(el)
	el.ready(10)

	el.fire(EventEnded)

	assert.Equal(t, 2, store.Index())
	assert.Equal(t, "C", ctl.State().EntryID)
	assert.Equal(t, []string{"A.mp4", "C.mp4"}, el.loaded())
}

func TestCanPlayFollowsElementPauseState(t *testing.T) {
	h := newHarness(t, "A")
	h.el.playErr = errors.New("autoplay blocked")
	h.ctl.Attach(h.el)

	h.el.ready(60)

	s := h.ctl.State()
	assert.False(t, s.Loading)
	assert.False(t, s.Playing)
	assert.True(t, h.el.Paused())

	h.el.playErr = nil
	h.ctl.TogglePlay()
	assert.True(t, h.ctl.State().Playing)
}
