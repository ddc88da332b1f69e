package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momo-player/internal/player"
)

// fakeMPV answers every request with success and records the commands.
type fakeMPV struct {
	ln   net.Listener
	mu   sync.Mutex
	cmds [][]any
	conn net.Conn
	wmu  sync.Mutex
	fail map[string]string
}

func startFake(t *testing.T) (*fakeMPV, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "mpv.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	f := &fakeMPV{ln: ln, fail: map[string]string{}}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f, sock
}

func (f *fakeMPV) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var req struct {
			Command   []any `json:"command"`
			RequestID int64 `json:"request_id"`
		}
		if json.Unmarshal(sc.Bytes(), &req) != nil {
			continue
		}
		f.mu.Lock()
		f.cmds = append(f.cmds, req.Command)
		status := "success"
		if name, ok := req.Command[0].(string); ok {
			if e, bad := f.fail[name]; bad {
				status = e
			}
		}
		f.mu.Unlock()
		f.send(map[string]any{"request_id": req.RequestID, "error": status})
	}
}

func (f *fakeMPV) send(v any) {
	data, _ := json.Marshal(v)
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	f.wmu.Lock()
	defer f.wmu.Unlock()
	_, _ = conn.Write(append(data, '\n'))
}

func (f *fakeMPV) commands() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.cmds...)
}

func (f *fakeMPV) last() []any {
	c := f.commands()
	return c[len(c)-1]
}

func dialFake(t *testing.T) (*Client, *fakeMPV) {
	t.Helper()
	f, sock := startFake(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, sock)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, f
}

type events struct {
	mu  sync.Mutex
	got []player.Event
}

func (e *events) add(ev player.Event) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func (e *events) types() []player.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]player.EventType, len(e.got))
	for i, ev := range e.got {
		out[i] = ev.Type
	}
	return out
}

func TestDialObservesProperties(t *testing.T) {
	_, f := dialFake(t)

	cmds := f.commands()
	require.Len(t, cmds, len(observed))
	for i, name := range observed {
		assert.Equal(t, "observe_property", cmds[i][0])
		assert.Equal(t, float64(i+1), cmds[i][1])
		assert.Equal(t, name, cmds[i][2])
	}
}

func TestCommandsTranslate(t *testing.T) {
	c, f := dialFake(t)

	require.NoError(t, c.Load("/videos/a.mp4"))
	assert.Equal(t, []any{"loadfile", "/videos/a.mp4", "replace"}, f.last())

	require.NoError(t, c.Play())
	assert.Equal(t, []any{"set_property", "pause", false}, f.last())
	assert.False(t, c.Paused())

	require.NoError(t, c.SetVolume(0.5))
	assert.Equal(t, []any{"set_property", "volume", 50.0}, f.last())
	assert.Equal(t, 0.5, c.Volume())

	require.NoError(t, c.SetMuted(true))
	assert.True(t, c.Muted())

	require.NoError(t, c.SetPlaybackRate(1.5))
	assert.Equal(t, []any{"set_property", "speed", 1.5}, f.last())

	require.NoError(t, c.Seek(42))
	assert.Equal(t, []any{"seek", 42.0, "absolute"}, f.last())
	assert.Equal(t, 42.0, c.CurrentTime())

	require.NoError(t, c.RequestFullscreen())
	assert.False(t, c.Fullscreen(), "waits for mpv to confirm")
}

func TestCommandError(t *testing.T) {
	c, f := dialFake(t)
	f.mu.Lock()
	f.fail["loadfile"] = "error running command"
	f.mu.Unlock()

	err := c.Load("missing.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error running command")
}

func TestEventsMapToSignals(t *testing.T) {
	c, f := dialFake(t)
	var rec events
	c.Subscribe(rec.add)

	require.NoError(t, c.Load("a.mp4"))
	f.send(map[string]any{"event": "start-file"})
	f.send(map[string]any{"event": "property-change", "id": 2, "name": "duration", "data": 90.5})
	f.send(map[string]any{"event": "playback-restart"})
	f.send(map[string]any{"event": "property-change", "id": 3, "name": "pause", "data": false})
	f.send(map[string]any{"event": "property-change", "id": 7, "name": "fullscreen", "data": true})
	f.send(map[string]any{"event": "end-file", "reason": "eof"})

	want := []player.EventType{
		player.EventLoadedMetadata,
		player.EventCanPlay,
		player.EventPlay,
		player.EventFullscreenChange,
		player.EventEnded,
	}
	require.Eventually(t, func() bool { return len(rec.types()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.types())
	assert.Equal(t, 90.5, c.Duration())
	assert.True(t, c.Fullscreen())
	assert.False(t, c.Paused())
}

func TestEndFileError(t *testing.T) {
	c, f := dialFake(t)
	var rec events
	c.Subscribe(rec.add)

	f.send(map[string]any{"event": "end-file", "reason": "error", "file_error": "unrecognized file format"})

	require.Eventually(t, func() bool { return len(rec.types()) == 1 }, 2*time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, player.EventError, rec.got[0].Type)
	assert.EqualError(t, rec.got[0].Err, "unrecognized file format")
}

func TestClosedClientFails(t *testing.T) {
	c, _ := dialFake(t)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Play(), ErrClosed)
	assert.NoError(t, c.Close())
}
