// Package mpv drives an mpv process over its JSON IPC socket and presents
// it as a player.Element.
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	plog "momo-player/internal/log"
	"momo-player/internal/media/pump"
	"momo-player/internal/player"
)

var ErrClosed = errors.New("mpv connection closed")

const requestTimeout = 5 * time.Second

// observed properties, keyed by the observe id mpv echoes back
var observed = []string{"time-pos", "duration", "pause", "volume", "mute", "speed", "fullscreen"}

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type message struct {
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	Reason    string          `json:"reason"`
	FileError string          `json:"file_error"`
}

type Client struct {
	conn net.Conn
	cmd  *exec.Cmd
	log  zerolog.Logger
	pump *pump.Pump

	wmu    sync.Mutex
	nextID atomic.Int64

	pmu     sync.Mutex
	pending map[int64]chan message

	// cached property values, updated from property-change and from
	// successful set_property calls
	smu        sync.Mutex
	timePos    float64
	duration   float64
	paused     bool
	volume     float64
	muted      bool
	speed      float64
	fullscreen bool
	loading    bool

	closed   chan struct{}
	readDone chan struct{}
	wg       sync.WaitGroup
}

var _ player.Element = (*Client)(nil)

// Launch starts mpv in idle mode listening on socket and connects to it.
func Launch(ctx context.Context, mpvPath, socket string) (*Client, error) {
	_ = os.Remove(socket)
	cmd := exec.Command(mpvPath,
		"--idle=yes",
		"--force-window=yes",
		"--really-quiet",
		"--input-ipc-server="+socket,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	var conn net.Conn
	var err error
	for {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "unix", socket)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, fmt.Errorf("connect mpv ipc: %w", err)
		case <-time.After(100 * time.Millisecond):
		}
	}

	c, err := newClient(conn)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	c.cmd = cmd
	return c, nil
}

// Dial connects to an mpv instance that is already running.
func Dial(ctx context.Context, socket string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect mpv ipc: %w", err)
	}
	return newClient(conn)
}

func newClient(conn net.Conn) (*Client, error) {
	c := &Client{
		conn:     conn,
		log:      plog.WithComponent("mpv"),
		pump:     pump.New(),
		pending:  make(map[int64]chan message),
		paused:   true,
		duration: math.NaN(),
		volume:   1,
		speed:    1,
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()

	for i, name := range observed {
		if _, err := c.command("observe_property", i+1, name); err != nil {
			c.Close()
			return nil, fmt.Errorf("observe %s: %w", name, err)
		}
	}
	return c, nil
}

// Close disconnects and, when this client launched mpv, stops the process.
func (c *Client) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
	}
	if c.cmd != nil {
		_, _ = c.command("quit")
	}
	close(c.closed)
	err := c.conn.Close()
	c.wg.Wait()
	c.pump.Stop()
	if c.cmd != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.readDone)
	defer c.failPending()

	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var m message
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			c.log.Debug().Err(err).Msg("bad ipc line")
			continue
		}
		if m.Event != "" {
			c.handleEvent(m)
			continue
		}
		c.pmu.Lock()
		ch, ok := c.pending[m.RequestID]
		delete(c.pending, m.RequestID)
		c.pmu.Unlock()
		if ok {
			ch <- m
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case <-c.closed:
		default:
			c.log.Warn().Err(err).Msg("ipc read failed")
		}
	}
}

func (c *Client) failPending() {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) command(args ...any) (json.RawMessage, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	case <-c.readDone:
		return nil, ErrClosed
	default:
	}

	id := c.nextID.Add(1)
	ch := make(chan message, 1)
	c.pmu.Lock()
	c.pending[id] = ch
	c.pmu.Unlock()

	line, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(requestTimeout))
	_, err = c.conn.Write(line)
	c.wmu.Unlock()
	if err != nil {
		c.pmu.Lock()
		delete(c.pending, id)
		c.pmu.Unlock()
		return nil, fmt.Errorf("ipc write: %w", err)
	}

	select {
	case m, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if m.Error != "" && m.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], m.Error)
		}
		return m.Data, nil
	case <-time.After(requestTimeout):
		c.pmu.Lock()
		delete(c.pending, id)
		c.pmu.Unlock()
		return nil, fmt.Errorf("mpv %v: timeout", args[0])
	}
}

func (c *Client) setProperty(name string, value any) error {
	_, err := c.command("set_property", name, value)
	return err
}

func (c *Client) handleEvent(m message) {
	switch m.Event {
	case "property-change":
		c.propertyChanged(m.Name, m.Data)
	case "start-file":
		c.smu.Lock()
		c.loading = true
		c.smu.Unlock()
	case "file-loaded":
		c.pump.Emit(player.Event{Type: player.EventLoadedMetadata})
	case "playback-restart":
		c.smu.Lock()
		first := c.loading
		c.loading = false
		c.smu.Unlock()
		if first {
			c.pump.Emit(player.Event{Type: player.EventCanPlay})
		} else {
			c.pump.Emit(player.Event{Type: player.EventTimeUpdate})
		}
	case "end-file":
		switch m.Reason {
		case "eof":
			c.pump.Emit(player.Event{Type: player.EventEnded})
		case "error":
			reason := m.FileError
			if reason == "" {
				reason = "playback failed"
			}
			c.pump.Emit(player.Event{Type: player.EventError, Err: errors.New(reason)})
		}
	}
}

func (c *Client) propertyChanged(name string, data json.RawMessage) {
	c.smu.Lock()
	var emit player.EventType
	switch name {
	case "time-pos":
		var v float64
		if json.Unmarshal(data, &v) == nil {
			c.timePos = v
			emit = player.EventTimeUpdate
		}
	case "duration":
		var v float64
		if json.Unmarshal(data, &v) == nil {
			c.duration = v
			emit = player.EventLoadedMetadata
		} else {
			c.duration = math.NaN()
		}
	case "pause":
		var v bool
		if json.Unmarshal(data, &v) == nil && v != c.paused {
			c.paused = v
			emit = player.EventPlay
			if v {
				emit = player.EventPause
			}
		}
	case "volume":
		var v float64
		if json.Unmarshal(data, &v) == nil {
			c.volume = v / 100
		}
	case "mute":
		var v bool
		if json.Unmarshal(data, &v) == nil {
			c.muted = v
		}
	case "speed":
		var v float64
		if json.Unmarshal(data, &v) == nil && v > 0 {
			c.speed = v
		}
	case "fullscreen":
		var v bool
		if json.Unmarshal(data, &v) == nil && v != c.fullscreen {
			c.fullscreen = v
			emit = player.EventFullscreenChange
		}
	}
	c.smu.Unlock()

	if emit != "" {
		c.pump.Emit(player.Event{Type: emit})
	}
}

func (c *Client) Load(src string) error {
	c.smu.Lock()
	c.loading = true
	c.timePos = 0
	c.duration = math.NaN()
	c.smu.Unlock()
	_, err := c.command("loadfile", src, "replace")
	return err
}

func (c *Client) Play() error {
	if err := c.setProperty("pause", false); err != nil {
		return err
	}
	c.smu.Lock()
	c.paused = false
	c.smu.Unlock()
	return nil
}

func (c *Client) Pause() error {
	if err := c.setProperty("pause", true); err != nil {
		return err
	}
	c.smu.Lock()
	c.paused = true
	c.smu.Unlock()
	return nil
}

func (c *Client) Paused() bool {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.paused
}

func (c *Client) Seek(s float64) error {
	if _, err := c.command("seek", s, "absolute"); err != nil {
		return err
	}
	c.smu.Lock()
	c.timePos = s
	c.smu.Unlock()
	return nil
}

func (c *Client) CurrentTime() float64 {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.timePos
}

func (c *Client) Duration() float64 {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.duration
}

// SetVolume maps [0,1] onto mpv's 0-100 scale.
func (c *Client) SetVolume(v float64) error {
	if err := c.setProperty("volume", v*100); err != nil {
		return err
	}
	c.smu.Lock()
	c.volume = v
	c.smu.Unlock()
	return nil
}

func (c *Client) Volume() float64 {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.volume
}

func (c *Client) SetMuted(m bool) error {
	if err := c.setProperty("mute", m); err != nil {
		return err
	}
	c.smu.Lock()
	c.muted = m
	c.smu.Unlock()
	return nil
}

func (c *Client) Muted() bool {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.muted
}

func (c *Client) SetPlaybackRate(r float64) error {
	if err := c.setProperty("speed", r); err != nil {
		return err
	}
	c.smu.Lock()
	c.speed = r
	c.smu.Unlock()
	return nil
}

func (c *Client) PlaybackRate() float64 {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.speed
}

// RequestFullscreen and ExitFullscreen leave the cached flag alone; it
// flips when mpv reports the change.
func (c *Client) RequestFullscreen() error { return c.setProperty("fullscreen", true) }
func (c *Client) ExitFullscreen() error    { return c.setProperty("fullscreen", false) }

func (c *Client) Fullscreen() bool {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.fullscreen
}

func (c *Client) Subscribe(fn func(player.Event)) func() {
	return c.pump.Subscribe(fn)
}
