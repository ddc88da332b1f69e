package engine

import (
	"bytes"
	"encoding/json"
	"time"

	"momo-player/internal/models"
	"momo-player/internal/player"
)

// NowPlaying is the description panel next to the video: what is
// selected, whether its thumbnail still stands in for the video, and the
// formatted progress.
type NowPlaying struct {
	Empty         bool    `json:"empty"`
	ID            string  `json:"id,omitempty"`
	Title         string  `json:"title,omitempty"`
	Subtitle      string  `json:"subtitle,omitempty"`
	Description   string  `json:"description,omitempty"`
	Thumb         string  `json:"thumb,omitempty"`
	Index         int     `json:"index"`
	Total         int     `json:"total"`
	ShowThumbnail bool    `json:"show_thumbnail"`
	Playing       bool    `json:"playing"`
	Loading       bool    `json:"loading"`
	Elapsed       string  `json:"elapsed"`
	Duration      string  `json:"duration"`
	Progress      float64 `json:"progress"`
	StartedAt     int64   `json:"started_at,omitempty"`
}

// BuildNowPlaying combines the selected entry with the playback state. An
// empty playlist yields a view with Empty set instead of an error.
func BuildNowPlaying(entry models.Video, ok bool, index, total int, st player.State) NowPlaying {
	if !ok {
		return NowPlaying{Empty: true, Index: -1, Total: total, Elapsed: "00:00", Duration: "00:00"}
	}
	return NowPlaying{
		ID:            entry.ID,
		Title:         entry.Title,
		Subtitle:      entry.Subtitle,
		Description:   entry.Description,
		Thumb:         entry.Thumb,
		Index:         index,
		Total:         total,
		ShowThumbnail: !st.Playing,
		Playing:       st.Playing,
		Loading:       st.Loading,
		Elapsed:       player.FormatTime(st.CurrentTime),
		Duration:      player.FormatTime(st.Duration),
		Progress:      st.Progress(),
	}
}

// NowPlaying returns the current view.
func (e *Engine) NowPlaying() NowPlaying {
	entry, ok := e.playlist.Current()
	np := BuildNowPlaying(entry, ok, e.playlist.Index(), e.playlist.Len(), e.ctl.State())
	e.mu.Lock()
	if ok && e.startedID == entry.ID {
		np.StartedAt = e.startedAt.Unix()
	}
	e.mu.Unlock()
	return np
}

// publishNowPlaying uploads now_playing.json for clients that poll the
// bucket.
func (e *Engine) publishNowPlaying() {
	if !e.cfg.Storage.PublishNowPlaying || e.storage == nil {
		return
	}
	data, err := json.Marshal(e.NowPlaying())
	if err != nil {
		e.log.Warn().Err(err).Msg("encode now playing")
		return
	}
	if err := e.storage.Publish("now_playing.json", bytes.NewReader(data), "application/json", "max-age=0, no-cache"); err != nil {
		e.log.Warn().Err(err).Msg("publish now playing")
		return
	}
	publishTotal.Inc()
}

func (e *Engine) markStarted(id string) {
	e.mu.Lock()
	e.startedID = id
	e.startedAt = time.Now()
	e.mu.Unlock()
}
