// Package engine assembles the playlist, the player controller and their
// persistence into one running player.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momo-player/internal/catalog"
	"momo-player/internal/config"
	database "momo-player/internal/db"
	plog "momo-player/internal/log"
	"momo-player/internal/models"
	"momo-player/internal/player"
	"momo-player/internal/playlist"
	"momo-player/internal/storage"
)

var errNoSource = errors.New("video has no source")

type Engine struct {
	cfg      *config.Config
	storage  *storage.Client
	db       *database.Client
	state    *StateManager
	cache    *CacheManager
	category string
	playlist *playlist.Store
	ctl      *player.Controller
	log      zerolog.Logger

	mu           sync.Mutex
	startedID    string
	startedAt    time.Time
	lastSettings player.Settings

	unsubs []func()
	bg     sync.WaitGroup
}

// New seeds the chosen catalog category into the database and restores
// the order, selection and settings left by the previous run. store may be
// nil when sources are plain files or URLs.
func New(cfg *config.Config, store *storage.Client, db *database.Client, cat *models.Catalog) (*Engine, error) {
	return newEngine(cfg, store, db, cat, nil)
}

func newEngine(cfg *config.Config, store *storage.Client, db *database.Client, cat *models.Catalog, clock player.Clock) (*Engine, error) {
	category, err := catalog.Pick(cat, cfg.Catalog.Category)
	if err != nil {
		return nil, err
	}
	if err := database.SeedCatalog(db.DB, category.Name, category.Videos); err != nil {
		return nil, err
	}
	order, err := database.LoadOrder(db.DB, category.Name)
	if err != nil {
		return nil, err
	}
	state, err := NewStateManager(db.DB)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		storage:  store,
		db:       db,
		state:    state,
		category: category.Name,
		log:      plog.WithComponent("engine"),
	}

	if store != nil {
		e.cache, err = NewCacheManager(store, cfg.Player.CacheDir)
		if err != nil {
			return nil, err
		}
	}

	e.playlist = playlist.NewStore(orderEntries(category.Videos, order))

	saved, err := state.GetCurrentState()
	if err != nil {
		return nil, err
	}
	if saved.Category == category.Name && saved.VideoID != "" {
		e.playlist.SelectID(saved.VideoID)
	}

	e.ctl = player.New(e.playlist, player.Options{
		Clock:        clock,
		PollInterval: cfg.Player.PollInterval,
		StallTimeout: cfg.Player.StallTimeout,
		StartMuted:   cfg.Player.StartMuted,
		SkipSeconds:  cfg.Player.SkipSeconds,
		Resolve:      e.resolve,
		OnEnded:      e.onEnded,
	})

	settings, err := state.Settings()
	if err != nil {
		return nil, err
	}
	// Autoplay must start muted when configured, whatever was stored.
	settings.Muted = settings.Muted || cfg.Player.StartMuted
	e.ctl.Restore(settings)
	e.lastSettings = e.ctl.Settings()

	e.unsubs = append(e.unsubs,
		e.playlist.Subscribe(e.onPlaylistChange),
		e.ctl.OnChange(e.onStateChange),
	)

	e.log.Info().
		Str("category", category.Name).
		Int("videos", e.playlist.Len()).
		Int("index", e.playlist.Index()).
		Msg("playlist ready")
	return e, nil
}

// orderEntries applies a stored id order to the catalog videos. Ids that
// left the catalog are skipped and new videos keep their catalog position
// after the stored ones.
func orderEntries(videos []models.Video, order []string) []models.Video {
	byID := make(map[string]models.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}
	out := make([]models.Video, 0, len(videos))
	used := make(map[string]bool, len(videos))
	for _, id := range order {
		if v, ok := byID[id]; ok && !used[id] {
			out = append(out, v)
			used[id] = true
		}
	}
	for _, v := range videos {
		if !used[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

func (e *Engine) Playlist() *playlist.Store  { return e.playlist }
func (e *Engine) Player() *player.Controller { return e.ctl }
func (e *Engine) Category() string           { return e.category }
func (e *Engine) History(limit int) ([]models.PlayHistory, error) {
	return e.state.History(limit)
}

// Start attaches el and begins playing the current entry.
func (e *Engine) Start(el player.Element) {
	if cur, ok := e.playlist.Current(); ok {
		e.markStarted(cur.ID)
	}
	e.prefetch()
	e.ctl.Attach(el)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.publishNowPlaying()
	}()
}

// Run starts playback on el and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context, el player.Element) error {
	e.Start(el)
	<-ctx.Done()
	e.Close()
	return nil
}

// Close detaches the element and waits for background work.
func (e *Engine) Close() {
	e.ctl.Close()
	for _, u := range e.unsubs {
		u()
	}
	e.unsubs = nil
	e.bg.Wait()
	if e.cache != nil {
		e.cache.Wait()
	}
}

// resolve maps an entry to what the element loads. Bucket keys are served
// from the local cache; URLs and absolute paths pass through.
func (e *Engine) resolve(v models.Video) (string, error) {
	src := v.Source()
	if src == "" {
		return "", errNoSource
	}
	if !e.isBucketKey(src) {
		return src, nil
	}
	return e.cache.GetLocalPath(src)
}

func (e *Engine) isBucketKey(src string) bool {
	return e.cache != nil && !strings.Contains(src, "://") && !filepath.IsAbs(src)
}

func (e *Engine) prefetch() {
	if e.cache == nil {
		return
	}
	n := e.cfg.Player.PrefetchCount
	if n <= 0 {
		return
	}
	var keys []string
	if cur, ok := e.playlist.Current(); ok && e.isBucketKey(cur.Source()) {
		keys = append(keys, cur.Source())
	}
	for _, v := range e.playlist.Peek(n) {
		if e.isBucketKey(v.Source()) {
			keys = append(keys, v.Source())
		}
	}
	if len(keys) == 0 {
		return
	}
	e.cache.Prefetch(keys)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.cache.Cleanup(keys)
	}()
}

func (e *Engine) onPlaylistChange(ch playlist.Change) {
	switch ch.Kind {
	case playlist.ChangeSelected:
		e.markStarted(ch.Entry.ID)
		if err := e.state.UpdateSelection(e.category, ch.Entry.ID); err != nil {
			persistErrors.WithLabelValues("selection").Inc()
			e.log.Warn().Err(err).Msg("save selection")
		}
		e.log.Info().Str("video", ch.Entry.ID).Str("title", ch.Entry.Title).Int("index", ch.Index).Msg("now playing")
		e.prefetch()
		e.publishNowPlaying()
	case playlist.ChangeReordered:
		ids := make([]string, 0, e.playlist.Len())
		for _, v := range e.playlist.Entries() {
			ids = append(ids, v.ID)
		}
		if err := database.SaveOrder(e.db.DB, ids); err != nil {
			persistErrors.WithLabelValues("order").Inc()
			e.log.Warn().Err(err).Msg("save order")
		}
		e.prefetch()
	}
}

func (e *Engine) onStateChange(s player.State) {
	next := player.Settings{Volume: s.Volume, Muted: s.Muted, PlaybackRate: s.PlaybackRate}
	e.mu.Lock()
	if next == e.lastSettings {
		e.mu.Unlock()
		return
	}
	e.lastSettings = next
	e.mu.Unlock()

	if err := e.state.UpdateSettings(next); err != nil {
		persistErrors.WithLabelValues("settings").Inc()
		e.log.Warn().Err(err).Msg("save settings")
	}
}

func (e *Engine) onEnded(id string) {
	playsRecorded.Inc()
	if err := e.state.RecordPlay(id); err != nil {
		persistErrors.WithLabelValues("history").Inc()
		e.log.Warn().Err(err).Msg("record play")
	}
}
