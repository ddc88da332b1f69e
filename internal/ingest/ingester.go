// Package ingest turns the video files found in the media bucket into
// catalog rows.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"momo-player/internal/catalog"
	database "momo-player/internal/db"
	plog "momo-player/internal/log"
	"momo-player/internal/models"
	"momo-player/internal/storage"
)

var (
	jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "player_ingest_jobs_total",
			Help: "Total ingest jobs",
		},
		[]string{"status"},
	)
	duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "player_ingest_duration_seconds",
			Help:    "Processing time",
			Buckets: prometheus.DefBuckets,
		},
	)
	registerOnce sync.Once
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(jobs, duration)
	})
}

// errUnplayable marks a file the prober could not read.
var errUnplayable = errors.New("file is not playable")

// Options control one scan.
type Options struct {
	// Prefix limits the scan to keys below it.
	Prefix string
	// Category receives the new rows.
	Category string
	// Force re-reads files that already have a row.
	Force bool
	// Probe, when set, rejects files whose duration it cannot read.
	Probe func(ctx context.Context, path string) (float64, error)
	// TempDir holds downloads while their tags are read.
	TempDir string
}

// Result counts what a scan did.
type Result struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Worker struct {
	storage *storage.Client
	db      *gorm.DB
	opts    Options
	log     zerolog.Logger
}

func New(store *storage.Client, db *gorm.DB, opts Options) *Worker {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Worker{storage: store, db: db, opts: opts, log: plog.WithComponent("ingest")}
}

// Run scans once, then again every interval until ctx is done. A zero
// interval scans once.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.Scan(ctx); err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.log.Info().Str("prefix", w.opts.Prefix).Dur("interval", interval).Msg("watching bucket")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.storage.InvalidateListings()
			if _, err := w.Scan(ctx); err != nil {
				w.log.Error().Err(err).Msg("scan failed")
			}
		}
	}
}

// Scan reads every video under the prefix that has no row yet and appends
// the new ones to the category.
func (w *Worker) Scan(ctx context.Context) (Result, error) {
	var res Result

	keys, err := w.storage.ListMedia(w.opts.Prefix)
	if err != nil {
		return res, fmt.Errorf("list media: %w", err)
	}
	if len(keys) > 0 {
		w.log.Info().Int("files", len(keys)).Str("prefix", w.opts.Prefix).Msg("scanning")
	}

	var videos []models.Video
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		id := catalog.IDFor(key)
		if !w.opts.Force {
			known, err := w.known(id)
			if err != nil {
				return res, err
			}
			if known {
				res.Skipped++
				continue
			}
		}

		v, err := w.processFile(ctx, key)
		switch {
		case errors.Is(err, errUnplayable):
			w.log.Warn().Str("key", key).Msg("skipping unplayable file")
			jobs.WithLabelValues("rejected").Inc()
			res.Failed++
			continue
		case err != nil:
			w.log.Error().Err(err).Str("key", key).Msg("ingest failed")
			jobs.WithLabelValues("failure").Inc()
			res.Failed++
			continue
		}
		jobs.WithLabelValues("success").Inc()
		w.log.Info().Str("key", key).Str("title", v.Title).Msg("ingested")
		videos = append(videos, v)
	}

	if len(videos) > 0 {
		if err := database.SeedCatalog(w.db, w.opts.Category, videos); err != nil {
			return res, err
		}
	}
	res.Added = len(videos)
	if res.Added+res.Failed > 0 {
		w.log.Info().Int("added", res.Added).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("scan done")
	}
	return res, ctx.Err()
}

func (w *Worker) known(id string) (bool, error) {
	var n int64
	if err := w.db.Model(&models.Video{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (w *Worker) processFile(ctx context.Context, key string) (models.Video, error) {
	timer := prometheus.NewTimer(duration)
	defer timer.ObserveDuration()

	v := models.Video{
		ID:      catalog.IDFor(key),
		Title:   TitleFromKey(key),
		Sources: []string{key},
	}

	obj, err := w.storage.DownloadFile(key)
	if err != nil {
		return v, err
	}
	f, err := os.CreateTemp(w.opts.TempDir, "momo-ingest-*"+path.Ext(key))
	if err != nil {
		obj.Body.Close()
		return v, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	_, err = io.Copy(f, obj.Body)
	obj.Body.Close()
	if err != nil {
		return v, fmt.Errorf("download %s: %w", key, err)
	}

	if w.opts.Probe != nil {
		if d, err := w.opts.Probe(ctx, f.Name()); err != nil || d <= 0 {
			return v, errUnplayable
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return v, err
	}
	var picture *tag.Picture
	if meta, err := tag.ReadFrom(f); err == nil {
		applyTags(&v, meta)
		picture = meta.Picture()
	} else {
		w.log.Debug().Err(err).Str("key", key).Msg("no readable tags")
	}

	v.Thumb = w.thumbnail(v.ID, key, picture)
	return v, nil
}

func applyTags(v *models.Video, meta tag.Metadata) {
	if t := strings.TrimSpace(meta.Title()); t != "" {
		v.Title = t
	}
	v.Subtitle = strings.TrimSpace(meta.Artist())
	if v.Subtitle == "" {
		v.Subtitle = strings.TrimSpace(meta.AlbumArtist())
	}
	v.Description = strings.TrimSpace(meta.Comment())
}

// thumbnail prefers an image stored next to the video, then publishes
// the embedded cover art if the file has one.
func (w *Worker) thumbnail(id, key string, pic *tag.Picture) string {
	for _, cand := range ThumbCandidates(key) {
		if ok, err := w.storage.Exists(cand); err == nil && ok {
			return cand
		}
	}
	if pic == nil || len(pic.Data) == 0 {
		return ""
	}

	ext := pic.Ext
	if ext == "" {
		ext = "jpg"
	}
	thumbKey := "thumbs/" + id + "." + strings.TrimPrefix(ext, ".")
	contentType := pic.MIMEType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if err := w.storage.Publish(thumbKey, bytes.NewReader(pic.Data), contentType, "public, max-age=31536000"); err != nil {
		w.log.Warn().Err(err).Str("key", key).Msg("publish cover art")
		return ""
	}
	return thumbKey
}
