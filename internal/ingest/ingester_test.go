package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momo-player/internal/catalog"
	database "momo-player/internal/db"
	"momo-player/internal/storage"
)

func setup(t *testing.T) (*storage.Client, *database.Client, string) {
	t.Helper()
	root := t.TempDir()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewWithProvider(storage.NewLocalProvider(root), "media"), db, root
}

func put(t *testing.T, root, key, body string) {
	t.Helper()
	p := filepath.Join(root, "media", filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func TestTitleFromKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"videos/big_buck_bunny.mp4", "Big buck bunny"},
		{"videos/Sintel.2010.[1080p].x264.mkv", "Sintel 2010"},
		{"tears-of-steel (2012).webm", "Tears of steel"},
		{"videos/___.mp4", "___.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromKey(tt.key))
		})
	}
}

func TestThumbCandidates(t *testing.T) {
	assert.Equal(t,
		[]string{"v/a.jpg", "v/a.jpeg", "v/a.png", "v/a.webp"},
		ThumbCandidates("v/a.mp4"))
}

func TestScanAddsUntaggedFiles(t *testing.T) {
	store, db, root := setup(t)
	put(t, root, "videos/big_buck_bunny.mp4", "not really a video")
	put(t, root, "videos/big_buck_bunny.png", "png")
	put(t, root, "videos/sintel.webm", "not really a video")
	put(t, root, "videos/readme.txt", "ignored")

	w := New(store, db.DB, Options{Prefix: "videos/", Category: "Library", TempDir: t.TempDir()})
	res, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 2}, res)

	videos, err := database.LoadVideos(db.DB, "Library")
	require.NoError(t, err)
	require.Len(t, videos, 2)

	byTitle := map[string]string{}
	for _, v := range videos {
		byTitle[v.Title] = v.Thumb
		assert.Equal(t, catalog.IDFor(v.Source()), v.ID)
	}
	assert.Equal(t, "videos/big_buck_bunny.png", byTitle["Big buck bunny"])
	assert.Equal(t, "", byTitle["Sintel"])

	// A second pass finds nothing new.
	store.InvalidateListings()
	res, err = w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, res)
}

func TestScanRejectsUnplayable(t *testing.T) {
	store, db, root := setup(t)
	put(t, root, "videos/good.mp4", "ok")
	put(t, root, "videos/broken.mp4", "broken")

	probe := func(_ context.Context, p string) (float64, error) {
		data, err := os.ReadFile(p)
		if err != nil {
			return 0, err
		}
		if string(data) == "broken" {
			return 0, nil
		}
		return 60, nil
	}

	w := New(store, db.DB, Options{Prefix: "videos/", Category: "Library", Probe: probe, TempDir: t.TempDir()})
	res, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Failed)

	videos, err := database.LoadVideos(db.DB, "Library")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, []string{"videos/good.mp4"}, videos[0].Sources)
}

func TestPublishCatalogRoundTrip(t *testing.T) {
	store, db, root := setup(t)
	put(t, root, "videos/a.mp4", "x")
	put(t, root, "videos/b.mp4", "x")

	w := New(store, db.DB, Options{Prefix: "videos/", Category: "Library", TempDir: t.TempDir()})
	_, err := w.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, PublishCatalog(store, db.DB, "catalog.yaml"))

	cat, err := catalog.LoadObject(store, "catalog.yaml")
	require.NoError(t, err)
	require.Len(t, cat.Categories, 1)
	assert.Equal(t, "Library", cat.Categories[0].Name)
	assert.Len(t, cat.Categories[0].Videos, 2)
}
