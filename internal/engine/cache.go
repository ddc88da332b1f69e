package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	plog "momo-player/internal/log"
	"momo-player/internal/storage"
)

// StorageProvider defines what the cache needs from the storage layer.
type StorageProvider interface {
	DownloadFile(key string) (*storage.FileObject, error)
}

// CacheManager keeps local copies of bucket objects so the element can
// open them as plain files.
type CacheManager struct {
	storage StorageProvider
	baseDir string
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan struct{}
	wg      sync.WaitGroup
}

func NewCacheManager(store StorageProvider, dir string) (*CacheManager, error) {
	cacheDir := filepath.Join(dir, "video_cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &CacheManager{
		storage: store,
		baseDir: cacheDir,
		log:     plog.WithComponent("cache"),
		pending: make(map[string]chan struct{}),
	}, nil
}

// GetLocalPath returns the cached file for key, downloading it first when
// needed. Concurrent callers for the same key share one download.
func (c *CacheManager) GetLocalPath(key string) (string, error) {
	localPath := c.filePath(key)

	for {
		if c.exists(localPath) {
			now := time.Now()
			_ = os.Chtimes(localPath, now, now)
			return localPath, nil
		}

		c.mu.Lock()
		waitCh, downloading := c.pending[key]
		if !downloading {
			break
		}
		c.mu.Unlock()
		// The other download may have failed; loop and re-check.
		<-waitCh
	}

	done := make(chan struct{})
	c.pending[key] = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		close(done)
	}()

	c.log.Info().Str("key", key).Msg("cache miss, downloading")
	if err := c.download(key, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}

// Prefetch downloads keys in the background.
func (c *CacheManager) Prefetch(keys []string) {
	for _, key := range keys {
		c.wg.Add(1)
		go func(k string) {
			defer c.wg.Done()
			if _, err := c.GetLocalPath(k); err != nil {
				c.log.Warn().Err(err).Str("key", k).Msg("prefetch failed")
			}
		}(key)
	}
}

// Wait blocks until running prefetches finish.
func (c *CacheManager) Wait() {
	c.wg.Wait()
}

// Cleanup removes cached files that are not in keepKeys.
func (c *CacheManager) Cleanup(keepKeys []string) {
	keep := make(map[string]bool, len(keepKeys))
	for _, k := range keepKeys {
		keep[c.filePath(k)] = true
	}

	files, err := os.ReadDir(c.baseDir)
	if err != nil {
		return
	}

	c.mu.Lock()
	busy := make(map[string]bool, len(c.pending))
	for k := range c.pending {
		busy[c.filePath(k)] = true
		busy[c.filePath(k)+".tmp"] = true
	}
	c.mu.Unlock()

	for _, file := range files {
		fullPath := filepath.Join(c.baseDir, file.Name())
		if keep[fullPath] || busy[fullPath] {
			continue
		}
		if err := os.Remove(fullPath); err == nil {
			c.log.Debug().Str("file", file.Name()).Msg("evicted")
		}
	}
}

// filePath flattens the key into one file name.
func (c *CacheManager) filePath(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(c.baseDir, safe)
}

func (c *CacheManager) exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

func (c *CacheManager) download(key, dest string) error {
	tmp := dest + ".tmp"

	obj, err := c.storage.DownloadFile(key)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, obj.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	// Rename to final file (atomic)
	return os.Rename(tmp, dest)
}
