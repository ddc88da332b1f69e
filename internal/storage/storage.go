// Package storage reads media and catalogs from, and publishes small
// documents to, a bucket on local disk or an S3-compatible service.
package storage

import (
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"momo-player/internal/config"
)

// CacheTTL bounds how long a media listing is reused.
const CacheTTL = 1 * time.Hour

var videoExtensions = []string{".mp4", ".m4v", ".mkv", ".webm", ".mov", ".avi", ".ts"}

// IsVideo reports whether key looks like a playable video file.
func IsVideo(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, e := range videoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

type Client struct {
	backend Provider
	bucket  string

	cache      map[string][]string
	cacheTime  map[string]time.Time
	cacheMutex sync.RWMutex
	now        func() time.Time
}

// New picks the provider named by the storage config.
func New(cfg *config.Config) (*Client, error) {
	var backend Provider
	switch cfg.Storage.Provider {
	case "local":
		backend = NewLocalProvider(cfg.Storage.LocalRoot)
	case "s3":
		p, err := NewS3Provider(cfg.Storage.Endpoint, cfg.Storage.Region, cfg.Storage.KeyID, cfg.Storage.AppKey)
		if err != nil {
			return nil, err
		}
		backend = p
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
	return NewWithProvider(backend, cfg.Storage.Bucket), nil
}

// NewWithProvider wraps an existing provider.
func NewWithProvider(p Provider, bucket string) *Client {
	return &Client{
		backend:   p,
		bucket:    bucket,
		cache:     make(map[string][]string),
		cacheTime: make(map[string]time.Time),
		now:       time.Now,
	}
}

// ListMedia returns the video keys under prefix. Results are cached for
// CacheTTL.
func (c *Client) ListMedia(prefix string) ([]string, error) {
	c.cacheMutex.RLock()
	files, ok := c.cache[prefix]
	ts := c.cacheTime[prefix]
	c.cacheMutex.RUnlock()

	if ok && c.now().Sub(ts) < CacheTTL {
		return files, nil
	}

	keys, err := c.backend.List(c.bucket, prefix)
	if err != nil {
		return nil, err
	}

	var media []string
	for _, key := range keys {
		if IsVideo(key) {
			media = append(media, key)
		}
	}

	c.cacheMutex.Lock()
	c.cache[prefix] = media
	c.cacheTime[prefix] = c.now()
	c.cacheMutex.Unlock()

	return media, nil
}

// InvalidateListings drops cached listings.
func (c *Client) InvalidateListings() {
	c.cacheMutex.Lock()
	c.cache = make(map[string][]string)
	c.cacheTime = make(map[string]time.Time)
	c.cacheMutex.Unlock()
}

// DownloadFile opens key for reading. The caller closes Body.
func (c *Client) DownloadFile(key string) (*FileObject, error) {
	return c.backend.Get(c.bucket, key)
}

// ReadAll fetches a small object into memory.
func (c *Client) ReadAll(key string) ([]byte, error) {
	obj, err := c.backend.Get(c.bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

func (c *Client) Exists(key string) (bool, error) {
	return c.backend.Exists(c.bucket, key)
}

// Publish uploads a document clients poll, such as now_playing.json.
func (c *Client) Publish(key string, body io.ReadSeeker, contentType, cacheControl string) error {
	return c.backend.Put(c.bucket, key, body, contentType, cacheControl)
}

func (c *Client) Delete(key string) error {
	return c.backend.Delete(c.bucket, key)
}
