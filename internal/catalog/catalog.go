// Package catalog loads the static video catalog. The file is YAML or
// JSON; entries without an id get one derived from their first source so
// ids stay stable across restarts.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"momo-player/internal/models"
	"momo-player/internal/storage"
)

var (
	ErrNoCategories    = errors.New("catalog has no categories")
	ErrUnknownCategory = errors.New("unknown category")
)

// videoNamespace scopes ids derived from source URLs.
var videoNamespace = uuid.MustParse("5b0e7a7e-6f5c-4b9a-9f0e-2d7c1c6a8e41")

// IDFor derives a stable id from a source location.
func IDFor(source string) string {
	return uuid.NewSHA1(videoNamespace, []byte(source)).String()
}

// Parse decodes and normalizes a catalog document. Videos without any
// source are dropped; duplicate ids within a category keep the first.
func Parse(data []byte) (*models.Catalog, error) {
	var c models.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, ErrNoCategories
	}

	for ci := range c.Categories {
		cat := &c.Categories[ci]
		cat.Name = strings.TrimSpace(cat.Name)
		if cat.Name == "" {
			cat.Name = fmt.Sprintf("category-%d", ci+1)
		}

		seen := make(map[string]bool, len(cat.Videos))
		kept := cat.Videos[:0]
		for _, v := range cat.Videos {
			if v.Source() == "" {
				continue
			}
			if v.ID == "" {
				v.ID = IDFor(v.Source())
			}
			if seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			v.Category = cat.Name
			kept = append(kept, v)
		}
		cat.Videos = kept
	}
	return &c, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*models.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadObject reads a catalog from the media bucket.
func LoadObject(store *storage.Client, key string) (*models.Catalog, error) {
	data, err := store.ReadAll(key)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", key, err)
	}
	return Parse(data)
}

// Pick returns the videos of the named category, or of the first
// category when name is empty. Matching ignores case.
func Pick(c *models.Catalog, name string) (models.Category, error) {
	if len(c.Categories) == 0 {
		return models.Category{}, ErrNoCategories
	}
	if name == "" {
		return c.Categories[0], nil
	}
	for _, cat := range c.Categories {
		if strings.EqualFold(cat.Name, name) {
			return cat, nil
		}
	}
	return models.Category{}, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
}

// Marshal renders a catalog as YAML.
func Marshal(c *models.Catalog) ([]byte, error) {
	return yaml.Marshal(c)
}
