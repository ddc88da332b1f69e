package ingest

import (
	"bytes"
	"fmt"

	"gorm.io/gorm"

	"momo-player/internal/catalog"
	database "momo-player/internal/db"
	"momo-player/internal/models"
	"momo-player/internal/storage"
)

// Export rebuilds a catalog document from the stored rows, one category per
// distinct category name, videos in their stored order.
func Export(db *gorm.DB) (*models.Catalog, error) {
	names, err := database.Categories(db)
	if err != nil {
		return nil, err
	}
	c := &models.Catalog{Categories: make([]models.Category, 0, len(names))}
	for _, name := range names {
		videos, err := database.LoadVideos(db, name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		c.Categories = append(c.Categories, models.Category{Name: name, Videos: videos})
	}
	return c, nil
}

// PublishCatalog writes the exported catalog to key in the bucket, where
// the player can load it with catalog.key.
func PublishCatalog(store *storage.Client, db *gorm.DB, key string) error {
	c, err := Export(db)
	if err != nil {
		return err
	}
	data, err := catalog.Marshal(c)
	if err != nil {
		return err
	}
	return store.Publish(key, bytes.NewReader(data), "application/yaml", "no-cache")
}
