package database

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"momo-player/internal/models"
)

// SeedCatalog inserts the videos of one category. Rows that already exist
// keep their stored SortOrder so a user reorder survives restarts; new rows
// are appended after the current maximum.
func SeedCatalog(db *gorm.DB, category string, videos []models.Video) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var maxOrder sql.NullInt64
		if err := tx.Model(&models.Video{}).
			Where("category = ?", category).
			Select("MAX(sort_order)").
			Row().Scan(&maxOrder); err != nil {
			return err
		}
		next := 0
		if maxOrder.Valid {
			next = int(maxOrder.Int64) + 1
		}

		for _, v := range videos {
			v.Category = category
			v.SortOrder = next
			res := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"title", "subtitle", "description", "thumb", "sources", "updated_at",
				}),
			}).Create(&v)
			if res.Error != nil {
				return fmt.Errorf("seed video %s: %w", v.ID, res.Error)
			}
			next++
		}
		return nil
	})
}

// LoadOrder returns the stored video ids of a category by SortOrder.
func LoadOrder(db *gorm.DB, category string) ([]string, error) {
	var ids []string
	err := db.Model(&models.Video{}).
		Where("category = ?", category).
		Order("sort_order asc").
		Pluck("id", &ids).Error
	return ids, err
}

// SaveOrder rewrites SortOrder for the given ids.
func SaveOrder(db *gorm.DB, ids []string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&models.Video{}).Where("id = ?", id).Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadVideos returns the stored videos of a category by SortOrder.
func LoadVideos(db *gorm.DB, category string) ([]models.Video, error) {
	var videos []models.Video
	err := db.Where("category = ?", category).
		Order("sort_order asc").
		Find(&videos).Error
	return videos, err
}

// Categories lists the distinct stored category names.
func Categories(db *gorm.DB) ([]string, error) {
	var names []string
	err := db.Model(&models.Video{}).
		Distinct("category").
		Order("category asc").
		Pluck("category", &names).Error
	return names, err
}
