package models

import (
	"time"
)

// Video is one playable playlist entry. Entries are immutable once loaded;
// reordering only changes SortOrder.
type Video struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id" yaml:"id"`
	Category    string    `gorm:"index;size:255" json:"category,omitempty" yaml:"-"`
	Title       string    `json:"title" yaml:"title"`
	Subtitle    string    `json:"subtitle" yaml:"subtitle"`
	Description string    `json:"description" yaml:"description"`
	Thumb       string    `json:"thumb" yaml:"thumb"`
	Sources     []string  `gorm:"serializer:json" json:"sources" yaml:"sources"`
	SortOrder   int       `gorm:"index" json:"-" yaml:"-"`
	CreatedAt   time.Time `json:"-" yaml:"-"`
	UpdatedAt   time.Time `json:"-" yaml:"-"`
}

// Source returns the first playable source, or "" when the entry has none.
func (v Video) Source() string {
	if len(v.Sources) == 0 {
		return ""
	}
	return v.Sources[0]
}

// Category groups an ordered list of videos in the static catalog.
type Category struct {
	Name   string  `json:"name" yaml:"name"`
	Videos []Video `json:"videos" yaml:"videos"`
}

// Catalog is the read-only collection loaded once at startup.
type Catalog struct {
	Categories []Category `json:"categories" yaml:"categories"`
}
