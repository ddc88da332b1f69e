package models

import "time"

// PlayerState is the persisted resume point of the player.
// There is ONE row in this table (ID=1).
type PlayerState struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	Category     string    `json:"category"`
	VideoID      string    `json:"video_id"` // What is selected?
	Volume       float64   `json:"volume"`
	Muted        bool      `json:"muted"`
	PlaybackRate float64   `json:"playback_rate"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName overrides the default pluralization
func (PlayerState) TableName() string {
	return "player_state"
}

// PlayHistory records every time a video was played to its end.
type PlayHistory struct {
	ID       uint      `gorm:"primaryKey"`
	VideoID  string    `gorm:"index;size:64"`
	PlayedAt time.Time `gorm:"index"`
}
