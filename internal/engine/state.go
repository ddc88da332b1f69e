package engine

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"momo-player/internal/models"
	"momo-player/internal/player"
)

// StateManager persists the resume point: selection and user settings in
// the singleton player_state row, plus the play history.
type StateManager struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStateManager(db *gorm.DB) (*StateManager, error) {
	sm := &StateManager{db: db, now: time.Now}
	// Ensure the singleton row exists on startup
	row := models.PlayerState{ID: 1, Volume: 1, PlaybackRate: 1, UpdatedAt: sm.now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, err
	}
	return sm, nil
}

// GetCurrentState reads where the previous run left off.
func (sm *StateManager) GetCurrentState() (*models.PlayerState, error) {
	var state models.PlayerState
	err := sm.db.First(&state, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.PlayerState{ID: 1, Volume: 1, PlaybackRate: 1}, nil
	}
	return &state, err
}

// Settings converts the stored row for player.Controller.Restore.
func (sm *StateManager) Settings() (player.Settings, error) {
	st, err := sm.GetCurrentState()
	if err != nil {
		return player.Settings{}, err
	}
	rate := st.PlaybackRate
	if rate <= 0 {
		rate = 1
	}
	return player.Settings{Volume: st.Volume, Muted: st.Muted, PlaybackRate: rate}, nil
}

// UpdateSelection is called every time a different video becomes current.
func (sm *StateManager) UpdateSelection(category, videoID string) error {
	return sm.db.Model(&models.PlayerState{ID: 1}).Updates(map[string]interface{}{
		"category":   category,
		"video_id":   videoID,
		"updated_at": sm.now(),
	}).Error
}

// UpdateSettings stores volume, mute and playback rate.
func (sm *StateManager) UpdateSettings(s player.Settings) error {
	return sm.db.Model(&models.PlayerState{ID: 1}).Updates(map[string]interface{}{
		"volume":        s.Volume,
		"muted":         s.Muted,
		"playback_rate": s.PlaybackRate,
		"updated_at":    sm.now(),
	}).Error
}

// RecordPlay appends a history row for a video played to its end.
func (sm *StateManager) RecordPlay(videoID string) error {
	return sm.db.Create(&models.PlayHistory{VideoID: videoID, PlayedAt: sm.now()}).Error
}

// History returns the most recent plays, newest first.
func (sm *StateManager) History(limit int) ([]models.PlayHistory, error) {
	var rows []models.PlayHistory
	err := sm.db.Order("played_at desc, id desc").Limit(limit).Find(&rows).Error
	return rows, err
}
