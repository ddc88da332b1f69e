package playlist

import "momo-player/internal/models"

// Reorderer maps a drag of the entry at from onto position to. It returns
// the new ordering and false when the drop produced no change.
type Reorderer func(entries []models.Video, from, to int) ([]models.Video, bool)

// Drop is the outcome of a drag gesture. A nil Destination means the drag
// ended outside a valid drop target.
type Drop struct {
	Source      int  `json:"source"`
	Destination *int `json:"destination"`
}

// Move removes the entry at from and reinserts it at to, shifting the
// entries in between. The input slice is not modified.
func Move(entries []models.Video, from, to int) ([]models.Video, bool) {
	n := len(entries)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return entries, false
	}

	out := make([]models.Video, 0, n)
	out = append(out, entries[:from]...)
	out = append(out, entries[from+1:]...)

	moved := entries[from]
	out = append(out, models.Video{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out, true
}
