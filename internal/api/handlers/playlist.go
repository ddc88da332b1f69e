package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"momo-player/internal/models"
	"momo-player/internal/playlist"
)

// PlaylistHandler exposes the shared playlist store.
type PlaylistHandler struct {
	store    *playlist.Store
	category string
}

func NewPlaylistHandler(store *playlist.Store, category string) *PlaylistHandler {
	return &PlaylistHandler{store: store, category: category}
}

type PlaylistEntry struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Thumb    string `json:"thumb"`
	Selected bool   `json:"selected"`
}

type PlaylistView struct {
	Category string          `json:"category"`
	Index    int             `json:"index"`
	Entries  []PlaylistEntry `json:"entries"`
}

// View is the playlist as clients see it.
func (h *PlaylistHandler) View() PlaylistView {
	entries := h.store.Entries()
	index := h.store.Index()
	out := PlaylistView{Category: h.category, Index: index, Entries: make([]PlaylistEntry, len(entries))}
	for i, v := range entries {
		out.Entries[i] = toEntry(i, v, i == index)
	}
	return out
}

func toEntry(i int, v models.Video, selected bool) PlaylistEntry {
	return PlaylistEntry{Index: i, ID: v.ID, Title: v.Title, Subtitle: v.Subtitle, Thumb: v.Thumb, Selected: selected}
}

// GetPlaylist returns the ordered entries and the selected index.
func (h *PlaylistHandler) GetPlaylist(c *gin.Context) {
	c.JSON(http.StatusOK, h.View())
}

// Select makes the entry at index current. Re-selecting the current entry
// or an index past the end changes nothing and reports changed=false.
func (h *PlaylistHandler) Select(c *gin.Context) {
	var input struct {
		Index *int `json:"index"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Index == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index is required"})
		return
	}
	if h.store.Len() == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": playlist.ErrEmpty.Error()})
		return
	}

	changed := h.store.SelectIndex(*input.Index)
	c.JSON(http.StatusOK, gin.H{"changed": changed, "playlist": h.View()})
}

// Reorder applies a drag-and-drop result. A null destination means the
// drop landed outside the list.
func (h *PlaylistHandler) Reorder(c *gin.Context) {
	var drop playlist.Drop
	if err := c.ShouldBindJSON(&drop); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed := h.store.Reorder(drop)
	c.JSON(http.StatusOK, gin.H{"changed": changed, "playlist": h.View()})
}

var errBadPhase = errors.New("phase must be begin, move or end")
