package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"momo-player/internal/engine"
	"momo-player/internal/models"
	"momo-player/internal/player"
)

// PlayerHandler turns HTTP calls into controller commands. Every command
// answers with the resulting state.
type PlayerHandler struct {
	ctl        *player.Controller
	nowPlaying func() engine.NowPlaying
	history    func(limit int) ([]models.PlayHistory, error)
}

func NewPlayerHandler(ctl *player.Controller, nowPlaying func() engine.NowPlaying, history func(int) ([]models.PlayHistory, error)) *PlayerHandler {
	return &PlayerHandler{ctl: ctl, nowPlaying: nowPlaying, history: history}
}

func (h *PlayerHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.State())
}

func (h *PlayerHandler) GetNowPlaying(c *gin.Context) {
	c.JSON(http.StatusOK, h.nowPlaying())
}

// GetHistory lists recent completed plays, ?limit= defaults to 20.
func (h *PlayerHandler) GetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}
	rows, err := h.history(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (h *PlayerHandler) command(fn func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn()
		c.JSON(http.StatusOK, h.ctl.State())
	}
}

func (h *PlayerHandler) TogglePlay() gin.HandlerFunc       { return h.command(h.ctl.TogglePlay) }
func (h *PlayerHandler) ToggleMute() gin.HandlerFunc       { return h.command(h.ctl.ToggleMute) }
func (h *PlayerHandler) CycleRate() gin.HandlerFunc        { return h.command(h.ctl.CyclePlaybackRate) }
func (h *PlayerHandler) ToggleFullscreen() gin.HandlerFunc { return h.command(h.ctl.ToggleFullscreen) }

func (h *PlayerHandler) SetVolume(c *gin.Context) {
	var input struct {
		Volume *float64 `json:"volume"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Volume == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume is required"})
		return
	}
	h.ctl.SetVolume(*input.Volume)
	c.JSON(http.StatusOK, h.ctl.State())
}

func (h *PlayerHandler) Skip(c *gin.Context) {
	var input struct {
		Seconds *float64 `json:"seconds"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Seconds == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds is required"})
		return
	}
	h.ctl.Skip(*input.Seconds)
	c.JSON(http.StatusOK, h.ctl.State())
}

// Scrub forwards one pointer phase of a timeline drag.
func (h *PlayerHandler) Scrub(c *gin.Context) {
	var input struct {
		Phase string `json:"phase" binding:"required"`
		player.Pointer
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch input.Phase {
	case "begin":
		h.ctl.BeginScrub(input.Pointer)
	case "move":
		h.ctl.MoveScrub(input.Pointer)
	case "end":
		h.ctl.EndScrub()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadPhase.Error()})
		return
	}
	c.JSON(http.StatusOK, h.ctl.State())
}

// Key dispatches a keyboard shortcut.
func (h *PlayerHandler) Key(c *gin.Context) {
	var input struct {
		Key string `json:"key"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	handled := h.ctl.HandleKey(input.Key)
	c.JSON(http.StatusOK, gin.H{"handled": handled, "state": h.ctl.State()})
}
