package handler

import (
	"net/http"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/gin-gonic/gin"
)

// SessionCounter reports the number of connected viewers.
type SessionCounter interface {
	Sessions() int
}

type Handler struct {
	tiles    cache.Loader
	sessions SessionCounter
}

func NewHandler(tiles cache.Loader, sessions SessionCounter) *Handler {
	return &Handler{
		tiles:    tiles,
		sessions: sessions,
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.sessions.Sessions(),
	})
}
