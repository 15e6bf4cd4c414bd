package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/scheduler"
)

func (h *Handlers) registerStatusRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.GET("/status", auth, h.status)
}

// status reports whether the event listener currently holds a live
// connection to the upstream master, plus release information from the
// periodic version check.
func (h *Handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"eventsConnected": h.Listener.Connected(),
		"version":         scheduler.Version,
		"latestVersion":   scheduler.LatestKnownVersion(),
	})
}
