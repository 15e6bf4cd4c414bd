package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

func (h *Handlers) registerPipelineRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	rg.GET("/pipeline", auth, h.pipeline)
}

// pipeline returns the most recent raw events as a single JSON batch.
// Real-time push to connected clients is out of scope here; this polls the
// same event log an SSE stream would have been backed by.
func (h *Handlers) pipeline(c *gin.Context) {
	events, err := h.Store.ListEvents(c.Request.Context(), model.Paginate{Limit: 50})
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}
