package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/permission"
)

func (h *Handlers) registerEventRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	rg.GET("/events", auth, perm(permission.EventList), h.listEvents)
}

func (h *Handlers) listEvents(c *gin.Context) {
	ctx := c.Request.Context()
	events, err := h.Store.ListEvents(ctx, parsePaginate(c))
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	total, err := h.Store.CountEvents(ctx)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events, "total": total})
}
