package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/permission"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

func (h *Handlers) registerMinionRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	g := rg.Group("/minions", auth)
	g.GET("", perm(permission.MinionList), h.listMinions)
	g.GET("/:id", perm(permission.MinionList), h.getMinion)
	g.POST("/:id/refresh", perm(permission.MinionRefresh), h.refreshMinion)
}

func (h *Handlers) listMinions(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		apperr.Abort(c, apperr.InvalidRequest("invalid filter"))
		return
	}
	ctx := c.Request.Context()
	minions, err := h.Store.ListMinions(ctx, filters, parseSort(c), parsePaginate(c))
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	total, err := h.Store.CountMinions(ctx, filters)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": minions, "total": total})
}

func (h *Handlers) getMinion(c *gin.Context) {
	minion, err := h.Store.GetMinion(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if minion == nil {
		apperr.Abort(c, apperr.NotFound("minion"))
		return
	}
	c.JSON(http.StatusOK, minion)
}

// refreshMinion asks the upstream master to re-publish grains/pillar for
// the minion, retrying once if the session's upstream token has expired.
func (h *Handlers) refreshMinion(c *gin.Context) {
	id := c.Param("id")
	err := h.withUpstreamToken(c, func(tokenValue string) error {
		return h.Client.RefreshMinion(c.Request.Context(), tokenValue, id)
	})
	if err != nil {
		apperr.Abort(c, upstream.ToAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}
