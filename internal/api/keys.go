package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/middleware"
	"github.com/resalt-bridge/resalt/internal/permission"
	"github.com/resalt-bridge/resalt/internal/session"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

func (h *Handlers) registerKeyRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	rg.GET("/keys", auth, perm(permission.SaltkeyList), h.listKeys)
	rg.POST("/keys/:state/:id/accept", auth, perm(permission.SaltkeyAccept), h.acceptKey)
	rg.POST("/keys/:state/:id/reject", auth, perm(permission.SaltkeyReject), h.rejectKey)
	rg.POST("/keys/:state/:id/delete", auth, perm(permission.SaltkeyDelete), h.deleteKey)
}

// withUpstreamToken runs fn with the caller's current upstream bearer,
// transparently renewing it once on a 401 via the session bridge.
func (h *Handlers) withUpstreamToken(c *gin.Context, fn func(tokenValue string) error) error {
	user := middleware.CurrentUser(c)
	authToken := middleware.CurrentAuthToken(c)
	if authToken.UpstreamToken == nil {
		return apperr.Unauthorized("no active upstream session")
	}
	_, err := session.WithRetry(c.Request.Context(), h.Bridge, user.Username, authToken, func() (struct{}, error) {
		return struct{}{}, fn(authToken.UpstreamToken.Token)
	})
	return err
}

func (h *Handlers) listKeys(c *gin.Context) {
	var keys interface{}
	err := h.withUpstreamToken(c, func(tokenValue string) error {
		ks, err := h.Client.GetKeys(c.Request.Context(), tokenValue)
		keys = ks
		return err
	})
	if err != nil {
		apperr.Abort(c, upstream.ToAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": keys})
}

func keyStateParam(c *gin.Context) (upstream.KeyState, bool) {
	state, ok := upstream.ParseKeyState(c.Param("state"))
	if !ok {
		apperr.Abort(c, apperr.InvalidRequest("unknown key state"))
	}
	return state, ok
}

func (h *Handlers) acceptKey(c *gin.Context) {
	state, ok := keyStateParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	err := h.withUpstreamToken(c, func(tokenValue string) error {
		return h.Client.AcceptKey(c.Request.Context(), tokenValue, state, id)
	})
	if err != nil {
		apperr.Abort(c, upstream.ToAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) rejectKey(c *gin.Context) {
	state, ok := keyStateParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	err := h.withUpstreamToken(c, func(tokenValue string) error {
		return h.Client.RejectKey(c.Request.Context(), tokenValue, state, id)
	})
	if err != nil {
		apperr.Abort(c, upstream.ToAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteKey removes the key from the master, then prunes any stored minion
// record that no longer corresponds to a known key so stale hosts drop out
// of the minion list immediately.
func (h *Handlers) deleteKey(c *gin.Context) {
	state, ok := keyStateParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	err := h.withUpstreamToken(c, func(tokenValue string) error {
		if err := h.Client.DeleteKey(c.Request.Context(), tokenValue, state, id); err != nil {
			return err
		}
		keys, err := h.Client.GetKeys(c.Request.Context(), tokenValue)
		if err != nil {
			return err
		}
		known := make([]string, 0, len(keys))
		for _, k := range keys {
			known = append(known, k.ID)
		}
		return h.Store.PruneMinions(c.Request.Context(), known)
	})
	if err != nil {
		apperr.Abort(c, upstream.ToAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}
