package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/permission"
	"github.com/resalt-bridge/resalt/internal/store"
)

func (h *Handlers) registerPermissionRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	g := rg.Group("/permissions", auth, perm(permission.AdminGroup))
	g.GET("", h.listPermissionGroups)
	g.GET("/:id", h.getPermissionGroup)
	g.POST("", h.createPermissionGroup)
	g.PUT("/:id", h.updatePermissionGroup)
	g.DELETE("/:id", h.deletePermissionGroup)
}

type permissionGroupRequest struct {
	Name  string `json:"name" binding:"required"`
	Perms string `json:"perms"`
}

func (h *Handlers) listPermissionGroups(c *gin.Context) {
	groups, err := h.Store.ListPermissionGroups(c.Request.Context())
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": groups})
}

func (h *Handlers) getPermissionGroup(c *gin.Context) {
	ctx := c.Request.Context()
	group, err := h.Store.GetPermissionGroup(ctx, c.Param("id"))
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if group == nil {
		apperr.Abort(c, apperr.NotFound("permission group"))
		return
	}
	members, err := h.Store.ListUsersByGroupID(ctx, group.ID)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	usernames := make([]string, 0, len(members))
	for _, m := range members {
		usernames = append(usernames, m.Username)
	}
	c.JSON(http.StatusOK, gin.H{"id": group.ID, "name": group.Name, "perms": group.Perms, "users": usernames})
}

func (h *Handlers) createPermissionGroup(c *gin.Context) {
	var req permissionGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("name is required"))
		return
	}
	if req.Perms == "" {
		req.Perms = "[]"
	}
	group := &model.PermissionGroup{ID: "pg_" + uuid.NewString(), Name: req.Name, Perms: req.Perms}
	if err := h.Store.CreatePermissionGroup(c.Request.Context(), group); err != nil {
		apperr.Handle(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *Handlers) updatePermissionGroup(c *gin.Context) {
	var req permissionGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("invalid request body"))
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.Store.UpdatePermissionGroupPerms(ctx, id, req.Perms); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	// Every member's effective permission document embeds the group's rules,
	// so it has to be recomputed now rather than at next login.
	members, err := h.Store.ListUsersByGroupID(ctx, id)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	for _, m := range members {
		if err := store.RefreshUserPermissions(ctx, h.Store, m.ID); err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// deletePermissionGroup refuses to delete the reserved $superadmins group.
func (h *Handlers) deletePermissionGroup(c *gin.Context) {
	id := c.Param("id")
	group, err := h.Store.GetPermissionGroup(c.Request.Context(), id)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if group == nil {
		apperr.Abort(c, apperr.NotFound("permission group"))
		return
	}
	if group.Name == model.ReservedSuperadminsGroup {
		apperr.Abort(c, apperr.Forbidden("cannot delete the reserved superadmins group"))
		return
	}
	ctx := c.Request.Context()
	members, err := h.Store.ListUsersByGroupID(ctx, id)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if err := h.Store.DeletePermissionGroup(ctx, id); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	for _, m := range members {
		if err := store.RefreshUserPermissions(ctx, h.Store, m.ID); err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
	}
	c.Status(http.StatusNoContent)
}
