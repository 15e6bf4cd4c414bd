package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/middleware"
	"github.com/resalt-bridge/resalt/internal/permission"
	"github.com/resalt-bridge/resalt/internal/store"
)

func (h *Handlers) registerUserRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	list := rg.Group("/users", auth, perm(permission.UserList))
	list.GET("", h.listUsers)
	list.GET("/:id", h.getUser)

	admin := rg.Group("/users", auth, perm(permission.AdminUser))
	admin.DELETE("/:id", h.deleteUser)
	admin.PUT("/:id/permissions/:groupId", h.addUserToGroup)
	admin.DELETE("/:id/permissions/:groupId", h.removeUserFromGroup)

	rg.PUT("/users/:id/password", auth, perm(permission.UserPassword), h.setUserPassword)
	rg.PUT("/users/:id/email", auth, perm(permission.UserEmail), h.setUserEmail)
}

func (h *Handlers) listUsers(c *gin.Context) {
	users, err := h.Store.ListUsers(c.Request.Context())
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (h *Handlers) getUser(c *gin.Context) {
	user, err := h.Store.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if user == nil {
		apperr.Abort(c, apperr.NotFound("user"))
		return
	}
	c.JSON(http.StatusOK, user)
}

// deleteUser refuses to delete the caller's own account or the reserved
// "admin" bootstrap account.
func (h *Handlers) deleteUser(c *gin.Context) {
	id := c.Param("id")
	caller := middleware.CurrentUser(c)
	if caller != nil && caller.ID == id {
		apperr.Abort(c, apperr.Forbidden("cannot delete your own account"))
		return
	}
	target, err := h.Store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if target == nil {
		apperr.Abort(c, apperr.NotFound("user"))
		return
	}
	if target.Username == "admin" {
		apperr.Abort(c, apperr.Forbidden("cannot delete the admin account"))
		return
	}
	if err := h.Store.DeleteUser(c.Request.Context(), id); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) addUserToGroup(c *gin.Context) {
	id, groupID := c.Param("id"), c.Param("groupId")
	ctx := c.Request.Context()
	group, err := h.Store.GetPermissionGroup(ctx, groupID)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if group == nil {
		apperr.Abort(c, apperr.NotFound("permission group"))
		return
	}
	member, err := h.Store.IsUserMemberOfGroup(ctx, id, groupID)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if member {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.Store.AddUserToGroup(ctx, id, groupID); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if err := store.RefreshUserPermissions(ctx, h.Store, id); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) removeUserFromGroup(c *gin.Context) {
	id, groupID := c.Param("id"), c.Param("groupId")
	ctx := c.Request.Context()
	if err := h.Store.RemoveUserFromGroup(ctx, id, groupID); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if err := store.RefreshUserPermissions(ctx, h.Store, id); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *Handlers) setUserPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Password) < 8 {
		apperr.Abort(c, apperr.InvalidRequest("password must be at least 8 characters"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		apperr.Abort(c, apperr.InternalError("failed to hash password"))
		return
	}
	if err := h.Store.UpdateUserPasswordHash(c.Request.Context(), c.Param("id"), string(hash)); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

type emailRequest struct {
	Email *string `json:"email"`
}

func (h *Handlers) setUserEmail(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("invalid request body"))
		return
	}
	if err := h.Store.UpdateUserEmail(c.Request.Context(), c.Param("id"), req.Email); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}
