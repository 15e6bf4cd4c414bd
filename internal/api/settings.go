package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/permission"
	"github.com/resalt-bridge/resalt/internal/store"
)

func (h *Handlers) registerSettingsRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	g := rg.Group("/settings", auth, perm(permission.AdminSuperadmin))
	g.GET("/export", h.exportSettings)
	g.POST("/import", h.importSettings)
}

// dataDump is the full-store snapshot exchanged by export/import, gated to
// admin.superadmin since it includes every user's password hash.
type dataDump struct {
	Users       []model.User            `json:"users"`
	Groups      []model.PermissionGroup `json:"groups"`
	Memberships map[string][]string     `json:"memberships"`
	Minions     []model.Minion          `json:"minions"`
	Presets     []model.MinionPreset    `json:"minionPresets"`
}

func (h *Handlers) exportSettings(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.Store.ListUsers(ctx)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	groups, err := h.Store.ListPermissionGroups(ctx)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	memberships := make(map[string][]string, len(users))
	for _, u := range users {
		groupIDs, err := h.Store.ListUserGroupIDs(ctx, u.ID)
		if err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
		memberships[u.ID] = groupIDs
	}
	minions, err := h.Store.ListMinions(ctx, nil, model.Sort(""), model.Paginate{})
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	presets, err := h.Store.ListMinionPresets(ctx)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}

	c.JSON(http.StatusOK, dataDump{
		Users:       users,
		Groups:      groups,
		Memberships: memberships,
		Minions:     minions,
		Presets:     presets,
	})
}

// importSettings restores users, groups, and memberships from a dump
// produced by exportSettings. Entities that already exist (matched by
// username/name) are left untouched rather than overwritten, since the
// storage interface exposes no generic upsert; only missing entities are
// created.
func (h *Handlers) importSettings(c *gin.Context) {
	var dump dataDump
	if err := c.ShouldBindJSON(&dump); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("invalid data dump"))
		return
	}

	ctx := c.Request.Context()

	for i := range dump.Groups {
		group := dump.Groups[i]
		existing, err := h.Store.GetPermissionGroup(ctx, group.ID)
		if err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
		if existing == nil {
			if err := h.Store.CreatePermissionGroup(ctx, &group); err != nil {
				apperr.Handle(c, err)
				return
			}
		}
	}

	for i := range dump.Users {
		user := dump.Users[i]
		existing, err := h.Store.GetUserByID(ctx, user.ID)
		if err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
		if existing == nil {
			if err := h.Store.CreateUser(ctx, &user); err != nil {
				apperr.Handle(c, err)
				return
			}
		}
	}

	for userID, groupIDs := range dump.Memberships {
		for _, groupID := range groupIDs {
			if err := h.Store.AddUserToGroup(ctx, userID, groupID); err != nil {
				apperr.Abort(c, apperr.DatabaseError(err))
				return
			}
		}
		if err := store.RefreshUserPermissions(ctx, h.Store, userID); err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
	}

	for i := range dump.Presets {
		preset := dump.Presets[i]
		existing, err := h.Store.GetMinionPreset(ctx, preset.ID)
		if err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
		if existing == nil {
			if err := h.Store.CreateMinionPreset(ctx, &preset); err != nil {
				apperr.Handle(c, err)
				return
			}
		}
	}

	c.Status(http.StatusNoContent)
}
