package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/permission"
)

const (
	maxPresetNameLength   = 100
	maxPresetFilterLength = 65535
)

func (h *Handlers) registerPresetRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	g := rg.Group("/presets", auth, perm(permission.MinionPresetsList))
	g.GET("", h.listPresets)
	g.GET("/:id", h.getPreset)

	manage := rg.Group("/presets", auth, perm(permission.MinionPresetsManage))
	manage.POST("", h.createPreset)
	manage.PUT("/:id", h.updatePreset)
	manage.DELETE("/:id", h.deletePreset)
}

type presetRequest struct {
	Name   string `json:"name"`
	Filter string `json:"filter"`
}

func validatePreset(req presetRequest) *apperr.AppError {
	if req.Name == "" || len(req.Name) > maxPresetNameLength {
		return apperr.InvalidRequest("preset name must be 1-100 characters")
	}
	if req.Filter == "" || len(req.Filter) > maxPresetFilterLength {
		return apperr.InvalidRequest("preset filter must be non-empty and at most 65535 characters")
	}
	var filters []model.Filter
	if err := bindFilterJSON(req.Filter, &filters); err != nil {
		return apperr.InvalidRequest("preset filter must be a valid filter list")
	}
	return nil
}

func (h *Handlers) listPresets(c *gin.Context) {
	presets, err := h.Store.ListMinionPresets(c.Request.Context())
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": presets})
}

func (h *Handlers) getPreset(c *gin.Context) {
	preset, err := h.Store.GetMinionPreset(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if preset == nil {
		apperr.Abort(c, apperr.NotFound("preset"))
		return
	}
	c.JSON(http.StatusOK, preset)
}

func (h *Handlers) createPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("invalid request body"))
		return
	}
	if appErr := validatePreset(req); appErr != nil {
		apperr.Abort(c, appErr)
		return
	}
	preset := &model.MinionPreset{ID: "pre_" + uuid.NewString(), Name: req.Name, Filter: req.Filter}
	if err := h.Store.CreateMinionPreset(c.Request.Context(), preset); err != nil {
		apperr.Handle(c, err)
		return
	}
	c.JSON(http.StatusCreated, preset)
}

func (h *Handlers) updatePreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("invalid request body"))
		return
	}
	if appErr := validatePreset(req); appErr != nil {
		apperr.Abort(c, appErr)
		return
	}
	if err := h.Store.UpdateMinionPreset(c.Request.Context(), c.Param("id"), req.Name, req.Filter); err != nil {
		apperr.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) deletePreset(c *gin.Context) {
	if err := h.Store.DeleteMinionPreset(c.Request.Context(), c.Param("id")); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}
