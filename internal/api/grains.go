package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/permission"
)

func (h *Handlers) registerGrainRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	rg.GET("/grains", auth, perm(permission.MinionGrainexplorer), h.listGrainKeys)
}

// listGrainKeys returns the union of top-level grain keys across every
// minion with materialised grains, feeding the grain explorer's
// autocomplete without requiring the client to fetch every minion's full
// grain document.
func (h *Handlers) listGrainKeys(c *gin.Context) {
	minions, err := h.Store.ListMinions(c.Request.Context(), nil, model.Sort(""), model.Paginate{})
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}

	seen := make(map[string]struct{})
	for _, m := range minions {
		if m.Grains == nil {
			continue
		}
		var grains map[string]json.RawMessage
		if err := json.Unmarshal([]byte(*m.Grains), &grains); err != nil {
			continue
		}
		for key := range grains {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	c.JSON(http.StatusOK, gin.H{"data": keys})
}
