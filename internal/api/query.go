package api

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/model"
)

// parsePaginate reads the "limit"/"offset" query parameters, defaulting to
// an unbounded Paginate (Limit 0 means "no limit" to the store backends).
func parsePaginate(c *gin.Context) model.Paginate {
	var page model.Paginate
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			page.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			page.Offset = n
		}
	}
	return page
}

// parseFilters decodes the "filter" query parameter, a JSON-encoded array
// of model.Filter, understood by every list endpoint that supports
// minion-style filtering.
func parseFilters(c *gin.Context) ([]model.Filter, error) {
	raw := c.Query("filter")
	if raw == "" {
		return nil, nil
	}
	var filters []model.Filter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, err
	}
	return filters, nil
}

func parseSort(c *gin.Context) model.Sort {
	return model.Sort(c.Query("sort"))
}

// bindFilterJSON unmarshals a raw filter-list JSON string, used to validate
// a preset's stored filter body before it is persisted.
func bindFilterJSON(raw string, out *[]model.Filter) error {
	return json.Unmarshal([]byte(raw), out)
}
