package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/permission"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

func (h *Handlers) registerJobRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	g := rg.Group("/jobs", auth)
	g.GET("", perm(permission.JobList), h.listJobs)
	g.POST("", perm(permission.RunLive), h.runJob)
	g.GET("/:jid", perm(permission.JobList), h.getJob)
}

type runJobRequest struct {
	Client    upstream.ClientType `json:"client" binding:"required"`
	Tgt       string              `json:"tgt"`
	TgtType   string              `json:"tgtType"`
	Fun       string              `json:"fun" binding:"required"`
	Arg       []string            `json:"arg"`
	Kwarg     map[string]string   `json:"kwarg"`
	BatchSize string              `json:"batchSize"`
}

// runJob dispatches a live job to the master with the caller's own upstream
// session, selecting the Salt client type from the request body. An expired
// upstream token is renewed and the dispatch retried once.
func (h *Handlers) runJob(c *gin.Context) {
	var req runJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("client and fun are required"))
		return
	}
	arg := make([]interface{}, len(req.Arg))
	for i, a := range req.Arg {
		arg[i] = a
	}

	var result json.RawMessage
	err := h.withUpstreamToken(c, func(tokenValue string) error {
		ctx := c.Request.Context()
		var err error
		switch req.Client {
		case upstream.ClientLocal:
			result, err = h.Client.RunJobLocal(ctx, tokenValue, req.Tgt, req.TgtType, req.Fun, arg, req.Kwarg)
		case upstream.ClientLocalAsync:
			result, err = h.Client.RunJobLocalAsync(ctx, tokenValue, req.Tgt, req.TgtType, req.Fun, arg, req.Kwarg)
		case upstream.ClientLocalBatch:
			result, err = h.Client.RunJobLocalBatch(ctx, tokenValue, req.Tgt, req.TgtType, req.Fun, arg, req.Kwarg, req.BatchSize)
		case upstream.ClientRunner:
			result, err = h.Client.RunJobRunner(ctx, tokenValue, req.Fun, arg, req.Kwarg)
		case upstream.ClientRunnerAsync:
			result, err = h.Client.RunJobRunnerAsync(ctx, tokenValue, req.Fun, arg, req.Kwarg)
		case upstream.ClientWheel:
			result, err = h.Client.RunJobWheel(ctx, tokenValue, req.Fun, arg, req.Kwarg)
		case upstream.ClientWheelAsync:
			result, err = h.Client.RunJobWheelAsync(ctx, tokenValue, req.Fun, arg, req.Kwarg)
		default:
			return apperr.InvalidRequest("unknown client type")
		}
		return err
	})
	if err != nil {
		apperr.Abort(c, upstream.ToAppError(err))
		return
	}
	c.Data(http.StatusOK, "application/json", result)
}

func (h *Handlers) listJobs(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		apperr.Abort(c, apperr.InvalidRequest("invalid filter"))
		return
	}
	ctx := c.Request.Context()
	jobs, err := h.Store.ListJobs(ctx, filters, parseSort(c), parsePaginate(c))
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	total, err := h.Store.CountJobs(ctx, filters)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs, "total": total})
}

func (h *Handlers) getJob(c *gin.Context) {
	jid := c.Param("jid")
	ctx := c.Request.Context()
	job, err := h.Store.GetJobByJid(ctx, jid)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if job == nil {
		apperr.Abort(c, apperr.NotFound("job"))
		return
	}
	returns, err := h.Store.ListJobReturnsByJid(ctx, jid)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "returns": returns})
}
