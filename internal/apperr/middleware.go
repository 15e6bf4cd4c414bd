package apperr

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorHandler turns the last error attached to the Gin context into the
// standard JSON error envelope, logging 5xx as error and 4xx as warn.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		if appErr, ok := err.Err.(*AppError); ok {
			if appErr.StatusCode >= 500 {
				log.Error().Str("code", string(appErr.Code)).Str("details", appErr.Details).Msg(appErr.Message)
			} else {
				log.Warn().Str("code", string(appErr.Code)).Msg(appErr.Message)
			}
			if !c.Writer.Written() {
				c.JSON(appErr.StatusCode, appErr.ToResponse())
			}
			return
		}

		log.Error().Err(err.Err).Msg("unhandled error")
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   string(CodeInternalError),
				Message: "an unexpected error occurred",
				Code:    string(CodeInternalError),
			})
		}
	}
}

// Recovery recovers from panics in handlers and reports them as internal
// errors instead of crashing the process.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   string(CodeInternalError),
					Message: "an unexpected error occurred",
					Code:    string(CodeInternalError),
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// Abort attaches err to the Gin context and immediately writes the error
// response, short-circuiting the handler chain.
func Abort(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}

// Handle attaches err (wrapping as InternalError if it isn't already an
// AppError) and writes the response without aborting Gin's own chain
// (useful when the handler wants to do cleanup before returning).
func Handle(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	internal := InternalError(err.Error())
	c.Error(internal)
	c.JSON(internal.StatusCode, internal.ToResponse())
}
