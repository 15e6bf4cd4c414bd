// Package middleware provides HTTP middleware for the control plane's API.
//
// RequestID assigns a correlation ID to every request, preserving one
// supplied by an upstream proxy so log lines can be tied together across
// hops.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the correlation ID on requests and responses.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the Gin context key the ID is stored under.
	RequestIDKey = "request_id"
)

// RequestID extracts the caller-supplied correlation ID or generates a
// fresh one, stores it on the context, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID returns the correlation ID stored by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
