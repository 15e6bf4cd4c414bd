// Package middleware - auth.go
//
// Auth validates the bearer token on every protected request against the
// session bridge, refreshes its upstream login if needed, and stores the
// resulting user and token on the Gin context for handlers and
// RequirePermission to use.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/permission"
	"github.com/resalt-bridge/resalt/internal/session"
	"github.com/resalt-bridge/resalt/internal/store"
)

const (
	contextKeyUser      = "auth_user"
	contextKeyAuthToken = "auth_token"
)

// bearerToken extracts the presented token from the Authorization header,
// falling back to the "token" query parameter for clients (such as EventSource
// consumers) that cannot set headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return c.Query("token")
}

// Auth requires a valid bearer token, loads its owning user, and refreshes
// the upstream login when it has expired. On success it stores the user
// under contextKeyUserID/contextKeyUsername (read by StructuredLogger) and
// the full User/AuthToken under contextKeyUser/contextKeyAuthToken (read by
// RequirePermission and handlers).
func Auth(s store.Store, bridge *session.Bridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			apperr.Abort(c, apperr.Unauthorized("missing bearer token"))
			return
		}

		authToken, err := bridge.Validate(c.Request.Context(), token)
		if err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
		if authToken == nil {
			apperr.Abort(c, apperr.Unauthorized("invalid or expired token"))
			return
		}

		user, err := s.GetUserByID(c.Request.Context(), authToken.UserID)
		if err != nil {
			apperr.Abort(c, apperr.DatabaseError(err))
			return
		}
		if user == nil {
			apperr.Abort(c, apperr.Unauthorized("invalid or expired token"))
			return
		}

		authToken, err = bridge.EnsureFresh(c.Request.Context(), user.Username, authToken)
		if err != nil {
			logger.Session().Warn().Err(err).Str("user", user.Username).Msg("failed to refresh upstream session")
		}

		c.Set(contextKeyUserID, user.ID)
		c.Set(contextKeyUsername, user.Username)
		c.Set(contextKeyUser, user)
		c.Set(contextKeyAuthToken, authToken)
		c.Next()
	}
}

// CurrentUser returns the authenticated user stored by Auth, or nil if the
// route has no Auth middleware (or it has not run yet).
func CurrentUser(c *gin.Context) *model.User {
	v, exists := c.Get(contextKeyUser)
	if !exists {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// CurrentAuthToken returns the validated AuthToken stored by Auth.
func CurrentAuthToken(c *gin.Context) *model.AuthToken {
	v, exists := c.Get(contextKeyAuthToken)
	if !exists {
		return nil
	}
	tok, _ := v.(*model.AuthToken)
	return tok
}

// RequirePermission aborts with 403 unless the current user holds perm
// against the control plane's own pseudo-target. Must run after Auth.
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			apperr.Abort(c, apperr.Unauthorized("authentication required"))
			return
		}
		if !permission.HasResaltPermission([]byte(user.Perms), perm) {
			apperr.Abort(c, apperr.Forbidden("missing required permission: "+perm))
			return
		}
		c.Next()
	}
}
