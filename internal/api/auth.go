package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/listener"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/middleware"
	"github.com/resalt-bridge/resalt/internal/model"
)

func (h *Handlers) registerAuthRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	g := rg.Group("/auth")
	g.POST("/login", h.login)
	// POST /auth/token is called back by the upstream master's rest eauth
	// to validate the AuthToken id it was handed as a login password. It
	// is authenticated by the token itself, never by a bearer header.
	g.POST("/token", h.validateTokenForMaster)
	g.GET("/token", auth, h.tokenInfo)
	g.GET("/user", auth, h.currentUser)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"`
}

// login verifies username/password, against the local password hash for
// local accounts or the directory service for externally-backed accounts,
// then mints a local AuthToken and logs the session in to the upstream
// master.
func (h *Handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("username and password are required"))
		return
	}
	username := strings.ToLower(req.Username)

	ctx := c.Request.Context()
	user, err := h.Store.GetUserByUsername(ctx, username)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}

	switch {
	case user != nil && user.PasswordHash != nil:
		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
			apperr.Abort(c, apperr.Unauthorized("invalid username or password"))
			return
		}
	case h.LDAP != nil && h.LDAP.Enabled():
		identity, err := h.LDAP.Authenticate(ctx, username, req.Password)
		if err != nil {
			if appErr, ok := err.(*apperr.AppError); ok {
				apperr.Abort(c, appErr)
			} else {
				apperr.Abort(c, apperr.LdapError(err))
			}
			return
		}
		if identity == nil {
			apperr.Abort(c, apperr.Unauthorized("invalid username or password"))
			return
		}
		if user == nil {
			user = &model.User{
				ID:       "usr_" + uuid.NewString(),
				Username: identity.Username,
				Perms:    "[]",
				Email:    identity.Email,
			}
			if err := h.Store.CreateUser(ctx, user); err != nil {
				apperr.Abort(c, apperr.DatabaseError(err))
				return
			}
			logger.Session().Info().Str("user", user.Username).Msg("created user from directory login")
		}
	default:
		apperr.Abort(c, apperr.Unauthorized("invalid username or password"))
		return
	}

	authToken, err := h.Bridge.Mint(ctx, user.ID, user.Username)
	if err != nil {
		apperr.Abort(c, apperr.InternalError("failed to establish session"))
		return
	}
	if err := h.Store.UpdateUserLastLogin(ctx, user.ID, authToken.IssuedAt); err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}

	var expiry int64
	if authToken.UpstreamToken != nil {
		expiry = authToken.UpstreamToken.Expire
	}
	c.JSON(http.StatusOK, loginResponse{UserID: user.ID, Token: authToken.ID, Expiry: expiry})
}

type tokenValidateRequest struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// validateTokenForMaster answers the master's rest eauth callback. The
// reserved service identity authenticates with the static shared secret and
// is granted the full runner/wheel surface; any other caller must present a
// live AuthToken id as the password and receives that user's effective
// permission document.
func (h *Handlers) validateTokenForMaster(c *gin.Context) {
	var req tokenValidateRequest
	if err := c.ShouldBind(&req); err != nil {
		apperr.Abort(c, apperr.InvalidRequest("username and password are required"))
		return
	}
	username := strings.ToLower(req.Username)

	if username == strings.ToLower(listener.SystemServiceUsername) {
		if h.SystemServiceToken != "" && req.Password == h.SystemServiceToken {
			c.JSON(http.StatusOK, []string{".*", "@runner", "@wheel"})
			return
		}
		apperr.Abort(c, apperr.Unauthorized("invalid service token"))
		return
	}

	ctx := c.Request.Context()
	authToken, err := h.Bridge.Validate(ctx, req.Password)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if authToken == nil {
		apperr.Abort(c, apperr.Unauthorized("invalid token"))
		return
	}
	user, err := h.Store.GetUserByID(ctx, authToken.UserID)
	if err != nil {
		apperr.Abort(c, apperr.DatabaseError(err))
		return
	}
	if user == nil {
		apperr.Abort(c, apperr.Unauthorized("invalid token"))
		return
	}

	var perms json.RawMessage
	if err := json.Unmarshal([]byte(user.Perms), &perms); err != nil {
		apperr.Abort(c, apperr.InternalError("stored permissions are not valid JSON"))
		return
	}
	c.JSON(http.StatusOK, perms)
}

func (h *Handlers) tokenInfo(c *gin.Context) {
	token := middleware.CurrentAuthToken(c)
	if token == nil {
		apperr.Abort(c, apperr.Unauthorized("no active session"))
		return
	}
	var expiry int64
	if token.UpstreamToken != nil {
		expiry = token.UpstreamToken.Expire
	}
	c.JSON(http.StatusOK, gin.H{"id": token.ID, "userId": token.UserID, "expiry": expiry})
}

func (h *Handlers) currentUser(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		apperr.Abort(c, apperr.Unauthorized("no active session"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username, "email": user.Email})
}
