// Package api implements the control plane's thin HTTP surface: one file
// per resource family, each a Handlers method registered onto a
// gin.RouterGroup from cmd/server/main.go.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/ldapauth"
	"github.com/resalt-bridge/resalt/internal/listener"
	"github.com/resalt-bridge/resalt/internal/session"
	"github.com/resalt-bridge/resalt/internal/store"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

// Handlers holds the collaborators every resource handler needs: storage,
// the session/token bridge, the upstream master client, the event listener
// (for status reporting), the directory authenticator, and the shared
// secret the master's eauth callback authenticates the service identity
// with.
type Handlers struct {
	Store              store.Store
	Bridge             *session.Bridge
	Client             *upstream.Client
	Listener           *listener.Listener
	LDAP               *ldapauth.Authenticator
	SystemServiceToken string
}

// New builds a Handlers.
func New(s store.Store, bridge *session.Bridge, client *upstream.Client, l *listener.Listener, ldap *ldapauth.Authenticator, systemServiceToken string) *Handlers {
	return &Handlers{Store: s, Bridge: bridge, Client: client, Listener: l, LDAP: ldap, SystemServiceToken: systemServiceToken}
}

// RegisterRoutes mounts every resource family under rg. auth and perm are
// the gin.HandlerFunc factories from internal/middleware, passed in so this
// package does not need to depend on how they are constructed.
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, perm func(string) gin.HandlerFunc) {
	h.registerAuthRoutes(rg, auth)
	h.registerStatusRoutes(rg, auth)
	h.registerMinionRoutes(rg, auth, perm)
	h.registerGrainRoutes(rg, auth, perm)
	h.registerJobRoutes(rg, auth, perm)
	h.registerEventRoutes(rg, auth, perm)
	h.registerPresetRoutes(rg, auth, perm)
	h.registerUserRoutes(rg, auth, perm)
	h.registerPermissionRoutes(rg, auth, perm)
	h.registerKeyRoutes(rg, auth, perm)
	h.registerSettingsRoutes(rg, auth, perm)
	h.registerPipelineRoutes(rg, auth, perm)
}
