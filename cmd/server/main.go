// Command server runs the management control plane: the HTTP API, the
// long-lived upstream event listener, and the periodic scheduler, all
// wired against one shared storage backend and one upstream client.
package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/resalt-bridge/resalt/internal/api"
	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/config"
	"github.com/resalt-bridge/resalt/internal/ldapauth"
	"github.com/resalt-bridge/resalt/internal/listener"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/middleware"
	"github.com/resalt-bridge/resalt/internal/scheduler"
	"github.com/resalt-bridge/resalt/internal/session"
	"github.com/resalt-bridge/resalt/internal/store"
	"github.com/resalt-bridge/resalt/internal/store/memory"
	"github.com/resalt-bridge/resalt/internal/store/postgres"
	"github.com/resalt-bridge/resalt/internal/store/redisstore"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	if cfg.SaltAPISystemServiceToken == "" {
		log.Fatal().Msg("SALT_API_SYSTEM_SERVICE_TOKEN must be set; it authenticates the event listener's own login")
	}

	db, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to storage")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("storage bootstrap failed")
	}

	client := upstream.New(cfg.SaltAPIURL, cfg.SaltAPITLSSkipVerify)
	bridge := session.New(db, client, time.Duration(cfg.AuthSessionLifespanSeconds)*time.Second)
	ldap := ldapauth.New(ldapauth.Config{
		Enabled:      cfg.AuthLdapEnabled,
		URL:          cfg.AuthLdapURL,
		BindDN:       cfg.AuthLdapBindDN,
		BindPassword: cfg.AuthLdapBindPassword,
		BaseDN:       cfg.AuthLdapBaseDN,
	})

	eventListener := listener.New(client, db, cfg.SaltAPISystemServiceToken)
	go eventListener.Start(ctx)

	sched := scheduler.New()
	if err := sched.Schedule("version-check", "@hourly", scheduler.CheckVersion()); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule version check")
	}
	if cfg.AuthLdapEnabled {
		if err := sched.Schedule("ldap-sync", "@hourly", func() {
			if err := ldap.SyncUsers(context.Background(), db); err != nil {
				logger.Scheduler().Error().Err(err).Msg("ldap sync failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("failed to schedule ldap sync")
		}
	}
	if err := sched.Schedule("token-prune", "@daily", scheduler.PruneExpiredTokens(db)); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule token pruning")
	}
	sched.Start()

	router := buildRouter(cfg, db, bridge, client, eventListener, ldap)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}

// openStore dispatches DATABASE_TYPE to a concrete backend. "files" maps to
// the in-memory backend; there is no on-disk store in this build.
func openStore(cfg config.Config) (store.Store, error) {
	log := logger.Storage()
	switch cfg.DatabaseType {
	case "postgres", "mysql":
		if cfg.DatabaseType == "mysql" {
			log.Warn().Msg("DATABASE_TYPE=mysql is served by the postgres backend; point DB_* at a postgres instance")
		}
		return postgres.New(postgres.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
	case "redis":
		redisDB := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				redisDB = n
			}
		}
		return redisstore.New(redisstore.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       redisDB,
		})
	default:
		log.Warn().Str("type", cfg.DatabaseType).Msg("using in-memory storage; all state is lost on restart")
		return memory.New(), nil
	}
}

func buildRouter(cfg config.Config, db store.Store, bridge *session.Bridge, client *upstream.Client, eventListener *listener.Listener, ldap *ldapauth.Authenticator) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(apperr.Recovery())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(apperr.ErrorHandler())

	base := strings.TrimSuffix(cfg.SubPath, "/")
	apiGroup := router.Group(base + "/api/1")

	handlers := api.New(db, bridge, client, eventListener, ldap, cfg.SaltAPISystemServiceToken)
	handlers.RegisterRoutes(apiGroup, middleware.Auth(db, bridge), middleware.RequirePermission)

	if cfg.HTTPFrontendProxyEnabled && cfg.HTTPFrontendProxyTarget != "" {
		target, err := url.Parse(cfg.HTTPFrontendProxyTarget)
		if err != nil {
			logger.GetLogger().Fatal().Err(err).Msg("invalid frontend proxy target")
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		router.NoRoute(func(c *gin.Context) {
			proxy.ServeHTTP(c.Writer, c.Request)
		})
	}

	return router
}
