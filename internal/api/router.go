package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cogmanager/internal/config"
	"cogmanager/pkg/otel"
	"cogmanager/pkg/rbac"
)

// Pinger reports whether a dependency is reachable; *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Intentions IntentionAPI
	Push       PushAPI
	Checks     CheckRunner
	DB         Pinger
	JWTSecret  string
	// RequireServiceRoleForChecks protects the check endpoints with a service_role token.
	RequireServiceRoleForChecks bool
	Logger                      *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(d.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.DB == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := d.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	intentions := NewIntentionHandler(d.Intentions, d.Logger)
	pushes := NewPushHandler(d.Push, d.Logger)
	checks := NewCheckHandler(d.Checks, d.Logger)

	r.GET("/push/vapid-public-key", pushes.PublicKey)

	auth := r.Group("/")
	auth.Use(AuthMiddleware(d.JWTSecret))
	{
		auth.POST("/intentions/complete", RequirePermission(rbac.PermissionCompleteIntention), intentions.Complete)
		auth.GET("/intentions/complete", RequirePermission(rbac.PermissionReadIntention), intentions.Status)
		auth.GET("/intentions/history", RequirePermission(rbac.PermissionReadIntention), intentions.History)

		auth.POST("/push/subscribe", RequirePermission(rbac.PermissionSubscribePush), pushes.Subscribe)
		auth.DELETE("/push/subscribe", RequirePermission(rbac.PermissionSubscribePush), pushes.Unsubscribe)
		auth.POST("/push/send", RequirePermission(rbac.PermissionSendPush), pushes.Send)
	}

	checkGroup := r.Group("/push")
	if d.RequireServiceRoleForChecks {
		checkGroup.Use(AuthMiddleware(d.JWTSecret), RequirePermission(rbac.PermissionRunChecks))
	}
	for _, check := range config.Checks {
		checkGroup.GET("/"+check, checks.Run(check))
	}

	return &Router{Engine: r}
}

func (r *Router) Run(addr string) error {
	return r.Engine.Run(addr)
}
