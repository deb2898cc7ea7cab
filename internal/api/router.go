// Package api exposes the attendance services over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sheetattend/internal/attendance"
	"sheetattend/internal/audit"
	"sheetattend/internal/auth"
	"sheetattend/internal/config"
	"sheetattend/internal/history"
	"sheetattend/internal/httpmiddleware"
	"sheetattend/internal/store"
	"sheetattend/internal/upload"
	"sheetattend/internal/users"
)

// AuditLog lists recorded events for a sheet.
type AuditLog interface {
	ListBySheet(ctx context.Context, sheetID string, limit int) ([]audit.Event, error)
}

// Deps are the services behind the routes. Redis and AuditLog are optional.
type Deps struct {
	Config     config.App
	Attendance *attendance.Service
	History    *history.Store
	Users      *users.Store
	Upload     *upload.Service
	Audit      audit.Recorder
	AuditLog   AuditLog
	Signer     auth.Signer
	Redis      *store.Redis
}

type handler struct {
	Deps
	now func() time.Time
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	h := &handler{Deps: d, now: time.Now}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(d.Config.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.NewLimiter(d.Config.RateLimitPerMin, d.Config.RateLimitPerMin, nil).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	api := r.Group("/api", auth.UserAuth(d.Signer, false))
	api.GET("/health", h.health)

	loginLimit := httpmiddleware.NewLimiter(d.Config.LoginRateLimitPerMin, d.Config.LoginRateLimitPerMin, nil)
	api.POST("/login", loginLimit.Middleware(), h.login)
	api.POST("/createuser", h.createUser)

	up := api.Group("/upload", h.protected())
	up.POST("/validate", h.validateSheet)
	up.POST("/uploadSheet", h.uploadSheet)

	att := api.Group("/attendance", h.protected())
	att.GET("", h.details)
	att.DELETE("/cache", h.clearCache)
	att.GET("/display", h.display)
	att.POST("/commit", h.commit)
	att.POST("/addonspot", h.addOnSpot)
	att.GET("/export", h.export)

	hist := api.Group("/history", h.protected())
	hist.GET("", h.history)
	hist.GET("/event", h.historyEvent)
	hist.GET("/event/export", h.exportEvent)
	hist.GET("/event/qr", h.eventQR)
	hist.GET("/event/audit", h.eventAudit)

	prof := api.Group("/profile", h.protected())
	prof.POST("", h.profile)
	prof.POST("/getsession", h.sessions)
	prof.POST("/close", h.closeSession)

	return r
}

// protected enforces a valid access token when REQUIRE_AUTH is set.
func (h *handler) protected() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.Config.RequireAuth {
			c.Next()
			return
		}
		if _, ok := auth.FromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing or invalid bearer token"})
			return
		}
		c.Next()
	}
}

func (h *handler) health(c *gin.Context) {
	body := gin.H{"success": true, "status": "server is running"}
	if h.Redis != nil {
		healthy := h.Redis.Healthy(c.Request.Context())
		body["redis"] = healthy
		if !healthy {
			body["success"] = false
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

// actor names who is acting. With a token the subject is the actor and a
// different explicit name is answered with 403; without one the explicit
// name is taken as given.
func actor(c *gin.Context, explicit string) (string, bool) {
	explicit = strings.TrimSpace(explicit)
	claims, found := auth.FromContext(c)
	if !found {
		return explicit, true
	}
	if explicit != "" && !strings.EqualFold(explicit, claims.Subject) {
		fail(c, http.StatusForbidden, "username does not match the signed-in user")
		return "", false
	}
	return claims.Subject, true
}
