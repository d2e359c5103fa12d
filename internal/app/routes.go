package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/catalog/internal/config"
	"github.com/mx-space/catalog/internal/modules/catalog"
	"github.com/mx-space/catalog/internal/modules/marketing"
	"github.com/mx-space/catalog/internal/modules/partner"
	"github.com/mx-space/catalog/internal/modules/publisher"
	"github.com/mx-space/catalog/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() {
	r := a.router
	r.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	r.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })

	if a.cfg.ImageStorage.Driver == config.ImageDriverLocal && strings.HasPrefix(a.cfg.ImageStorage.BaseURL, "/") {
		r.Static(strings.TrimRight(a.cfg.ImageStorage.BaseURL, "/"), a.cfg.ImageDir())
	}

	api := r.Group(apiPrefix)
	api.GET("/health", a.health)
	api.GET("/crons", func(c *gin.Context) { response.OK(c, a.sched.List()) })
	api.POST("/crons/:name/run", a.runCron)

	partner.NewHandler(a.partners).RegisterRoutes(api)
	catalog.NewHandler(a.catalog).RegisterRoutes(api)
	publisher.NewHandler(a.publisher).RegisterRoutes(api)
	marketing.NewHandler(a.marketing).RegisterRoutes(api)
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "ok"}
	if sqlDB, err := a.db.DB(); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := a.rc.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ok": status == http.StatusOK, "checks": checks})
}

func (a *App) runCron(c *gin.Context) {
	if err := a.sched.Trigger(c.Request.Context(), c.Param("name")); err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	c.Status(http.StatusAccepted)
}
