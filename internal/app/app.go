package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mx-space/catalog/internal/config"
	"github.com/mx-space/catalog/internal/database"
	"github.com/mx-space/catalog/internal/middleware"
	"github.com/mx-space/catalog/internal/modules/catalog"
	"github.com/mx-space/catalog/internal/modules/marketing"
	"github.com/mx-space/catalog/internal/modules/partner"
	"github.com/mx-space/catalog/internal/modules/publisher"
	pkgcron "github.com/mx-space/catalog/internal/pkg/cron"
	"github.com/mx-space/catalog/internal/pkg/imagestore"
	pkgredis "github.com/mx-space/catalog/internal/pkg/redis"
	"github.com/mx-space/catalog/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler

	partners  *partner.Service
	catalog   *catalog.Service
	publisher *publisher.Service
	marketing *marketing.Service
}

// New initializes the application: DB → Redis → image store → services → routes → cron.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := database.Connect(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("redis: %w", err)
	}

	images, err := newImageStore(ctx, cfg)
	if err != nil {
		cancel()
		_ = rc.Close()
		return nil, fmt.Errorf("image storage: %w", err)
	}

	a := assemble(cfg, logger, db, rc, images)
	a.cancel = cancel
	a.sched.Start(ctx)
	return a, nil
}

// assemble wires services, routes and cron jobs over already opened connections.
func assemble(cfg *config.AppConfig, logger *zap.Logger, db *gorm.DB, rc *pkgredis.Client, images imagestore.Store) *App {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	partners := partner.NewService(db, partner.WithLogger(logger), partner.WithTimeout(cfg.HTTPTimeout))
	queue := taskqueue.New(rc)
	mkt := marketing.NewService(db, queue, partners,
		marketing.WithLogger(logger),
		marketing.WithBatchSize(cfg.Marketing.BatchSize),
	)
	cat := catalog.NewService(db,
		catalog.WithLogger(logger),
		catalog.WithClients(partners),
		catalog.WithNotifier(mkt),
		catalog.WithUpgradeDeadlineDays(cfg.Publisher.UpgradeDeadlineDays),
	)
	pub := publisher.NewService(db, cat, publisher.WithLogger(logger), publisher.WithImageStore(images))

	a := &App{
		cfg:       cfg,
		router:    newRouter(cfg, logger, rc),
		db:        db,
		rc:        rc,
		logger:    logger,
		cancel:    func() {},
		sched:     pkgcron.New(pkgcron.WithLogger(logger)),
		partners:  partners,
		catalog:   cat,
		publisher: pub,
		marketing: mkt,
	}
	registerCronJobs(a.sched, mkt, cfg)
	a.registerRoutes()
	return a
}

func newRouter(cfg *config.AppConfig, logger *zap.Logger, rc *pkgredis.Client) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.IdempotenceHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
	}
	corsConfig.AllowOriginFunc = func(string) bool { return true }
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		corsConfig.AllowOriginFunc = allowOrigins(cfg.AllowedOrigins)
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.Idempotence(rc))
	return router
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops cron jobs and closes Redis.
func (a *App) Shutdown() {
	a.cancel()
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
}
