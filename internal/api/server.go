package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/api/auth"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/api/middleware"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/api/scheduler"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/config"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/alertdedup"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/metrics"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/notify"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/queue"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/ratelimit"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/statuscache"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/rank"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server wires the HTTP API: database, redis, the rank service, the
// refresh scheduler and the gin router.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine
	sched  *scheduler.Scheduler
	auth   *auth.Handler
	queue  *queue.Queue
	limit  *ratelimit.Limiter

	store  DataStore
	ranks  RankService
	status RefreshStatus
}

// DataStore is the persistence surface the handlers depend on.
// *store.Store satisfies it; tests substitute a mock.
type DataStore interface {
	GetProduct(ctx context.Context, id uint) (*model.Product, error)
	GetProductForUser(ctx context.Context, id, userID uint) (*model.Product, error)
	GetProducts(ctx context.Context, userID uint) ([]model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id, userID uint) error

	GetKeyword(ctx context.Context, id uint) (*model.Keyword, error)
	GetKeywordsByUser(ctx context.Context, userID uint) ([]model.Keyword, error)
	GetKeywordsByProduct(ctx context.Context, productID, userID uint) ([]model.Keyword, error)
	CountKeywordsByUser(ctx context.Context, userID uint) (int64, error)
	DeleteKeyword(ctx context.Context, id, userID uint) error
	GetRankHistory(ctx context.Context, keywordID uint, limit int) ([]model.RankObservation, error)

	CreateSales(ctx context.Context, sales []model.Sale) error
}

// RankService is the rank-tracking surface the handlers depend on.
type RankService interface {
	AddKeyword(ctx context.Context, userID, productID uint, phrase string, opts rank.QueryOptions) (*model.Keyword, error)
	RefreshKeywordRank(ctx context.Context, keywordID uint) (*model.RankObservation, error)
	RefreshAllKeywords(ctx context.Context, userID uint) (*rank.BulkRefreshResult, error)
	UserRankStats(ctx context.Context, userID uint) (*rank.RankStats, error)
}

// RefreshStatus exposes the last refresh outcome per keyword.
type RefreshStatus interface {
	Get(ctx context.Context, keywordID uint) (status, message string)
}

// NewServer connects MySQL and redis, runs migrations and assembles
// the rank service, scheduler and routes.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	st := store.New(db)
	if err := st.AutoMigrate(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	q := queue.NewQueue(logger, cfg.App.WorkerPoolSize, cfg.App.QueueCapacity)
	q.Start(ctx)

	provider := rank.NewSerpClient(cfg.Search, logger)
	ranks := rank.NewService(st, provider, q, rank.AlertSettings{
		ImprovementThreshold: cfg.Alerts.ImprovementThreshold,
		DeclineThreshold:     cfg.Alerts.DeclineThreshold,
		NotifyImprovements:   cfg.Alerts.NotifyImprovements,
		NotifyDeclines:       cfg.Alerts.NotifyDeclines,
	}, logger)
	ranks.SetNotifier(
		notify.NewEmailNotifier(&cfg.Email, logger),
		alertdedup.New(rdb, cfg.Alerts.DedupWindow),
	)

	status := statuscache.New(rdb, 0)
	sched := scheduler.New(st, ranks, q, status, logger, scheduler.Config{
		Tick:          cfg.App.ScheduleTick,
		CheckInterval: cfg.App.CheckInterval,
		BatchSize:     cfg.App.QueueCapacity,
	})

	metrics.InitMetrics(cfg.App.WorkerPoolSize)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		router: r,
		sched:  sched,
		auth:   auth.NewHandler(db, cfg.Security.JWTSecret, logger),
		queue:  q,
		limit:  ratelimit.New(rdb, logger, cfg.App.APIRateLimit, cfg.App.APIRateBurst),
		store:  st,
		ranks:  ranks,
		status: status,
	}
	s.registerRoutes()
	return s, nil
}

// Run starts the scheduler and serves HTTP until the listener fails.
func (s *Server) Run() error {
	s.StartScheduler(context.Background())

	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router returns the HTTP handler, for embedding in an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

// StartScheduler runs the refresh scheduler in the background.
func (s *Server) StartScheduler(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in scheduler", slog.Any("panic", r))
			}
		}()
		s.sched.Run(ctx)
	}()
}

// Shutdown drains the refresh queue and closes connections.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.queue != nil {
		if err := s.queue.ShutdownWithTimeout(timeout); err != nil {
			s.logger.Warn("queue shutdown", slog.String("error", err.Error()))
		}
	}
	return s.Close()
}

// Close closes the database and cache connections.
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/register", s.auth.Register)
	s.router.POST("/login", s.auth.Login)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	if s.limit != nil {
		authed.Use(middleware.RateLimit(s.limit))
	}
	authed.POST("/logout", s.auth.Logout)

	authed.GET("/products", s.handleListProducts)
	authed.POST("/products", s.handleCreateProduct)
	authed.GET("/products/:id", s.handleGetProduct)
	authed.PUT("/products/:id", s.handleUpdateProduct)
	authed.DELETE("/products/:id", s.handleDeleteProduct)
	authed.GET("/products/:id/seo", s.handleProductSEO)
	authed.POST("/sales/import", s.handleImportSales)

	authed.GET("/keywords", s.handleListKeywords)
	authed.POST("/keywords", s.handleCreateKeyword)
	authed.DELETE("/keywords/:id", s.handleDeleteKeyword)
	authed.POST("/keywords/:id/refresh", s.handleRefreshKeyword)
	authed.POST("/refresh", s.handleRefreshAll)
	authed.GET("/keywords/:id/history", s.handleKeywordHistory)

	authed.GET("/stats/ranks", s.handleRankStats)
	authed.POST("/seo/score", s.handleScoreText)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func getUserID(c *gin.Context) uint {
	v, ok := c.Get("userID")
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}

// parsePathID parses a :id path parameter.
func parsePathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}
