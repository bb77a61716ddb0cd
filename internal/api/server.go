// Package api exposes the HTTP and WebSocket surface of the service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cryptofolio/config"
	"cryptofolio/internal/auth"
	"cryptofolio/internal/cache"
	"cryptofolio/internal/database"
	"cryptofolio/internal/events"
	"cryptofolio/internal/logging"
	"cryptofolio/internal/market"
	"cryptofolio/internal/news"
	"cryptofolio/internal/portfolio"
	"cryptofolio/internal/staking"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	logger     *logging.Logger

	repo             *database.Repository
	eventBus         *events.EventBus
	authService      *auth.Service
	stakingEngine    *staking.Engine
	stakingScheduler *staking.Scheduler
	portfolioService *portfolio.Service
	marketFeed       *market.Feed
	newsAggregator   *news.Aggregator
	cacheService     *cache.CacheService
	rateLimiter      *RateLimiter

	startedAt time.Time
}

// Deps bundles everything the server serves. Optional components
// (marketFeed, newsAggregator, cacheService) may be nil.
type Deps struct {
	Repo             *database.Repository
	EventBus         *events.EventBus
	AuthService      *auth.Service
	StakingEngine    *staking.Engine
	StakingScheduler *staking.Scheduler
	PortfolioService *portfolio.Service
	MarketFeed       *market.Feed
	NewsAggregator   *news.Aggregator
	CacheService     *cache.CacheService
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" || cfg.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.AllowedOrigins}
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	rateLimit := cfg.RateLimitPerMin
	if rateLimit <= 0 {
		rateLimit = 120
	}

	server := &Server{
		router:           router,
		config:           cfg,
		logger:           logging.WithComponent("api"),
		repo:             deps.Repo,
		eventBus:         deps.EventBus,
		authService:      deps.AuthService,
		stakingEngine:    deps.StakingEngine,
		stakingScheduler: deps.StakingScheduler,
		portfolioService: deps.PortfolioService,
		marketFeed:       deps.MarketFeed,
		newsAggregator:   deps.NewsAggregator,
		cacheService:     deps.CacheService,
		rateLimiter:      NewRateLimiter(rateLimit, time.Minute),
		startedAt:        time.Now().UTC(),
	}

	server.setupRoutes()

	// WebSocket hub for real-time event broadcasting
	InitWebSocket(deps.EventBus)

	return server
}

// rateLimitMiddleware rate limits requests by endpoint path
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many requests to this endpoint",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	jwtManager := s.authService.GetJWTManager()

	// Auth routes (public, no authentication required)
	authHandlers := auth.NewHandlers(s.authService)
	authGroup := s.router.Group("/api/auth")
	authHandlers.RegisterRoutes(authGroup, jwtManager)

	// WebSocket endpoint; auth optional so the dashboard can connect before login
	s.router.GET("/ws", auth.OptionalMiddleware(jwtManager), s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())

	// Public market and news endpoints
	api.GET("/market/prices", s.handleMarketPrices)
	api.GET("/market/prices/:asset", s.handleMarketPrice)
	api.GET("/news", s.handleNews)
	api.GET("/staking/plans", s.handleListPlans)

	// Authenticated endpoints
	protected := api.Group("")
	protected.Use(auth.Middleware(jwtManager))
	{
		protected.GET("/status", s.handleStatus)

		// Portfolios
		protected.POST("/portfolios", s.handleCreatePortfolio)
		protected.GET("/portfolios", s.handleListPortfolios)
		protected.GET("/portfolios/:id", s.handleGetPortfolio)
		protected.PUT("/portfolios/:id", s.handleUpdatePortfolio)
		protected.DELETE("/portfolios/:id", s.handleDeletePortfolio)
		protected.GET("/portfolios/:id/valuation", s.handlePortfolioValuation)
		protected.PUT("/portfolios/:id/holdings", s.handleSetHolding)
		protected.GET("/portfolios/:id/holdings", s.handleListHoldings)
		protected.DELETE("/portfolios/:id/holdings/:holdingId", s.handleDeleteHolding)
		protected.GET("/portfolios/:id/holdings/export", s.handleExportHoldings)
		protected.POST("/portfolios/:id/holdings/import", s.handleImportHoldings)

		// Staking
		protected.POST("/staking/positions", s.handleCreatePosition)
		protected.GET("/staking/positions", s.handleListPositions)
		protected.GET("/staking/positions/:id", s.handleGetPosition)
		protected.POST("/staking/positions/:id/accrue", s.handleAccruePosition)
		protected.POST("/staking/positions/:id/withdraw", s.handleWithdrawPosition)
		protected.GET("/staking/positions/:id/rewards", s.handleListRewards)
	}

	// Admin endpoints
	admin := api.Group("/admin")
	admin.Use(auth.Middleware(jwtManager), auth.RequireAdmin())
	{
		admin.POST("/staking/plans", s.handleCreatePlan)
		admin.DELETE("/staking/plans/:id", s.handleRetirePlan)
		admin.POST("/staking/sweep", s.handleTriggerSweep)
	}
}

// Start runs the HTTP server; it blocks until the server exits
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server listening", "address", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
