package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cryptofolio/config"
	"cryptofolio/internal/api"
	"cryptofolio/internal/auth"
	"cryptofolio/internal/cache"
	"cryptofolio/internal/database"
	"cryptofolio/internal/events"
	"cryptofolio/internal/logging"
	"cryptofolio/internal/market"
	"cryptofolio/internal/news"
	"cryptofolio/internal/portfolio"
	"cryptofolio/internal/staking"

	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Failed to load configuration", "error", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Event bus connects the engine, feeds and WebSocket push layer
	eventBus := events.NewEventBus()

	// Database
	dbConfig := database.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "cryptofolio"),
		Password: getEnv("DB_PASSWORD", "cryptofolio_password"),
		Database: getEnv("DB_NAME", "cryptofolio"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.RunMigrations(ctx); err != nil {
		cancel()
		logger.Fatal("Failed to run migrations", "error", err)
	}
	cancel()

	repo := database.NewRepository(db)

	// Redis cache (optional; service degrades gracefully without it)
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("Redis cache disabled", "error", err)
			cacheService = nil
		}
	}

	// Auth
	authService := auth.NewService(repo, auth.Config{
		JWTSecret:            cfg.AuthConfig.JWTSecret,
		AccessTokenDuration:  cfg.AuthConfig.AccessTokenDuration,
		RefreshTokenDuration: cfg.AuthConfig.RefreshTokenDuration,
		MinPasswordLength:    cfg.AuthConfig.MinPasswordLength,
	})

	// Staking engine and accrual sweep scheduler
	stakingEngine := staking.NewEngine(repo, eventBus)
	stakingScheduler := staking.NewScheduler(stakingEngine, &staking.SchedulerConfig{
		SweepInterval: cfg.StakingConfig.SweepInterval,
		MaxConcurrent: cfg.StakingConfig.MaxConcurrent,
		SweepTimeout:  cfg.StakingConfig.SweepTimeout,
	})
	if err := stakingScheduler.Start(); err != nil {
		logger.Fatal("Failed to start staking scheduler", "error", err)
	}

	// Live market prices
	var marketFeed *market.Feed
	if cfg.MarketConfig.Enabled {
		zl := zerolog.New(os.Stdout).With().Timestamp().Logger()
		marketFeed = market.NewFeed(cfg.MarketConfig, cacheService, eventBus, zl)
		if err := marketFeed.Start(); err != nil {
			logger.Warn("Market feed failed to start", "error", err)
		}
	}

	// Portfolio service values holdings against the live feed
	var priceSource portfolio.PriceSource
	if marketFeed != nil {
		priceSource = marketFeed
	}
	portfolioService := portfolio.NewService(repo, priceSource, eventBus)

	// News aggregator
	var newsAggregator *news.Aggregator
	if cfg.NewsConfig.Enabled && len(cfg.NewsConfig.FeedURLs) > 0 {
		newsAggregator = news.NewAggregator(cfg.NewsConfig, cacheService, eventBus)
		if err := newsAggregator.Start(); err != nil {
			logger.Warn("News aggregator failed to start", "error", err)
		}
	}

	// HTTP API
	server := api.NewServer(cfg.ServerConfig, api.Deps{
		Repo:             repo,
		EventBus:         eventBus,
		AuthService:      authService,
		StakingEngine:    stakingEngine,
		StakingScheduler: stakingScheduler,
		PortfolioService: portfolioService,
		MarketFeed:       marketFeed,
		NewsAggregator:   newsAggregator,
		CacheService:     cacheService,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Session cleanup loop
	cleanupStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := authService.CleanupExpiredSessions(cleanupCtx); err != nil {
					logger.Warn("Session cleanup failed", "error", err)
				}
				cleanupCancel()
			case <-cleanupStop:
				return
			}
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server exited with error", "error", err)
		}
	case sig := <-quit:
		logger.Info("Shutdown signal received", "signal", sig.String())
	}

	// Graceful shutdown
	close(cleanupStop)

	if newsAggregator != nil {
		newsAggregator.Stop()
	}
	if marketFeed != nil {
		marketFeed.Stop()
	}
	if err := stakingScheduler.Stop(); err != nil {
		logger.Warn("Staking scheduler stop failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}

	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			logger.Warn("Cache close failed", "error", err)
		}
	}

	logger.Info("Shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
