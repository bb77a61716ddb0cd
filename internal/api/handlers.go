package api

import (
	"net/http"
	"time"

	"cryptofolio/internal/staking"

	"github.com/gin-gonic/gin"
)

// errorResponse writes a uniform error body
func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

// stakingErrorResponse maps a staking domain error to an HTTP status
func stakingErrorResponse(c *gin.Context, err error) {
	code := staking.CodeOf(err)
	status := http.StatusInternalServerError

	switch code {
	case staking.CodeInvalidPlan, staking.CodeBelowMinimum, staking.CodeAboveMaximum, staking.CodeUnsupportedAsset:
		status = http.StatusBadRequest
	case staking.CodePlanNotFound, staking.CodePositionNotFound:
		status = http.StatusNotFound
	case staking.CodePositionNotActive, staking.CodeLockPeriodActive:
		status = http.StatusConflict
	case staking.CodeConcurrentUpdate:
		status = http.StatusConflict
	case "":
		errorResponse(c, status, "INTERNAL_ERROR", "internal server error")
		return
	}

	errorResponse(c, status, code, err.Error())
}

// handleHealth handles the health check endpoint
// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	dbStatus := "ok"
	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		dbStatus = "down"
	}

	cacheStatus := "disabled"
	if s.cacheService != nil {
		if s.cacheService.IsHealthy() {
			cacheStatus = "ok"
		} else {
			cacheStatus = "degraded"
		}
	}

	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    dbStatus,
		"database":  dbStatus,
		"cache":     cacheStatus,
		"uptime":    time.Since(s.startedAt).String(),
		"timestamp": time.Now().UTC(),
	})
}

// handleStatus reports the state of the background components
// GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"uptime":          time.Since(s.startedAt).String(),
		"sweep_running":   s.stakingScheduler != nil && s.stakingScheduler.IsRunning(),
		"websocket_count": 0,
		"market_feed":     false,
		"news_aggregator": s.newsAggregator != nil,
	}

	if wsHub != nil {
		resp["websocket_count"] = wsHub.GetClientCount()
	}
	if s.marketFeed != nil {
		resp["market_feed"] = s.marketFeed.IsRunning()
	}
	if s.cacheService != nil {
		resp["cache"] = s.cacheService.GetStats()
	}

	c.JSON(http.StatusOK, resp)
}
