package api

import (
	"net/http"
	"strings"

	"cryptofolio/internal/cache"
	"cryptofolio/internal/market"

	"github.com/gin-gonic/gin"
)

// handleMarketPrices returns the latest price snapshot
// GET /api/market/prices
func (s *Server) handleMarketPrices(c *gin.Context) {
	if s.marketFeed == nil {
		errorResponse(c, http.StatusServiceUnavailable, "FEED_DISABLED", "market feed is not enabled")
		return
	}

	c.JSON(http.StatusOK, gin.H{"prices": s.marketFeed.Snapshot()})
}

// handleMarketPrice returns the latest price for one asset, falling back to
// the Redis copy when the in-memory snapshot has not seen it yet
// GET /api/market/prices/:asset
func (s *Server) handleMarketPrice(c *gin.Context) {
	assetID := strings.ToUpper(c.Param("asset"))

	if s.marketFeed != nil {
		if price, ok := s.marketFeed.GetPrice(assetID); ok {
			c.JSON(http.StatusOK, price)
			return
		}
	}

	if s.cacheService != nil {
		var price market.PriceUpdate
		if err := s.cacheService.GetJSON(c.Request.Context(), cache.PriceKey(assetID), &price); err == nil {
			c.JSON(http.StatusOK, price)
			return
		}
	}

	errorResponse(c, http.StatusNotFound, "PRICE_NOT_FOUND", "no price for asset "+assetID)
}
