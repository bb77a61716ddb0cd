package api

import (
	"net/http"

	"cryptofolio/internal/cache"
	"cryptofolio/internal/news"

	"github.com/gin-gonic/gin"
)

// handleNews returns the latest merged news items
// GET /api/news
func (s *Server) handleNews(c *gin.Context) {
	if s.newsAggregator != nil {
		items := s.newsAggregator.Latest()
		if len(items) > 0 {
			c.JSON(http.StatusOK, gin.H{"items": items})
			return
		}
	}

	// Another instance may have populated the shared cache
	if s.cacheService != nil {
		var cached []news.Item
		if err := s.cacheService.GetJSON(c.Request.Context(), cache.NewsKey(), &cached); err == nil {
			c.JSON(http.StatusOK, gin.H{"items": cached})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"items": []news.Item{}})
}
