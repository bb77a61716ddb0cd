package api

import (
	"net/http"

	"cryptofolio/internal/auth"
	"cryptofolio/internal/portfolio"

	"github.com/gin-gonic/gin"
)

// portfolioErrorResponse maps a portfolio domain error to an HTTP status
func portfolioErrorResponse(c *gin.Context, err error) {
	if pErr, ok := err.(portfolio.Error); ok {
		status := http.StatusBadRequest
		switch pErr.Code {
		case portfolio.ErrPortfolioNotFound.Code, portfolio.ErrHoldingNotFound.Code:
			status = http.StatusNotFound
		}
		errorResponse(c, status, pErr.Code, pErr.Message)
		return
	}
	errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

type portfolioRequest struct {
	Name        string `json:"name" binding:"required,min=1"`
	Description string `json:"description"`
}

// handleCreatePortfolio creates a portfolio
// POST /api/portfolios
func (s *Server) handleCreatePortfolio(c *gin.Context) {
	var req portfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	p, err := s.portfolioService.CreatePortfolio(c.Request.Context(), auth.GetUserID(c), req.Name, req.Description)
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

// handleListPortfolios lists the caller's portfolios
// GET /api/portfolios
func (s *Server) handleListPortfolios(c *gin.Context) {
	portfolios, err := s.portfolioService.ListPortfolios(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list portfolios")
		return
	}

	c.JSON(http.StatusOK, gin.H{"portfolios": portfolios})
}

// handleGetPortfolio returns one of the caller's portfolios
// GET /api/portfolios/:id
func (s *Server) handleGetPortfolio(c *gin.Context) {
	p, err := s.portfolioService.GetPortfolio(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// handleUpdatePortfolio updates portfolio metadata
// PUT /api/portfolios/:id
func (s *Server) handleUpdatePortfolio(c *gin.Context) {
	var req portfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	p, err := s.portfolioService.UpdatePortfolio(c.Request.Context(), auth.GetUserID(c), c.Param("id"), req.Name, req.Description)
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// handleDeletePortfolio deletes a portfolio and its holdings
// DELETE /api/portfolios/:id
func (s *Server) handleDeletePortfolio(c *gin.Context) {
	if err := s.portfolioService.DeletePortfolio(c.Request.Context(), auth.GetUserID(c), c.Param("id")); err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "portfolio deleted"})
}

// handlePortfolioValuation prices a portfolio against the latest market data
// GET /api/portfolios/:id/valuation
func (s *Server) handlePortfolioValuation(c *gin.Context) {
	valuation, err := s.portfolioService.Value(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, valuation)
}

type holdingRequest struct {
	AssetID     string  `json:"asset_id" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	AvgBuyPrice float64 `json:"avg_buy_price" binding:"min=0"`
	Notes       string  `json:"notes"`
}

// handleSetHolding upserts a holding in a portfolio
// PUT /api/portfolios/:id/holdings
func (s *Server) handleSetHolding(c *gin.Context) {
	var req holdingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	h, err := s.portfolioService.SetHolding(c.Request.Context(), auth.GetUserID(c), c.Param("id"),
		req.AssetID, req.Quantity, req.AvgBuyPrice, req.Notes)
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, h)
}

// handleListHoldings lists the holdings of a portfolio
// GET /api/portfolios/:id/holdings
func (s *Server) handleListHoldings(c *gin.Context) {
	holdings, err := s.portfolioService.ListHoldings(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"holdings": holdings})
}

// handleDeleteHolding removes a holding
// DELETE /api/portfolios/:id/holdings/:holdingId
func (s *Server) handleDeleteHolding(c *gin.Context) {
	err := s.portfolioService.RemoveHolding(c.Request.Context(), auth.GetUserID(c), c.Param("id"), c.Param("holdingId"))
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "holding removed"})
}

// handleExportHoldings streams a portfolio's holdings as CSV
// GET /api/portfolios/:id/holdings/export
func (s *Server) handleExportHoldings(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="holdings.csv"`)

	err := s.portfolioService.ExportHoldingsCSV(c.Request.Context(), auth.GetUserID(c), c.Param("id"), c.Writer)
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}
}

// handleImportHoldings imports holdings from an uploaded CSV body
// POST /api/portfolios/:id/holdings/import
func (s *Server) handleImportHoldings(c *gin.Context) {
	result, err := s.portfolioService.ImportHoldingsCSV(c.Request.Context(), auth.GetUserID(c), c.Param("id"), c.Request.Body)
	if err != nil {
		portfolioErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
