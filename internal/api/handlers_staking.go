package api

import (
	"net/http"
	"strconv"
	"time"

	"cryptofolio/internal/auth"
	"cryptofolio/internal/cache"
	"cryptofolio/internal/database"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleListPlans returns the active staking plan catalog
// GET /api/staking/plans
func (s *Server) handleListPlans(c *gin.Context) {
	ctx := c.Request.Context()

	// Try the cache first; the catalog changes rarely
	if s.cacheService != nil {
		var cached []*database.StakingPlan
		if err := s.cacheService.GetJSON(ctx, cache.PlanCatalogKey(), &cached); err == nil {
			c.JSON(http.StatusOK, gin.H{"plans": cached})
			return
		}
	}

	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list plans")
		return
	}

	if s.cacheService != nil {
		_ = s.cacheService.SetJSON(ctx, cache.PlanCatalogKey(), plans, cache.DefaultCatalogTTL)
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

type createPositionRequest struct {
	PlanID  string  `json:"plan_id" binding:"required"`
	AssetID string  `json:"asset_id" binding:"required"`
	Amount  float64 `json:"amount" binding:"required,gt=0"`
}

// handleCreatePosition opens a new staking position
// POST /api/staking/positions
func (s *Server) handleCreatePosition(c *gin.Context) {
	var req createPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	pos, err := s.stakingEngine.CreatePosition(c.Request.Context(), auth.GetUserID(c), req.PlanID, req.AssetID, req.Amount)
	if err != nil {
		stakingErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, pos)
}

// handleListPositions returns the caller's staking positions
// GET /api/staking/positions
func (s *Server) handleListPositions(c *gin.Context) {
	positions, err := s.repo.ListUserPositions(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list positions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// handleGetPosition returns one of the caller's positions
// GET /api/staking/positions/:id
func (s *Server) handleGetPosition(c *gin.Context) {
	pos, err := s.repo.GetPosition(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load position")
		return
	}
	if pos == nil {
		errorResponse(c, http.StatusNotFound, "POSITION_NOT_FOUND", "staking position not found")
		return
	}

	c.JSON(http.StatusOK, pos)
}

// handleAccruePosition recomputes rewards owed to one of the caller's
// positions on demand
// POST /api/staking/positions/:id/accrue
func (s *Server) handleAccruePosition(c *gin.Context) {
	ctx := c.Request.Context()
	positionID := c.Param("id")

	// Ownership check; the engine accrues by bare position id
	pos, err := s.repo.GetPosition(ctx, auth.GetUserID(c), positionID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load position")
		return
	}
	if pos == nil {
		errorResponse(c, http.StatusNotFound, "POSITION_NOT_FOUND", "staking position not found")
		return
	}

	reward, err := s.stakingEngine.AccrueRewardsForPosition(ctx, positionID)
	if err != nil {
		stakingErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"position_id": positionID,
		"reward":      reward,
	})
}

type withdrawRequest struct {
	EarlyWithdrawal bool `json:"early_withdrawal"`
}

// handleWithdrawPosition withdraws a staking position after a final accrual
// POST /api/staking/positions/:id/withdraw
func (s *Server) handleWithdrawPosition(c *gin.Context) {
	var req withdrawRequest
	// Body is optional; absence means a normal withdrawal
	_ = c.ShouldBindJSON(&req)

	pos, err := s.stakingEngine.Withdraw(c.Request.Context(), auth.GetUserID(c), c.Param("id"), req.EarlyWithdrawal, time.Now().UTC())
	if err != nil {
		stakingErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, pos)
}

// handleListRewards returns the reward ledger for one of the caller's
// positions, newest first
// GET /api/staking/positions/:id/rewards
func (s *Server) handleListRewards(c *gin.Context) {
	ctx := c.Request.Context()
	positionID := c.Param("id")

	pos, err := s.repo.GetPosition(ctx, auth.GetUserID(c), positionID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load position")
		return
	}
	if pos == nil {
		errorResponse(c, http.StatusNotFound, "POSITION_NOT_FOUND", "staking position not found")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rewards, err := s.repo.ListPositionRewards(ctx, positionID, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list rewards")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"position_id":   positionID,
		"total_rewards": pos.TotalRewards,
		"rewards":       rewards,
	})
}

type createPlanRequest struct {
	Name           string   `json:"name" binding:"required"`
	APY            float64  `json:"apy" binding:"min=0"`
	LockPeriodDays int      `json:"lock_period_days" binding:"min=0"`
	MinAmount      float64  `json:"min_amount" binding:"required,gt=0"`
	MaxAmount      *float64 `json:"max_amount"`
	SupportedCoins []string `json:"supported_coins" binding:"required,min=1"`
}

// handleCreatePlan creates a staking plan (admin)
// POST /api/admin/staking/plans
func (s *Server) handleCreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if req.MaxAmount != nil && *req.MaxAmount < req.MinAmount {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "max_amount must be >= min_amount")
		return
	}

	plan := &database.StakingPlan{
		ID:             uuid.New().String(),
		Name:           req.Name,
		APY:            req.APY,
		LockPeriodDays: req.LockPeriodDays,
		MinAmount:      req.MinAmount,
		MaxAmount:      req.MaxAmount,
		SupportedCoins: req.SupportedCoins,
		IsActive:       true,
	}

	if err := s.repo.CreateStakingPlan(c.Request.Context(), plan); err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create plan")
		return
	}

	s.invalidatePlanCatalog(c)
	c.JSON(http.StatusCreated, plan)
}

// handleRetirePlan deactivates a plan; existing positions are unaffected
// DELETE /api/admin/staking/plans/:id
func (s *Server) handleRetirePlan(c *gin.Context) {
	if err := s.repo.RetireStakingPlan(c.Request.Context(), c.Param("id")); err != nil {
		errorResponse(c, http.StatusNotFound, "PLAN_NOT_FOUND", "staking plan not found")
		return
	}

	s.invalidatePlanCatalog(c)
	c.JSON(http.StatusOK, gin.H{"message": "plan retired"})
}

// handleTriggerSweep runs a batch accrual sweep immediately (admin)
// POST /api/admin/staking/sweep
func (s *Server) handleTriggerSweep(c *gin.Context) {
	maxConcurrent, _ := strconv.Atoi(c.DefaultQuery("max_concurrent", "5"))

	result, err := s.stakingEngine.SweepAllActivePositions(c.Request.Context(), maxConcurrent)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "sweep failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) invalidatePlanCatalog(c *gin.Context) {
	if s.cacheService != nil {
		_ = s.cacheService.Delete(c.Request.Context(), cache.PlanCatalogKey())
	}
}
