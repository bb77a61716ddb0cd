// Package staking implements the staking reward accrual engine: plan
// validation, day-granular linear reward computation, and the position
// lifecycle (create, accrue, withdraw, batch sweep).
package staking

import (
	"context"
	"fmt"
	"time"

	"cryptofolio/internal/database"
	"cryptofolio/internal/events"
	"cryptofolio/internal/logging"

	"github.com/google/uuid"
)

const day = 24 * time.Hour

// Store abstracts the plan catalog, position store and reward ledger.
// Read methods return (nil, nil) when the record does not exist so the
// engine can map absence to its own typed errors.
type Store interface {
	// GetActivePlan returns an active plan by id
	GetActivePlan(ctx context.Context, planID string) (*database.StakingPlan, error)

	// GetPosition returns a user's position regardless of status
	GetPosition(ctx context.Context, userID, positionID string) (*database.StakingPosition, error)

	// GetPositionByID returns a position regardless of owner and status
	GetPositionByID(ctx context.Context, positionID string) (*database.StakingPosition, error)

	// ListActivePositions returns every position with status=active
	ListActivePositions(ctx context.Context) ([]*database.StakingPosition, error)

	// InsertPosition persists a new position
	InsertPosition(ctx context.Context, pos *database.StakingPosition) error

	// UpdatePositionRewards sets the cumulative total and advances the
	// checkpoint. prevCheckpoint is a compare-and-swap precondition: the
	// update must only apply if the stored last_reward_date still equals it.
	// Returns false when the precondition failed.
	UpdatePositionRewards(ctx context.Context, positionID string, newTotal float64, prevCheckpoint *time.Time, newCheckpoint time.Time) (bool, error)

	// UpdatePositionStatus transitions a position's lifecycle status
	UpdatePositionStatus(ctx context.Context, positionID string, status database.PositionStatus) error

	// AppendReward writes one reward ledger entry
	AppendReward(ctx context.Context, reward *database.StakingReward) error
}

// Engine computes and persists staking rewards and drives the position
// lifecycle. All mutation paths for a position are serialized through a
// per-position mutex; the store-level checkpoint CAS guards against
// concurrent writers in other processes.
type Engine struct {
	store    Store
	eventBus *events.EventBus
	locks    *keyedMutex
	logger   *logging.Logger
}

// NewEngine creates a staking engine. eventBus may be nil.
func NewEngine(store Store, eventBus *events.EventBus) *Engine {
	return &Engine{
		store:    store,
		eventBus: eventBus,
		locks:    newKeyedMutex(),
		logger:   logging.WithComponent("staking-engine"),
	}
}

// CreatePosition validates the request against the plan and opens a new
// active position. No position record is created on validation failure.
func (e *Engine) CreatePosition(ctx context.Context, userID, planID, assetID string, amount float64) (*database.StakingPosition, error) {
	plan, err := e.store.GetActivePlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
	}
	if plan == nil {
		return nil, ErrInvalidPlan(planID)
	}

	now := time.Now().UTC()
	dates, err := ValidateAndPrepare(plan, assetID, amount, now)
	if err != nil {
		return nil, err
	}

	pos := &database.StakingPosition{
		ID:        uuid.New().String(),
		UserID:    userID,
		PlanID:    plan.ID,
		AssetID:   assetID,
		Amount:    amount,
		StartDate: dates.StartDate,
		EndDate:   dates.EndDate,
		Status:    database.PositionActive,
	}

	if err := e.store.InsertPosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("failed to insert position: %w", err)
	}

	e.logger.Info("Staking position created",
		"position_id", pos.ID, "plan_id", plan.ID, "asset", assetID, "amount", amount)
	e.publish(events.EventPositionCreated, map[string]interface{}{
		"position_id": pos.ID,
		"user_id":     userID,
		"plan_id":     plan.ID,
		"asset_id":    assetID,
		"amount":      amount,
	})

	return pos, nil
}

// Accrue computes and persists the reward owed to position since its last
// checkpoint using simple (non-compounding) daily-linear interest. Calling it
// again within the same elapsed-day window is a no-op returning 0. Position
// and its in-memory totals/checkpoint are updated on success.
func (e *Engine) Accrue(ctx context.Context, pos *database.StakingPosition, plan *database.StakingPlan, now time.Time) (float64, error) {
	e.locks.Lock(pos.ID)
	defer e.locks.Unlock(pos.ID)

	return e.accrueLocked(ctx, pos, plan, now)
}

// accrueLocked is Accrue without lock acquisition; callers must hold the
// position lock.
func (e *Engine) accrueLocked(ctx context.Context, pos *database.StakingPosition, plan *database.StakingPlan, now time.Time) (float64, error) {
	// Accruing on a non-active position would break the "total_rewards only
	// grows while active" invariant, so no-op rather than error.
	if pos.Status != database.PositionActive {
		return 0, nil
	}

	checkpoint := pos.StartDate
	if pos.LastRewardDate != nil {
		checkpoint = *pos.LastRewardDate
	}

	// Whole elapsed days, floor semantics: 1.9 days pays 1 day.
	days := int64(now.Sub(checkpoint) / day)
	if days < 1 {
		return 0, nil
	}

	dailyRate := plan.APY / 100 / 365
	reward := pos.Amount * dailyRate * float64(days)
	if reward <= 0 {
		// Zero-APY plans accrue nothing; keep the checkpoint so no
		// zero-value ledger entries are written.
		return 0, nil
	}

	newTotal := pos.TotalRewards + reward
	applied, err := e.store.UpdatePositionRewards(ctx, pos.ID, newTotal, pos.LastRewardDate, now)
	if err != nil {
		return 0, fmt.Errorf("failed to update position rewards: %w", err)
	}
	if !applied {
		return 0, ErrConcurrentUpdate(pos.ID)
	}

	entry := &database.StakingReward{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		Amount:     reward,
		RewardDate: now,
		APYRate:    plan.APY,
	}
	if err := e.store.AppendReward(ctx, entry); err != nil {
		return 0, fmt.Errorf("failed to append reward entry: %w", err)
	}

	pos.TotalRewards = newTotal
	checkpointTime := now
	pos.LastRewardDate = &checkpointTime

	e.logger.Debug("Reward accrued",
		"position_id", pos.ID, "days", days, "reward", reward, "total_rewards", newTotal)
	e.publish(events.EventRewardAccrued, map[string]interface{}{
		"position_id":   pos.ID,
		"user_id":       pos.UserID,
		"reward":        reward,
		"days":          days,
		"apy_rate":      plan.APY,
		"total_rewards": newTotal,
	})

	return reward, nil
}

// AccrueRewardsForPosition loads a position and its plan and accrues any
// reward owed as of now. Exposed to the HTTP layer for on-demand
// recomputation.
func (e *Engine) AccrueRewardsForPosition(ctx context.Context, positionID string) (float64, error) {
	pos, err := e.store.GetPositionByID(ctx, positionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load position %s: %w", positionID, err)
	}
	if pos == nil {
		return 0, ErrPositionNotFound(positionID)
	}

	plan, err := e.store.GetActivePlan(ctx, pos.PlanID)
	if err != nil {
		return 0, fmt.Errorf("failed to load plan %s: %w", pos.PlanID, err)
	}
	if plan == nil {
		return 0, ErrPlanNotFound(pos.PlanID)
	}

	return e.Accrue(ctx, pos, plan, time.Now().UTC())
}

// Withdraw transitions an active position to withdrawn, first crystallizing
// any final owed reward so the ledger is complete as of the withdrawal
// instant. Early withdrawal under an unexpired lock requires the explicit
// isEarly override and pays full accrued rewards (no penalty model).
func (e *Engine) Withdraw(ctx context.Context, userID, positionID string, isEarly bool, now time.Time) (*database.StakingPosition, error) {
	e.locks.Lock(positionID)
	defer e.locks.Unlock(positionID)

	pos, err := e.store.GetPosition(ctx, userID, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", positionID, err)
	}
	if pos == nil {
		return nil, ErrPositionNotFound(positionID)
	}
	if pos.Status != database.PositionActive {
		return nil, ErrPositionNotActive(pos.ID, string(pos.Status))
	}

	plan, err := e.store.GetActivePlan(ctx, pos.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", pos.PlanID, err)
	}
	if plan == nil {
		return nil, ErrPlanNotFound(pos.PlanID)
	}

	if plan.LockPeriodDays > 0 && pos.EndDate != nil && now.Before(*pos.EndDate) && !isEarly {
		return nil, ErrLockPeriodActive(*pos.EndDate)
	}

	if _, err := e.accrueLocked(ctx, pos, plan, now); err != nil {
		return nil, err
	}

	if err := e.store.UpdatePositionStatus(ctx, pos.ID, database.PositionWithdrawn); err != nil {
		return nil, fmt.Errorf("failed to update position status: %w", err)
	}
	pos.Status = database.PositionWithdrawn

	e.logger.Info("Staking position withdrawn",
		"position_id", pos.ID, "early", isEarly, "total_rewards", pos.TotalRewards)
	e.publish(events.EventPositionWithdrawn, map[string]interface{}{
		"position_id":   pos.ID,
		"user_id":       pos.UserID,
		"early":         isEarly,
		"total_rewards": pos.TotalRewards,
	})

	return pos, nil
}

func (e *Engine) publish(eventType events.EventType, data map[string]interface{}) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(events.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
