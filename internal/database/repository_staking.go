package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// STAKING PLANS
// ============================================================================

// CreateStakingPlan inserts a new plan (administrative)
func (r *Repository) CreateStakingPlan(ctx context.Context, plan *StakingPlan) error {
	query := `
		INSERT INTO staking_plans (id, name, apy, lock_period_days, min_amount, max_amount, supported_coins, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		plan.ID, plan.Name, plan.APY, plan.LockPeriodDays, plan.MinAmount,
		plan.MaxAmount, plan.SupportedCoins, plan.IsActive,
	).Scan(&plan.CreatedAt, &plan.UpdatedAt)
}

// GetActivePlan retrieves an active plan by id. Returns (nil, nil) when the
// plan does not exist or has been retired.
func (r *Repository) GetActivePlan(ctx context.Context, planID string) (*StakingPlan, error) {
	query := `
		SELECT id, name, apy, lock_period_days, min_amount, max_amount, supported_coins, is_active, created_at, updated_at
		FROM staking_plans
		WHERE id = $1 AND is_active = TRUE
	`
	plan := &StakingPlan{}
	err := r.db.Pool.QueryRow(ctx, query, planID).Scan(
		&plan.ID, &plan.Name, &plan.APY, &plan.LockPeriodDays, &plan.MinAmount,
		&plan.MaxAmount, &plan.SupportedCoins, &plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// ListActivePlans retrieves the plan catalog for display
func (r *Repository) ListActivePlans(ctx context.Context) ([]*StakingPlan, error) {
	query := `
		SELECT id, name, apy, lock_period_days, min_amount, max_amount, supported_coins, is_active, created_at, updated_at
		FROM staking_plans
		WHERE is_active = TRUE
		ORDER BY apy DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*StakingPlan
	for rows.Next() {
		plan := &StakingPlan{}
		err := rows.Scan(
			&plan.ID, &plan.Name, &plan.APY, &plan.LockPeriodDays, &plan.MinAmount,
			&plan.MaxAmount, &plan.SupportedCoins, &plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// RetireStakingPlan deactivates a plan without deleting it; existing
// positions keep referencing it
func (r *Repository) RetireStakingPlan(ctx context.Context, planID string) error {
	query := `UPDATE staking_plans SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, planID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("staking plan %s not found", planID)
	}
	return nil
}

// ============================================================================
// STAKING POSITIONS
// ============================================================================

const positionColumns = `id, user_id, plan_id, asset_id, amount, start_date, end_date, status, total_rewards, last_reward_date, created_at, updated_at`

func scanPosition(row pgx.Row) (*StakingPosition, error) {
	pos := &StakingPosition{}
	err := row.Scan(
		&pos.ID, &pos.UserID, &pos.PlanID, &pos.AssetID, &pos.Amount,
		&pos.StartDate, &pos.EndDate, &pos.Status, &pos.TotalRewards,
		&pos.LastRewardDate, &pos.CreatedAt, &pos.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// InsertPosition persists a new staking position
func (r *Repository) InsertPosition(ctx context.Context, pos *StakingPosition) error {
	query := `
		INSERT INTO staking_positions (id, user_id, plan_id, asset_id, amount, start_date, end_date, status, total_rewards, last_reward_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		pos.ID, pos.UserID, pos.PlanID, pos.AssetID, pos.Amount,
		pos.StartDate, pos.EndDate, pos.Status, pos.TotalRewards, pos.LastRewardDate,
	).Scan(&pos.CreatedAt, &pos.UpdatedAt)
}

// GetPosition retrieves a user's position by id regardless of status.
// Returns (nil, nil) when not found or owned by a different user.
func (r *Repository) GetPosition(ctx context.Context, userID, positionID string) (*StakingPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staking_positions WHERE id = $1 AND user_id = $2`
	pos, err := scanPosition(r.db.Pool.QueryRow(ctx, query, positionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return pos, err
}

// GetPositionByID retrieves a position by id regardless of owner and status.
// Returns (nil, nil) when not found.
func (r *Repository) GetPositionByID(ctx context.Context, positionID string) (*StakingPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staking_positions WHERE id = $1`
	pos, err := scanPosition(r.db.Pool.QueryRow(ctx, query, positionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return pos, err
}

// ListActivePositions retrieves all active positions for the batch sweep
func (r *Repository) ListActivePositions(ctx context.Context) ([]*StakingPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staking_positions WHERE status = 'active' ORDER BY start_date`
	return r.queryPositions(ctx, query)
}

// ListUserPositions retrieves all of a user's positions, newest first
func (r *Repository) ListUserPositions(ctx context.Context, userID string) ([]*StakingPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM staking_positions WHERE user_id = $1 ORDER BY start_date DESC`
	return r.queryPositions(ctx, query, userID)
}

func (r *Repository) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*StakingPosition, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*StakingPosition
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// UpdatePositionRewards sets the cumulative reward total and advances the
// accrual checkpoint. The previous checkpoint is a compare-and-swap
// precondition: if another writer advanced it first, no row matches and
// false is returned, preventing double-credit of the same elapsed window.
func (r *Repository) UpdatePositionRewards(ctx context.Context, positionID string, newTotal float64, prevCheckpoint *time.Time, newCheckpoint time.Time) (bool, error) {
	query := `
		UPDATE staking_positions
		SET total_rewards = $2, last_reward_date = $3
		WHERE id = $1 AND status = 'active' AND last_reward_date IS NOT DISTINCT FROM $4
	`
	tag, err := r.db.Pool.Exec(ctx, query, positionID, newTotal, newCheckpoint, prevCheckpoint)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePositionStatus transitions a position's lifecycle status
func (r *Repository) UpdatePositionStatus(ctx context.Context, positionID string, status PositionStatus) error {
	query := `UPDATE staking_positions SET status = $2 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, positionID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("staking position %s not found", positionID)
	}
	return nil
}

// ============================================================================
// REWARD LEDGER
// ============================================================================

// AppendReward writes one reward ledger entry. Entries are never updated or
// deleted here; retention is an external concern.
func (r *Repository) AppendReward(ctx context.Context, reward *StakingReward) error {
	query := `
		INSERT INTO staking_rewards (id, position_id, amount, reward_date, apy_rate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		reward.ID, reward.PositionID, reward.Amount, reward.RewardDate, reward.APYRate,
	).Scan(&reward.CreatedAt)
}

// ListPositionRewards retrieves the reward history for a position, newest
// first
func (r *Repository) ListPositionRewards(ctx context.Context, positionID string, limit int) ([]*StakingReward, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, position_id, amount, reward_date, apy_rate, created_at
		FROM staking_rewards
		WHERE position_id = $1
		ORDER BY reward_date DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, positionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []*StakingReward
	for rows.Next() {
		reward := &StakingReward{}
		err := rows.Scan(&reward.ID, &reward.PositionID, &reward.Amount, &reward.RewardDate, &reward.APYRate, &reward.CreatedAt)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, reward)
	}
	return rewards, rows.Err()
}
