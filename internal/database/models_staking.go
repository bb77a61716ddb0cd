package database

import (
	"time"
)

// PositionStatus represents the lifecycle state of a staking position
type PositionStatus string

const (
	PositionActive    PositionStatus = "active"
	PositionCompleted PositionStatus = "completed"
	PositionWithdrawn PositionStatus = "withdrawn"
	PositionCancelled PositionStatus = "cancelled"
)

// IsTerminal reports whether a status has no outgoing transitions
func (s PositionStatus) IsTerminal() bool {
	return s == PositionCompleted || s == PositionWithdrawn || s == PositionCancelled
}

// StakingPlan defines a staking product offered to users.
// Plans are created/retired administratively; the engine only reads them.
type StakingPlan struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	APY            float64   `json:"apy"`              // Annual percentage yield, percent units
	LockPeriodDays int       `json:"lock_period_days"` // 0 = flexible, no lock
	MinAmount      float64   `json:"min_amount"`
	MaxAmount      *float64  `json:"max_amount,omitempty"` // nil = unbounded
	SupportedCoins []string  `json:"supported_coins"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SupportsCoin reports whether assetID is in the plan's supported set
func (p *StakingPlan) SupportsCoin(assetID string) bool {
	for _, c := range p.SupportedCoins {
		if c == assetID {
			return true
		}
	}
	return false
}

// StakingPosition is a user's stake under a plan.
// Amount is fixed at creation; TotalRewards only grows while active.
type StakingPosition struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	PlanID         string         `json:"plan_id"`
	AssetID        string         `json:"asset_id"`
	Amount         float64        `json:"amount"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        *time.Time     `json:"end_date,omitempty"` // nil for flexible plans
	Status         PositionStatus `json:"status"`
	TotalRewards   float64        `json:"total_rewards"`
	LastRewardDate *time.Time     `json:"last_reward_date,omitempty"` // nil until first accrual
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StakingReward is an append-only ledger entry for one accrual.
// APYRate is the plan APY captured at computation time so history stays
// correct even if the plan is later edited.
type StakingReward struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Amount     float64   `json:"amount"`
	RewardDate time.Time `json:"reward_date"`
	APYRate    float64   `json:"apy_rate"`
	CreatedAt  time.Time `json:"created_at"`
}
