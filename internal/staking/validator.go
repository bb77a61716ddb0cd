package staking

import (
	"time"

	"cryptofolio/internal/database"
)

// PositionDates holds the computed start/end window for a new position
type PositionDates struct {
	StartDate time.Time
	EndDate   *time.Time // nil for flexible plans (lock period 0)
}

// ValidateAndPrepare gates position creation against plan rules and computes
// the position's date window. Pure validation plus date arithmetic; no side
// effects.
func ValidateAndPrepare(plan *database.StakingPlan, assetID string, amount float64, now time.Time) (*PositionDates, error) {
	if plan == nil {
		return nil, ErrInvalidPlan("unknown")
	}
	if !plan.IsActive {
		return nil, ErrInvalidPlan(plan.ID)
	}
	if amount < plan.MinAmount {
		return nil, ErrBelowMinimum(plan.MinAmount, amount)
	}
	if plan.MaxAmount != nil && amount > *plan.MaxAmount {
		return nil, ErrAboveMaximum(*plan.MaxAmount, amount)
	}
	if !plan.SupportsCoin(assetID) {
		return nil, ErrUnsupportedAsset(assetID)
	}

	dates := &PositionDates{StartDate: now}
	if plan.LockPeriodDays > 0 {
		end := now.AddDate(0, 0, plan.LockPeriodDays)
		dates.EndDate = &end
	}
	return dates, nil
}
