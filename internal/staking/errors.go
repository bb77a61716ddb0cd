package staking

import (
	"errors"
	"fmt"
	"time"
)

// Error is a typed staking domain error. Code is stable and machine-checkable;
// Message carries the specific constraint that was violated so callers can
// relay it to the user directly.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Error codes for the staking domain
const (
	CodeInvalidPlan      = "INVALID_PLAN"
	CodePlanNotFound     = "PLAN_NOT_FOUND"
	CodeBelowMinimum     = "BELOW_MINIMUM"
	CodeAboveMaximum     = "ABOVE_MAXIMUM"
	CodeUnsupportedAsset = "UNSUPPORTED_ASSET"
	CodeLockPeriodActive = "LOCK_PERIOD_ACTIVE"
	CodePositionNotFound = "POSITION_NOT_FOUND"
	CodePositionNotActive = "POSITION_NOT_ACTIVE"
	CodeConcurrentUpdate = "CONCURRENT_UPDATE"
)

// ErrInvalidPlan indicates the plan is missing or retired
func ErrInvalidPlan(planID string) *Error {
	return &Error{Code: CodeInvalidPlan, Message: fmt.Sprintf("staking plan %s is not available", planID)}
}

// ErrPlanNotFound indicates a position references a plan that no longer exists
func ErrPlanNotFound(planID string) *Error {
	return &Error{Code: CodePlanNotFound, Message: fmt.Sprintf("staking plan %s not found", planID)}
}

// ErrBelowMinimum indicates the requested stake is under the plan minimum
func ErrBelowMinimum(minAmount, amount float64) *Error {
	return &Error{Code: CodeBelowMinimum, Message: fmt.Sprintf("amount %.8f is below the plan minimum of %.8f", amount, minAmount)}
}

// ErrAboveMaximum indicates the requested stake exceeds the plan maximum
func ErrAboveMaximum(maxAmount, amount float64) *Error {
	return &Error{Code: CodeAboveMaximum, Message: fmt.Sprintf("amount %.8f is above the plan maximum of %.8f", amount, maxAmount)}
}

// ErrUnsupportedAsset indicates the asset is not in the plan's supported set
func ErrUnsupportedAsset(assetID string) *Error {
	return &Error{Code: CodeUnsupportedAsset, Message: fmt.Sprintf("asset %s is not supported by this plan", assetID)}
}

// ErrLockPeriodActive indicates withdrawal before lock expiry without the
// early-withdrawal override
func ErrLockPeriodActive(endDate time.Time) *Error {
	return &Error{Code: CodeLockPeriodActive, Message: fmt.Sprintf("lock period is active until %s; pass early_withdrawal to override", endDate.Format("2006-01-02"))}
}

// ErrPositionNotFound indicates the position does not exist or is not owned
// by the requesting user
func ErrPositionNotFound(positionID string) *Error {
	return &Error{Code: CodePositionNotFound, Message: fmt.Sprintf("staking position %s not found", positionID)}
}

// ErrPositionNotActive indicates a lifecycle operation on a terminal position
func ErrPositionNotActive(positionID, status string) *Error {
	return &Error{Code: CodePositionNotActive, Message: fmt.Sprintf("staking position %s is %s, not active", positionID, status)}
}

// ErrConcurrentUpdate indicates the checkpoint compare-and-swap lost to a
// concurrent accrual; the caller may retry with fresh state
func ErrConcurrentUpdate(positionID string) *Error {
	return &Error{Code: CodeConcurrentUpdate, Message: fmt.Sprintf("staking position %s was updated concurrently, retry", positionID)}
}

// CodeOf extracts the staking error code from err, or "" if err is not a
// staking domain error
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
