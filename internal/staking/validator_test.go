package staking

import (
	"testing"
	"time"

	"cryptofolio/internal/database"
)

// ============================================================================
// TEST: Plan validation
// ============================================================================

func TestValidateAndPrepare_AmountBounds(t *testing.T) {
	maxAmount := 10000.0
	plan := &database.StakingPlan{
		ID:             "plan-bounds",
		APY:            5.0,
		MinAmount:      100,
		MaxAmount:      &maxAmount,
		SupportedCoins: []string{"BTC"},
		IsActive:       true,
	}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		amount   float64
		wantCode string
	}{
		{name: "exactly minimum is accepted", amount: 100, wantCode: ""},
		{name: "just below minimum", amount: 99.999, wantCode: CodeBelowMinimum},
		{name: "exactly maximum is accepted", amount: 10000, wantCode: ""},
		{name: "just above maximum", amount: 10000.001, wantCode: CodeAboveMaximum},
		{name: "mid range", amount: 5000, wantCode: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateAndPrepare(plan, "BTC", tc.amount, now)
			if CodeOf(err) != tc.wantCode {
				t.Errorf("amount %f: expected code %q, got %q (err=%v)", tc.amount, tc.wantCode, CodeOf(err), err)
			}
		})
	}
}

func TestValidateAndPrepare_NoMaximum(t *testing.T) {
	plan := &database.StakingPlan{
		ID:             "plan-nomax",
		APY:            5.0,
		MinAmount:      1,
		SupportedCoins: []string{"BTC"},
		IsActive:       true,
	}

	// Nil maximum means unbounded
	if _, err := ValidateAndPrepare(plan, "BTC", 1e12, time.Now().UTC()); err != nil {
		t.Errorf("Expected unbounded amount to validate, got %v", err)
	}
}

func TestValidateAndPrepare_UnsupportedAsset(t *testing.T) {
	plan := &database.StakingPlan{
		ID:             "plan-assets",
		APY:            5.0,
		MinAmount:      1,
		SupportedCoins: []string{"BTC", "ETH"},
		IsActive:       true,
	}

	_, err := ValidateAndPrepare(plan, "DOGE", 100, time.Now().UTC())
	if CodeOf(err) != CodeUnsupportedAsset {
		t.Fatalf("Expected UNSUPPORTED_ASSET, got %v", err)
	}
}

func TestValidateAndPrepare_InactivePlan(t *testing.T) {
	plan := &database.StakingPlan{
		ID:             "plan-retired",
		APY:            5.0,
		MinAmount:      1,
		SupportedCoins: []string{"BTC"},
		IsActive:       false,
	}

	_, err := ValidateAndPrepare(plan, "BTC", 100, time.Now().UTC())
	if CodeOf(err) != CodeInvalidPlan {
		t.Fatalf("Expected INVALID_PLAN for retired plan, got %v", err)
	}
}

func TestValidateAndPrepare_NilPlan(t *testing.T) {
	_, err := ValidateAndPrepare(nil, "BTC", 100, time.Now().UTC())
	if CodeOf(err) != CodeInvalidPlan {
		t.Fatalf("Expected INVALID_PLAN for nil plan, got %v", err)
	}
}

// ============================================================================
// TEST: Date window computation
// ============================================================================

func TestValidateAndPrepare_LockedPlanEndDate(t *testing.T) {
	plan := &database.StakingPlan{
		ID:             "plan-locked",
		APY:            5.0,
		LockPeriodDays: 90,
		MinAmount:      1,
		SupportedCoins: []string{"BTC"},
		IsActive:       true,
	}
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	dates, err := ValidateAndPrepare(plan, "BTC", 100, now)
	if err != nil {
		t.Fatalf("ValidateAndPrepare failed: %v", err)
	}

	if !dates.StartDate.Equal(now) {
		t.Errorf("Expected start date %v, got %v", now, dates.StartDate)
	}
	if dates.EndDate == nil {
		t.Fatal("Expected end date for locked plan")
	}
	want := now.AddDate(0, 0, 90)
	if !dates.EndDate.Equal(want) {
		t.Errorf("Expected end date %v, got %v", want, *dates.EndDate)
	}
}

func TestValidateAndPrepare_FlexiblePlanNoEndDate(t *testing.T) {
	plan := &database.StakingPlan{
		ID:             "plan-flex",
		APY:            5.0,
		LockPeriodDays: 0,
		MinAmount:      1,
		SupportedCoins: []string{"BTC"},
		IsActive:       true,
	}

	dates, err := ValidateAndPrepare(plan, "BTC", 100, time.Now().UTC())
	if err != nil {
		t.Fatalf("ValidateAndPrepare failed: %v", err)
	}
	if dates.EndDate != nil {
		t.Errorf("Expected nil end date for flexible plan, got %v", *dates.EndDate)
	}
}
