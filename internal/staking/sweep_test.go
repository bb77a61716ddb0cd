package staking

import (
	"context"
	"testing"
	"time"

	"cryptofolio/internal/database"
)

func sweepPosition(id string, planID string, start time.Time) *database.StakingPosition {
	return &database.StakingPosition{
		ID:        id,
		UserID:    "user-1",
		PlanID:    planID,
		AssetID:   "BTC",
		Amount:    1000,
		StartDate: start,
		Status:    database.PositionActive,
	}
}

// ============================================================================
// TEST: Batch sweep
// ============================================================================

func TestSweep_AccruesAllActivePositions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addPlan(testPlan(8.0, 0))

	start := time.Now().UTC().Add(-30 * 24 * time.Hour)
	store.InsertPosition(ctx, sweepPosition("pos-a", "plan-1", start))
	store.InsertPosition(ctx, sweepPosition("pos-b", "plan-1", start))
	store.InsertPosition(ctx, sweepPosition("pos-c", "plan-1", start))

	engine := NewEngine(store, nil)
	result, err := engine.SweepAllActivePositions(ctx, 2)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if result.PositionCount != 3 {
		t.Errorf("Expected 3 positions swept, got %d", result.PositionCount)
	}
	if result.UpdatedCount != 3 {
		t.Errorf("Expected 3 updated, got %d", result.UpdatedCount)
	}
	if result.ErrorCount != 0 {
		t.Errorf("Expected no errors, got %d: %v", result.ErrorCount, result.Errors)
	}

	// 30 full days at 8% on 1000, three times over
	perPosition := 1000 * 0.08 / 365 * 30
	if !floatEquals(result.TotalRewards, 3*perPosition, 1e-6) {
		t.Errorf("Expected total rewards %.6f, got %.6f", 3*perPosition, result.TotalRewards)
	}
}

func TestSweep_IsolatesPerPositionFailures(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addPlan(testPlan(8.0, 0))

	start := time.Now().UTC().Add(-10 * 24 * time.Hour)
	store.InsertPosition(ctx, sweepPosition("pos-ok-1", "plan-1", start))
	store.InsertPosition(ctx, sweepPosition("pos-ok-2", "plan-1", start))
	// References a plan that no longer exists
	store.InsertPosition(ctx, sweepPosition("pos-orphan", "plan-gone", start))

	engine := NewEngine(store, nil)
	result, err := engine.SweepAllActivePositions(ctx, 4)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if result.UpdatedCount != 2 {
		t.Errorf("Expected 2 updated, got %d", result.UpdatedCount)
	}
	if result.ErrorCount != 1 {
		t.Fatalf("Expected 1 error, got %d", result.ErrorCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].PositionID != "pos-orphan" {
		t.Errorf("Expected error recorded for pos-orphan, got %v", result.Errors)
	}

	// Healthy positions still got their rewards despite the orphan
	healthy, _ := store.GetPositionByID(ctx, "pos-ok-1")
	if healthy.TotalRewards <= 0 {
		t.Error("Expected healthy position to accrue despite orphan failure")
	}
}

func TestSweep_CountsLostCASAsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addPlan(testPlan(8.0, 0))

	start := time.Now().UTC().Add(-10 * 24 * time.Hour)
	store.InsertPosition(ctx, sweepPosition("pos-normal", "plan-1", start))
	store.InsertPosition(ctx, sweepPosition("pos-contended", "plan-1", start))
	store.failCAS["pos-contended"] = true

	engine := NewEngine(store, nil)
	result, err := engine.SweepAllActivePositions(ctx, 1)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if result.UpdatedCount != 1 {
		t.Errorf("Expected 1 updated, got %d", result.UpdatedCount)
	}
	if result.SkippedCount != 1 {
		t.Errorf("Expected 1 skipped on lost CAS, got %d", result.SkippedCount)
	}
	if result.ErrorCount != 0 {
		t.Errorf("Expected lost CAS to not count as error, got %d errors", result.ErrorCount)
	}
}

func TestSweep_EmptyAndNoOpPositions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addPlan(testPlan(8.0, 0))
	engine := NewEngine(store, nil)

	// No positions at all
	result, err := engine.SweepAllActivePositions(ctx, 4)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.PositionCount != 0 || result.TotalRewards != 0 {
		t.Errorf("Expected empty sweep result, got %+v", result)
	}

	// A position younger than one day accrues nothing but is not an error
	store.InsertPosition(ctx, sweepPosition("pos-young", "plan-1", time.Now().UTC().Add(-time.Hour)))
	result, err = engine.SweepAllActivePositions(ctx, 4)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Errorf("Expected young position to count as updated, got %d", result.UpdatedCount)
	}
	if result.TotalRewards != 0 {
		t.Errorf("Expected zero rewards for young position, got %f", result.TotalRewards)
	}
	if result.ErrorCount != 0 {
		t.Errorf("Expected no errors, got %d", result.ErrorCount)
	}
}

func TestSweep_SequentialWhenConcurrencyBelowOne(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addPlan(testPlan(8.0, 0))
	store.InsertPosition(ctx, sweepPosition("pos-a", "plan-1", time.Now().UTC().Add(-5*24*time.Hour)))

	engine := NewEngine(store, nil)
	result, err := engine.SweepAllActivePositions(ctx, 0)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Errorf("Expected 1 updated with clamped concurrency, got %d", result.UpdatedCount)
	}
}
