package staking

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"cryptofolio/internal/database"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// ============================================================================
// FAKE STORE
// ============================================================================

// fakeStore is an in-memory Store with real checkpoint CAS semantics
type fakeStore struct {
	mu        sync.Mutex
	plans     map[string]*database.StakingPlan
	positions map[string]*database.StakingPosition
	rewards   []*database.StakingReward

	// failCAS forces the next UpdatePositionRewards for a position to lose
	// the compare-and-swap, simulating a concurrent writer
	failCAS map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans:     make(map[string]*database.StakingPlan),
		positions: make(map[string]*database.StakingPosition),
		failCAS:   make(map[string]bool),
	}
}

func (s *fakeStore) addPlan(plan *database.StakingPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = plan
}

func (s *fakeStore) GetActivePlan(ctx context.Context, planID string) (*database.StakingPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[planID]
	if !ok || !plan.IsActive {
		return nil, nil
	}
	cp := *plan
	return &cp, nil
}

func (s *fakeStore) GetPosition(ctx context.Context, userID, positionID string) (*database.StakingPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionID]
	if !ok || pos.UserID != userID {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (s *fakeStore) GetPositionByID(ctx context.Context, positionID string) (*database.StakingPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionID]
	if !ok {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (s *fakeStore) ListActivePositions(ctx context.Context) ([]*database.StakingPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.StakingPosition
	for _, pos := range s.positions {
		if pos.Status == database.PositionActive {
			cp := *pos
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertPosition(ctx context.Context, pos *database.StakingPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pos
	s.positions[pos.ID] = &cp
	return nil
}

func (s *fakeStore) UpdatePositionRewards(ctx context.Context, positionID string, newTotal float64, prevCheckpoint *time.Time, newCheckpoint time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCAS[positionID] {
		delete(s.failCAS, positionID)
		return false, nil
	}

	pos, ok := s.positions[positionID]
	if !ok || pos.Status != database.PositionActive {
		return false, nil
	}

	// IS NOT DISTINCT FROM: both nil, or both set and equal
	switch {
	case pos.LastRewardDate == nil && prevCheckpoint == nil:
	case pos.LastRewardDate != nil && prevCheckpoint != nil && pos.LastRewardDate.Equal(*prevCheckpoint):
	default:
		return false, nil
	}

	pos.TotalRewards = newTotal
	cp := newCheckpoint
	pos.LastRewardDate = &cp
	return true, nil
}

func (s *fakeStore) UpdatePositionStatus(ctx context.Context, positionID string, status database.PositionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos, ok := s.positions[positionID]; ok {
		pos.Status = status
	}
	return nil
}

func (s *fakeStore) AppendReward(ctx context.Context, reward *database.StakingReward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *reward
	s.rewards = append(s.rewards, &cp)
	return nil
}

func (s *fakeStore) rewardCount(positionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rewards {
		if r.PositionID == positionID {
			n++
		}
	}
	return n
}

// ============================================================================
// TEST HELPERS
// ============================================================================

var baseTime = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func testPlan(apy float64, lockDays int) *database.StakingPlan {
	return &database.StakingPlan{
		ID:             "plan-1",
		Name:           "Test Plan",
		APY:            apy,
		LockPeriodDays: lockDays,
		MinAmount:      10,
		SupportedCoins: []string{"BTC", "ETH"},
		IsActive:       true,
	}
}

func testPosition(amount float64, start time.Time) *database.StakingPosition {
	return &database.StakingPosition{
		ID:        "pos-1",
		UserID:    "user-1",
		PlanID:    "plan-1",
		AssetID:   "BTC",
		Amount:    amount,
		StartDate: start,
		Status:    database.PositionActive,
	}
}

// ============================================================================
// TEST: Position creation
// ============================================================================

func TestCreatePosition_Success(t *testing.T) {
	store := newFakeStore()
	store.addPlan(testPlan(8.0, 30))
	engine := NewEngine(store, nil)

	pos, err := engine.CreatePosition(context.Background(), "user-1", "plan-1", "BTC", 500)
	if err != nil {
		t.Fatalf("CreatePosition failed: %v", err)
	}

	if pos.Status != database.PositionActive {
		t.Errorf("Expected active status, got %s", pos.Status)
	}
	if pos.EndDate == nil {
		t.Fatal("Expected end date for locked plan")
	}
	wantEnd := pos.StartDate.AddDate(0, 0, 30)
	if !pos.EndDate.Equal(wantEnd) {
		t.Errorf("Expected end date %v, got %v", wantEnd, *pos.EndDate)
	}
	if pos.TotalRewards != 0 {
		t.Errorf("Expected zero initial rewards, got %f", pos.TotalRewards)
	}
	if pos.LastRewardDate != nil {
		t.Error("Expected nil initial checkpoint")
	}

	stored, _ := store.GetPositionByID(context.Background(), pos.ID)
	if stored == nil {
		t.Fatal("Position was not persisted")
	}
}

func TestCreatePosition_ValidationFailureCreatesNothing(t *testing.T) {
	store := newFakeStore()
	store.addPlan(testPlan(8.0, 0))
	engine := NewEngine(store, nil)

	// Below the plan minimum of 10
	_, err := engine.CreatePosition(context.Background(), "user-1", "plan-1", "BTC", 5)
	if CodeOf(err) != CodeBelowMinimum {
		t.Fatalf("Expected BELOW_MINIMUM, got %v", err)
	}

	if len(store.positions) != 0 {
		t.Errorf("Expected no position records, got %d", len(store.positions))
	}
}

func TestCreatePosition_UnknownPlan(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)

	_, err := engine.CreatePosition(context.Background(), "user-1", "missing", "BTC", 100)
	if CodeOf(err) != CodeInvalidPlan {
		t.Fatalf("Expected INVALID_PLAN, got %v", err)
	}
}

// ============================================================================
// TEST: Reward accrual math
// ============================================================================

func TestAccrue_LinearReward(t *testing.T) {
	store := newFakeStore()
	plan := testPlan(8.0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	store.InsertPosition(context.Background(), pos)
	engine := NewEngine(store, nil)

	now := baseTime.Add(90 * 24 * time.Hour)
	reward, err := engine.Accrue(context.Background(), pos, plan, now)
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}

	// 1000 * 8%/365 per day * 90 days
	expected := 1000 * 0.08 / 365 * 90
	if !floatEquals(reward, expected, 1e-9) {
		t.Errorf("Expected reward %.10f, got %.10f", expected, reward)
	}
	if !floatEquals(pos.TotalRewards, expected, 1e-9) {
		t.Errorf("Expected total %.10f, got %.10f", expected, pos.TotalRewards)
	}
	if pos.LastRewardDate == nil || !pos.LastRewardDate.Equal(now) {
		t.Error("Expected checkpoint to advance to accrual time")
	}
	if store.rewardCount(pos.ID) != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", store.rewardCount(pos.ID))
	}
}

func TestAccrue_SameWindowIsNoOp(t *testing.T) {
	store := newFakeStore()
	plan := testPlan(8.0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	store.InsertPosition(context.Background(), pos)
	engine := NewEngine(store, nil)

	now := baseTime.Add(3 * 24 * time.Hour)
	first, err := engine.Accrue(context.Background(), pos, plan, now)
	if err != nil {
		t.Fatalf("First accrue failed: %v", err)
	}
	if first <= 0 {
		t.Fatalf("Expected positive first reward, got %f", first)
	}

	// Second accrual at the same instant: less than a day since checkpoint
	second, err := engine.Accrue(context.Background(), pos, plan, now)
	if err != nil {
		t.Fatalf("Second accrue failed: %v", err)
	}
	if second != 0 {
		t.Errorf("Expected no-op second accrual, got %f", second)
	}
	if store.rewardCount(pos.ID) != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", store.rewardCount(pos.ID))
	}
}

func TestAccrue_PartialDaysFloor(t *testing.T) {
	store := newFakeStore()
	plan := testPlan(10.0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	store.InsertPosition(context.Background(), pos)
	engine := NewEngine(store, nil)

	// 1.9 elapsed days pays exactly 1 day
	now := baseTime.Add(time.Duration(1.9 * float64(24*time.Hour)))
	reward, err := engine.Accrue(context.Background(), pos, plan, now)
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}

	expected := 1000 * 0.10 / 365 * 1
	if !floatEquals(reward, expected, 1e-9) {
		t.Errorf("Expected 1-day reward %.10f, got %.10f", expected, reward)
	}
}

func TestAccrue_UnderOneDay(t *testing.T) {
	store := newFakeStore()
	plan := testPlan(10.0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	store.InsertPosition(context.Background(), pos)
	engine := NewEngine(store, nil)

	reward, err := engine.Accrue(context.Background(), pos, plan, baseTime.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if reward != 0 {
		t.Errorf("Expected zero reward under one day, got %f", reward)
	}
	if pos.LastRewardDate != nil {
		t.Error("Expected checkpoint to stay nil on no-op")
	}
}

func TestAccrue_SplitEqualsSingleAccrual(t *testing.T) {
	ctx := context.Background()

	// Accrue once at day 90
	storeA := newFakeStore()
	plan := testPlan(8.0, 0)
	storeA.addPlan(plan)
	posA := testPosition(1000, baseTime)
	storeA.InsertPosition(ctx, posA)
	engineA := NewEngine(storeA, nil)
	single, err := engineA.Accrue(ctx, posA, plan, baseTime.Add(90*24*time.Hour))
	if err != nil {
		t.Fatalf("Single accrue failed: %v", err)
	}

	// Accrue at day 30 then day 90
	storeB := newFakeStore()
	storeB.addPlan(plan)
	posB := testPosition(1000, baseTime)
	storeB.InsertPosition(ctx, posB)
	engineB := NewEngine(storeB, nil)
	first, err := engineB.Accrue(ctx, posB, plan, baseTime.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("First split accrue failed: %v", err)
	}
	second, err := engineB.Accrue(ctx, posB, plan, baseTime.Add(90*24*time.Hour))
	if err != nil {
		t.Fatalf("Second split accrue failed: %v", err)
	}

	if !floatEquals(first+second, single, 1e-9) {
		t.Errorf("Split accrual %f+%f != single %f", first, second, single)
	}
}

func TestAccrue_ZeroAPY(t *testing.T) {
	store := newFakeStore()
	plan := testPlan(0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	store.InsertPosition(context.Background(), pos)
	engine := NewEngine(store, nil)

	reward, err := engine.Accrue(context.Background(), pos, plan, baseTime.Add(10*24*time.Hour))
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if reward != 0 {
		t.Errorf("Expected zero reward at 0%% APY, got %f", reward)
	}
	if store.rewardCount(pos.ID) != 0 {
		t.Error("Expected no ledger entries at 0% APY")
	}
}

func TestAccrue_NonActivePosition(t *testing.T) {
	store := newFakeStore()
	plan := testPlan(8.0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	pos.Status = database.PositionWithdrawn
	store.InsertPosition(context.Background(), pos)
	engine := NewEngine(store, nil)

	reward, err := engine.Accrue(context.Background(), pos, plan, baseTime.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if reward != 0 {
		t.Errorf("Expected zero reward for withdrawn position, got %f", reward)
	}
}

func TestAccrue_ConcurrentCheckpointConflict(t *testing.T) {
	store := newFakeStore()
	plan := testPlan(8.0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	store.InsertPosition(context.Background(), pos)
	store.failCAS[pos.ID] = true
	engine := NewEngine(store, nil)

	_, err := engine.Accrue(context.Background(), pos, plan, baseTime.Add(30*24*time.Hour))
	if CodeOf(err) != CodeConcurrentUpdate {
		t.Fatalf("Expected CONCURRENT_UPDATE, got %v", err)
	}
	if store.rewardCount(pos.ID) != 0 {
		t.Error("Expected no ledger entry on lost CAS")
	}
	if pos.TotalRewards != 0 {
		t.Error("Expected in-memory totals untouched on lost CAS")
	}
}

func TestAccrueRewardsForPosition_Missing(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)

	_, err := engine.AccrueRewardsForPosition(context.Background(), "nope")
	if CodeOf(err) != CodePositionNotFound {
		t.Fatalf("Expected POSITION_NOT_FOUND, got %v", err)
	}
}

func TestAccrueRewardsForPosition_MissingPlan(t *testing.T) {
	store := newFakeStore()
	pos := testPosition(1000, baseTime)
	store.InsertPosition(context.Background(), pos)
	engine := NewEngine(store, nil)

	_, err := engine.AccrueRewardsForPosition(context.Background(), pos.ID)
	if CodeOf(err) != CodePlanNotFound {
		t.Fatalf("Expected PLAN_NOT_FOUND, got %v", err)
	}
}

// ============================================================================
// TEST: Withdrawal lifecycle
// ============================================================================

func TestWithdraw_FinalAccrualThenTerminal(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	plan := testPlan(12.0, 0)
	store.addPlan(plan)
	pos := testPosition(5000, baseTime)
	store.InsertPosition(ctx, pos)
	engine := NewEngine(store, nil)

	now := baseTime.Add(365 * 24 * time.Hour)
	withdrawn, err := engine.Withdraw(ctx, "user-1", pos.ID, false, now)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}

	// A full year at 12% simple interest on 5000
	expected := 5000 * 0.12
	if !floatEquals(withdrawn.TotalRewards, expected, 1e-6) {
		t.Errorf("Expected final rewards %.6f, got %.6f", expected, withdrawn.TotalRewards)
	}
	if withdrawn.Status != database.PositionWithdrawn {
		t.Errorf("Expected withdrawn status, got %s", withdrawn.Status)
	}

	stored, _ := store.GetPositionByID(ctx, pos.ID)
	if stored.Status != database.PositionWithdrawn {
		t.Errorf("Expected persisted withdrawn status, got %s", stored.Status)
	}

	// Second withdrawal must fail: the position is terminal
	_, err = engine.Withdraw(ctx, "user-1", pos.ID, false, now.Add(24*time.Hour))
	if CodeOf(err) != CodePositionNotActive {
		t.Fatalf("Expected POSITION_NOT_ACTIVE on double withdraw, got %v", err)
	}
}

func TestWithdraw_LockEnforcement(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	plan := testPlan(8.0, 90)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	end := baseTime.AddDate(0, 0, 90)
	pos.EndDate = &end
	store.InsertPosition(ctx, pos)
	engine := NewEngine(store, nil)

	// 30 days in, lock still active
	now := baseTime.Add(30 * 24 * time.Hour)
	_, err := engine.Withdraw(ctx, "user-1", pos.ID, false, now)
	if CodeOf(err) != CodeLockPeriodActive {
		t.Fatalf("Expected LOCK_PERIOD_ACTIVE, got %v", err)
	}

	// Early override pays full accrued rewards
	withdrawn, err := engine.Withdraw(ctx, "user-1", pos.ID, true, now)
	if err != nil {
		t.Fatalf("Early withdraw failed: %v", err)
	}
	expected := 1000 * 0.08 / 365 * 30
	if !floatEquals(withdrawn.TotalRewards, expected, 1e-9) {
		t.Errorf("Expected rewards %.10f on early withdraw, got %.10f", expected, withdrawn.TotalRewards)
	}
}

func TestWithdraw_AfterLockExpiry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	plan := testPlan(8.0, 90)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	end := baseTime.AddDate(0, 0, 90)
	pos.EndDate = &end
	store.InsertPosition(ctx, pos)
	engine := NewEngine(store, nil)

	now := end.Add(24 * time.Hour)
	if _, err := engine.Withdraw(ctx, "user-1", pos.ID, false, now); err != nil {
		t.Fatalf("Withdraw after lock expiry failed: %v", err)
	}
}

func TestWithdraw_WrongUser(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	plan := testPlan(8.0, 0)
	store.addPlan(plan)
	pos := testPosition(1000, baseTime)
	store.InsertPosition(ctx, pos)
	engine := NewEngine(store, nil)

	_, err := engine.Withdraw(ctx, "someone-else", pos.ID, false, baseTime.Add(24*time.Hour))
	if CodeOf(err) != CodePositionNotFound {
		t.Fatalf("Expected POSITION_NOT_FOUND for foreign user, got %v", err)
	}
}
