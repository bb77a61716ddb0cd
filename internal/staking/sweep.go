package staking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptofolio/internal/events"
)

// SweepError records a single position failure during a batch sweep
type SweepError struct {
	PositionID string `json:"position_id"`
	Error      string `json:"error"`
}

// SweepResult summarizes one batch accrual pass over all active positions
type SweepResult struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	PositionCount int           `json:"position_count"`
	UpdatedCount  int           `json:"updated_count"`
	SkippedCount  int           `json:"skipped_count"` // lost checkpoint CAS to a concurrent writer
	ErrorCount    int           `json:"error_count"`
	TotalRewards  float64       `json:"total_rewards"`
	Errors        []SweepError  `json:"errors,omitempty"`
}

// SweepAllActivePositions accrues rewards for every active position. Each
// position is processed independently: a failure on one (e.g. its plan was
// deleted) is collected into the result and never aborts the rest of the
// batch. maxConcurrent bounds parallelism; values < 1 mean sequential.
func (e *Engine) SweepAllActivePositions(ctx context.Context, maxConcurrent int) (*SweepResult, error) {
	start := time.Now().UTC()

	positions, err := e.store.ListActivePositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active positions: %w", err)
	}

	result := &SweepResult{
		StartedAt:     start,
		PositionCount: len(positions),
	}

	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	semaphore := make(chan struct{}, maxConcurrent)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, pos := range positions {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(positionID string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Panic recovered during sweep", "position_id", positionID, "panic", fmt.Sprintf("%v", r))
					mu.Lock()
					result.ErrorCount++
					result.Errors = append(result.Errors, SweepError{PositionID: positionID, Error: fmt.Sprintf("panic: %v", r)})
					mu.Unlock()
				}
			}()

			reward, err := e.AccrueRewardsForPosition(ctx, positionID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.UpdatedCount++
				result.TotalRewards += reward
			case CodeOf(err) == CodeConcurrentUpdate:
				// Another writer claimed this window; nothing owed here.
				result.SkippedCount++
			default:
				result.ErrorCount++
				result.Errors = append(result.Errors, SweepError{PositionID: positionID, Error: err.Error()})
			}
		}(pos.ID)
	}

	wg.Wait()
	result.Duration = time.Since(start)

	e.logger.Info("Accrual sweep completed",
		"positions", result.PositionCount,
		"updated", result.UpdatedCount,
		"skipped", result.SkippedCount,
		"errors", result.ErrorCount,
		"total_rewards", result.TotalRewards,
		"duration", result.Duration.String())

	e.publish(events.EventSweepCompleted, map[string]interface{}{
		"positions":     result.PositionCount,
		"updated":       result.UpdatedCount,
		"skipped":       result.SkippedCount,
		"errors":        result.ErrorCount,
		"total_rewards": result.TotalRewards,
	})

	return result, nil
}
