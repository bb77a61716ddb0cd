package staking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptofolio/internal/logging"
)

// SchedulerConfig holds configuration for the accrual sweep scheduler
type SchedulerConfig struct {
	// SweepInterval is how often the batch accrual sweep runs
	SweepInterval time.Duration

	// MaxConcurrent is the maximum number of positions accrued in parallel
	MaxConcurrent int

	// SweepTimeout bounds a single sweep pass
	SweepTimeout time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SweepInterval: 1 * time.Hour,
		MaxConcurrent: 5,
		SweepTimeout:  5 * time.Minute,
	}
}

// Scheduler periodically runs the batch accrual sweep. Accrual is day
// granular, so sub-daily sweep passes are harmless no-ops per position.
type Scheduler struct {
	engine *Engine
	config *SchedulerConfig
	logger *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a sweep scheduler for the engine
func NewScheduler(engine *Engine, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		engine:   engine,
		config:   config,
		logger:   logging.WithComponent("staking-scheduler"),
		stopChan: make(chan struct{}),
	}
}

// Start starts the sweep loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("staking scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{}) // reinitialize for restart capability
	s.mu.Unlock()

	s.logger.Info("Starting staking accrual scheduler", "interval", s.config.SweepInterval.String())

	s.wg.Add(1)
	go s.runSweepLoop()

	return nil
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("staking scheduler not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	s.logger.Info("Staking accrual scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runSweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.runSweep()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SweepTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in sweep loop", "panic", fmt.Sprintf("%v", r))
		}
	}()

	result, err := s.engine.SweepAllActivePositions(ctx, s.config.MaxConcurrent)
	if err != nil {
		s.logger.Error("Accrual sweep failed", "error", err)
		return
	}

	if result.ErrorCount > 0 {
		for _, se := range result.Errors {
			s.logger.Warn("Position accrual failed during sweep", "position_id", se.PositionID, "error", se.Error)
		}
	}
}
