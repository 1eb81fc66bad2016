package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Ning0612/davpush/internal/logger"
)

// IntervalScheduler runs a push every Interval. Runs never overlap: a
// tick that arrives while a run is in progress is dropped.
type IntervalScheduler struct {
	config Config
	runner Runner
	clock  clockwork.Clock

	// Runtime state
	mu          sync.RWMutex
	running     bool
	stopped     bool      // Track if stopped to prevent restart
	stopOnce    sync.Once // Ensure Stop() is idempotent
	closeOnce   sync.Once // Ensure stoppedChan is closed exactly once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	// Statistics
	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner Runner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}

	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		clock:       clock,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	s.stats.nextRunTime = s.clock.Now().Add(s.config.Interval)

	// Ticker is created before returning so a fake clock sees it right away
	ticker := s.clock.NewTicker(s.config.Interval)
	go s.run(ctx, ticker)

	return nil
}

// run is the main scheduling loop
func (s *IntervalScheduler) run(ctx context.Context, ticker clockwork.Ticker) {
	// Ensure stoppedChan is closed exactly once and stopped flag is set
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	defer ticker.Stop()

	if s.config.RunImmediately {
		s.execute(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			// Context cancelled - return gracefully
			return
		case <-s.stopChan:
			// Stop requested - return gracefully
			return
		case <-ticker.Chan():
			s.execute(ctx)
		}
	}
}

// execute runs one push and records the outcome
func (s *IntervalScheduler) execute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.stats.lastRunTime = s.clock.Now()
	s.stats.totalRuns++
	run := s.stats.totalRuns
	s.mu.Unlock()

	err := s.runner.RunPush(ctx)

	s.mu.Lock()
	s.stats.nextRunTime = s.clock.Now().Add(s.config.Interval)
	if err != nil {
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
	} else {
		s.stats.successfulRuns++
		s.stats.lastError = ""
	}
	next := s.stats.nextRunTime
	s.mu.Unlock()

	log := logger.Get()
	if err != nil {
		log.Error("scheduled push failed", "run", run, "error", err, "next_run", next)
		return
	}
	log.Info("scheduled push finished", "run", run, "next_run", next)
}

// Stop gracefully stops the scheduler
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	// Use sync.Once to ensure stop channel is closed only once
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	// Wait for scheduler to stop
	<-s.stoppedChan

	// Mark as stopped to prevent restart
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	return nil
}

// Done is closed once the scheduling loop has exited, either through
// Stop or through cancellation of the Start context
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
