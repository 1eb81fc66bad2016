// Package scheduler repeats pushes on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler defines the interface for push schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Done is closed once the scheduling loop has exited
	Done() <-chan struct{}

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval specifies the duration between runs
	Interval time.Duration

	// RunImmediately runs once as soon as the scheduler starts
	RunImmediately bool

	// Clock defaults to the real clock
	Clock clockwork.Clock
}

// Runner is what the scheduler executes on every tick
type Runner interface {
	RunPush(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

// RunPush calls f(ctx)
func (f RunnerFunc) RunPush(ctx context.Context) error {
	return f(ctx)
}
