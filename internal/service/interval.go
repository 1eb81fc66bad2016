package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/davpush/internal/daemon"
	"github.com/Ning0612/davpush/internal/logger"
	"github.com/Ning0612/davpush/internal/scheduler"
	"github.com/Ning0612/davpush/internal/state"
)

// IntervalService repeats pushes on a fixed interval until stopped
type IntervalService struct {
	mu        sync.RWMutex
	push      *PushService
	scheduler scheduler.Scheduler
	pidFile   *daemon.PIDFile
}

// IntervalStatus represents the current interval mode status
type IntervalStatus struct {
	Running        bool
	SchedulerStats *scheduler.Status
	LastRun        *state.RunRecord
}

// NewIntervalService creates an interval service around a push service
func NewIntervalService(push *PushService) (*IntervalService, error) {
	if push == nil {
		return nil, fmt.Errorf("push service cannot be nil")
	}

	pidPath, err := daemon.DefaultPIDPath(push.config.StateDir)
	if err != nil {
		return nil, err
	}

	return &IntervalService{
		push:    push,
		pidFile: daemon.NewPIDFile(pidPath),
	}, nil
}

// Start runs a push right away and then every interval. It returns once
// the scheduler is running; Done is closed when it stops.
func (d *IntervalService) Start(ctx context.Context, interval time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler != nil {
		return fmt.Errorf("interval push is already running")
	}

	if err := d.pidFile.Write(); err != nil {
		return err
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Interval:       interval,
		RunImmediately: true,
		Clock:          d.push.clock,
	}, d.push)
	if err != nil {
		d.pidFile.Remove()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		d.pidFile.Remove()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	d.scheduler = sched

	go func() {
		<-sched.Done()
		if err := d.pidFile.Remove(); err != nil {
			logger.Get().Warn("failed to remove PID file", "path", d.pidFile.Path(), "error", err)
		}
	}()

	logger.Get().Info("interval push started", "interval", interval, "target", d.push.Target())
	return nil
}

// Done is closed once the scheduler has stopped. It is nil before Start.
func (d *IntervalService) Done() <-chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.scheduler == nil {
		return nil
	}
	return d.scheduler.Done()
}

// Stop stops the scheduler, waiting for a push in progress to finish
func (d *IntervalService) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler == nil {
		return fmt.Errorf("interval push is not running")
	}

	if err := d.scheduler.Stop(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	return nil
}

// Status returns the current interval status
func (d *IntervalService) Status() *IntervalStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &IntervalStatus{}

	if d.scheduler != nil {
		status.SchedulerStats = d.scheduler.Status()
		status.Running = status.SchedulerStats.Running
	}

	if history, err := d.push.History(1); err == nil && len(history) > 0 {
		status.LastRun = &history[0]
	}

	return status
}
