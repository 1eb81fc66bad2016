// Package service wires configuration, adapters and the core into push runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/davpush/internal/adapter"
	"github.com/Ning0612/davpush/internal/adapter/local"
	"github.com/Ning0612/davpush/internal/adapter/webdav"
	"github.com/Ning0612/davpush/internal/config"
	"github.com/Ning0612/davpush/internal/core/apply"
	"github.com/Ning0612/davpush/internal/core/reconcile"
	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/lock"
	"github.com/Ning0612/davpush/internal/logger"
	"github.com/Ning0612/davpush/internal/progress"
	"github.com/Ning0612/davpush/internal/state"
)

// progressInterval throttles per-file progress logging
const progressInterval = 2 * time.Second

// Plan is the read-only outcome of scanning both trees
type Plan struct {
	Local  domain.TreeListing
	Remote domain.TreeListing
	Result domain.ReconciliationResult
}

// PushService orchestrates push runs
type PushService struct {
	config   *config.Config
	local    adapter.LocalTree
	remote   adapter.RemoteTree
	engine   *reconcile.Engine
	lock     *lock.FileLock
	stateMgr *state.Manager
	reporter progress.Reporter
	clock    clockwork.Clock
}

// Option configures a PushService
type Option func(*PushService)

// WithLocalTree replaces the local adapter
func WithLocalTree(t adapter.LocalTree) Option {
	return func(s *PushService) { s.local = t }
}

// WithRemoteTree replaces the WebDAV adapter
func WithRemoteTree(t adapter.RemoteTree) Option {
	return func(s *PushService) { s.remote = t }
}

// WithClock sets the clock used for run timestamps
func WithClock(c clockwork.Clock) Option {
	return func(s *PushService) { s.clock = c }
}

// NewPushService creates a push service from a validated configuration
func NewPushService(cfg *config.Config, opts ...Option) (*PushService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	s := &PushService{
		config: cfg,
		engine: reconcile.NewEngine(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.local == nil {
		l, err := local.New(cfg.LocalDirectoryPath)
		if err != nil {
			return nil, &domain.ConfigurationError{Err: fmt.Errorf("%w: local_directory_path: %v", domain.ErrConfigInvalid, err)}
		}
		s.local = l
	}

	if s.remote == nil {
		client, err := webdav.NewClient(cfg.Endpoint(), webdav.Options{
			RequestTimeout:     cfg.RequestTimeout,
			UploadTimeout:      cfg.UploadTimeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
		if err != nil {
			return nil, &domain.ConfigurationError{Err: err}
		}
		s.remote = client
	}

	fileLock, err := lock.NewFileLock(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file lock: %w", err)
	}
	s.lock = fileLock

	stateMgr, err := state.NewManager(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}
	s.stateMgr = stateMgr

	return s, nil
}

// SetProgressReporter sets the progress reporter for uploads
func (s *PushService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// Target returns the remote root URL runs push to
func (s *PushService) Target() string {
	return s.remote.RootURL()
}

// Plan probes the server, scans both trees and reconciles them without
// changing the remote tree
func (s *PushService) Plan(ctx context.Context) (*Plan, error) {
	log := logger.Get().With("target", s.Target())

	if err := s.probe(ctx, log); err != nil {
		return nil, err
	}

	localTree, remoteTree, err := s.scan(ctx, log)
	if err != nil {
		return nil, err
	}

	result := s.engine.Reconcile(localTree, remoteTree)
	log.Info("plan created",
		"local", result.LocalCount,
		"remote", result.RemoteCount,
		"missing_folders", len(result.MissingFolders),
		"missing_files", len(result.MissingFiles),
	)

	return &Plan{Local: localTree, Remote: remoteTree, Result: result}, nil
}

// Push runs one complete push and records it in the run history.
// The returned report is nil only if the run lock could not be taken.
// The error is the fatal error of the run, wrapped in a
// *domain.PhaseError; per-entry failures are only in the report.
func (s *PushService) Push(ctx context.Context) (*domain.RunReport, error) {
	report := &domain.RunReport{
		RunID:     uuid.NewString(),
		StartTime: s.clock.Now(),
	}
	log := logger.Get().With("run_id", report.RunID)

	if err := s.lock.Acquire(report.RunID, s.Target()); err != nil {
		log.Error("failed to acquire run lock", "error", err)
		return nil, err
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			log.Error("failed to release run lock", "error", err)
		}
	}()

	log.Info("push started", "local", s.local.Root(), "target", s.Target())

	s.run(ctx, log, report)
	report.EndTime = s.clock.Now()

	if err := s.stateMgr.SaveRun(state.RecordFromReport(report, s.Target(), s.local.Root())); err != nil {
		log.Warn("failed to record run", "error", err)
	}

	if report.Err != nil {
		log.Error("push aborted", "phase", report.Phase, "error", report.Err)
		return report, &domain.PhaseError{Phase: report.Phase, Err: report.Err}
	}

	log.Info("push finished",
		"status", report.Status(),
		"folders_created", report.FoldersCreated(),
		"files_uploaded", report.FilesUploaded(),
		"failures", len(report.Failures()),
		"bytes", progress.FormatBytes(report.BytesUploaded()),
		"duration", report.EndTime.Sub(report.StartTime),
	)
	return report, nil
}

// run fills report; a fatal error stops at the phase that produced it.
// Cancellation during folder creation or uploads is fatal too.
func (s *PushService) run(ctx context.Context, log logger.Logger, report *domain.RunReport) {
	if err := s.probe(ctx, log); err != nil {
		report.Phase, report.Err = domain.PhaseProbe, err
		return
	}

	localTree, remoteTree, err := s.scan(ctx, log)
	if err != nil {
		var phaseErr *domain.PhaseError
		if errors.As(err, &phaseErr) {
			report.Phase, report.Err = phaseErr.Phase, phaseErr.Err
		} else {
			report.Phase, report.Err = domain.PhaseLocal, err
		}
		return
	}

	report.Result = s.engine.Reconcile(localTree, remoteTree)
	log.Info("trees reconciled",
		"local", report.Result.LocalCount,
		"remote", report.Result.RemoteCount,
		"missing_folders", len(report.Result.MissingFolders),
		"missing_files", len(report.Result.MissingFiles),
	)

	creator := apply.NewFolderCreator(s.remote, s.config.Concurrency)
	report.Folders = creator.CreateAll(ctx, report.Result.MissingFolders)
	if err := ctx.Err(); err != nil {
		report.Phase, report.Err = domain.PhaseFolders, err
		return
	}

	reporter := s.reporter
	if reporter == nil {
		reporter = progress.NewLogReporter(log, progressInterval)
	}
	uploader := apply.NewUploader(s.local, s.remote, s.config.Concurrency, apply.WithReporter(reporter))
	summary := uploader.UploadAll(ctx, report.Result.MissingFiles)
	report.Files = summary.Outcomes
	if err := ctx.Err(); err != nil {
		report.Phase, report.Err = domain.PhaseUpload, err
	}
}

// probe checks connectivity and credentials before anything is scanned
func (s *PushService) probe(ctx context.Context, log logger.Logger) error {
	if err := s.remote.Probe(ctx); err != nil {
		log.Error("connectivity check failed", "error", err)
		return err
	}
	log.Info("connected", "server", s.config.ServerURL)
	return nil
}

// scan lists both trees concurrently. The first failure cancels the other
// scan and is returned as a *domain.PhaseError.
func (s *PushService) scan(ctx context.Context, log logger.Logger) (localTree, remoteTree domain.TreeListing, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := s.local.Scan(gctx)
		if err != nil {
			return &domain.PhaseError{Phase: domain.PhaseLocal, Err: err}
		}
		localTree = t
		log.Debug("local tree scanned", "root", s.local.Root(), "entries", t.Len())
		return nil
	})

	g.Go(func() error {
		t, err := s.remote.List(gctx)
		if err != nil {
			return &domain.PhaseError{Phase: domain.PhaseRemote, Err: err}
		}
		remoteTree = t
		log.Debug("remote tree listed", "root", s.Target(), "entries", t.Len())
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return localTree, remoteTree, nil
}

// RunPush runs one push for the scheduler. Only a fatal error is
// returned; partial runs count as completed.
func (s *PushService) RunPush(ctx context.Context) error {
	_, err := s.Push(ctx)
	return err
}

// History returns past runs against this service's target, newest first
func (s *PushService) History(limit int) ([]state.RunRecord, error) {
	return s.stateMgr.GetHistory(s.Target(), limit)
}

// LastSuccess returns the last fully successful run, or nil
func (s *PushService) LastSuccess() (*state.RunRecord, error) {
	return s.stateMgr.GetLastSuccess(s.Target())
}

// IsLocked checks if another push is in progress
func (s *PushService) IsLocked() bool {
	return s.lock.IsLocked()
}

// GetLockHolder returns information about the current lock holder
func (s *PushService) GetLockHolder() (*lock.LockInfo, error) {
	return s.lock.GetHolder()
}

// ForceUnlock forcibly releases the lock (use with caution)
func (s *PushService) ForceUnlock() error {
	return s.lock.ForceRelease()
}

// Close releases the state database
func (s *PushService) Close() error {
	if s.stateMgr != nil {
		return s.stateMgr.Close()
	}
	return nil
}
