// Package apply carries out a reconciliation result against the remote
// tree: folders first, level by level, then file uploads.
package apply

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/davpush/internal/core/reconcile"
	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/logger"
)

// DefaultConcurrency bounds parallel MKCOL and PUT requests
const DefaultConcurrency = 4

// FolderMaker creates one remote collection
type FolderMaker interface {
	Mkcol(ctx context.Context, p domain.RelativePath) (domain.OutcomeStatus, error)
}

// FolderCreator creates missing remote folders
type FolderCreator struct {
	remote      FolderMaker
	concurrency int
}

// NewFolderCreator creates a folder creator.
// concurrency <= 0 means DefaultConcurrency.
func NewFolderCreator(remote FolderMaker, concurrency int) *FolderCreator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &FolderCreator{remote: remote, concurrency: concurrency}
}

// CreateAll creates every folder and returns one outcome per folder, in
// creation order. Folders of one depth are created concurrently; a depth
// starts only after the previous one finished, so a parent always exists
// (or has failed) before its children are attempted.
// A failed folder does not stop the batch.
func (c *FolderCreator) CreateAll(ctx context.Context, folders []domain.RelativePath) []domain.EntryOutcome {
	ordered := append([]domain.RelativePath(nil), folders...)
	reconcile.SortByDepth(ordered)

	log := logger.Get()
	outcomes := make([]domain.EntryOutcome, 0, len(ordered))

	for _, level := range reconcile.GroupByDepth(ordered) {
		results := make([]domain.EntryOutcome, len(level))

		g := new(errgroup.Group)
		g.SetLimit(c.concurrency)
		for i, p := range level {
			i, p := i, p
			if err := ctx.Err(); err != nil {
				results[i] = domain.EntryOutcome{Path: p, Status: domain.OutcomeFailed, Err: err}
				continue
			}

			g.Go(func() error {
				status, err := c.remote.Mkcol(ctx, p)
				results[i] = domain.EntryOutcome{Path: p, Status: status, Err: err}

				switch {
				case err != nil:
					log.Error("folder creation failed", "path", p, "error", err)
				case status == domain.OutcomeAlreadyExists:
					log.Info("folder already exists", "path", p)
				default:
					log.Info("folder created", "path", p)
				}
				return nil
			})
		}
		g.Wait()

		outcomes = append(outcomes, results...)
	}

	return outcomes
}
