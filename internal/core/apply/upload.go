package apply

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/logger"
	"github.com/Ning0612/davpush/internal/progress"
)

// FileSource opens local files for streaming
type FileSource interface {
	Open(ctx context.Context, p domain.RelativePath) (io.ReadCloser, int64, error)
}

// FilePutter uploads one file body
type FilePutter interface {
	Put(ctx context.Context, p domain.RelativePath, body io.Reader, size int64) error
}

// UploadSummary is the result of an upload batch
type UploadSummary struct {
	Attempted int
	Succeeded int
	Bytes     int64
	Outcomes  []domain.EntryOutcome
}

// Failed returns the number of files that were not uploaded
func (s UploadSummary) Failed() int {
	return s.Attempted - s.Succeeded
}

func (s UploadSummary) String() string {
	return fmt.Sprintf("%d/%d files uploaded", s.Succeeded, s.Attempted)
}

// Uploader streams missing files to the remote tree through a bounded
// worker pool
type Uploader struct {
	source      FileSource
	remote      FilePutter
	concurrency int
	reporter    progress.Reporter
}

// UploaderOption configures an Uploader
type UploaderOption func(*Uploader)

// WithReporter sets the progress reporter
func WithReporter(r progress.Reporter) UploaderOption {
	return func(u *Uploader) {
		if r != nil {
			u.reporter = r
		}
	}
}

// NewUploader creates an uploader.
// concurrency <= 0 means DefaultConcurrency.
func NewUploader(source FileSource, remote FilePutter, concurrency int, opts ...UploaderOption) *Uploader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	u := &Uploader{
		source:      source,
		remote:      remote,
		concurrency: concurrency,
		reporter:    progress.NullReporter{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UploadAll uploads every file and never aborts on a single failure.
// Outcomes are returned in input order. Files not started before ctx is
// done are reported as failed with the context error.
func (u *Uploader) UploadAll(ctx context.Context, files []domain.RelativePath) UploadSummary {
	outcomes := make([]domain.EntryOutcome, len(files))
	u.reporter.SetTotal(len(files), 0)

	g := new(errgroup.Group)
	g.SetLimit(u.concurrency)
	for i, p := range files {
		i, p := i, p
		if err := ctx.Err(); err != nil {
			outcomes[i] = u.fail(p, 0, err)
			continue
		}

		g.Go(func() error {
			outcomes[i] = u.upload(ctx, p)
			return nil
		})
	}
	g.Wait()

	summary := UploadSummary{Attempted: len(files), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			summary.Succeeded++
			summary.Bytes += o.Bytes
		}
	}

	logger.Get().Info("uploads finished",
		"uploaded", summary.Succeeded,
		"attempted", summary.Attempted,
		"bytes", progress.FormatBytes(summary.Bytes),
	)
	return summary
}

// upload streams one file; the file handle is closed on every path
func (u *Uploader) upload(ctx context.Context, p domain.RelativePath) domain.EntryOutcome {
	if err := ctx.Err(); err != nil {
		return u.fail(p, 0, err)
	}

	r, size, err := u.source.Open(ctx, p)
	if err != nil {
		return u.fail(p, 0, &domain.RemoteUploadFailure{Path: p, Err: fmt.Errorf("open local file: %w", err)})
	}
	defer r.Close()

	u.reporter.Start(p.String(), size)
	body := progress.NewProgressReader(r, u.reporter, p.String())

	if err := u.remote.Put(ctx, p, body, size); err != nil {
		return u.fail(p, size, err)
	}

	u.reporter.Complete(p.String())
	logger.Get().Info("file uploaded", "path", p, "size", progress.FormatBytes(size))
	return domain.EntryOutcome{Path: p, Status: domain.OutcomeUploaded, Bytes: size}
}

func (u *Uploader) fail(p domain.RelativePath, size int64, err error) domain.EntryOutcome {
	u.reporter.Error(p.String(), err)
	logger.Get().Error("file upload failed", "path", p, "error", err)
	return domain.EntryOutcome{Path: p, Status: domain.OutcomeFailed, Bytes: size, Err: err}
}
