// Package progress tracks byte progress of concurrent uploads.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/davpush/internal/logger"
)

// Reporter handles progress reporting for uploads.
// Several transfers may be in flight at once; each is keyed by its path.
type Reporter interface {
	// SetTotal sets the total number of files and bytes to process
	SetTotal(totalFiles int, totalBytes int64)
	// Start begins tracking a file transfer
	Start(path string, totalBytes int64)
	// Update reports bytes sent so far for a transfer
	Update(path string, bytesTransferred int64)
	// Complete marks a transfer as complete
	Complete(path string)
	// Error marks a transfer as failed
	Error(path string, err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	CurrentFile    string
	CurrentBytes   int64
	CurrentTotal   int64
	FilesCompleted int
	FilesFailed    int
	FilesTotal     int
	BytesCompleted int64
	BytesTotal     int64
	BytesPerSecond float64
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
)

// String returns the string representation of the update type
func (t UpdateType) String() string {
	switch t {
	case UpdateStart:
		return "start"
	case UpdateProgress:
		return "progress"
	case UpdateComplete:
		return "complete"
	case UpdateError:
		return "error"
	default:
		return "unknown"
	}
}

type transfer struct {
	total     int64
	sent      int64
	startTime time.Time
}

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback       Callback
	mu             sync.Mutex
	active         map[string]*transfer
	filesTotal     int
	bytesTotal     int64
	filesCompleted int
	filesFailed    int
	bytesCompleted int64
	bytesInFlight  int64
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
		active:   make(map[string]*transfer),
	}
}

// SetTotal sets the total number of files and bytes
func (r *CallbackReporter) SetTotal(totalFiles int, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filesTotal = totalFiles
	r.bytesTotal = totalBytes
}

// Start begins tracking a file transfer
func (r *CallbackReporter) Start(path string, totalBytes int64) {
	r.mu.Lock()
	r.active[path] = &transfer{total: totalBytes, startTime: time.Now()}

	update := r.snapshot(UpdateStart, path)
	update.CurrentTotal = totalBytes
	callback := r.callback
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// Update reports progress on one transfer
func (r *CallbackReporter) Update(path string, bytesTransferred int64) {
	r.mu.Lock()
	t, ok := r.active[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.bytesInFlight += bytesTransferred - t.sent
	t.sent = bytesTransferred

	update := r.snapshot(UpdateProgress, path)
	update.CurrentBytes = bytesTransferred
	update.CurrentTotal = t.total
	if elapsed := time.Since(t.startTime).Seconds(); elapsed > 0 {
		update.BytesPerSecond = float64(bytesTransferred) / elapsed
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Complete marks a transfer as complete
func (r *CallbackReporter) Complete(path string) {
	r.mu.Lock()
	t, ok := r.active[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.active, path)
	r.bytesInFlight -= t.sent
	r.bytesCompleted += t.total
	r.filesCompleted++

	update := r.snapshot(UpdateComplete, path)
	update.CurrentBytes = t.total
	update.CurrentTotal = t.total
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Error marks a transfer as failed. A path never started still counts.
func (r *CallbackReporter) Error(path string, err error) {
	r.mu.Lock()
	if t, ok := r.active[path]; ok {
		delete(r.active, path)
		r.bytesInFlight -= t.sent
	}
	r.filesFailed++

	update := r.snapshot(UpdateError, path)
	update.Error = err
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// snapshot must be called with r.mu held
func (r *CallbackReporter) snapshot(kind UpdateType, path string) Update {
	return Update{
		Type:           kind,
		CurrentFile:    path,
		FilesCompleted: r.filesCompleted,
		FilesFailed:    r.filesFailed,
		FilesTotal:     r.filesTotal,
		BytesCompleted: r.bytesCompleted + r.bytesInFlight,
		BytesTotal:     r.bytesTotal,
	}
}

// NewLogReporter reports through the logger: transfer start, completion and
// failure at debug level, byte progress at most once per interval per file.
func NewLogReporter(log logger.Logger, interval time.Duration) *CallbackReporter {
	var mu sync.Mutex
	last := make(map[string]time.Time)

	return NewCallbackReporter(func(u Update) {
		switch u.Type {
		case UpdateStart:
			log.Debug("upload started", "path", u.CurrentFile, "size", FormatBytes(u.CurrentTotal))
		case UpdateProgress:
			mu.Lock()
			now := time.Now()
			due := now.Sub(last[u.CurrentFile]) >= interval
			if due {
				last[u.CurrentFile] = now
			}
			mu.Unlock()
			if due {
				log.Debug("upload progress",
					"path", u.CurrentFile,
					"progress", FormatProgress(u.CurrentBytes, u.CurrentTotal, 20),
					"speed", FormatSpeed(u.BytesPerSecond),
				)
			}
		case UpdateComplete, UpdateError:
			mu.Lock()
			delete(last, u.CurrentFile)
			mu.Unlock()
			log.Debug("upload "+u.Type.String(),
				"path", u.CurrentFile,
				"files", fmt.Sprintf("%d/%d", u.FilesCompleted+u.FilesFailed, u.FilesTotal),
				"bytes", FormatBytes(u.BytesCompleted),
			)
		}
	})
}

// ProgressReader wraps an io.Reader to track read progress of one path
type ProgressReader struct {
	reader      io.Reader
	reporter    Reporter
	path        string
	transferred int64
}

// NewProgressReader creates a new progress-tracking reader
func NewProgressReader(r io.Reader, reporter Reporter, path string) *ProgressReader {
	return &ProgressReader{
		reader:   r,
		reporter: reporter,
		path:     path,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		if pr.reporter != nil {
			pr.reporter.Update(pr.path, pr.transferred)
		}
	}
	return n, err
}

// Transferred returns the bytes read so far
func (pr *ProgressReader) Transferred() int64 {
	return pr.transferred
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) SetTotal(totalFiles int, totalBytes int64)  {}
func (NullReporter) Start(path string, totalBytes int64)        {}
func (NullReporter) Update(path string, bytesTransferred int64) {}
func (NullReporter) Complete(path string)                       {}
func (NullReporter) Error(path string, err error)               {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
