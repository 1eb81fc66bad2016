package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/logger"
	"github.com/Ning0612/davpush/internal/pathnorm"
)

// Adapter reads the local side of a push: it lists the tree and opens
// files for upload. It never writes.
type Adapter struct {
	fs   afero.Fs
	root string

	// onDisk maps listed paths to the name actually stored on disk when
	// normalization changed it (e.g. NFD names on Linux)
	mu     sync.RWMutex
	onDisk map[domain.RelativePath]string
}

// New creates a local adapter on the OS filesystem.
// The root is not checked here; Scan reports a missing root.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return NewWithFs(afero.NewOsFs(), absRoot), nil
}

// NewWithFs creates a local adapter over any afero filesystem
func NewWithFs(fs afero.Fs, root string) *Adapter {
	return &Adapter{fs: fs, root: filepath.Clean(root)}
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// Scan lists every directory and file beneath the root, recursively,
// including empty directories. The root itself is not listed.
func (a *Adapter) Scan(ctx context.Context) (domain.TreeListing, error) {
	info, err := a.fs.Stat(a.root)
	if err != nil {
		return nil, &domain.FilesystemAccessError{Root: a.root, Err: a.mapError(err)}
	}
	if !info.IsDir() {
		return nil, &domain.FilesystemAccessError{Root: a.root, Err: domain.ErrNotDirectory}
	}

	// The root must also be readable, not just present.
	if _, err := afero.ReadDir(a.fs, a.root); err != nil {
		return nil, &domain.FilesystemAccessError{Root: a.root, Err: a.mapError(err)}
	}

	listing := make(domain.TreeListing)
	onDisk := make(map[domain.RelativePath]string)
	err = afero.Walk(a.fs, a.root, func(path string, info os.FileInfo, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if walkErr != nil {
			if path == a.root {
				return &domain.FilesystemAccessError{Root: a.root, Err: a.mapError(walkErr)}
			}
			// Skip entries we can't read
			logger.Get().Warn("skipping unreadable local entry", "path", path, "error", walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}
		p := pathnorm.Local(rel)
		if p == "" {
			return nil
		}
		listing.Add(p)
		if slashed := filepath.ToSlash(rel); string(p) != slashed {
			onDisk[p] = slashed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.onDisk = onDisk
	a.mu.Unlock()

	return listing, nil
}

// Open opens a file for streamed reading and returns its size.
// Caller is responsible for closing the reader.
func (a *Adapter) Open(ctx context.Context, rel domain.RelativePath) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	fullPath, err := a.resolvePath(a.diskName(rel))
	if err != nil {
		return nil, 0, err
	}

	info, err := a.fs.Stat(fullPath)
	if err != nil {
		return nil, 0, a.mapError(err)
	}
	if info.IsDir() {
		return nil, 0, domain.ErrNotFile
	}

	file, err := a.fs.Open(fullPath)
	if err != nil {
		return nil, 0, a.mapError(err)
	}

	return file, info.Size(), nil
}

// diskName returns the on-disk relative name for a listed path
func (a *Adapter) diskName(rel domain.RelativePath) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if name, ok := a.onDisk[rel]; ok {
		return name
	}
	return string(rel)
}

// resolvePath safely resolves a relative path to absolute path within root
// Returns error if path attempts to escape root directory
func (a *Adapter) resolvePath(relPath string) (string, error) {
	if relPath == "" || relPath == "." {
		return a.root, nil
	}

	relPath = filepath.Clean(filepath.FromSlash(relPath))

	if filepath.IsAbs(relPath) {
		return "", domain.ErrPermissionDenied
	}

	fullPath := filepath.Join(a.root, relPath)

	// filepath.Rel also handles root="C:\root" vs fullPath="C:\root2"
	rel, err := filepath.Rel(a.root, fullPath)
	if err != nil {
		return "", domain.ErrPermissionDenied
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrPermissionDenied
	}

	return fullPath, nil
}

// mapError converts OS errors to domain errors
func (a *Adapter) mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return domain.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return domain.ErrPermissionDenied
	}

	return err
}
