package adapter

import (
	"context"
	"io"

	"github.com/Ning0612/davpush/internal/domain"
)

// LocalTree is the source side of a push.
// Implementations never modify the tree.
type LocalTree interface {
	// Scan lists every directory and file beneath the root, recursively,
	// as RelativePaths. The root itself is not listed.
	// Returns *domain.FilesystemAccessError if the root is missing or unreadable
	Scan(ctx context.Context) (domain.TreeListing, error)

	// Open opens a file for streaming and returns its size
	// Caller is responsible for closing the reader
	// Returns domain.ErrNotFound if the file is gone
	// Returns domain.ErrNotFile if path is a directory
	Open(ctx context.Context, p domain.RelativePath) (io.ReadCloser, int64, error)

	// Root returns the absolute local root
	Root() string
}

// RemoteTree is the destination side of a push
type RemoteTree interface {
	// Probe checks that the server answers and accepts the credentials
	// Returns *domain.AuthenticationOrConnectivityError on failure
	Probe(ctx context.Context) error

	// List returns every entry beneath the remote root, recursively
	// Returns *domain.RemoteListingError on failure
	List(ctx context.Context) (domain.TreeListing, error)

	// Mkcol creates one collection; an existing one is not an error
	// Returns *domain.RemoteCreationFailure on failure
	Mkcol(ctx context.Context, p domain.RelativePath) (domain.OutcomeStatus, error)

	// Put uploads one file body of the given size
	// Returns *domain.RemoteUploadFailure on failure
	Put(ctx context.Context, p domain.RelativePath, body io.Reader, size int64) error

	// RootURL returns the URL of the remote root collection
	RootURL() string
}
