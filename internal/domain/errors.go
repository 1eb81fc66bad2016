package domain

import (
	"errors"
	"fmt"
)

// Run phase errors - fatal, abort the whole run
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed or incomplete
	ErrConfigInvalid = errors.New("invalid config")

	// ErrConnectivity indicates the connectivity/authentication probe failed
	ErrConnectivity = errors.New("remote connectivity check failed")

	// ErrRemoteListing indicates the recursive remote listing failed
	ErrRemoteListing = errors.New("remote listing failed")

	// ErrFilesystemAccess indicates the local root could not be read
	ErrFilesystemAccess = errors.New("local filesystem access failed")

	// ErrRunInProgress indicates another run holds the lock
	ErrRunInProgress = errors.New("another run is already in progress")
)

// Entry errors - isolated to one folder or file, the batch continues
var (
	// ErrRemoteCreation indicates a single MKCOL failed
	ErrRemoteCreation = errors.New("remote folder creation failed")

	// ErrRemoteUpload indicates a single PUT failed
	ErrRemoteUpload = errors.New("remote upload failed")

	// ErrNotFound indicates the requested local resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")
)

// Phase names the stage of a run that produced a fatal error.
type Phase string

const (
	PhaseConfig  Phase = "config"
	PhaseProbe   Phase = "connectivity"
	PhaseRemote  Phase = "remote-scan"
	PhaseLocal   Phase = "local-scan"
	PhaseFolders Phase = "create-folders"
	PhaseUpload  Phase = "upload"
)

// ConfigurationError reports a missing or malformed configuration.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AuthenticationOrConnectivityError reports a failed depth-0 probe.
// StatusCode is zero when the request never produced a response.
type AuthenticationOrConnectivityError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *AuthenticationOrConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connectivity check %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("connectivity check %s: %v", e.URL, e.Err)
}

func (e *AuthenticationOrConnectivityError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConnectivity, e.Err}
	}
	return []error{ErrConnectivity}
}

// RemoteListingError reports a non-multistatus answer to the recursive listing.
type RemoteListingError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RemoteListingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote listing %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("remote listing %s: %v", e.URL, e.Err)
}

func (e *RemoteListingError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRemoteListing, e.Err}
	}
	return []error{ErrRemoteListing}
}

// FilesystemAccessError reports that the local root is missing or unreadable.
type FilesystemAccessError struct {
	Root string
	Err  error
}

func (e *FilesystemAccessError) Error() string {
	return fmt.Sprintf("local root %q: %v", e.Root, e.Err)
}

func (e *FilesystemAccessError) Unwrap() []error {
	return []error{ErrFilesystemAccess, e.Err}
}

// RemoteCreationFailure is a per-folder MKCOL failure.
type RemoteCreationFailure struct {
	Path       RelativePath
	StatusCode int
	Err        error
}

func (e *RemoteCreationFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("create folder %s: HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("create folder %s: %v", e.Path, e.Err)
}

func (e *RemoteCreationFailure) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRemoteCreation, e.Err}
	}
	return []error{ErrRemoteCreation}
}

// RemoteUploadFailure is a per-file PUT failure, including local read errors.
type RemoteUploadFailure struct {
	Path       RelativePath
	StatusCode int
	Err        error
}

func (e *RemoteUploadFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s: HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *RemoteUploadFailure) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRemoteUpload, e.Err}
	}
	return []error{ErrRemoteUpload}
}

// PhaseError tags a fatal error with the phase that produced it.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
