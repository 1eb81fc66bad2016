package cli

import (
	"context"
	"errors"

	"github.com/Ning0612/davpush/internal/domain"
)

// Exit codes. A run that finished with per-entry failures exits with
// ExitOK; only fatal errors are non-zero.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitConfig       = 2
	ExitConnectivity = 3
	ExitListing      = 4
	ExitLocalFS      = 5
	ExitLocked       = 6
	ExitInterrupted  = 130
)

// ExitCode maps an error returned by a command to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, domain.ErrConfigNotFound), errors.Is(err, domain.ErrConfigInvalid):
		return ExitConfig
	case errors.Is(err, domain.ErrConnectivity):
		return ExitConnectivity
	case errors.Is(err, domain.ErrRemoteListing):
		return ExitListing
	case errors.Is(err, domain.ErrFilesystemAccess):
		return ExitLocalFS
	case errors.Is(err, domain.ErrRunInProgress):
		return ExitLocked
	default:
		return ExitError
	}
}
