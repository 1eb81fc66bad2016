package domain

import "time"

// RemoteEndpoint identifies the WebDAV tree being pushed to.
// It is built once from configuration and shared read-only.
type RemoteEndpoint struct {
	// ServerURL is the account base URL, e.g. https://host/remote.php/dav/files/alice
	ServerURL string

	// Username and Password are sent as HTTP Basic credentials
	Username string
	Password string

	// RootPath is the remote directory, relative to ServerURL
	RootPath string
}

// ReconciliationResult holds what is present locally but absent remotely
type ReconciliationResult struct {
	// MissingFolders are directory-kind entries, sorted shallow to deep
	MissingFolders []RelativePath

	// MissingFiles are file-kind entries, sorted by path
	MissingFiles []RelativePath

	// LocalCount and RemoteCount are the sizes of the compared listings
	LocalCount  int
	RemoteCount int
}

// OutcomeStatus is the result of applying a single entry
type OutcomeStatus string

const (
	OutcomeCreated       OutcomeStatus = "created"
	OutcomeAlreadyExists OutcomeStatus = "exists"
	OutcomeUploaded      OutcomeStatus = "uploaded"
	OutcomeFailed        OutcomeStatus = "failed"
)

// EntryOutcome records what happened to one missing entry
type EntryOutcome struct {
	Path   RelativePath
	Status OutcomeStatus
	Bytes  int64
	Err    error
}

// Succeeded reports whether the entry ended in a good state
func (o EntryOutcome) Succeeded() bool {
	return o.Status != OutcomeFailed
}

// RunStatus summarizes a whole run
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunReport is the final report of a push run
type RunReport struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	Result ReconciliationResult

	Folders []EntryOutcome
	Files   []EntryOutcome

	// Err is the fatal error, if the run aborted
	Err   error
	Phase Phase
}

// FoldersCreated counts folders that were created or already existed
func (r *RunReport) FoldersCreated() int {
	return countSucceeded(r.Folders)
}

// FilesUploaded counts files that were uploaded
func (r *RunReport) FilesUploaded() int {
	return countSucceeded(r.Files)
}

// BytesUploaded sums the bytes of successful uploads
func (r *RunReport) BytesUploaded() int64 {
	var n int64
	for _, o := range r.Files {
		if o.Succeeded() {
			n += o.Bytes
		}
	}
	return n
}

// Failures returns every failed folder and file outcome
func (r *RunReport) Failures() []EntryOutcome {
	var out []EntryOutcome
	for _, o := range r.Folders {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	for _, o := range r.Files {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Status derives the run status from the fatal error and per-entry failures
func (r *RunReport) Status() RunStatus {
	if r.Err != nil {
		return RunFailed
	}
	if len(r.Failures()) > 0 {
		return RunPartial
	}
	return RunSuccess
}

func countSucceeded(outcomes []EntryOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}
