// Package reconcile computes what a push has to do: the local entries
// the remote tree is missing, split into folders and files.
package reconcile

import (
	"sort"

	"github.com/Ning0612/davpush/internal/domain"
)

// Classifier decides whether an entry is a directory or a file
type Classifier func(domain.RelativePath) domain.EntryKind

// Engine diffs a local listing against a remote listing.
// The local side is authoritative; remote-only entries are ignored.
type Engine struct {
	Classify Classifier
}

// NewEngine creates an engine using domain.Classify
func NewEngine() *Engine {
	return &Engine{Classify: domain.Classify}
}

// Reconcile diffs two listings with the default classifier
func Reconcile(local, remote domain.TreeListing) domain.ReconciliationResult {
	return NewEngine().Reconcile(local, remote)
}

// Reconcile returns local entries absent from remote.
// Both sides are classified with the same rule; an entry is missing only
// when no remote entry of the same kind has the identical path.
// MissingFolders come out shallow first, MissingFiles by path.
func (e *Engine) Reconcile(local, remote domain.TreeListing) domain.ReconciliationResult {
	classify := e.Classify
	if classify == nil {
		classify = domain.Classify
	}

	remoteDirs := make(domain.TreeListing)
	remoteFiles := make(domain.TreeListing)
	for p := range remote {
		if classify(p) == domain.KindDirectory {
			remoteDirs.Add(p)
		} else {
			remoteFiles.Add(p)
		}
	}

	result := domain.ReconciliationResult{
		MissingFolders: make([]domain.RelativePath, 0),
		MissingFiles:   make([]domain.RelativePath, 0),
		LocalCount:     local.Len(),
		RemoteCount:    remote.Len(),
	}

	for p := range local {
		switch classify(p) {
		case domain.KindDirectory:
			if !remoteDirs.Has(p) {
				result.MissingFolders = append(result.MissingFolders, p)
			}
		default:
			if !remoteFiles.Has(p) {
				result.MissingFiles = append(result.MissingFiles, p)
			}
		}
	}

	SortByDepth(result.MissingFolders)
	sort.Slice(result.MissingFiles, func(i, j int) bool {
		return result.MissingFiles[i] < result.MissingFiles[j]
	})

	return result
}

// SortByDepth sorts shallow first, then by path for determinism
func SortByDepth(paths []domain.RelativePath) {
	sort.Slice(paths, func(i, j int) bool {
		di, dj := paths[i].Depth(), paths[j].Depth()
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
}

// GroupByDepth splits depth-sorted paths into consecutive levels
func GroupByDepth(paths []domain.RelativePath) [][]domain.RelativePath {
	var levels [][]domain.RelativePath
	for i := 0; i < len(paths); {
		j := i
		for j < len(paths) && paths[j].Depth() == paths[i].Depth() {
			j++
		}
		levels = append(levels, paths[i:j])
		i = j
	}
	return levels
}
