package domain

import (
	"sort"
	"strings"
)

// RelativePath is a forward-slash separated, percent-decoded path relative
// to a sync root, with no leading or trailing slash.
// It is the comparison key between the local and the remote tree.
type RelativePath string

// String returns the path as a plain string
func (p RelativePath) String() string {
	return string(p)
}

// Depth returns the number of segments in the path ("a" is 1, "a/b" is 2)
func (p RelativePath) Depth() int {
	if p == "" {
		return 0
	}
	return strings.Count(string(p), "/") + 1
}

// Base returns the final path segment
func (p RelativePath) Base() string {
	s := string(p)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Parent returns the parent path, or "" for top-level entries
func (p RelativePath) Parent() RelativePath {
	s := string(p)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return RelativePath(s[:i])
	}
	return ""
}

// EntryKind tags an entry as a directory or a file
type EntryKind int

const (
	KindDirectory EntryKind = iota
	KindFile
)

// String returns the string representation of the kind
func (k EntryKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Classify derives the kind of an entry from its path alone.
// An entry is a file iff its final segment contains a '.'.
// This misclassifies extension-less files as directories and dotted
// directory names as files; both trees go through the same rule.
func Classify(p RelativePath) EntryKind {
	if strings.Contains(p.Base(), ".") {
		return KindFile
	}
	return KindDirectory
}

// TreeListing is the unordered set of entries beneath one root
type TreeListing map[RelativePath]struct{}

// NewTreeListing builds a listing from the given paths
func NewTreeListing(paths ...RelativePath) TreeListing {
	t := make(TreeListing, len(paths))
	for _, p := range paths {
		t.Add(p)
	}
	return t
}

// Add inserts a path; empty paths are ignored
func (t TreeListing) Add(p RelativePath) {
	if p == "" {
		return
	}
	t[p] = struct{}{}
}

// Has reports whether the path is in the listing
func (t TreeListing) Has(p RelativePath) bool {
	_, ok := t[p]
	return ok
}

// Len returns the number of entries
func (t TreeListing) Len() int {
	return len(t)
}

// Sorted returns the entries in lexical order
func (t TreeListing) Sorted() []RelativePath {
	out := make([]RelativePath, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
