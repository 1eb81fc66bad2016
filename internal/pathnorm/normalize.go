// Package pathnorm turns local relative paths and WebDAV hrefs into the
// same RelativePath form so the two trees can be compared by plain string
// equality.
package pathnorm

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Ning0612/davpush/internal/domain"
)

var (
	// ErrMalformedHref indicates an href whose percent-encoding is invalid
	ErrMalformedHref = errors.New("malformed href")

	// ErrOutsideRoot indicates an href that does not live under the listed root
	ErrOutsideRoot = errors.New("href outside remote root")
)

// StripPrefix computes the decoded path prefix that every href of a listing
// of remoteRoot carries: the path component of serverURL, a slash, and
// remoteRoot without leading or trailing slashes.
//
// Servers return hrefs relative to the host, not the full URL, so the
// scheme and host are never part of the prefix.
func StripPrefix(serverURL, remoteRoot string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server url %q must be absolute", serverURL)
	}

	base := strings.TrimRight(u.Path, "/")
	root := strings.Trim(toSlash(remoteRoot), "/")
	if root == "" {
		return base, nil
	}
	return base + "/" + root, nil
}

// Normalizer maps raw hrefs of one listing to RelativePaths
type Normalizer struct {
	prefix string
}

// New creates a Normalizer for listings of remoteRoot on serverURL
func New(serverURL, remoteRoot string) (*Normalizer, error) {
	prefix, err := StripPrefix(serverURL, remoteRoot)
	if err != nil {
		return nil, err
	}
	return &Normalizer{prefix: norm.NFC.String(prefix)}, nil
}

// Prefix returns the decoded prefix stripped from every href
func (n *Normalizer) Prefix() string {
	return n.prefix
}

// Normalize converts an href into a RelativePath.
// ok is false for the listed root itself, which callers drop.
func (n *Normalizer) Normalize(href string) (p domain.RelativePath, ok bool, err error) {
	raw := strings.TrimSpace(href)

	// Some servers answer with absolute URLs; only the path matters.
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("%w: %q: %v", ErrMalformedHref, href, err)
		}
		raw = u.EscapedPath()
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %q: %v", ErrMalformedHref, href, err)
	}
	decoded = norm.NFC.String(toSlash(decoded))

	rest, matched := cutPathPrefix(decoded, n.prefix)
	if !matched {
		return "", false, fmt.Errorf("%w: %q does not start with %q", ErrOutsideRoot, decoded, n.prefix)
	}

	rel := clean(rest)
	if rel == "" {
		return "", false, nil
	}
	return rel, true, nil
}

// Local normalizes a path produced by walking the local tree
func Local(rel string) domain.RelativePath {
	if rel == "." {
		return ""
	}
	return clean(filepath.ToSlash(rel))
}

// Escape percent-encodes each segment of p for use in a request URL.
// Unescaping the result with url.PathUnescape yields p again.
func Escape(p domain.RelativePath) string {
	if p == "" {
		return ""
	}
	segments := strings.Split(string(p), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// cutPathPrefix removes prefix from s on a segment boundary
func cutPathPrefix(s, prefix string) (string, bool) {
	if prefix == "" || prefix == "/" {
		return s, true
	}
	if s == prefix {
		return "", true
	}
	if strings.HasPrefix(s, prefix+"/") {
		return s[len(prefix):], true
	}
	// tolerate a missing leading slash on either side
	if strings.TrimLeft(s, "/") == strings.TrimLeft(prefix, "/") {
		return "", true
	}
	if strings.HasPrefix("/"+strings.TrimLeft(s, "/"), "/"+strings.TrimLeft(prefix, "/")+"/") {
		trimmed := "/" + strings.TrimLeft(s, "/")
		return trimmed[len("/"+strings.TrimLeft(prefix, "/")):], true
	}
	return "", false
}

func clean(s string) domain.RelativePath {
	s = strings.Trim(toSlash(s), "/")
	return domain.RelativePath(norm.NFC.String(s))
}

func toSlash(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}
