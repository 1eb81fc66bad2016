package testutil

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// DAVServer is an in-memory WebDAV server covering PROPFIND, MKCOL and PUT.
// Collections and files live under Base, the account path of the server URL.
type DAVServer struct {
	*httptest.Server

	Base     string
	Username string
	Password string

	// AbsoluteHrefs makes PROPFIND answer with scheme://host/... hrefs
	AbsoluteHrefs bool

	// PutDelay slows every PUT down, to observe concurrency
	PutDelay time.Duration

	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	failures map[string]int
	requests []string
	inFlight int
	maxPuts  int
}

// NewDAVServer starts a server whose account root is base, e.g.
// "/remote.php/dav/files/alice". The account root always exists.
func NewDAVServer(t *testing.T, base string) *DAVServer {
	t.Helper()

	s := &DAVServer{
		Base:     "/" + strings.Trim(base, "/"),
		Username: "alice",
		Password: "s3cret",
		dirs:     make(map[string]bool),
		files:    make(map[string][]byte),
		failures: make(map[string]int),
	}
	s.dirs[s.Base] = true
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// AccountURL is the server URL to configure a client with
func (s *DAVServer) AccountURL() string {
	return s.URL + s.Base
}

// Mkdir creates a collection and its parents, relative to Base
func (s *DAVServer) Mkdir(rel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.abs(rel)
	for p != s.Base && p != "/" {
		s.dirs[p] = true
		p = path.Dir(p)
	}
}

// AddFile stores a file relative to Base, creating its parents
func (s *DAVServer) AddFile(rel string, content []byte) {
	if dir := path.Dir(strings.Trim(rel, "/")); dir != "." {
		s.Mkdir(dir)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[s.abs(rel)] = content
}

// FailPath makes any request to rel (relative to Base) answer with status
func (s *DAVServer) FailPath(rel string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[s.abs(rel)] = status
}

// HasDir reports whether a collection exists, relative to Base
func (s *DAVServer) HasDir(rel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[s.abs(rel)]
}

// File returns the stored content of a file, relative to Base
func (s *DAVServer) File(rel string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[s.abs(rel)]
	return b, ok
}

// Requests returns "METHOD /decoded/path" for every request served
func (s *DAVServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts served requests with the given method
func (s *DAVServer) CountRequests(method string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, method+" ") {
			n++
		}
	}
	return n
}

// MaxConcurrentPuts is the highest number of PUTs seen in flight at once
func (s *DAVServer) MaxConcurrentPuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPuts
}

func (s *DAVServer) abs(rel string) string {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return s.Base
	}
	return s.Base + "/" + rel
}

func (s *DAVServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	p := "/" + strings.Trim(r.URL.Path, "/")

	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+p)
	status, failing := s.failures[p]
	s.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != s.Username || pass != s.Password {
		w.Header().Set("WWW-Authenticate", `Basic realm="dav"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if failing {
		io.Copy(io.Discard, r.Body)
		http.Error(w, http.StatusText(status), status)
		return
	}

	switch r.Method {
	case "PROPFIND":
		s.handlePropfind(w, r, p)
	case "MKCOL":
		s.handleMkcol(w, p)
	case http.MethodPut:
		s.handlePut(w, r, p)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *DAVServer) handlePropfind(w http.ResponseWriter, r *http.Request, p string) {
	io.Copy(io.Discard, r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, isFile := s.files[p]
	if !s.dirs[p] && !isFile {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	entries := []string{p}
	if r.Header.Get("Depth") != "0" && s.dirs[p] {
		prefix := p + "/"
		for d := range s.dirs {
			if strings.HasPrefix(d, prefix) {
				entries = append(entries, d)
			}
		}
		for f := range s.files {
			if strings.HasPrefix(f, prefix) {
				entries = append(entries, f)
			}
		}
	}
	sort.Strings(entries)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<d:multistatus xmlns:d="DAV:">` + "\n")
	for _, e := range entries {
		href := escapePath(e)
		if s.dirs[e] {
			href += "/"
		}
		if s.AbsoluteHrefs {
			href = s.URL + href
		}

		buf.WriteString("<d:response><d:href>")
		xml.EscapeText(&buf, []byte(href))
		buf.WriteString("</d:href><d:propstat><d:prop>")
		if s.dirs[e] {
			buf.WriteString("<d:resourcetype><d:collection/></d:resourcetype>")
		} else {
			buf.WriteString("<d:resourcetype/>")
			fmt.Fprintf(&buf, "<d:getcontentlength>%d</d:getcontentlength>", len(s.files[e]))
		}
		buf.WriteString("</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>\n")
	}
	buf.WriteString("</d:multistatus>\n")

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(buf.Bytes())
}

func (s *DAVServer) handleMkcol(w http.ResponseWriter, p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, isFile := s.files[p]; s.dirs[p] || isFile {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.dirs[path.Dir(p)] {
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}
	s.dirs[p] = true
	w.WriteHeader(http.StatusCreated)
}

func (s *DAVServer) handlePut(w http.ResponseWriter, r *http.Request, p string) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxPuts {
		s.maxPuts = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.PutDelay > 0 {
		time.Sleep(s.PutDelay)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirs[p] {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.dirs[path.Dir(p)] {
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}
	_, existed := s.files[p]
	s.files[p] = body
	if existed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
