// Package webdav is the remote side of a push: it lists, creates
// collections in, and uploads files to a WebDAV tree over HTTP Basic auth.
package webdav

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/logger"
	"github.com/Ning0612/davpush/internal/pathnorm"
)

const (
	MethodPropfind = "PROPFIND"
	MethodMkcol    = "MKCOL"

	DepthZero     = "0"
	DepthInfinity = "infinity"

	// DefaultRequestTimeout bounds probe, listing and MKCOL requests
	DefaultRequestTimeout = 60 * time.Second

	// DefaultUploadTimeout bounds a single PUT, body included
	DefaultUploadTimeout = 30 * time.Minute
)

// Options tunes the HTTP behavior of a Client
type Options struct {
	// RequestTimeout applies to each PROPFIND and MKCOL
	RequestTimeout time.Duration

	// UploadTimeout applies to each PUT
	UploadTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate checks
	InsecureSkipVerify bool

	// UserAgent is sent with every request
	UserAgent string

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// Client talks to one RemoteEndpoint
type Client struct {
	endpoint   domain.RemoteEndpoint
	http       *http.Client
	opts       Options
	normalizer *pathnorm.Normalizer
	rootURL    string
}

// NewClient creates a client for the endpoint
func NewClient(endpoint domain.RemoteEndpoint, opts Options) (*Client, error) {
	normalizer, err := pathnorm.New(endpoint.ServerURL, endpoint.RootPath)
	if err != nil {
		return nil, err
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		endpoint:   endpoint,
		http:       httpClient,
		opts:       opts,
		normalizer: normalizer,
		rootURL:    buildRootURL(endpoint.ServerURL, endpoint.RootPath),
	}, nil
}

// RootURL returns <base-url>/<remote-root>/
func (c *Client) RootURL() string {
	return c.rootURL
}

// EntryURL returns <base-url>/<remote-root>/<entry>/
func (c *Client) EntryURL(p domain.RelativePath) string {
	return c.rootURL + pathnorm.Escape(p) + "/"
}

// Probe issues a depth-0 PROPFIND against the account root.
// Anything but 207 Multi-Status is an AuthenticationOrConnectivityError.
func (c *Client) Probe(ctx context.Context) error {
	target := c.endpoint.ServerURL

	resp, err := c.propfind(ctx, target, DepthZero)
	if err != nil {
		return &domain.AuthenticationOrConnectivityError{URL: target, Err: err}
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusMultiStatus {
		return &domain.AuthenticationOrConnectivityError{URL: target, StatusCode: resp.StatusCode}
	}

	logger.Get().Debug("connectivity check passed", "url", target)
	return nil
}

// List issues one depth-infinity PROPFIND on the remote root and returns
// every descendant as a RelativePath. Hrefs that fail normalization are
// logged and skipped.
func (c *Client) List(ctx context.Context) (domain.TreeListing, error) {
	resp, err := c.propfind(ctx, c.rootURL, DepthInfinity)
	if err != nil {
		return nil, &domain.RemoteListingError{URL: c.rootURL, Err: err}
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, &domain.RemoteListingError{URL: c.rootURL, StatusCode: resp.StatusCode}
	}

	var ms Multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, &domain.RemoteListingError{URL: c.rootURL, Err: fmt.Errorf("decode multistatus: %w", err)}
	}

	log := logger.Get()
	listing := make(domain.TreeListing, len(ms.Responses))
	skipped := 0
	for _, r := range ms.Responses {
		p, ok, err := c.normalizer.Normalize(r.Href)
		if err != nil {
			skipped++
			log.Warn("skipping remote entry", "href", r.Href, "error", err)
			continue
		}
		if !ok {
			continue
		}

		if isDir := domain.Classify(p) == domain.KindDirectory; isDir != r.IsCollection() {
			log.Debug("entry kind differs from server resource type",
				"path", p,
				"classified", domain.Classify(p),
				"collection", r.IsCollection(),
			)
		}
		listing.Add(p)
	}

	log.Debug("remote listing parsed",
		"url", c.rootURL,
		"responses", len(ms.Responses),
		"entries", listing.Len(),
		"skipped", skipped,
	)
	return listing, nil
}

// Mkcol creates one collection. 201 means created, 405 means it already
// exists; anything else is a RemoteCreationFailure.
func (c *Client) Mkcol(ctx context.Context, p domain.RelativePath) (domain.OutcomeStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, MethodMkcol, c.EntryURL(p), nil)
	if err != nil {
		return domain.OutcomeFailed, &domain.RemoteCreationFailure{Path: p, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.OutcomeFailed, &domain.RemoteCreationFailure{Path: p, Err: err}
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusCreated:
		return domain.OutcomeCreated, nil
	case http.StatusMethodNotAllowed:
		return domain.OutcomeAlreadyExists, nil
	default:
		return domain.OutcomeFailed, &domain.RemoteCreationFailure{Path: p, StatusCode: resp.StatusCode}
	}
}

// Put streams body to the entry URL. Only 201 Created is success.
func (c *Client) Put(ctx context.Context, p domain.RelativePath, body io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.UploadTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPut, c.EntryURL(p), body)
	if err != nil {
		return &domain.RemoteUploadFailure{Path: p, Err: err}
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.RemoteUploadFailure{Path: p, Err: err}
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated {
		return &domain.RemoteUploadFailure{Path: p, StatusCode: resp.StatusCode}
	}
	return nil
}

// propfind sends a PROPFIND and returns the open response.
// The request timeout covers reading the body as well.
func (c *Client) propfind(ctx context.Context, target, depth string) (*http.Response, error) {
	body, err := propfindBody()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)

	req, err := c.newRequest(ctx, MethodPropfind, target, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Depth", depth)
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.endpoint.Username, c.endpoint.Password)
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return req, nil
}

// buildRootURL joins the server URL and the escaped remote root,
// always ending in a slash
func buildRootURL(serverURL, rootPath string) string {
	base := strings.TrimRight(serverURL, "/")
	root := strings.Trim(strings.ReplaceAll(rootPath, "\\", "/"), "/")
	if root == "" {
		return base + "/"
	}
	return base + "/" + pathnorm.Escape(domain.RelativePath(root)) + "/"
}

// drain reads what is left of the body so the connection can be reused
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
