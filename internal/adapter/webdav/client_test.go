package webdav

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/testutil"
)

const accountBase = "/remote.php/dav/files/alice"

func newTestClient(t *testing.T, srv *testutil.DAVServer, root string) *Client {
	t.Helper()

	client, err := NewClient(domain.RemoteEndpoint{
		ServerURL: srv.AccountURL(),
		Username:  srv.Username,
		Password:  srv.Password,
		RootPath:  root,
	}, Options{RequestTimeout: 5 * time.Second, UploadTimeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewClient_RejectsRelativeServerURL(t *testing.T) {
	_, err := NewClient(domain.RemoteEndpoint{ServerURL: "dav.example.com/files"}, Options{})
	assert.Error(t, err)
}

func TestClient_URLs(t *testing.T) {
	client, err := NewClient(domain.RemoteEndpoint{
		ServerURL: "https://dav.example.com/remote.php/dav/files/alice/",
		RootPath:  "/Backup/2024 Photos/",
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "https://dav.example.com/remote.php/dav/files/alice/Backup/2024%20Photos/", client.RootURL())
	assert.Equal(t,
		"https://dav.example.com/remote.php/dav/files/alice/Backup/2024%20Photos/My%20Trip/pic%231.jpg/",
		client.EntryURL("My Trip/pic#1.jpg"))

	bare, err := NewClient(domain.RemoteEndpoint{ServerURL: "https://dav.example.com/dav"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://dav.example.com/dav/", bare.RootURL())
}

func TestProbe(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	client := newTestClient(t, srv, "Backup")

	require.NoError(t, client.Probe(context.Background()))
	assert.Equal(t, []string{"PROPFIND " + accountBase}, srv.Requests())
}

func TestProbe_BadCredentials(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	client := newTestClient(t, srv, "Backup")
	client.endpoint.Password = "wrong"

	err := client.Probe(context.Background())

	var probeErr *domain.AuthenticationOrConnectivityError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, http.StatusUnauthorized, probeErr.StatusCode)
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	serverURL := srv.URL + accountBase
	srv.Close()

	client, err := NewClient(domain.RemoteEndpoint{ServerURL: serverURL}, Options{RequestTimeout: time.Second})
	require.NoError(t, err)

	err = client.Probe(context.Background())

	var probeErr *domain.AuthenticationOrConnectivityError
	require.True(t, errors.As(err, &probeErr))
	assert.Zero(t, probeErr.StatusCode)
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestProbe_NonMultistatusSuccess(t *testing.T) {
	// a plain web server answering 200 is not a WebDAV endpoint
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(domain.RemoteEndpoint{ServerURL: srv.URL}, Options{})
	require.NoError(t, err)

	err = client.Probe(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestList(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	srv.Mkdir("Backup/a")
	srv.Mkdir("Backup/My Trip")
	srv.AddFile("Backup/a/x.txt", []byte("x"))
	srv.AddFile("Backup/My Trip/pic#1.jpg", []byte("jpeg"))
	srv.AddFile("Other/ignored.txt", []byte("o"))

	client := newTestClient(t, srv, "Backup")

	listing, err := client.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.RelativePath{
		"My Trip",
		"My Trip/pic#1.jpg",
		"a",
		"a/x.txt",
	}, listing.Sorted())
}

func TestList_SendsDepthInfinity(t *testing.T) {
	var depth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		depth = r.Header.Get("Depth")
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`<?xml version="1.0"?><d:multistatus xmlns:d="DAV:"></d:multistatus>`))
	}))
	defer srv.Close()

	client, err := NewClient(domain.RemoteEndpoint{ServerURL: srv.URL, RootPath: "Backup"}, Options{})
	require.NoError(t, err)

	listing, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, listing.Len())
	assert.Equal(t, "infinity", depth)
	assert.True(t, strings.HasPrefix(contentType, "application/xml"))
}

func TestList_AbsoluteHrefs(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	srv.AbsoluteHrefs = true
	srv.AddFile("Backup/a/x.txt", []byte("x"))

	client := newTestClient(t, srv, "Backup")

	listing, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RelativePath{"a", "a/x.txt"}, listing.Sorted())
}

func TestList_SkipsMalformedHrefs(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response><d:href>/dav/Backup/</d:href></d:response>
  <d:response><d:href>/dav/Backup/good.txt</d:href></d:response>
  <d:response><d:href>/dav/Backup/bad%zz.txt</d:href></d:response>
  <d:response><d:href>/dav/Elsewhere/x.txt</d:href></d:response>
  <d:response><d:href>/dav/Backup/caf%C3%A9/</d:href></d:response>
</d:multistatus>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	client, err := NewClient(domain.RemoteEndpoint{ServerURL: srv.URL + "/dav", RootPath: "Backup"}, Options{})
	require.NoError(t, err)

	listing, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RelativePath{"café", "good.txt"}, listing.Sorted())
}

func TestList_MissingRoot(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	client := newTestClient(t, srv, "Nope")

	_, err := client.List(context.Background())

	var listErr *domain.RemoteListingError
	require.True(t, errors.As(err, &listErr))
	assert.Equal(t, http.StatusNotFound, listErr.StatusCode)
	assert.ErrorIs(t, err, domain.ErrRemoteListing)
}

func TestList_GarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte("<html>not dav</html>"))
	}))
	defer srv.Close()

	client, err := NewClient(domain.RemoteEndpoint{ServerURL: srv.URL}, Options{})
	require.NoError(t, err)

	_, err = client.List(context.Background())
	assert.ErrorIs(t, err, domain.ErrRemoteListing)
}

func TestMkcol(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	srv.Mkdir("Backup")
	client := newTestClient(t, srv, "Backup")
	ctx := context.Background()

	status, err := client.Mkcol(ctx, "My Trip")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, status)
	assert.True(t, srv.HasDir("Backup/My Trip"))

	status, err = client.Mkcol(ctx, "My Trip")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyExists, status)

	// parent missing
	status, err = client.Mkcol(ctx, "x/y")
	assert.Equal(t, domain.OutcomeFailed, status)

	var mkErr *domain.RemoteCreationFailure
	require.True(t, errors.As(err, &mkErr))
	assert.Equal(t, http.StatusConflict, mkErr.StatusCode)
	assert.Equal(t, domain.RelativePath("x/y"), mkErr.Path)
	assert.ErrorIs(t, err, domain.ErrRemoteCreation)
}

func TestPut(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	srv.Mkdir("Backup/a")
	client := newTestClient(t, srv, "Backup")
	ctx := context.Background()

	require.NoError(t, client.Put(ctx, "a/x.txt", strings.NewReader("hello"), 5))
	got, ok := srv.File("Backup/a/x.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, client.Put(ctx, "a/empty.txt", strings.NewReader(""), 0))
	got, ok = srv.File("Backup/a/empty.txt")
	require.True(t, ok)
	assert.Empty(t, got)

	assert.Contains(t, srv.Requests(), "PUT "+accountBase+"/Backup/a/x.txt")
}

func TestPut_OnlyCreatedIsSuccess(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	srv.AddFile("Backup/a/x.txt", []byte("old"))
	client := newTestClient(t, srv, "Backup")

	// overwriting answers 204
	err := client.Put(context.Background(), "a/x.txt", strings.NewReader("new"), 3)

	var putErr *domain.RemoteUploadFailure
	require.True(t, errors.As(err, &putErr))
	assert.Equal(t, http.StatusNoContent, putErr.StatusCode)
	assert.ErrorIs(t, err, domain.ErrRemoteUpload)
}

func TestPut_ServerError(t *testing.T) {
	srv := testutil.NewDAVServer(t, accountBase)
	srv.Mkdir("Backup")
	srv.FailPath("Backup/big.bin", http.StatusInsufficientStorage)
	client := newTestClient(t, srv, "Backup")

	err := client.Put(context.Background(), "big.bin", strings.NewReader("data"), 4)

	var putErr *domain.RemoteUploadFailure
	require.True(t, errors.As(err, &putErr))
	assert.Equal(t, http.StatusInsufficientStorage, putErr.StatusCode)
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(domain.RemoteEndpoint{ServerURL: srv.URL}, Options{RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	err = client.Probe(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectivity)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
