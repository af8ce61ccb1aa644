package webdavserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"

	"github.com/qkdrive/quarkdrive-webdav/internal/auth"
	"github.com/qkdrive/quarkdrive-webdav/internal/cache"
	"github.com/qkdrive/quarkdrive-webdav/internal/drive"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type fakeLister struct {
	children map[string][]drive.FileRecord
}

func (f *fakeLister) ListAll(ctx context.Context, parentFID string) (drive.Listing, bool, error) {
	return drive.Listing{Files: f.children[parentFID]}, false, nil
}

// stubFS is a minimal webdav.FileSystem for PROPFIND-path tests; it
// only needs to support Stat on root well enough to avoid panicking.
type stubFS struct{}

func (stubFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error { return os.ErrPermission }
func (stubFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	return nil, os.ErrNotExist
}
func (stubFS) RemoveAll(ctx context.Context, name string) error           { return os.ErrPermission }
func (stubFS) Rename(ctx context.Context, oldName, newName string) error { return os.ErrPermission }
func (stubFS) Stat(ctx context.Context, name string) (os.FileInfo, error) { return nil, os.ErrNotExist }

func newTestServer(t *testing.T, gate *auth.Gate, children map[string][]drive.FileRecord) *Server {
	t.Helper()
	lister := &fakeLister{children: children}
	c := cache.New(64, time.Minute, lister, quietLogger())
	return New(stubFS{}, gate, c, "", "", quietLogger())
}

func TestUnauthenticatedRequestGets401(t *testing.T) {
	gate := auth.NewGate("alice", "secret")
	srv := newTestServer(t, gate, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="quarkdrive-webdav"`)
}

func TestAuthenticatedBrowserRequestGetsHTML(t *testing.T) {
	gate := auth.NewGate("alice", "secret")
	children := map[string][]drive.FileRecord{
		drive.RootFID: {{FID: "a", Name: "notes.txt", IsFile: true}},
	}
	srv := newTestServer(t, gate, children)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "secret")
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "notes.txt")
}

func TestNoAuthConfiguredAllowsRequestThrough(t *testing.T) {
	gate := auth.NewGate("", "")
	children := map[string][]drive.FileRecord{drive.RootFID: {}}
	srv := newTestServer(t, gate, children)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPropfindBypassesBrowserRenderer(t *testing.T) {
	gate := auth.NewGate("", "")
	children := map[string][]drive.FileRecord{drive.RootFID: {}}
	srv := newTestServer(t, gate, children)

	req := httptest.NewRequest("PROPFIND", "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	// The stub filesystem reports everything as not found; what matters
	// here is that we reached the webdav.Handler rather than the HTML
	// renderer (no text/html content type).
	assert.NotContains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestResolvePathStripsPrefix(t *testing.T) {
	gate := auth.NewGate("", "")
	c := cache.New(8, time.Minute, &fakeLister{}, quietLogger())
	srv := New(stubFS{}, gate, c, "", "/dav", quietLogger())

	assert.Equal(t, "/photos", srv.resolvePath("/dav/photos"))
	assert.Equal(t, "/", srv.resolvePath("/dav"))
}

func TestResolvePathAppliesRoot(t *testing.T) {
	gate := auth.NewGate("", "")
	c := cache.New(8, time.Minute, &fakeLister{}, quietLogger())
	srv := New(stubFS{}, gate, c, "/remote", "/dav", quietLogger())

	assert.Equal(t, "/remote/photos", srv.resolvePath("/dav/photos"))
	assert.Equal(t, "/remote", srv.resolvePath("/dav"))
}
