// Package webdavserver wires the HTTP Basic-auth gate, the
// browser-vs-WebDAV dispatch, and the golang.org/x/net/webdav.Handler
// into the single HTTP handler the WebDAV Front-End exposes (spec §4.D).
package webdavserver

import (
	"net/http"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/webdav"

	"github.com/qkdrive/quarkdrive-webdav/internal/auth"
	"github.com/qkdrive/quarkdrive-webdav/internal/cache"
	"github.com/qkdrive/quarkdrive-webdav/internal/htmlindex"
	"github.com/qkdrive/quarkdrive-webdav/internal/vfs"
)

// Server is the WebDAV Front-End (spec §2 component D).
type Server struct {
	handler     *webdav.Handler
	gate        *auth.Gate
	cache       *cache.Cache
	root        string
	stripPrefix string
	log         *logrus.Logger
}

// New constructs a Server. fs must implement webdav.FileSystem (see
// internal/vfs); gate may be a disabled *auth.Gate ("" user) to mount
// with no authentication. root must match the root the FileSystem was
// constructed with, so the browser-index path (which queries the
// cache directly, bypassing the FileSystem) computes the same cache
// keys as the WebDAV protocol path (spec §4.C "Root handling").
func New(fs webdav.FileSystem, gate *auth.Gate, c *cache.Cache, root, stripPrefix string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{gate: gate, cache: c, root: vfs.NormalizeRoot(root), stripPrefix: stripPrefix, log: log}
	s.handler = &webdav.Handler{
		Prefix:     stripPrefix,
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).WithError(err).Debug("webdavserver: request")
			}
		},
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.gate.Enabled() {
		principal, ok := s.gate.Authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", s.gate.Challenge())
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		s.log.WithField("user", principal).Debug("webdavserver: authenticated")
	}

	if isBrowserRequest(r) && s.serveBrowserIndex(w, r) {
		return
	}

	s.handler.ServeHTTP(w, r)
}

// isBrowserRequest reports whether a request should be treated as a
// browser page view: GET with an Accept header containing text/html
// (spec §4.D "browser detection").
func isBrowserRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// serveBrowserIndex renders the HTML directory index for r, returning
// false (having written nothing) on a cache miss so the caller falls
// through to the WebDAV library, which will produce a 404 (spec §4.D).
func (s *Server) serveBrowserIndex(w http.ResponseWriter, r *http.Request) bool {
	fsPath := s.resolvePath(r.URL.Path)

	listing, ok := s.cache.Ensure(r.Context(), fsPath)
	if !ok {
		return false
	}

	body := htmlindex.Render(r.URL.Path, listing.Files)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
	return true
}

// resolvePath maps a request URL path to the cache/VFS path namespace,
// honoring strip_prefix (spec §6 "-strip-prefix").
func (s *Server) resolvePath(reqPath string) string {
	p := reqPath
	if s.stripPrefix != "" {
		trimmed := strings.TrimSuffix(s.stripPrefix, "/")
		if r := strings.TrimPrefix(p, trimmed); len(r) < len(p) {
			p = r
		}
	}
	if p == "" {
		p = "/"
	} else {
		p = path.Clean(p)
	}
	return vfs.JoinRoot(s.root, p)
}
