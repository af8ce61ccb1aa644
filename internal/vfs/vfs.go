// Package vfs adapts the Directory Cache and Drive Client into a
// golang.org/x/net/webdav.FileSystem (spec §4.C): a view of the remote
// drive, addressed by absolute path instead of fid, that serves file
// content read-only and supports namespace mutations (mkdir, remove,
// rename/move).
package vfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/webdav"

	"github.com/qkdrive/quarkdrive-webdav/internal/cache"
	"github.com/qkdrive/quarkdrive-webdav/internal/drive"
)

// writeFlags is every os.OpenFile flag that implies a mutation. Any
// OpenFile call carrying one of these is rejected outright: file
// content is never written through this mount (spec §9 "writes").
const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_APPEND | os.O_CREATE | os.O_TRUNC | os.O_EXCL

// FileSystem implements webdav.FileSystem over a drive.Client fronted
// by a cache.Cache. It never talks to the Drive Client for directory
// listings directly: every listing passes through the cache (spec §3).
// Only content write/upload is out of scope (spec §9); namespace
// mutations (mkdir, remove, rename/move) are implemented (spec §4.C).
type FileSystem struct {
	drive *drive.Client
	cache *cache.Cache
	root  string
	log   *logrus.Logger
}

var _ webdav.FileSystem = (*FileSystem)(nil)

// New constructs a FileSystem. root is the configured mount root
// (spec §4.C "Root handling", §6 "-root"); "" and "/" both mean no
// offset.
func New(client *drive.Client, c *cache.Cache, root string, log *logrus.Logger) *FileSystem {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileSystem{drive: client, cache: c, root: NormalizeRoot(root), log: log}
}

func notFound(op, name string) error {
	return &drive.Error{Kind: drive.KindNotFound, Op: op, Message: fmt.Sprintf("no such file or directory: %s", name)}
}

func readOnly(op string) error {
	return &drive.Error{Kind: drive.KindBadRequest, Op: op, Message: "this mount is read-only", Err: os.ErrPermission}
}

func clean(name string) string {
	p := path.Clean("/" + name)
	if p == "" {
		p = "/"
	}
	return p
}

// NormalizeRoot cleans a configured root path to its canonical form:
// "" for a root that is "" or "/" (no offset), otherwise a clean
// absolute path with no trailing slash.
func NormalizeRoot(root string) string {
	if root == "" {
		return ""
	}
	cleaned := path.Clean(root)
	if cleaned == "/" || cleaned == "." {
		return ""
	}
	return cleaned
}

// JoinRoot prepends a normalized root (see NormalizeRoot) to a request
// path, producing the absolute path used for cache keys and FileSystem
// resolution (spec §4.C "Root handling": "the configured root is
// prepended when it is not '/'").
func JoinRoot(root, name string) string {
	p := clean(name)
	if root == "" {
		return p
	}
	if p == "/" {
		return root
	}
	return root + p
}

func (f *FileSystem) fsPath(name string) string {
	return JoinRoot(f.root, name)
}

// resolve looks up the record at name, honoring the configured root.
func (f *FileSystem) resolve(ctx context.Context, name string) (drive.FileRecord, error) {
	return f.resolveClean(ctx, f.fsPath(name))
}

// resolveClean looks up the record at p, an already root-joined,
// cleaned absolute path.
func (f *FileSystem) resolveClean(ctx context.Context, p string) (drive.FileRecord, error) {
	if p == "/" {
		return drive.NewRootRecord(), nil
	}

	parentPath := path.Dir(p)
	listing, ok := f.cache.Ensure(ctx, parentPath)
	if !ok {
		return drive.FileRecord{}, notFound("stat", p)
	}

	base := path.Base(p)
	for _, rec := range listing.Files {
		if rec.Name == base {
			return rec, nil
		}
	}
	return drive.FileRecord{}, notFound("stat", p)
}

// Stat implements webdav.FileSystem.
func (f *FileSystem) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	rec, err := f.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return fileInfo{rec}, nil
}

// OpenFile implements webdav.FileSystem. Only read-only opens succeed
// (spec §9: content write/upload is out of scope).
func (f *FileSystem) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&writeFlags != 0 {
		return nil, readOnly("open")
	}

	p := f.fsPath(name)
	rec, err := f.resolveClean(ctx, p)
	if err != nil {
		return nil, err
	}

	if rec.IsDir {
		listing, ok := f.cache.Ensure(ctx, p)
		if !ok {
			return nil, notFound("open", p)
		}
		return &directoryFile{record: rec, children: listing.Files}, nil
	}

	urls, err := f.drive.ResolveDownloadURLs(ctx, []string{rec.FID})
	if err != nil {
		return nil, err
	}
	downloadURL, ok := urls[rec.FID]
	if !ok {
		return nil, notFound("open", p)
	}

	return &remoteFile{drive: f.drive, ctx: ctx, record: rec, downloadURL: downloadURL}, nil
}

// Mkdir implements webdav.FileSystem: create_dir (spec §4.C) — calls
// drive.Mkdir under the parent's fid, then invalidates the parent's
// cached listing so the next lookup sees the new entry.
func (f *FileSystem) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	p := f.fsPath(name)
	if p == "/" {
		return readOnly("mkdir")
	}

	parentRec, err := f.resolveClean(ctx, path.Dir(p))
	if err != nil {
		return err
	}
	if !parentRec.IsDir {
		return notFound("mkdir", p)
	}

	if _, err := f.drive.Mkdir(ctx, parentRec.FID, path.Base(p)); err != nil {
		return err
	}

	f.cache.InvalidateParentOf(p)
	return nil
}

// RemoveAll implements webdav.FileSystem: remove (spec §4.C) — calls
// drive.Delete on the target's fid, then invalidates the parent's
// cached listing.
func (f *FileSystem) RemoveAll(ctx context.Context, name string) error {
	p := f.fsPath(name)
	if p == "/" {
		return readOnly("remove_all")
	}

	rec, err := f.resolveClean(ctx, p)
	if err != nil {
		return err
	}

	if err := f.drive.Delete(ctx, rec.FID); err != nil {
		return err
	}

	f.cache.InvalidateParentOf(p)
	return nil
}

// Rename implements webdav.FileSystem: rename/move (spec §4.C) — a
// same-parent rename calls drive.Rename, a cross-parent move calls
// drive.MoveTo, and a rename-and-move does both; either way both the
// old and new parent's cached listings are invalidated afterward (spec
// §8 scenario 5).
func (f *FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	oldPath := f.fsPath(oldName)
	newPath := f.fsPath(newName)
	if oldPath == "/" {
		return readOnly("rename")
	}

	rec, err := f.resolveClean(ctx, oldPath)
	if err != nil {
		return err
	}

	oldParent := path.Dir(oldPath)
	newParent := path.Dir(newPath)
	oldBase := path.Base(oldPath)
	newBase := path.Base(newPath)

	if oldParent != newParent {
		newParentRec, err := f.resolveClean(ctx, newParent)
		if err != nil {
			return err
		}
		if !newParentRec.IsDir {
			return notFound("rename", newParent)
		}
		if err := f.drive.MoveTo(ctx, rec.FID, newParentRec.FID); err != nil {
			return err
		}
	}

	if oldBase != newBase {
		if err := f.drive.Rename(ctx, rec.FID, newBase); err != nil {
			return err
		}
	}

	f.cache.InvalidateParentOf(oldPath)
	f.cache.InvalidateParentOf(newPath)
	return nil
}

// fileInfo adapts a drive.FileRecord to fs.FileInfo.
type fileInfo struct {
	rec drive.FileRecord
}

func (fi fileInfo) Name() string {
	if fi.rec.FID == drive.RootFID {
		return "/"
	}
	return fi.rec.Name
}

func (fi fileInfo) Size() int64 { return int64(fi.rec.Size) }

func (fi fileInfo) Mode() fs.FileMode {
	if fi.rec.IsDir {
		return fs.ModeDir | 0555
	}
	return 0444
}

func (fi fileInfo) ModTime() time.Time { return fi.rec.ModTime() }
func (fi fileInfo) IsDir() bool        { return fi.rec.IsDir }
func (fi fileInfo) Sys() any           { return fi.rec }

// directoryFile is the webdav.File returned for directories. Its Read
// and Seek are unreachable in practice (the WebDAV Front-End never
// calls them on a collection resource) but must exist to satisfy the
// interface.
type directoryFile struct {
	record   drive.FileRecord
	children []drive.FileRecord
	pos      int
}

func (d *directoryFile) Close() error { return nil }

func (d *directoryFile) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("vfs: %s is a directory", d.record.Name)
}

func (d *directoryFile) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("vfs: %s is a directory", d.record.Name)
}

func (d *directoryFile) Write(p []byte) (int, error) { return 0, os.ErrPermission }

func (d *directoryFile) Stat() (fs.FileInfo, error) { return fileInfo{d.record}, nil }

func (d *directoryFile) Readdir(count int) ([]fs.FileInfo, error) {
	if d.pos >= len(d.children) && count > 0 {
		return nil, io.EOF
	}

	end := len(d.children)
	if count > 0 && d.pos+count < end {
		end = d.pos + count
	}

	infos := make([]fs.FileInfo, 0, end-d.pos)
	for ; d.pos < end; d.pos++ {
		infos = append(infos, fileInfo{d.children[d.pos]})
	}
	return infos, nil
}

// remoteFile is the webdav.File returned for a regular file. It opens
// a ranged download lazily on first Read and re-opens it whenever Seek
// moves the offset, so sequential reads (the common WebDAV GET case)
// never pay for more than one HTTP round trip.
type remoteFile struct {
	drive       *drive.Client
	ctx         context.Context
	record      drive.FileRecord
	downloadURL string

	mu         sync.Mutex
	offset     int64
	body       io.ReadCloser
	reresolved bool
}

// openAt opens a ranged download at the current offset, re-resolving
// the download URL once on a non-2xx response from the CDN before
// giving up (spec §4.C "open_read": "on any non-2xx from the CDN,
// re-resolve once").
func (r *remoteFile) openAt(offset int64) (io.ReadCloser, error) {
	body, err := r.drive.Download(r.ctx, r.downloadURL, offset, -1)
	if err == nil {
		return body, nil
	}
	if r.reresolved {
		return nil, err
	}

	urls, rerr := r.drive.ResolveDownloadURLs(r.ctx, []string{r.record.FID})
	if rerr != nil {
		return nil, err
	}
	fresh, ok := urls[r.record.FID]
	if !ok {
		return nil, err
	}

	r.reresolved = true
	r.downloadURL = fresh
	return r.drive.Download(r.ctx, r.downloadURL, offset, -1)
}

func (r *remoteFile) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.body == nil {
		body, err := r.openAt(r.offset)
		if err != nil {
			return 0, err
		}
		r.body = body
	}

	n, err := r.body.Read(p)
	r.offset += int64(n)
	return n, err
}

func (r *remoteFile) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.offset + offset
	case io.SeekEnd:
		next = int64(r.record.Size) + offset
	default:
		return 0, fmt.Errorf("vfs: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("vfs: negative seek position")
	}

	if next != r.offset && r.body != nil {
		r.body.Close()
		r.body = nil
	}
	r.offset = next
	return r.offset, nil
}

func (r *remoteFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

func (r *remoteFile) Write(p []byte) (int, error) { return 0, os.ErrPermission }

func (r *remoteFile) Stat() (fs.FileInfo, error) { return fileInfo{r.record}, nil }

func (r *remoteFile) Readdir(count int) ([]fs.FileInfo, error) {
	return nil, fmt.Errorf("vfs: %s is not a directory", r.record.Name)
}
