package vfs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qkdrive/quarkdrive-webdav/internal/cache"
	"github.com/qkdrive/quarkdrive-webdav/internal/drive"
)

type fakeLister struct {
	children map[string][]drive.FileRecord
}

func (f *fakeLister) ListAll(ctx context.Context, parentFID string) (drive.Listing, bool, error) {
	return drive.Listing{Files: f.children[parentFID]}, false, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func dir(fid, name string) drive.FileRecord {
	return drive.FileRecord{FID: fid, Name: name, IsDir: true}
}

func file(fid, name string, size uint64) drive.FileRecord {
	return drive.FileRecord{FID: fid, Name: name, IsFile: true, Size: size}
}

func newTestFS(t *testing.T, driveSrv *httptest.Server, children map[string][]drive.FileRecord) *FileSystem {
	t.Helper()
	lister := &fakeLister{children: children}
	c := cache.New(64, time.Minute, lister, quietLogger())

	url := ""
	if driveSrv != nil {
		url = driveSrv.URL
	}
	client := drive.New(url, "session=test", quietLogger())

	return New(client, c, "", quietLogger())
}

func TestStatRoot(t *testing.T) {
	fs := newTestFS(t, nil, nil)
	info, err := fs.Stat(context.Background(), "/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "/", info.Name())
}

func TestStatNestedFile(t *testing.T) {
	children := map[string][]drive.FileRecord{
		drive.RootFID: {dir("a", "photos")},
		"a":           {file("b", "trip.jpg", 2048)},
	}
	fs := newTestFS(t, nil, children)

	info, err := fs.Stat(context.Background(), "/photos/trip.jpg")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.EqualValues(t, 2048, info.Size())
}

func TestStatMissingReturnsNotFoundError(t *testing.T) {
	fs := newTestFS(t, nil, map[string][]drive.FileRecord{drive.RootFID: {}})
	_, err := fs.Stat(context.Background(), "/nope")
	require.Error(t, err)

	var de *drive.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, drive.KindNotFound, de.Kind)
}

func TestOpenFileRejectsWrites(t *testing.T) {
	fs := newTestFS(t, nil, nil)
	_, err := fs.OpenFile(context.Background(), "/new.txt", 0, 0)
	// flag 0 is O_RDONLY so this one should not be rejected for being a
	// write; it fails instead because the file does not exist.
	require.Error(t, err)

	_, err = fs.OpenFile(context.Background(), "/new.txt", writeFlags, 0644)
	require.Error(t, err)
	var de *drive.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, drive.KindBadRequest, de.Kind)
}

func TestOpenFileDirectoryReturnsReaddir(t *testing.T) {
	children := map[string][]drive.FileRecord{
		drive.RootFID: {dir("a", "photos")},
		"a":           {file("b", "trip.jpg", 10), file("c", "beach.jpg", 20)},
	}
	fs := newTestFS(t, nil, children)

	f, err := fs.OpenFile(context.Background(), "/photos", 0, 0)
	require.NoError(t, err)
	defer f.Close()

	infos, err := f.Readdir(-1)
	require.NoError(t, err)
	require.Len(t, infos, 2)
}

func TestOpenFileStreamsRemoteContent(t *testing.T) {
	const payload = "hello world"

	var apiURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/1/clouddrive/file/download", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"status": 200, "code": 0, "message": "OK", "timestamp": 0,
			"data":     []map[string]string{{"fid": "b", "download_url": apiURL + "/raw"}},
			"metadata": map[string]int{},
		})
		w.Write(raw)
	})
	mux.HandleFunc("/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	apiURL = srv.URL

	children := map[string][]drive.FileRecord{
		drive.RootFID: {file("b", "hello.txt", uint64(len(payload)))},
	}

	lister := &fakeLister{children: children}
	c := cache.New(64, time.Minute, lister, quietLogger())
	client := drive.New(srv.URL, "session=test", quietLogger())
	fs := New(client, c, "", quietLogger())

	f, err := fs.OpenFile(context.Background(), "/hello.txt", 0, 0)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestOpenFileReresolvesOnceOnCDNFailure(t *testing.T) {
	const payload = "hello again"

	var apiURL string
	var staleHits, freshHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/1/clouddrive/file/download", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"status": 200, "code": 0, "message": "OK", "timestamp": 0,
			"data":     []map[string]string{{"fid": "b", "download_url": apiURL + "/fresh"}},
			"metadata": map[string]int{},
		})
		w.Write(raw)
	})
	mux.HandleFunc("/stale", func(w http.ResponseWriter, r *http.Request) {
		staleHits++
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/fresh", func(w http.ResponseWriter, r *http.Request) {
		freshHits++
		w.Write([]byte(payload))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	apiURL = srv.URL

	children := map[string][]drive.FileRecord{
		drive.RootFID: {file("b", "hello.txt", uint64(len(payload)))},
	}
	lister := &fakeLister{children: children}
	c := cache.New(64, time.Minute, lister, quietLogger())
	client := drive.New(srv.URL, "session=test", quietLogger())
	fs := New(client, c, "", quietLogger())

	f, err := fs.OpenFile(context.Background(), "/hello.txt", 0, 0)
	require.NoError(t, err)
	defer f.Close()

	rf, ok := f.(*remoteFile)
	require.True(t, ok)
	rf.downloadURL = apiURL + "/stale"

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, 1, staleHits)
	assert.Equal(t, 1, freshHits)
}

func TestMkdirRemoveAllRenameWireToDriveAndInvalidateCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/1/clouddrive/file", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"status": 200, "code": 0, "message": "OK", "timestamp": 0,
			"data":     map[string]any{"finish": true, "fid": "new-dir"},
			"metadata": map[string]int{},
		})
		w.Write(raw)
	})
	mux.HandleFunc("/1/clouddrive/file/delete", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"status": 200, "code": 0, "message": "OK", "timestamp": 0,
			"data":     map[string]any{"task_id": "t1", "finish": true},
			"metadata": map[string]int{},
		})
		w.Write(raw)
	})
	mux.HandleFunc("/1/clouddrive/file/rename", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"status": 200, "code": 0, "message": "OK", "timestamp": 0,
			"data": map[string]any{}, "metadata": map[string]int{},
		})
		w.Write(raw)
	})
	mux.HandleFunc("/1/clouddrive/file/move", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{
			"status": 200, "code": 0, "message": "OK", "timestamp": 0,
			"data": map[string]any{}, "metadata": map[string]int{},
		})
		w.Write(raw)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	children := map[string][]drive.FileRecord{
		drive.RootFID: {dir("A", "A")},
		"A":           {file("C", "C.txt", 10), dir("B", "B")},
	}
	lister := &fakeLister{children: children}
	c := cache.New(64, time.Minute, lister, quietLogger())
	client := drive.New(srv.URL, "session=test", quietLogger())
	fs := New(client, c, "", quietLogger())
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/A/new", 0755))
	_, ok := c.Lookup("/A")
	assert.False(t, ok, "creating a directory under /A must invalidate /A's cached listing")

	c.Ensure(ctx, "/A")
	require.NoError(t, fs.RemoveAll(ctx, "/A/C.txt"))
	_, ok = c.Lookup("/A")
	assert.False(t, ok, "removing an entry under /A must invalidate /A's cached listing")

	c.Ensure(ctx, "/A")
	require.NoError(t, fs.Rename(ctx, "/A/C.txt", "/A/D.txt"))
	_, ok = c.Lookup("/A")
	assert.False(t, ok, "renaming within /A must invalidate /A's cached listing")
}

func TestRenameRejectsRoot(t *testing.T) {
	fs := newTestFS(t, nil, map[string][]drive.FileRecord{drive.RootFID: {}})
	err := fs.Rename(context.Background(), "/", "/elsewhere")
	require.Error(t, err)
	var de *drive.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, drive.KindBadRequest, de.Kind)
}

func TestRootIsPrependedToResolvedPaths(t *testing.T) {
	children := map[string][]drive.FileRecord{
		drive.RootFID: {dir("r", "remote")},
		"r":           {dir("a", "photos")},
		"a":           {file("b", "trip.jpg", 2048)},
	}
	lister := &fakeLister{children: children}
	c := cache.New(64, time.Minute, lister, quietLogger())
	client := drive.New("", "session=test", quietLogger())
	fs := New(client, c, "/remote", quietLogger())

	info, err := fs.Stat(context.Background(), "/photos/trip.jpg")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.EqualValues(t, 2048, info.Size())
}
