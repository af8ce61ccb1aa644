package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func envelopeJSON(t *testing.T, status int, message string, data any, total uint32) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"status":    status,
		"code":      0,
		"message":   message,
		"timestamp": 0,
		"data":      data,
		"metadata":  map[string]any{"_total": total, "_count": 0, "_page": 0},
	})
	require.NoError(t, err)
	return raw
}

func TestListChildrenSinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("pdir_fid"))
		w.Write(envelopeJSON(t, 200, "OK", listFilesData{
			List: []wireFile{
				{FID: "a", FileName: "docs &amp; notes", PDirFID: "0", Dir: true},
				{FID: "b", FileName: "report.pdf", PDirFID: "0", File: true},
			},
		}, 2))
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	listing, total, err := c.ListChildren(context.Background(), RootFID, 1, PageSize)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, listing.Files, 2)
	assert.Equal(t, "docs & notes", listing.Files[0].Name)
}

func TestListChildren404IsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	listing, total, err := c.ListChildren(context.Background(), "missing", 1, PageSize)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, listing.Files)
}

func TestListChildrenAppErrorYieldsKindApp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(t, 31001, "file not exist", listFilesData{}, 0))
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	_, _, err := c.ListChildren(context.Background(), "x", 1, PageSize)
	require.Error(t, err)

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindApp, de.Kind)
}

func TestListAllPaginatesAcrossPages(t *testing.T) {
	const totalFiles = PageSize + 10

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("_page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("_size"))

		start := (page - 1) * size
		end := start + size
		if end > totalFiles {
			end = totalFiles
		}

		var files []wireFile
		for i := start; i < end; i++ {
			files = append(files, wireFile{FID: fmt.Sprintf("f%d", i), FileName: fmt.Sprintf("file-%d", i), File: true})
		}

		w.Write(envelopeJSON(t, 200, "OK", listFilesData{List: files}, uint32(totalFiles)))
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	listing, truncated, err := c.ListAll(context.Background(), RootFID)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, listing.Files, totalFiles)
}

func TestListAllTruncatesAtCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var files []wireFile
		for i := 0; i < PageSize; i++ {
			files = append(files, wireFile{FID: fmt.Sprintf("f%d", i), FileName: fmt.Sprintf("file-%d", i), File: true})
		}
		// Report a total far larger than MaxPages*PageSize could ever cover.
		w.Write(envelopeJSON(t, 200, "OK", listFilesData{List: files}, uint32(MaxPages*PageSize*10)))
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	listing, truncated, err := c.ListAll(context.Background(), RootFID)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, listing.Files, MaxPages*PageSize)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(envelopeJSON(t, 200, "OK", listFilesData{}, 0))
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	c.retryConfig.InitialInterval = 0
	c.retryConfig.MaxInterval = 0

	_, _, err := c.ListChildren(context.Background(), RootFID, 1, PageSize)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestDoExhaustsRetriesOnPersistentTransientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	c.retryConfig.InitialInterval = 0
	c.retryConfig.MaxInterval = 0
	c.retryConfig.MaxRetries = 1

	_, _, err := c.ListChildren(context.Background(), RootFID, 1, PageSize)
	require.Error(t, err)

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindTransient, de.Kind)
}

func TestRenameMoveDeleteMkdir(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/1/clouddrive/file/rename", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(t, 200, "OK", emptyData{}, 0))
	})
	mux.HandleFunc("/1/clouddrive/file/move", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(t, 200, "OK", emptyData{}, 0))
	})
	mux.HandleFunc("/1/clouddrive/file/delete", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(t, 200, "OK", deleteFilesData{Finish: true}, 0))
	})
	mux.HandleFunc("/1/clouddrive/file", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(t, 200, "OK", createFolderData{FID: "new-fid", Finish: true}, 0))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	ctx := context.Background()

	require.NoError(t, c.Rename(ctx, "f1", "renamed.txt"))
	require.NoError(t, c.MoveTo(ctx, "f1", "newparent"))
	require.NoError(t, c.Delete(ctx, "f1"))

	fid, err := c.Mkdir(ctx, RootFID, "new folder")
	require.NoError(t, err)
	assert.Equal(t, "new-fid", fid)
}

func TestResolveDownloadURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(t, 200, "OK", []downloadURLItem{
			{FID: "a", DownloadURL: "https://cdn.example/a"},
		}, 0))
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	urls, err := c.ResolveDownloadURLs(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a", urls["a"])
}

func TestDownloadSetsRangeHeader(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	c := New("", "", quietLogger())
	body, err := c.Download(context.Background(), srv.URL, 10, 5)
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "bytes=10-14", gotRange)
}

func TestQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(t, 200, "OK", quotaData{TotalCapacity: 100, UseCapacity: 40}, 0))
	}))
	defer srv.Close()

	c := New(srv.URL, "session=abc", quietLogger())
	used, total, err := c.Quota(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 40, used)
	assert.EqualValues(t, 100, total)
}
