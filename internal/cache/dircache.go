// Package cache implements the Directory Cache (spec §3, §4.B): a
// TTL-bounded, capacity-bounded cache of directory listings keyed by
// absolute path, filled by a targeted depth-first descent from the
// deepest already-cached ancestor of the path being resolved.
package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/qkdrive/quarkdrive-webdav/internal/drive"
	"github.com/qkdrive/quarkdrive-webdav/internal/metrics"
)

// Lister is the subset of drive.Client the cache needs to populate
// itself. It is an interface so tests can substitute a fake remote.
type Lister interface {
	ListAll(ctx context.Context, parentFID string) (drive.Listing, bool, error)
}

// Cache is a directory-listing cache backed by a capacity-and-TTL
// bounded LRU. It owns the only path from "path requested" to "remote
// listing fetched": the VFS never asks the Drive Client for a directory
// listing directly.
type Cache struct {
	inner *lru.LRU[string, drive.Listing]
	drive Lister
	log   *logrus.Logger
	stats *metrics.Stats
}

// New constructs a Cache with the given capacity (entry count) and
// per-entry TTL (spec §6 "-cache-capacity", "-cache-ttl").
func New(capacity int, ttl time.Duration, client Lister, log *logrus.Logger) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		inner: lru.NewLRU[string, drive.Listing](capacity, nil, ttl),
		drive: client,
		log:   log,
		stats: metrics.New(),
	}
}

// WithStats attaches a shared metrics.Stats tracker, replacing the
// cache's private one, so counters can be reported alongside the rest
// of the server (spec §2 ambient stack).
func (c *Cache) WithStats(s *metrics.Stats) *Cache {
	c.stats = s
	return c
}

// Stats returns the counters this cache records into.
func (c *Cache) Stats() *metrics.Stats {
	return c.stats
}

// Lookup returns a listing already resident in the cache without
// triggering any remote fetch.
func (c *Cache) Lookup(path string) (drive.Listing, bool) {
	return c.inner.Get(path)
}

// Ensure returns the listing for path, populating the cache via a
// targeted DFS from the deepest cached ancestor if path is not already
// resident (spec §4.B).
func (c *Cache) Ensure(ctx context.Context, key string) (drive.Listing, bool) {
	c.log.WithField("key", key).Debug("cache: ensure")

	if l, ok := c.inner.Get(key); ok {
		c.stats.RecordCacheHit()
		return l, true
	}
	c.stats.RecordCacheMiss()

	if key == "/" {
		c.dfs(ctx, drive.NewRootRecord(), key, "/")
	} else {
		path := key
		var cachedFiles []drive.FileRecord

		for {
			parent, ok := dirOf(path)
			if !ok {
				break
			}
			if l, found := c.inner.Get(parent); found {
				cachedFiles = l.Files
				break
			}
			path = parent
			if path == "/" {
				break
			}
		}

		if path == "/" {
			c.dfs(ctx, drive.NewRootRecord(), key, "/")
		} else {
			base := basename(path)
			seed, found := findByName(cachedFiles, base)
			if !found {
				c.log.WithFields(logrus.Fields{"key": key, "ancestor": path}).Debug("cache: seed record not found in ancestor listing")
				return drive.Listing{}, false
			}
			c.dfs(ctx, seed, key, path)
		}
	}

	if l, ok := c.inner.Get(key); ok {
		return l, true
	}
	c.log.WithField("key", key).Debug("cache: no listing found for key")
	return drive.Listing{}, false
}

// dfs fetches the full listing for file (if it is a directory), caches
// it under dfsPath, and recurses into whichever child lies on the path
// toward targetPath (spec §4.B steps 3-5).
func (c *Cache) dfs(ctx context.Context, file drive.FileRecord, targetPath, dfsPath string) {
	if !file.IsDir {
		return
	}

	listing, truncated, err := c.drive.ListAll(ctx, file.FID)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"fid":  file.FID,
			"name": file.Name,
			"path": dfsPath,
		}).WithError(err).Debug("cache: failed to list directory from drive")
		return
	}
	if truncated {
		c.log.WithField("path", dfsPath).Warn("cache: directory listing truncated at pagination cap")
		c.stats.RecordTruncatedListing()
	}

	for i := range listing.Files {
		listing.Files[i].ParentPath = dfsPath
	}

	c.inner.Add(dfsPath, listing)
	c.log.WithField("path", dfsPath).Debug("cache: inserted listing")

	if dfsPath == targetPath {
		return
	}

	for _, child := range listing.Files {
		var childPath string
		if dfsPath == "/" {
			childPath = dfsPath + child.Name
		} else {
			childPath = dfsPath + "/" + child.Name
		}
		if targetPath == childPath || strings.HasPrefix(targetPath, childPath+"/") {
			c.dfs(ctx, child, targetPath, childPath)
		}
	}
}

// Invalidate drops the cached listing at path (spec §4.B "mutations").
func (c *Cache) Invalidate(path string) {
	c.log.WithField("path", path).Debug("cache: invalidate")
	c.inner.Remove(path)
}

// InvalidateParentOf drops the cached listing of path's parent
// directory. Callers invalidate the parent before reporting a mutation
// (create, rename, move, delete) as successful, so the next lookup
// re-fetches a listing that reflects the change (spec §3 invariant).
func (c *Cache) InvalidateParentOf(path string) {
	if parent, ok := dirOf(path); ok {
		c.Invalidate(parent)
	}
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.log.Debug("cache: invalidate all")
	c.inner.Purge()
}

// dirOf returns the parent of an absolute slash-separated path, with
// ok=false when path has no parent (path == "/").
func dirOf(p string) (string, bool) {
	if p == "/" {
		return "", false
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/", true
	}
	return p[:idx], true
}

func basename(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

func findByName(files []drive.FileRecord, name string) (drive.FileRecord, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	return drive.FileRecord{}, false
}
