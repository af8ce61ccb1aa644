// Package metrics tracks runtime counters for the Directory Cache and
// Drive Client: cache hits/misses, pages fetched, retries performed,
// and truncated listings. It has no bearing on correctness; it exists
// so an operator can tell a slow mount from a broken one.
package metrics

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stats accumulates counters for one running server (spec §2 "ambient
// stack"; there is no metrics module in the distilled spec, so this
// exists purely as operational support, following the shape of the
// donor's sync statistics tracker).
type Stats struct {
	StartTime time.Time `json:"start_time"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	PagesFetched      int64 `json:"pages_fetched"`
	RetriesPerformed  int64 `json:"retries_performed"`
	TruncatedListings int64 `json:"truncated_listings"`

	RemoteErrors int64 `json:"remote_errors"`

	mu sync.RWMutex
}

// New creates a Stats tracker.
func New() *Stats {
	return &Stats{StartTime: time.Now()}
}

func (s *Stats) RecordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CacheHits++
}

func (s *Stats) RecordCacheMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CacheMisses++
}

func (s *Stats) RecordPageFetched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PagesFetched++
}

func (s *Stats) RecordRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetriesPerformed++
}

func (s *Stats) RecordTruncatedListing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TruncatedListings++
}

func (s *Stats) RecordRemoteError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RemoteErrors++
}

// CacheHitRatio returns hits / (hits+misses), or 0 with no lookups yet.
func (s *Stats) CacheHitRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// String returns a human-readable summary, in the donor's one-line-per-
// section style.
func (s *Stats) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "quarkdrive-webdav stats (uptime %s):\n", time.Since(s.StartTime).Round(time.Second))
	fmt.Fprintf(&b, "  cache: %d hits, %d misses (%.1f%% hit ratio)\n",
		s.CacheHits, s.CacheMisses, s.hitRatioLocked()*100)
	fmt.Fprintf(&b, "  drive: %d pages fetched, %d retries, %d truncated listings, %d errors\n",
		s.PagesFetched, s.RetriesPerformed, s.TruncatedListings, s.RemoteErrors)
	return b.String()
}

func (s *Stats) hitRatioLocked() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// JSONString returns a JSON-encoded snapshot of the counters.
func (s *Stats) JSONString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, _ := json.Marshal(s)
	return string(data)
}

// Snapshot returns a copy safe to read without holding the lock.
func (s *Stats) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s
	return cp
}
