// Package drive implements the Drive Client (spec §4.A): a resilient
// HTTP client for the remote Quark Pan API that paginates listings,
// resolves download URLs, and performs mutating operations.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qkdrive/quarkdrive-webdav/internal/metrics"
	"github.com/qkdrive/quarkdrive-webdav/internal/utils"
)

const (
	// userAgent mirrors the desktop client fingerprint the remote
	// expects (spec §4.A "fixed User-Agent").
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36 Channel/1420104 " +
		"quark-cloud-drive/2.5.20 Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36"
	origin  = "https://pan.quark.cn"
	referer = "https://pan.quark.cn/"

	// PageSize is the fixed page size for listing pagination (spec §4.A).
	PageSize = 500
	// MaxPages bounds runaway pagination loops (spec §4.A, §8).
	MaxPages = 20

	connectTimeout  = 10 * time.Second
	requestTimeout  = 30 * time.Second
	idleConnTimeout = 50 * time.Second
)

// Client is a Quark Pan drive client. It carries a session (cookie,
// fixed headers) constructed once and shared read-only thereafter
// (spec §5 "Shared resources").
type Client struct {
	httpClient  *http.Client
	apiBaseURL  string
	cookie      string
	retryConfig *utils.RetryConfig
	log         *logrus.Logger
	stats       *metrics.Stats
}

// New constructs a Client. apiBaseURL and cookie come from
// configuration (spec §6).
func New(apiBaseURL, cookie string, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		apiBaseURL:  apiBaseURL,
		cookie:      cookie,
		retryConfig: utils.DefaultRetryConfig(),
		log:         log,
		stats:       metrics.New(),
	}
}

// WithStats attaches a shared metrics.Stats tracker, replacing the
// client's private one, so counters can be reported alongside the rest
// of the server (spec §2 ambient stack).
func (c *Client) WithStats(s *metrics.Stats) *Client {
	c.stats = s
	return c
}

// Stats returns the counters this client records into.
func (c *Client) Stats() *metrics.Stats {
	return c.stats
}

// do executes an HTTP request with the retry policy from spec §4.A and
// returns the raw response body. It is the single choke point through
// which every remote call passes, so headers, timeouts, and retries
// stay consistent.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body []byte) ([]byte, error) {
	var respBody []byte
	attempts := 0

	err := utils.RetryWithBackoff(ctx, c.retryConfig, utils.IsTemporaryError, func() error {
		attempts++

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return newError(KindInternal, op, "failed to build request", 0, err)
		}

		req.Header.Set("Origin", origin)
		req.Header.Set("Referer", referer)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Cookie", c.cookie)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.log.WithFields(logrus.Fields{"op": op, "attempt": attempts, "method": method}).Debug("drive: request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return newError(KindTransient, op, "request failed", 0, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return newError(KindTransient, op, "failed to read response body", resp.StatusCode, err)
		}

		if resp.StatusCode == http.StatusNotFound {
			return newError(KindNotFound, op, "not found", resp.StatusCode, nil)
		}

		if isRetriableStatus(resp.StatusCode) {
			return newError(KindTransient, op, fmt.Sprintf("upstream status %d", resp.StatusCode), resp.StatusCode, nil)
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return newError(KindAuth, op, fmt.Sprintf("upstream status %d", resp.StatusCode), resp.StatusCode, nil)
		}

		if resp.StatusCode >= 400 {
			return newError(KindBadRequest, op, fmt.Sprintf("upstream status %d", resp.StatusCode), resp.StatusCode, nil)
		}

		respBody = data
		return nil
	})

	if attempts > 1 {
		for i := 0; i < attempts-1; i++ {
			c.stats.RecordRetry()
		}
	}

	if err != nil {
		c.stats.RecordRemoteError()
		var de *Error
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, newError(KindTransient, op, "retries exhausted", 0, err)
	}

	return respBody, nil
}

func baseQuery() url.Values {
	v := url.Values{}
	v.Set("pr", "ucpro")
	v.Set("fr", "pc")
	return v
}

func decodeEnvelope[T any](op string, raw []byte) (T, envelopeMeta, error) {
	var env envelope[T]
	var zero T

	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, envelopeMeta{}, newError(KindInternal, op, "failed to decode response", 0, err)
	}

	if env.Status != 200 {
		return zero, envelopeMeta{}, newError(KindApp, op, env.Message, 0, nil)
	}

	return env.Data, env.Metadata, nil
}

// ListChildren fetches one page of a directory's children (spec §4.A).
func (c *Client) ListChildren(ctx context.Context, parentFID string, page, pageSize int) (Listing, uint32, error) {
	q := baseQuery()
	q.Set("pdir_fid", parentFID)
	q.Set("_page", strconv.Itoa(page))
	q.Set("_size", strconv.Itoa(pageSize))
	q.Set("_fetch_total", "1")
	q.Set("_fetch_sub_dirs", "0")
	q.Set("_sort", "file_type:asc,updated_at:desc")

	rawURL := fmt.Sprintf("%s/1/clouddrive/file/sort?%s", c.apiBaseURL, q.Encode())

	raw, err := c.do(ctx, "list_children", http.MethodGet, rawURL, nil)
	if err != nil {
		if de, ok := err.(*Error); ok && de.Kind == KindNotFound {
			// spec §4.A: "404 on list yields an empty-absent listing
			// (not an error) so the cache can distinguish missing from
			// failed."
			return Listing{}, 0, nil
		}
		return Listing{}, 0, err
	}

	data, meta, err := decodeEnvelope[listFilesData]("list_children", raw)
	if err != nil {
		return Listing{}, 0, err
	}

	records := make([]FileRecord, 0, len(data.List))
	for _, wf := range data.List {
		records = append(records, wf.toRecord())
	}

	return Listing{Files: records, TotalKnown: meta.Total}, meta.Total, nil
}

// ListAll pages through a directory's full children list, honoring the
// pagination termination and cap rules of spec §4.A. truncated reports
// whether the hard cap (MaxPages/10,000 entries) cut the listing short.
func (c *Client) ListAll(ctx context.Context, parentFID string) (listing Listing, truncated bool, err error) {
	var all []FileRecord
	var total uint32

	for page := 1; page <= MaxPages; page++ {
		l, totalKnown, err := c.ListChildren(ctx, parentFID, page, PageSize)
		if err != nil {
			return Listing{Files: all, TotalKnown: total}, false, err
		}
		c.stats.RecordPageFetched()

		total = totalKnown
		all = append(all, l.Files...)

		lastPage := page
		if total > 0 {
			lastPage = int((total + PageSize - 1) / PageSize)
		}

		if len(l.Files) < PageSize || page >= lastPage {
			return Listing{Files: all, TotalKnown: total}, false, nil
		}
	}

	c.log.WithField("parent_fid", parentFID).Warn("drive: pagination cap reached, listing truncated")
	return Listing{Files: all, TotalKnown: total}, true, nil
}

// ResolveDownloadURLs batch-resolves short-lived download URLs for the
// given fids (spec §4.A).
func (c *Client) ResolveDownloadURLs(ctx context.Context, fids []string) (map[string]string, error) {
	body, err := json.Marshal(downloadURLsRequest{FIDs: fids})
	if err != nil {
		return nil, newError(KindInternal, "resolve_download_urls", "failed to encode request", 0, err)
	}

	q := baseQuery()
	rawURL := fmt.Sprintf("%s/1/clouddrive/file/download?%s", c.apiBaseURL, q.Encode())

	raw, err := c.do(ctx, "resolve_download_urls", http.MethodPost, rawURL, body)
	if err != nil {
		return nil, err
	}

	data, _, err := decodeEnvelope[[]downloadURLItem]("resolve_download_urls", raw)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(data))
	for _, item := range data {
		out[item.FID] = item.DownloadURL
	}
	return out, nil
}

// Download performs a ranged GET against a resolved (short-lived)
// download URL (spec §4.A, §4.C). A negative length means "to EOF".
func (c *Client) Download(ctx context.Context, downloadURL string, offset, length int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, newError(KindInternal, "download", "failed to build request", 0, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	if offset > 0 || length >= 0 {
		if length >= 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindTransient, "download", "request failed", 0, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	resp.Body.Close()
	if isRetriableStatus(resp.StatusCode) {
		return nil, newError(KindTransient, "download", fmt.Sprintf("cdn status %d", resp.StatusCode), resp.StatusCode, nil)
	}
	return nil, newError(KindNotFound, "download", fmt.Sprintf("cdn status %d", resp.StatusCode), resp.StatusCode, nil)
}

// Rename renames fid to newName (spec §4.A).
func (c *Client) Rename(ctx context.Context, fid, newName string) error {
	body, err := json.Marshal(renameFileRequest{FID: fid, FileName: newName})
	if err != nil {
		return newError(KindInternal, "rename", "failed to encode request", 0, err)
	}

	rawURL := fmt.Sprintf("%s/1/clouddrive/file/rename?%s", c.apiBaseURL, baseQuery().Encode())
	raw, err := c.do(ctx, "rename", http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}

	_, _, err = decodeEnvelope[emptyData]("rename", raw)
	return err
}

// MoveTo moves fid to be a child of newParentFID (spec §4.A).
func (c *Client) MoveTo(ctx context.Context, fid, newParentFID string) error {
	body, err := json.Marshal(moveFileRequest{FileList: []string{fid}, ToPDirFID: newParentFID})
	if err != nil {
		return newError(KindInternal, "move_to", "failed to encode request", 0, err)
	}

	rawURL := fmt.Sprintf("%s/1/clouddrive/file/move?%s", c.apiBaseURL, baseQuery().Encode())
	raw, err := c.do(ctx, "move_to", http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}

	_, _, err = decodeEnvelope[emptyData]("move_to", raw)
	return err
}

// Delete hard-deletes fid. The original remote protocol accepts a
// trash flag that this client drops: the remote has no untrash
// endpoint, so there is no soft-delete semantics to preserve (spec §9).
func (c *Client) Delete(ctx context.Context, fid string) error {
	body, err := json.Marshal(deleteFilesRequest{
		ActionType:  2,
		ExcludeFIDs: []string{},
		FileList:    []string{fid},
	})
	if err != nil {
		return newError(KindInternal, "delete", "failed to encode request", 0, err)
	}

	rawURL := fmt.Sprintf("%s/1/clouddrive/file/delete?%s", c.apiBaseURL, baseQuery().Encode())
	raw, err := c.do(ctx, "delete", http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}

	_, _, err = decodeEnvelope[deleteFilesData]("delete", raw)
	return err
}

// Mkdir creates a directory named name under parentFID and returns its
// new fid (spec §4.A).
func (c *Client) Mkdir(ctx context.Context, parentFID, name string) (string, error) {
	body, err := json.Marshal(createFolderRequest{
		PDirFID:     parentFID,
		FileName:    name,
		DirPath:     "",
		DirInitLock: false,
	})
	if err != nil {
		return "", newError(KindInternal, "mkdir", "failed to encode request", 0, err)
	}

	rawURL := fmt.Sprintf("%s/1/clouddrive/file?%s", c.apiBaseURL, baseQuery().Encode())
	raw, err := c.do(ctx, "mkdir", http.MethodPost, rawURL, body)
	if err != nil {
		return "", err
	}

	data, _, err := decodeEnvelope[createFolderData]("mkdir", raw)
	if err != nil {
		return "", err
	}

	return data.FID, nil
}

// Quota reports used/total bytes for the authenticated account (spec
// §4.A, §6). Exposed as a diagnostic, not surfaced through WebDAV.
func (c *Client) Quota(ctx context.Context) (used, total uint64, err error) {
	q := baseQuery()
	q.Set("fetch_subscribe", "true")
	q.Set("fetch_identity", "true")
	q.Set("_ch", "home")

	rawURL := fmt.Sprintf("%s/1/clouddrive/member?%s", c.apiBaseURL, q.Encode())
	raw, err := c.do(ctx, "quota", http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, err
	}

	data, _, err := decodeEnvelope[quotaData]("quota", raw)
	if err != nil {
		return 0, 0, err
	}

	return data.UseCapacity, data.TotalCapacity, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
