// Package client implements the replication client (C7): one HTTP caller
// per remote show that pulls sections and segments into a receiver
// database, either incrementally (sync.go) or after a source rebuild
// (replace.go), per spec.md §4.7.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/relaywave/segcast/internal/httpclient"
	"github.com/relaywave/segcast/internal/wire"
)

// ErrContentType reports a replication server response whose Content-Type
// does not match the expected wire format, a fatal integrity error per
// spec.md §7 ("server may be running old version").
type ErrContentType struct {
	URL  string
	Got  string
	Want string
}

func (e *ErrContentType) Error() string {
	return fmt.Sprintf("replication client: %s: unexpected content type %q, want %q (server may be running old version)", e.URL, e.Got, e.Want)
}

// Client talks to one replication server (C6) over HTTP, rate limiting
// its own request rate so a receiver syncing many shows never floods a
// single upstream host. Grounded on internal/httpclient's per-host
// semaphore style; the limiter is the new piece this domain adds (see
// DESIGN.md).
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New returns a Client bounded to at most 5 requests/second against
// baseURL, enough to keep a chunked sync responsive without hammering
// the remote replication server.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpclient.ForStreaming(),
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
}

type showsResponse struct {
	Shows []showSummary `json:"shows"`
}

type showSummary struct {
	Name         string `json:"name"`
	DatabaseFile string `json:"database_file"`
	MinID        int64  `json:"min_id"`
	MaxID        int64  `json:"max_id"`
}

type metadataResponse struct {
	UniqueID    string `json:"unique_id"`
	Name        string `json:"name"`
	AudioFormat string `json:"audio_format"`
	Bitrate     string `json:"bitrate"`
	SampleRate  string `json:"sample_rate"`
	Version     string `json:"version"`
	IsRecipient string `json:"is_recipient"`
	MinID       int64  `json:"min_id"`
	MaxID       int64  `json:"max_id"`
}

type sectionResponse struct {
	ID               int64 `json:"id"`
	StartTimestampMs int64 `json:"start_timestamp_ms"`
}

type findByTimestampResponse struct {
	SourceUniqueID       string `json:"source_unique_id"`
	MinID                int64  `json:"min_id"`
	MaxID                int64  `json:"max_id"`
	AfterSection         *int64 `json:"after_section,omitempty"`
	BeforeOrEqualSection *int64 `json:"before_or_equal_section,omitempty"`
}

type segmentRangeResponse struct {
	MinID int64 `json:"min_id"`
	MaxID int64 `json:"max_id"`
}

// ErrHTTPStatus reports a non-200 response from the replication server.
// Every replication request failure is treated as fatal for the current
// sync attempt (spec.md §7: "never retries on failure").
type ErrHTTPStatus struct {
	URL    string
	Status int
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("replication client: %s: unexpected status %d", e.URL, e.Status)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("replication client: build request %s: %w", url, err)
	}
	release := httpclient.GlobalHostSem.Acquire(c.baseURL)
	resp, err := c.http.Do(req)
	release()
	if err != nil {
		return fmt.Errorf("replication client: get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrHTTPStatus{URL: url, Status: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) fetchShows(ctx context.Context) ([]showSummary, error) {
	var out showsResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/sync/shows", &out); err != nil {
		return nil, err
	}
	return out.Shows, nil
}

// ListShows returns the names of every show the remote currently serves,
// so callers can validate a configured show whitelist against it before
// starting a sync loop (spec.md §7 "whitelisted show absent from remote").
func (c *Client) ListShows(ctx context.Context) ([]string, error) {
	shows, err := c.fetchShows(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(shows))
	for i, s := range shows {
		names[i] = s.Name
	}
	return names, nil
}

func (c *Client) fetchMetadata(ctx context.Context, show string) (*metadataResponse, error) {
	var out metadataResponse
	url := fmt.Sprintf("%s/api/sync/shows/%s/metadata", c.baseURL, show)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) fetchSections(ctx context.Context, show string, cutoffMs int64) ([]sectionResponse, error) {
	url := fmt.Sprintf("%s/api/sync/shows/%s/sections", c.baseURL, show)
	if cutoffMs >= 0 {
		url = fmt.Sprintf("%s?cutoff_ts=%d", url, cutoffMs)
	}
	var out []sectionResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchFindByTimestamp(ctx context.Context, show string, timestampMs int64) (*findByTimestampResponse, error) {
	url := fmt.Sprintf("%s/api/sync/shows/%s/sections/find_by_timestamp?timestamp_ms=%d", c.baseURL, show, timestampMs)
	var out findByTimestampResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) fetchSegmentRange(ctx context.Context, show string, sectionID int64) (*segmentRangeResponse, error) {
	url := fmt.Sprintf("%s/api/sync/shows/%s/sections/%d/segment_range", c.baseURL, show, sectionID)
	var out segmentRangeResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) fetchSegments(ctx context.Context, show string, startID, endID, limit, cutoffMs int64) ([]wire.Segment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/sync/shows/%s/segments?start_id=%d&end_id=%d&limit=%d", c.baseURL, show, startID, endID, limit)
	if cutoffMs >= 0 {
		url = fmt.Sprintf("%s&cutoff_ts=%d", url, cutoffMs)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("replication client: build request %s: %w", url, err)
	}
	release := httpclient.GlobalHostSem.Acquire(c.baseURL)
	resp, err := c.http.Do(req)
	release()
	if err != nil {
		return nil, fmt.Errorf("replication client: get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ErrHTTPStatus{URL: url, Status: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); ct != wire.ContentType {
		return nil, &ErrContentType{URL: url, Got: ct, Want: wire.ContentType}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replication client: read %s: %w", url, err)
	}
	return wire.Decode(body)
}
