// Package client is a typed HTTP client for the Open Saves REST
// surface: stores, records, blobs, and metadata.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const snippetLimit = 200

// Templated request names. Generated identifiers are replaced with
// placeholders so the stats layer aggregates by endpoint shape rather
// than by literal id.
const (
	NameCreateStore    = "POST /api/stores"
	NameGetStore       = "GET /api/stores/{store_id}"
	NameDeleteStore    = "DELETE /api/stores/{store_id}"
	NameListStores     = "GET /api/stores"
	NameCreateRecord   = "POST /api/stores/{store_id}/records"
	NameListRecords    = "GET /api/stores/{store_id}/records"
	NameGetRecord      = "GET /api/stores/{store_id}/records/{record_id}"
	NameUpdateRecord   = "PUT /api/stores/{store_id}/records/{record_id}"
	NamePatchRecord    = "PATCH /api/stores/{store_id}/records/{record_id}"
	NameDeleteRecord   = "DELETE /api/stores/{store_id}/records/{record_id}"
	NameQueryByOwner   = "GET /api/stores/{store_id}/records?owner_id={owner_id}"
	NameQueryByGame    = "GET /api/stores/{store_id}/records?game_id={game_id}"
	NameUploadBlob     = "PUT /api/stores/{store_id}/records/{record_id}/blobs/{blob_id}"
	NameGetBlob        = "GET /api/stores/{store_id}/records/{record_id}/blobs/{blob_id}"
	NameDeleteBlob     = "DELETE /api/stores/{store_id}/records/{record_id}/blobs/{blob_id}"
	NameListBlobs      = "GET /api/stores/{store_id}/records/{record_id}/blobs"
	NameCreateMetadata = "POST /api/metadata/{metadata_id}"
	NameGetMetadata    = "GET /api/metadata/{metadata_id}"
	NameUpdateMetadata = "PUT /api/metadata/{metadata_id}"
	NameDeleteMetadata = "DELETE /api/metadata/{metadata_id}"
)

// RequestStat describes one completed HTTP call, labeled with the
// templated endpoint name.
type RequestStat struct {
	Method        string
	Name          string
	Start         time.Time
	Duration      time.Duration
	StatusCode    int
	ContentLength int64
	Err           error
}

// Observer receives a RequestStat after every call.
type Observer func(RequestStat)

// ResponseSampler receives the raw body of successful JSON responses,
// keyed by templated name. Used for schema contract checks.
type ResponseSampler func(name string, body []byte)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithObserver registers the per-request stats callback.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// WithResponseSampler registers the raw-body callback.
func WithResponseSampler(s ResponseSampler) Option {
	return func(c *Client) { c.sample = s }
}

// Client issues typed requests against one Open Saves base URL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	observe Observer
	sample  ResponseSampler
	token   tokenFunc
}

// New creates a client for the given base URL.
func New(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one request and returns the response body. Non-2xx
// statuses return an *APIError carrying a body snippet; deletes are
// stricter and accept only 204.
func (c *Client) do(ctx context.Context, method, path, name, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		tok, err := c.token()
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		c.report(RequestStat{Method: method, Name: name, Start: start, Duration: elapsed, Err: err})
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, readErr := io.ReadAll(resp.Body)

	success := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if method == http.MethodDelete {
		success = resp.StatusCode == http.StatusNoContent
	}
	if !success {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        c.baseURL + path,
			Snippet:    snippet(respBody),
		}
		c.report(RequestStat{
			Method: method, Name: name, Start: start, Duration: elapsed,
			StatusCode: resp.StatusCode, ContentLength: int64(len(respBody)), Err: apiErr,
		})
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("url", c.baseURL+path),
			zap.Int("status", resp.StatusCode),
			zap.String("response", apiErr.Snippet))
		return nil, apiErr
	}

	c.report(RequestStat{
		Method: method, Name: name, Start: start, Duration: elapsed,
		StatusCode: resp.StatusCode, ContentLength: int64(len(respBody)),
	})

	if readErr != nil {
		return nil, fmt.Errorf("read response: %w", readErr)
	}
	if c.sample != nil && len(respBody) > 0 && isJSON(resp.Header.Get("Content-Type")) {
		c.sample(name, respBody)
	}
	return respBody, nil
}

func (c *Client) report(s RequestStat) {
	if c.observe != nil {
		c.observe(s)
	}
}

// doJSON marshals in (if non-nil), issues the request, and decodes the
// response into out (if non-nil). A decode failure is returned after
// the request already counted as a success.
func (c *Client) doJSON(ctx context.Context, method, path, name string, in, out any) error {
	var body []byte
	contentType := ""
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		contentType = "application/json"
	}

	respBody, err := c.do(ctx, method, path, name, contentType, body)
	if err != nil {
		return err
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.logger.Warn("response decode failed",
				zap.String("method", method),
				zap.String("url", c.baseURL+path),
				zap.Error(err))
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Stores

func (c *Client) CreateStore(ctx context.Context, store *Store) (*Store, error) {
	var out Store
	if err := c.doJSON(ctx, http.MethodPost, "/api/stores", NameCreateStore, store, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetStore(ctx context.Context, storeID string) (*Store, error) {
	var out Store
	path := "/api/stores/" + url.PathEscape(storeID)
	if err := c.doJSON(ctx, http.MethodGet, path, NameGetStore, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteStore(ctx context.Context, storeID string) error {
	path := "/api/stores/" + url.PathEscape(storeID)
	return c.doJSON(ctx, http.MethodDelete, path, NameDeleteStore, nil, nil)
}

func (c *Client) ListStores(ctx context.Context) ([]Store, error) {
	var out storeList
	if err := c.doJSON(ctx, http.MethodGet, "/api/stores", NameListStores, nil, &out); err != nil {
		return nil, err
	}
	return out.Stores, nil
}

// Records

func (c *Client) CreateRecord(ctx context.Context, storeID string, record *Record) (*Record, error) {
	var out Record
	path := "/api/stores/" + url.PathEscape(storeID) + "/records"
	if err := c.doJSON(ctx, http.MethodPost, path, NameCreateRecord, record, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRecord(ctx context.Context, storeID, recordID string) (*Record, error) {
	var out Record
	path := recordPath(storeID, recordID)
	if err := c.doJSON(ctx, http.MethodGet, path, NameGetRecord, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRecord(ctx context.Context, storeID, recordID string, update *RecordUpdate) (*Record, error) {
	var out Record
	path := recordPath(storeID, recordID)
	if err := c.doJSON(ctx, http.MethodPut, path, NameUpdateRecord, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PatchRecord(ctx context.Context, storeID, recordID string, update *RecordUpdate) (*Record, error) {
	var out Record
	path := recordPath(storeID, recordID)
	if err := c.doJSON(ctx, http.MethodPatch, path, NamePatchRecord, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRecord(ctx context.Context, storeID, recordID string) error {
	return c.doJSON(ctx, http.MethodDelete, recordPath(storeID, recordID), NameDeleteRecord, nil, nil)
}

func (c *Client) ListRecords(ctx context.Context, storeID string) ([]Record, error) {
	var out recordList
	path := "/api/stores/" + url.PathEscape(storeID) + "/records"
	if err := c.doJSON(ctx, http.MethodGet, path, NameListRecords, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) QueryRecordsByOwner(ctx context.Context, storeID, ownerID string) ([]Record, error) {
	var out recordList
	path := "/api/stores/" + url.PathEscape(storeID) + "/records?owner_id=" + url.QueryEscape(ownerID)
	if err := c.doJSON(ctx, http.MethodGet, path, NameQueryByOwner, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) QueryRecordsByGame(ctx context.Context, storeID, gameID string) ([]Record, error) {
	var out recordList
	path := "/api/stores/" + url.PathEscape(storeID) + "/records?game_id=" + url.QueryEscape(gameID)
	if err := c.doJSON(ctx, http.MethodGet, path, NameQueryByGame, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Blobs

func (c *Client) UploadBlob(ctx context.Context, storeID, recordID, blobID string, data []byte) error {
	path := blobPath(storeID, recordID, blobID)
	_, err := c.do(ctx, http.MethodPut, path, NameUploadBlob, "application/octet-stream", data)
	return err
}

func (c *Client) GetBlob(ctx context.Context, storeID, recordID, blobID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, blobPath(storeID, recordID, blobID), NameGetBlob, "", nil)
}

func (c *Client) DeleteBlob(ctx context.Context, storeID, recordID, blobID string) error {
	_, err := c.do(ctx, http.MethodDelete, blobPath(storeID, recordID, blobID), NameDeleteBlob, "", nil)
	return err
}

func (c *Client) ListBlobs(ctx context.Context, storeID, recordID string) ([]string, error) {
	var out blobList
	path := recordPath(storeID, recordID) + "/blobs"
	if err := c.doJSON(ctx, http.MethodGet, path, NameListBlobs, nil, &out); err != nil {
		return nil, err
	}
	return out.BlobKeys, nil
}

// Metadata

func (c *Client) CreateMetadata(ctx context.Context, metadataID string, meta *Metadata) error {
	path := "/api/metadata/" + url.PathEscape(metadataID)
	return c.doJSON(ctx, http.MethodPost, path, NameCreateMetadata, meta, nil)
}

func (c *Client) GetMetadata(ctx context.Context, metadataID string) (*Metadata, error) {
	var out Metadata
	path := "/api/metadata/" + url.PathEscape(metadataID)
	if err := c.doJSON(ctx, http.MethodGet, path, NameGetMetadata, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMetadata(ctx context.Context, metadataID string, meta *Metadata) error {
	path := "/api/metadata/" + url.PathEscape(metadataID)
	return c.doJSON(ctx, http.MethodPut, path, NameUpdateMetadata, meta, nil)
}

func (c *Client) DeleteMetadata(ctx context.Context, metadataID string) error {
	path := "/api/metadata/" + url.PathEscape(metadataID)
	return c.doJSON(ctx, http.MethodDelete, path, NameDeleteMetadata, nil, nil)
}

func recordPath(storeID, recordID string) string {
	return "/api/stores/" + url.PathEscape(storeID) + "/records/" + url.PathEscape(recordID)
}

func blobPath(storeID, recordID, blobID string) string {
	return recordPath(storeID, recordID) + "/blobs/" + url.PathEscape(blobID)
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > snippetLimit {
		return s[:snippetLimit] + "... [truncated]"
	}
	return s
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}
