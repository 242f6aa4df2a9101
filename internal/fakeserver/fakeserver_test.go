package fakeserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/client"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestStoreLifecycle(t *testing.T) {
	ts := newTestServer(t)

	t.Run("create returns 201", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/stores",
			client.Store{StoreID: "s1", Name: "Store One", OwnerID: "owner1"})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("duplicate create returns 409", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/stores", client.Store{StoreID: "s1"})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("get echoes creation fields", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/stores/s1", nil)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var store client.Store
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&store))
		assert.Equal(t, "s1", store.StoreID)
		assert.Equal(t, "Store One", store.Name)
		assert.Equal(t, "owner1", store.OwnerID)
	})

	t.Run("list envelope", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/stores", nil)
		defer func() { _ = resp.Body.Close() }()

		var out struct {
			Stores []client.Store `json:"stores"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Len(t, out.Stores, 1)
	})

	t.Run("delete returns 204 then 404", func(t *testing.T) {
		resp := doJSON(t, http.MethodDelete, ts.URL+"/api/stores/s1", nil)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = doJSON(t, http.MethodGet, ts.URL+"/api/stores/s1", nil)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRecordFiltering(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/stores", client.Store{StoreID: "s1"})
	_ = resp.Body.Close()

	for _, rec := range []client.Record{
		{RecordID: "r1", OwnerID: "alice", GameID: "game_1"},
		{RecordID: "r2", OwnerID: "alice", GameID: "game_2"},
		{RecordID: "r3", OwnerID: "bob", GameID: "game_1"},
	} {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/stores/s1/records", rec)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	t.Run("filter by owner", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/stores/s1/records?owner_id=alice", nil)
		defer func() { _ = resp.Body.Close() }()

		var out struct {
			Records []client.Record `json:"records"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Len(t, out.Records, 2)
		for _, r := range out.Records {
			assert.Equal(t, "alice", r.OwnerID)
		}
	})

	t.Run("filter by game", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/stores/s1/records?game_id=game_1", nil)
		defer func() { _ = resp.Body.Close() }()

		var out struct {
			Records []client.Record `json:"records"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Len(t, out.Records, 2)
	})
}

func TestBlobRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/stores", client.Store{StoreID: "s1"})
	_ = resp.Body.Close()
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/stores/s1/records", client.Record{RecordID: "r1"})
	_ = resp.Body.Close()

	payload := strings.Repeat("x", 1024)
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/stores/s1/records/r1/blobs/blob1",
		strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/octet-stream")
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = putResp.Body.Close()
	assert.Equal(t, http.StatusCreated, putResp.StatusCode)

	t.Run("record reports blob key", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/stores/s1/records/r1", nil)
		defer func() { _ = resp.Body.Close() }()

		var record client.Record
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
		assert.Equal(t, []string{"blob1"}, record.BlobKeys)
	})

	t.Run("get returns the bytes", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/stores/s1/records/r1/blobs/blob1", nil)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))

		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, buf.String())
	})

	t.Run("delete returns 204", func(t *testing.T) {
		resp := doJSON(t, http.MethodDelete, ts.URL+"/api/stores/s1/records/r1/blobs/blob1", nil)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestMetadataLifecycle(t *testing.T) {
	ts := newTestServer(t)

	meta := client.Metadata{
		Version:    "1.0.3",
		Properties: map[string]any{"key1": "value-1"},
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/metadata/m1", meta)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/metadata/m1", meta)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/metadata/m1", client.Metadata{Version: "1.0.4"})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/metadata/m1", nil)
	var got client.Metadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	_ = resp.Body.Close()
	assert.Equal(t, "1.0.4", got.Version)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/metadata/m1", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/metadata/m1", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
