package driver

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/client"
	"github.com/opensaves/savesbench/internal/config"
	"github.com/opensaves/savesbench/internal/fakeserver"
	"github.com/opensaves/savesbench/internal/verify"
)

type recordedFailure struct {
	check   string
	message string
}

type recordingReporter struct {
	mu       sync.Mutex
	failures []recordedFailure
}

func (r *recordingReporter) Verification(check, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, recordedFailure{check, message})
}

func (r *recordingReporter) byCheck(check string) []recordedFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedFailure
	for _, f := range r.failures {
		if f.check == check {
			out = append(out, f)
		}
	}
	return out
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

func newSimpleHarness(t *testing.T, mutate func(*config.SimpleConfig)) (*fakeserver.Server, *client.Client, *recordingReporter, *Simple) {
	t.Helper()

	srv := fakeserver.New(zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default().Simple
	cfg.VerifyInterval = time.Hour // keep count checks out of unrelated tests
	if mutate != nil {
		mutate(&cfg)
	}

	api := client.New(ts.URL, zap.NewNop())
	rep := &recordingReporter{}
	return srv, api, rep, NewSimple(cfg, api, rep, zap.NewNop(), 42)
}

func TestSessionTracking(t *testing.T) {
	var sess Session
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	sess.TrackRecord("a", base)
	sess.TrackRecord("b", base.Add(time.Second))
	sess.TrackBlobRecord("c", base.Add(2*time.Second))

	assert.Equal(t, 3, sess.RecordsCreated)
	assert.Equal(t, 1, sess.BlobRecordsCreated)
	assert.True(t, sess.Tracks("b"))
	assert.Equal(t, []string{"a", "b"}, sess.OldestRecordKeys(2))

	sess.Untrack("b")
	assert.False(t, sess.Tracks("b"))
	assert.Equal(t, 2, sess.RecordsCreated, "untrack rolls the created count back")

	sess.Untrack("c")
	assert.Equal(t, 1, sess.RecordsCreated)
	assert.Equal(t, 0, sess.BlobRecordsCreated)
	sess.TrackBlobRecord("c", base.Add(3*time.Second))

	// Server says only "c" survives plus a new key "d".
	sess.Resync([]string{"c", "d"}, []string{"c"}, base.Add(time.Minute))
	assert.False(t, sess.Tracks("a"))
	assert.True(t, sess.Tracks("c"))
	assert.True(t, sess.Tracks("d"))
	assert.Equal(t, []string{"c"}, sess.BlobRecordKeys)
}

func TestSimpleStartCreatesStore(t *testing.T) {
	srv, api, _, user := newSimpleHarness(t, nil)
	require.NoError(t, user.Start(context.Background()))

	got, err := api.GetStore(context.Background(), user.sess.StoreKey)
	require.NoError(t, err)
	assert.Equal(t, user.sentStore.Name, got.Name)
	assert.Equal(t, 0, srv.RecordCount(user.sess.StoreKey))
}

func TestSimpleStepsPopulateStore(t *testing.T) {
	srv, _, rep, user := newSimpleHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	for i := 0; i < 300; i++ {
		user.Step(ctx)
	}

	assert.Greater(t, srv.RecordCount(user.sess.StoreKey), 0)
	assert.Equal(t, 0, rep.count(), "healthy server must produce no verification failures: %v", rep.failures)
}

func TestSimpleCountVerification(t *testing.T) {
	srv, _, rep, user := newSimpleHarness(t, func(c *config.SimpleConfig) {
		c.VerifyInterval = 0
	})
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	user.createRecord(ctx)
	user.createRecord(ctx)
	srv.SeedRecord(user.sess.StoreKey, client.Record{RecordID: "ghost_rec"})

	user.listRecords(ctx)

	failures := rep.byCheck(verify.CheckRecordCount)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].message, "server has 3")
	assert.Contains(t, failures[0].message, "client created 2")
	assert.True(t, user.sess.Tracks("ghost_rec"), "resync adopts server-side records")
}

func TestSimpleCountVerificationAfterCleanup(t *testing.T) {
	_, _, rep, user := newSimpleHarness(t, func(c *config.SimpleConfig) {
		c.VerifyInterval = 0
		c.CleanupEnabled = true
		c.CleanupProbability = 1
		c.MinRecordsBeforeDelete = 0
	})
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	user.createRecord(ctx)
	user.createRecord(ctx)
	user.createBlobRecord(ctx)
	user.deleteRecord(ctx)

	user.listRecords(ctx)

	assert.Empty(t, rep.byCheck(verify.CheckRecordCount),
		"a delete the server honored must not trip count verification: %v", rep.failures)
	assert.Empty(t, rep.byCheck(verify.CheckBlobRecordCount))
}

func TestSimpleStoreDetailsVerification(t *testing.T) {
	srv, _, rep, user := newSimpleHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	srv.RenameStore(user.sess.StoreKey, "tampered name")
	user.getStore(ctx)

	failures := rep.byCheck(verify.CheckStoreDetails)
	require.Len(t, failures, 1, "all field mismatches fold into one failure")
	assert.Contains(t, failures[0].message, "tampered name")
}

func TestSimpleOwnerQueryVerification(t *testing.T) {
	srv, _, rep, user := newSimpleHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	user.createRecord(ctx)
	srv.SeedRecord(user.sess.StoreKey, client.Record{
		RecordID: "foreign_rec",
		OwnerID:  "someone_else",
	})
	srv.BreakQueryFilters()

	user.queryByOwner(ctx)

	failures := rep.byCheck(verify.CheckOwnerQuery)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].message, "foreign_rec")
	assert.Contains(t, failures[0].message, "someone_else")
}

func TestSimplePrunesOn404(t *testing.T) {
	_, api, _, user := newSimpleHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	user.createRecord(ctx)
	require.Len(t, user.sess.RecordKeys, 1)
	key := user.sess.RecordKeys[0]

	require.NoError(t, api.DeleteRecord(ctx, user.sess.StoreKey, key))

	user.getRecord(ctx)
	assert.False(t, user.sess.Tracks(key), "404 prunes the stale key")
}

func TestSimpleBlobContentVerification(t *testing.T) {
	_, api, rep, user := newSimpleHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	user.createBlobRecord(ctx)
	require.Len(t, user.sess.BlobRecordKeys, 1)
	key := user.sess.BlobRecordKeys[0]

	user.getBlobRecord(ctx)
	assert.Empty(t, rep.byCheck(verify.CheckBlobContent))

	// Overwrite the blob behind the driver's back.
	require.NoError(t, api.UploadBlob(ctx, user.sess.StoreKey, key, "blob1", []byte("tampered")))

	user.getBlobRecord(ctx)
	failures := rep.byCheck(verify.CheckBlobContent)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].message, key)
}

func TestSimpleCleanupDeletesStore(t *testing.T) {
	_, api, _, user := newSimpleHarness(t, func(c *config.SimpleConfig) {
		c.CleanupEnabled = true
	})
	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	user.Stop(ctx)

	_, err := api.GetStore(ctx, user.sess.StoreKey)
	assert.True(t, client.IsNotFound(err))
}

func TestStructuredLifecycle(t *testing.T) {
	srv := fakeserver.New(zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default().Structured
	cfg.CleanupEnabled = true
	api := client.New(ts.URL, zap.NewNop())
	user := NewStructured(cfg, api, zap.NewNop(), 7)

	ctx := context.Background()
	require.NoError(t, user.Start(ctx))

	// Setup provisions every group's resources eagerly.
	_, err := api.GetStore(ctx, user.store.storeID)
	require.NoError(t, err)
	_, err = api.GetRecord(ctx, user.record.storeID, user.record.recordID)
	require.NoError(t, err)
	_, err = api.GetMetadata(ctx, user.metadata.metadataID)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		user.Step(ctx)
	}

	user.Stop(ctx)
	_, err = api.GetStore(ctx, user.store.storeID)
	assert.True(t, client.IsNotFound(err), "teardown removes the store group's store")
	_, err = api.GetMetadata(ctx, user.metadata.metadataID)
	assert.True(t, client.IsNotFound(err))
}

func TestPickBlobID(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"prefers blob1", []string{"other", "blob1"}, "blob1"},
		{"falls back to blob-ish key", []string{"x", "my_blob_2"}, "my_blob_2"},
		{"first key when nothing matches", []string{"alpha", "beta"}, "alpha"},
		{"record key when empty", nil, "rec_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickBlobID(tt.keys, "rec_1"))
		})
	}
}
