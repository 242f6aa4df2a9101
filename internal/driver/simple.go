package driver

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/client"
	"github.com/opensaves/savesbench/internal/config"
	"github.com/opensaves/savesbench/internal/payload"
	"github.com/opensaves/savesbench/internal/verify"
)

type weightedTask struct {
	weight int
	name   string
	fn     func(ctx context.Context)
}

// Simple is the flat-profile user: one store per user, a single
// weighted task set over records, blobs and queries, and periodic
// verification of server state against local tracking.
type Simple struct {
	cfg    config.SimpleConfig
	api    *client.Client
	rep    Reporter
	logger *zap.Logger
	rng    *rand.Rand
	now    func() time.Time

	sess      Session
	sentStore client.Store
	// digest of the payload last uploaded for record/blob, keyed
	// "recordID/blobID".
	digests map[string]string

	tasks       []weightedTask
	totalWeight int
}

// NewSimple builds a simple-profile user. Each user gets its own rng so
// runs are reproducible per seed.
func NewSimple(cfg config.SimpleConfig, api *client.Client, rep Reporter, logger *zap.Logger, seed int64) *Simple {
	s := &Simple{
		cfg:     cfg,
		api:     api,
		rep:     rep,
		logger:  logger,
		rng:     rand.New(rand.NewSource(seed)), // #nosec G404 - load generation, not crypto
		now:     time.Now,
		digests: make(map[string]string),
	}
	s.buildTasks()
	return s
}

func (s *Simple) buildTasks() {
	w := s.cfg.Weights
	s.tasks = []weightedTask{
		{w.GetRecord, "get_record", s.getRecord},
		{w.CreateRecord, "create_record", s.createRecord},
		{w.CreateBlobRecord, "create_blob_record", s.createBlobRecord},
		{w.GetBlobRecord, "get_blob_record", s.getBlobRecord},
		{w.UpdateRecord, "update_record", s.updateRecord},
		{w.UpdateBlobRecord, "update_blob_record", s.updateBlobRecord},
		{w.QueryByOwner, "query_by_owner", s.queryByOwner},
		{w.QueryByGame, "query_by_game", s.queryByGame},
		{w.ListRecords, "list_records", s.listRecords},
		{w.GetStore, "get_store", s.getStore},
	}
	if s.cfg.CleanupEnabled {
		s.tasks = append(s.tasks, weightedTask{w.DeleteRecord, "delete_record", s.deleteRecord})
	}
	s.totalWeight = 0
	for _, t := range s.tasks {
		s.totalWeight += t.weight
	}
}

// Start creates this user's store. On failure the user stays alive but
// every Step is a no-op, so a dead target does not crash the run.
func (s *Simple) Start(ctx context.Context) error {
	suffix := payload.RandomString(s.rng, 8)
	s.sentStore = client.Store{
		StoreID: suffix + "_load_test_store",
		Name:    "Load Test Store " + suffix,
		OwnerID: suffix + "_owner",
	}

	if _, err := s.api.CreateStore(ctx, &s.sentStore); err != nil {
		s.logger.Warn("store creation failed, user will idle",
			zap.String("store_id", s.sentStore.StoreID), zap.Error(err))
		return err
	}

	s.sess = Session{
		StoreKey:              s.sentStore.StoreID,
		StoreName:             s.sentStore.Name,
		OwnerID:               s.sentStore.OwnerID,
		LastCountVerification: s.now(),
	}
	return nil
}

// Step runs one weighted-random task.
func (s *Simple) Step(ctx context.Context) {
	if s.sess.StoreKey == "" || s.totalWeight == 0 {
		return
	}
	r := s.rng.Intn(s.totalWeight)
	for _, t := range s.tasks {
		if r < t.weight {
			t.fn(ctx)
			return
		}
		r -= t.weight
	}
}

// Stop deletes the user's store when cleanup is enabled; otherwise data
// is left behind for inspection.
func (s *Simple) Stop(ctx context.Context) {
	if s.sess.StoreKey == "" || !s.cfg.CleanupEnabled {
		return
	}
	if err := s.api.DeleteStore(ctx, s.sess.StoreKey); err != nil {
		s.logger.Warn("store cleanup failed",
			zap.String("store_id", s.sess.StoreKey), zap.Error(err))
	}
}

func (s *Simple) report(f *verify.Failure) {
	if f == nil {
		return
	}
	s.rep.Verification(f.Check, f.Message)
}

// prune404 untracks key when err is a 404 and reports whether it was.
func (s *Simple) prune404(key string, err error) bool {
	if !client.IsNotFound(err) {
		return false
	}
	s.sess.Untrack(key)
	return true
}

func (s *Simple) getRecord(ctx context.Context) {
	key, ok := s.sess.RandomRecordKey(s.rng)
	if !ok {
		return
	}
	rec, err := s.api.GetRecord(ctx, s.sess.StoreKey, key)
	if err != nil {
		s.prune404(key, err)
		return
	}
	if rec.RecordID != key {
		s.report(&verify.Failure{
			Check: verify.CheckRecordID,
			Message: fmt.Sprintf("fetched record id %q does not match requested key %q",
				rec.RecordID, key),
		})
	}
}

func (s *Simple) createRecord(ctx context.Context) {
	s.maybeCleanOldRecords(ctx)

	key := "rec_" + payload.RandomString(s.rng, 8)
	rec := s.newRecord(key)
	if _, err := s.api.CreateRecord(ctx, s.sess.StoreKey, rec); err != nil {
		return
	}
	s.sess.TrackRecord(key, s.now())
}

func (s *Simple) createBlobRecord(ctx context.Context) {
	key := "blob_" + payload.RandomString(s.rng, 8)
	rec := s.newRecord(key)
	if _, err := s.api.CreateRecord(ctx, s.sess.StoreKey, rec); err != nil {
		return
	}
	s.sess.TrackBlobRecord(key, s.now())

	data := payload.Blob(s.rng, s.cfg.BlobSizeKB)
	if err := s.api.UploadBlob(ctx, s.sess.StoreKey, key, "blob1", data); err != nil {
		if s.prune404(key, err) {
			return
		}
		return
	}
	s.digests[key+"/blob1"] = payload.Digest(data)
}

func (s *Simple) getBlobRecord(ctx context.Context) {
	key, ok := s.sess.RandomBlobRecordKey(s.rng)
	if !ok {
		return
	}
	rec, err := s.api.GetRecord(ctx, s.sess.StoreKey, key)
	if err != nil {
		s.prune404(key, err)
		return
	}

	blobID := pickBlobID(rec.BlobKeys, key)
	data, err := s.api.GetBlob(ctx, s.sess.StoreKey, key, blobID)
	if err != nil {
		s.prune404(key, err)
		return
	}
	if want, ok := s.digests[key+"/"+blobID]; ok {
		s.report(verify.BlobContent(key, want, payload.Digest(data)))
	}
}

func (s *Simple) updateRecord(ctx context.Context) {
	key, ok := s.sess.RandomRecordKey(s.rng)
	if !ok {
		return
	}
	update := &client.RecordUpdate{
		Properties: map[string]client.Property{
			"updated_prop": client.StringProperty(payload.RandomString(s.rng, 5)),
			"timestamp":    client.IntegerProperty(s.now().Unix()),
		},
	}
	if _, err := s.api.UpdateRecord(ctx, s.sess.StoreKey, key, update); err != nil {
		s.prune404(key, err)
	}
}

func (s *Simple) updateBlobRecord(ctx context.Context) {
	key, ok := s.sess.RandomBlobRecordKey(s.rng)
	if !ok {
		return
	}
	blobID := "blob_" + payload.RandomString(s.rng, 8)
	data := payload.Blob(s.rng, s.cfg.BlobSizeKB)
	if err := s.api.UploadBlob(ctx, s.sess.StoreKey, key, blobID, data); err != nil {
		s.prune404(key, err)
		return
	}
	s.digests[key+"/"+blobID] = payload.Digest(data)
}

func (s *Simple) queryByOwner(ctx context.Context) {
	records, err := s.api.QueryRecordsByOwner(ctx, s.sess.StoreKey, s.sess.OwnerID)
	if err != nil {
		return
	}
	s.report(verify.OwnerFilter(records, s.sess.OwnerID))
}

func (s *Simple) queryByGame(ctx context.Context) {
	gameID := s.cfg.GameIDs[s.rng.Intn(len(s.cfg.GameIDs))]
	records, err := s.api.QueryRecordsByGame(ctx, s.sess.StoreKey, gameID)
	if err != nil {
		return
	}
	s.report(verify.GameFilter(records, gameID))
}

// listRecords resynchronizes local tracking against the server and, at
// most once per VerifyInterval, verifies the cumulative created counts
// first.
func (s *Simple) listRecords(ctx context.Context) {
	records, err := s.api.ListRecords(ctx, s.sess.StoreKey)
	if err != nil {
		return
	}

	now := s.now()
	if now.Sub(s.sess.LastCountVerification) >= s.cfg.VerifyInterval {
		s.sess.LastCountVerification = now
		s.report(verify.RecordCount(s.sess.RecordsCreated, len(records)))
		blobs := 0
		for _, r := range records {
			if len(r.BlobKeys) > 0 {
				blobs++
			}
		}
		s.report(verify.BlobRecordCount(s.sess.BlobRecordsCreated, blobs))
	}

	var keys, blobKeys []string
	for _, r := range records {
		keys = append(keys, r.RecordID)
		if len(r.BlobKeys) > 0 {
			blobKeys = append(blobKeys, r.RecordID)
		}
	}
	s.sess.Resync(keys, blobKeys, now)
}

func (s *Simple) getStore(ctx context.Context) {
	got, err := s.api.GetStore(ctx, s.sess.StoreKey)
	if err != nil {
		return
	}
	s.report(verify.StoreDetails(&s.sentStore, got))
}

func (s *Simple) deleteRecord(ctx context.Context) {
	if s.rng.Float64() >= s.cfg.CleanupProbability {
		return
	}
	if len(s.sess.RecordKeys) <= s.cfg.MinRecordsBeforeDelete {
		return
	}
	key, _ := s.sess.RandomRecordKey(s.rng)
	err := s.api.DeleteRecord(ctx, s.sess.StoreKey, key)
	if err == nil || client.IsNotFound(err) {
		s.sess.Untrack(key)
	}
}

// maybeCleanOldRecords trims the oldest records back down to the
// minimum once tracking grows past MaxRecordsPerStore. Probabilistic so
// concurrent users do not all clean at once.
func (s *Simple) maybeCleanOldRecords(ctx context.Context) {
	if !s.cfg.CleanupEnabled {
		return
	}
	if len(s.sess.RecordKeys) <= s.cfg.MaxRecordsPerStore {
		return
	}
	if s.rng.Float64() >= s.cfg.CleanupProbability {
		return
	}
	n := len(s.sess.RecordKeys) - s.cfg.MinRecordsBeforeDelete
	for _, key := range s.sess.OldestRecordKeys(n) {
		err := s.api.DeleteRecord(ctx, s.sess.StoreKey, key)
		if err == nil || client.IsNotFound(err) {
			s.sess.Untrack(key)
		}
	}
}

func (s *Simple) newRecord(key string) *client.Record {
	return &client.Record{
		RecordID: key,
		OwnerID:  s.sess.OwnerID,
		GameID:   s.cfg.GameIDs[s.rng.Intn(len(s.cfg.GameIDs))],
		Tags:     []string{"load-test"},
		Properties: map[string]client.Property{
			"test_prop_1": client.StringProperty(payload.RandomString(s.rng, 5)),
			"test_prop_2": client.IntegerProperty(int64(s.rng.Intn(1000) + 1)),
		},
	}
}

// pickBlobID chooses which blob to download for a record: the
// conventional "blob1" if present, otherwise anything that looks like a
// blob key, otherwise the first key, falling back to the record key
// itself when the record reports none.
func pickBlobID(blobKeys []string, recordKey string) string {
	for _, k := range blobKeys {
		if k == "blob1" {
			return k
		}
	}
	for _, k := range blobKeys {
		if strings.Contains(k, "blob") {
			return k
		}
	}
	if len(blobKeys) > 0 {
		return blobKeys[0]
	}
	return recordKey
}
