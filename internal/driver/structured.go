package driver

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/client"
	"github.com/opensaves/savesbench/internal/config"
	"github.com/opensaves/savesbench/internal/payload"
)

// Structured is the grouped-profile user: four independent task groups
// (store, record, blob, metadata), each with its own resources and
// created-gates so reads never race their own setup.
type Structured struct {
	cfg    config.StructuredConfig
	api    *client.Client
	logger *zap.Logger
	rng    *rand.Rand

	store    storeGroup
	record   recordGroup
	blob     blobGroup
	metadata metadataGroup

	groups      []weightedTask
	totalWeight int
}

// NewStructured builds a structured-profile user.
func NewStructured(cfg config.StructuredConfig, api *client.Client, logger *zap.Logger, seed int64) *Structured {
	s := &Structured{
		cfg:    cfg,
		api:    api,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)), // #nosec G404 - load generation, not crypto
	}
	s.groups = []weightedTask{
		{cfg.StoreWeight, "store", s.stepStore},
		{cfg.RecordWeight, "record", s.stepRecord},
		{cfg.BlobWeight, "blob", s.stepBlob},
		{cfg.MetadataWeight, "metadata", s.stepMetadata},
	}
	for _, g := range s.groups {
		s.totalWeight += g.weight
	}
	return s
}

type storeGroup struct {
	storeID string
	created bool
}

type recordGroup struct {
	storeID       string
	recordID      string
	storeCreated  bool
	recordCreated bool
}

type blobGroup struct {
	storeID       string
	recordID      string
	blobID        string
	recordCreated bool
	blobUploaded  bool
}

type metadataGroup struct {
	metadataID string
	created    bool
}

// Start provisions each group's resources up front. Partial failures
// are tolerated: a group whose setup failed retries it on its next
// scheduled step.
func (s *Structured) Start(ctx context.Context) error {
	s.store.storeID = "struct_store_" + uuid.NewString()[:8]
	s.record.storeID = "struct_recstore_" + uuid.NewString()[:8]
	s.record.recordID = "struct_record_" + uuid.NewString()[:8]
	s.blob.storeID = "struct_blobstore_" + uuid.NewString()[:8]
	s.blob.recordID = "struct_blobrec_" + uuid.NewString()[:8]
	s.blob.blobID = "blob1"
	s.metadata.metadataID = "struct_meta_" + uuid.NewString()[:8]

	s.ensureStore(ctx)
	s.ensureRecord(ctx)
	s.ensureBlobRecord(ctx)
	s.ensureMetadata(ctx)
	return nil
}

// Step picks a group by weight and runs one of its tasks.
func (s *Structured) Step(ctx context.Context) {
	if s.totalWeight == 0 {
		return
	}
	r := s.rng.Intn(s.totalWeight)
	for _, g := range s.groups {
		if r < g.weight {
			g.fn(ctx)
			return
		}
		r -= g.weight
	}
}

// Stop tears down each group's resources when cleanup is enabled.
func (s *Structured) Stop(ctx context.Context) {
	if !s.cfg.CleanupEnabled {
		return
	}
	if s.metadata.created {
		s.warnErr(s.api.DeleteMetadata(ctx, s.metadata.metadataID), "delete metadata")
	}
	if s.blob.recordCreated {
		s.warnErr(s.api.DeleteStore(ctx, s.blob.storeID), "delete blob store")
	}
	if s.record.storeCreated {
		s.warnErr(s.api.DeleteStore(ctx, s.record.storeID), "delete record store")
	}
	if s.store.created {
		s.warnErr(s.api.DeleteStore(ctx, s.store.storeID), "delete store")
	}
}

func (s *Structured) warnErr(err error, op string) {
	if err != nil && !client.IsNotFound(err) {
		s.logger.Warn("failed to "+op, zap.Error(err))
	}
}

// Store group: get 3, list 1.

func (s *Structured) ensureStore(ctx context.Context) {
	if s.store.created {
		return
	}
	_, err := s.api.CreateStore(ctx, &client.Store{
		StoreID: s.store.storeID,
		Name:    "Structured Store " + s.store.storeID,
		OwnerID: "structured_owner",
	})
	if err != nil {
		s.warnErr(err, "create store")
		return
	}
	s.store.created = true
}

func (s *Structured) stepStore(ctx context.Context) {
	s.ensureStore(ctx)
	if !s.store.created {
		return
	}
	if s.rng.Intn(4) < 3 {
		_, err := s.api.GetStore(ctx, s.store.storeID)
		s.warnErr(err, "get store")
	} else {
		_, err := s.api.ListStores(ctx)
		s.warnErr(err, "list stores")
	}
}

// Record group: get 5, patch 2, query 1.

func (s *Structured) ensureRecord(ctx context.Context) {
	if !s.record.storeCreated {
		_, err := s.api.CreateStore(ctx, &client.Store{
			StoreID: s.record.storeID,
			Name:    "Structured Record Store",
			OwnerID: "structured_owner",
		})
		if err != nil {
			s.warnErr(err, "create record store")
			return
		}
		s.record.storeCreated = true
	}
	if !s.record.recordCreated {
		_, err := s.api.CreateRecord(ctx, s.record.storeID, &client.Record{
			RecordID: s.record.recordID,
			OwnerID:  "structured_owner",
			GameID:   "structured_game",
			Tags:     []string{"structured", "load-test"},
			Properties: map[string]client.Property{
				"level": client.IntegerProperty(int64(s.rng.Intn(100) + 1)),
				"name":  client.StringProperty("player_" + payload.RandomString(s.rng, 5)),
			},
		})
		if err != nil {
			s.warnErr(err, "create record")
			return
		}
		s.record.recordCreated = true
	}
}

func (s *Structured) stepRecord(ctx context.Context) {
	s.ensureRecord(ctx)
	if !s.record.recordCreated {
		return
	}
	switch p := s.rng.Intn(8); {
	case p < 5:
		_, err := s.api.GetRecord(ctx, s.record.storeID, s.record.recordID)
		s.warnErr(err, "get record")
	case p < 7:
		_, err := s.api.PatchRecord(ctx, s.record.storeID, s.record.recordID, &client.RecordUpdate{
			Properties: map[string]client.Property{
				"level":      client.IntegerProperty(int64(s.rng.Intn(100) + 1)),
				"updated_at": client.IntegerProperty(time.Now().Unix()),
			},
		})
		s.warnErr(err, "patch record")
	default:
		_, err := s.api.QueryRecordsByOwner(ctx, s.record.storeID, "structured_owner")
		s.warnErr(err, "query records")
	}
}

// Blob group: upload 2, get 4, list 1.

func (s *Structured) ensureBlobRecord(ctx context.Context) {
	if s.blob.recordCreated {
		return
	}
	_, err := s.api.CreateStore(ctx, &client.Store{
		StoreID: s.blob.storeID,
		Name:    "Structured Blob Store",
		OwnerID: "structured_owner",
	})
	if err != nil {
		s.warnErr(err, "create blob store")
		return
	}
	_, err = s.api.CreateRecord(ctx, s.blob.storeID, &client.Record{
		RecordID: s.blob.recordID,
		OwnerID:  "structured_owner",
		GameID:   "structured_game",
		Tags:     []string{"structured", "blob"},
	})
	if err != nil {
		s.warnErr(err, "create blob record")
		return
	}
	s.blob.recordCreated = true
}

func (s *Structured) stepBlob(ctx context.Context) {
	s.ensureBlobRecord(ctx)
	if !s.blob.recordCreated {
		return
	}
	switch p := s.rng.Intn(7); {
	case p < 2:
		data := payload.Blob(s.rng, 16)
		err := s.api.UploadBlob(ctx, s.blob.storeID, s.blob.recordID, s.blob.blobID, data)
		if err != nil {
			s.warnErr(err, "upload blob")
			return
		}
		s.blob.blobUploaded = true
	case p < 6:
		if !s.blob.blobUploaded {
			return
		}
		_, err := s.api.GetBlob(ctx, s.blob.storeID, s.blob.recordID, s.blob.blobID)
		s.warnErr(err, "get blob")
	default:
		_, err := s.api.ListBlobs(ctx, s.blob.storeID, s.blob.recordID)
		s.warnErr(err, "list blobs")
	}
}

// Metadata group: get 5, update 2.

func (s *Structured) ensureMetadata(ctx context.Context) {
	if s.metadata.created {
		return
	}
	err := s.api.CreateMetadata(ctx, s.metadata.metadataID, &client.Metadata{
		Version: "1",
		Properties: map[string]any{
			"environment": "load-test",
			"created_by":  "savesbench",
		},
	})
	if err != nil {
		s.warnErr(err, "create metadata")
		return
	}
	s.metadata.created = true
}

func (s *Structured) stepMetadata(ctx context.Context) {
	s.ensureMetadata(ctx)
	if !s.metadata.created {
		return
	}
	if s.rng.Intn(7) < 5 {
		_, err := s.api.GetMetadata(ctx, s.metadata.metadataID)
		s.warnErr(err, "get metadata")
	} else {
		err := s.api.UpdateMetadata(ctx, s.metadata.metadataID, &client.Metadata{
			Version: "1",
			Properties: map[string]any{
				"environment": "load-test",
				"updated_at":  time.Now().UTC().Format(time.RFC3339),
			},
		})
		s.warnErr(err, "update metadata")
	}
}
