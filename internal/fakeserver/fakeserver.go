// Package fakeserver is an in-memory implementation of the Open Saves
// HTTP surface. It backs package tests and the `savesbench fakeserver`
// command for local runs; it is not the service under test.
package fakeserver

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/client"
)

type recordState struct {
	record client.Record
	blobs  map[string][]byte
}

type storeState struct {
	store   client.Store
	records map[string]*recordState
}

// Server holds all state behind one mutex; contention is irrelevant at
// fake-server scale.
type Server struct {
	logger *zap.Logger
	router *mux.Router

	mu            sync.Mutex
	stores        map[string]*storeState
	metadata      map[string]*client.Metadata
	brokenFilters bool
}

// New creates a fake server with empty state.
func New(logger *zap.Logger) *Server {
	s := &Server{
		logger:   logger,
		stores:   make(map[string]*storeState),
		metadata: make(map[string]*client.Metadata),
	}
	s.router = mux.NewRouter()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler for use with httptest or http.Serve.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/api/stores", s.handleCreateStore).Methods(http.MethodPost)
	r.HandleFunc("/api/stores", s.handleListStores).Methods(http.MethodGet)
	r.HandleFunc("/api/stores/{storeID}", s.handleGetStore).Methods(http.MethodGet)
	r.HandleFunc("/api/stores/{storeID}", s.handleDeleteStore).Methods(http.MethodDelete)

	r.HandleFunc("/api/stores/{storeID}/records", s.handleCreateRecord).Methods(http.MethodPost)
	r.HandleFunc("/api/stores/{storeID}/records", s.handleListRecords).Methods(http.MethodGet)
	r.HandleFunc("/api/stores/{storeID}/records/{recordID}", s.handleGetRecord).Methods(http.MethodGet)
	r.HandleFunc("/api/stores/{storeID}/records/{recordID}", s.handleUpdateRecord).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/api/stores/{storeID}/records/{recordID}", s.handleDeleteRecord).Methods(http.MethodDelete)

	r.HandleFunc("/api/stores/{storeID}/records/{recordID}/blobs", s.handleListBlobs).Methods(http.MethodGet)
	r.HandleFunc("/api/stores/{storeID}/records/{recordID}/blobs/{blobID}", s.handleUploadBlob).Methods(http.MethodPut)
	r.HandleFunc("/api/stores/{storeID}/records/{recordID}/blobs/{blobID}", s.handleGetBlob).Methods(http.MethodGet)
	r.HandleFunc("/api/stores/{storeID}/records/{recordID}/blobs/{blobID}", s.handleDeleteBlob).Methods(http.MethodDelete)

	r.HandleFunc("/api/metadata/{metadataID}", s.handleCreateMetadata).Methods(http.MethodPost)
	r.HandleFunc("/api/metadata/{metadataID}", s.handleGetMetadata).Methods(http.MethodGet)
	r.HandleFunc("/api/metadata/{metadataID}", s.handleUpdateMetadata).Methods(http.MethodPut)
	r.HandleFunc("/api/metadata/{metadataID}", s.handleDeleteMetadata).Methods(http.MethodDelete)
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var store client.Store
	if err := json.NewDecoder(r.Body).Decode(&store); err != nil || store.StoreID == "" {
		writeError(w, http.StatusBadRequest, "invalid store payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.stores[store.StoreID]; exists {
		writeError(w, http.StatusConflict, "store already exists")
		return
	}
	s.stores[store.StoreID] = &storeState{
		store:   store,
		records: make(map[string]*recordState),
	}
	writeJSON(w, http.StatusCreated, store)
}

func (s *Server) handleListStores(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stores := make([]client.Store, 0, len(s.stores))
	for _, st := range s.stores {
		stores = append(stores, st.store)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[mux.Vars(r)["storeID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	writeJSON(w, http.StatusOK, st.store)
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["storeID"]
	if _, ok := s.stores[id]; !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	delete(s.stores, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var record client.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil || record.RecordID == "" {
		writeError(w, http.StatusBadRequest, "invalid record payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[mux.Vars(r)["storeID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	if _, exists := st.records[record.RecordID]; exists {
		writeError(w, http.StatusConflict, "record already exists")
		return
	}
	st.records[record.RecordID] = &recordState{
		record: record,
		blobs:  make(map[string][]byte),
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[mux.Vars(r)["storeID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}

	ownerID := r.URL.Query().Get("owner_id")
	gameID := r.URL.Query().Get("game_id")

	records := make([]client.Record, 0, len(st.records))
	for _, rs := range st.records {
		if s.brokenFilters {
			records = append(records, withBlobKeys(rs))
			continue
		}
		if ownerID != "" && rs.record.OwnerID != ownerID {
			continue
		}
		if gameID != "" && rs.record.GameID != gameID {
			continue
		}
		records = append(records, withBlobKeys(rs))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.lookupRecord(r)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, withBlobKeys(rs))
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var update client.RecordUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid record payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.lookupRecord(r)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if update.Properties != nil {
		rs.record.Properties = update.Properties
	}
	if update.Tags != nil {
		rs.record.Tags = update.Tags
	}
	writeJSON(w, http.StatusOK, withBlobKeys(rs))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := mux.Vars(r)
	st, ok := s.stores[vars["storeID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	if _, ok := st.records[vars["recordID"]]; !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	delete(st.records, vars["recordID"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.lookupRecord(r)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	keys := make([]string, 0, len(rs.blobs))
	for k := range rs.blobs {
		keys = append(keys, k)
	}
	writeJSON(w, http.StatusOK, map[string]any{"blob_keys": keys})
}

func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read blob body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.lookupRecord(r)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	blobID := mux.Vars(r)["blobID"]
	_, existed := rs.blobs[blobID]
	rs.blobs[blobID] = data

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"blob_id": blobID, "size": len(data)})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.lookupRecord(r)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	data, ok := rs.blobs[mux.Vars(r)["blobID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "blob not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.lookupRecord(r)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	blobID := mux.Vars(r)["blobID"]
	if _, ok := rs.blobs[blobID]; !ok {
		writeError(w, http.StatusNotFound, "blob not found")
		return
	}
	delete(rs.blobs, blobID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateMetadata(w http.ResponseWriter, r *http.Request) {
	var meta client.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["metadataID"]
	if _, exists := s.metadata[id]; exists {
		writeError(w, http.StatusConflict, "metadata already exists")
		return
	}
	s.metadata[id] = &meta
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.metadata[mux.Vars(r)["metadataID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "metadata not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var meta client.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["metadataID"]
	if _, ok := s.metadata[id]; !ok {
		writeError(w, http.StatusNotFound, "metadata not found")
		return
	}
	s.metadata[id] = &meta
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDeleteMetadata(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["metadataID"]
	if _, ok := s.metadata[id]; !ok {
		writeError(w, http.StatusNotFound, "metadata not found")
		return
	}
	delete(s.metadata, id)
	w.WriteHeader(http.StatusNoContent)
}

// lookupRecord must be called with s.mu held.
func (s *Server) lookupRecord(r *http.Request) (*recordState, bool) {
	vars := mux.Vars(r)
	st, ok := s.stores[vars["storeID"]]
	if !ok {
		return nil, false
	}
	rs, ok := st.records[vars["recordID"]]
	return rs, ok
}

func withBlobKeys(rs *recordState) client.Record {
	record := rs.record
	if len(rs.blobs) > 0 {
		keys := make([]string, 0, len(rs.blobs))
		for k := range rs.blobs {
			keys = append(keys, k)
		}
		record.BlobKeys = keys
	}
	return record
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
