package fakeserver

import "github.com/opensaves/savesbench/internal/client"

// Seed and mutate helpers let tests change server state behind a
// driver's back to provoke verification mismatches.

// SeedRecord inserts a record directly, bypassing the HTTP surface.
func (s *Server) SeedRecord(storeID string, record client.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[storeID]
	if !ok {
		st = &storeState{
			store:   client.Store{StoreID: storeID},
			records: make(map[string]*recordState),
		}
		s.stores[storeID] = st
	}
	st.records[record.RecordID] = &recordState{
		record: record,
		blobs:  make(map[string][]byte),
	}
}

// RenameStore rewrites a store's display name in place.
func (s *Server) RenameStore(storeID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[storeID]; ok {
		st.store.Name = name
	}
}

// SetRecordOwner rewrites a record's owner in place.
func (s *Server) SetRecordOwner(storeID, recordID, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[storeID]; ok {
		if rs, ok := st.records[recordID]; ok {
			rs.record.OwnerID = ownerID
		}
	}
}

// BreakQueryFilters makes record listing ignore owner_id and game_id
// filters, returning every record in the store.
func (s *Server) BreakQueryFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokenFilters = true
}

// RecordCount returns how many records a store holds.
func (s *Server) RecordCount(storeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[storeID]; ok {
		return len(st.records)
	}
	return 0
}
