// Package driver implements the simulated-user behaviors: a simple
// profile with one flat weighted task set, and a structured profile
// with four independent task groups.
package driver

import (
	"context"
	"math/rand"
	"time"
)

// User is one simulated user. The runner calls Start once, Step in a
// loop with think time between calls, then Stop.
type User interface {
	Start(ctx context.Context) error
	Step(ctx context.Context)
	Stop(ctx context.Context)
}

// Reporter receives synthetic verification failures. Reports are
// fire-and-forget; the user keeps executing.
type Reporter interface {
	Verification(check, message string)
}

// Session is one user's private bookkeeping: a best-effort cache of
// server state, resynchronized on list calls and pruned on 404. The
// zero value is ready to use.
type Session struct {
	StoreKey  string
	StoreName string
	OwnerID   string

	RecordKeys          []string
	BlobRecordKeys      []string
	RecordCreationTimes map[string]time.Time

	RecordsCreated     int
	BlobRecordsCreated int

	LastCountVerification time.Time
}

// TrackRecord registers a successfully created record.
func (s *Session) TrackRecord(key string, now time.Time) {
	s.RecordKeys = append(s.RecordKeys, key)
	if s.RecordCreationTimes == nil {
		s.RecordCreationTimes = make(map[string]time.Time)
	}
	s.RecordCreationTimes[key] = now
	s.RecordsCreated++
}

// TrackBlobRecord additionally registers the record in the blob set.
func (s *Session) TrackBlobRecord(key string, now time.Time) {
	s.TrackRecord(key, now)
	s.BlobRecordKeys = append(s.BlobRecordKeys, key)
	s.BlobRecordsCreated++
}

// Untrack removes a key from both lists and the creation-time map,
// after a delete or a 404. The created counters roll back with it so
// count verification keeps matching a server that honored the removal.
func (s *Session) Untrack(key string) {
	if contains(s.RecordKeys, key) {
		s.RecordsCreated--
	}
	if contains(s.BlobRecordKeys, key) {
		s.BlobRecordsCreated--
	}
	s.RecordKeys = remove(s.RecordKeys, key)
	s.BlobRecordKeys = remove(s.BlobRecordKeys, key)
	delete(s.RecordCreationTimes, key)
}

// Tracks reports whether key is in the record list.
func (s *Session) Tracks(key string) bool {
	for _, k := range s.RecordKeys {
		if k == key {
			return true
		}
	}
	return false
}

// RandomRecordKey picks a tracked record at random; ok is false when
// nothing is tracked.
func (s *Session) RandomRecordKey(rng *rand.Rand) (string, bool) {
	if len(s.RecordKeys) == 0 {
		return "", false
	}
	return s.RecordKeys[rng.Intn(len(s.RecordKeys))], true
}

// RandomBlobRecordKey picks a blob-bearing record at random.
func (s *Session) RandomBlobRecordKey(rng *rand.Rand) (string, bool) {
	if len(s.BlobRecordKeys) == 0 {
		return "", false
	}
	return s.BlobRecordKeys[rng.Intn(len(s.BlobRecordKeys))], true
}

// OldestRecordKeys returns up to n tracked keys ordered oldest first.
func (s *Session) OldestRecordKeys(n int) []string {
	keys := make([]string, len(s.RecordKeys))
	copy(keys, s.RecordKeys)
	// Insertion sort by creation time; lists stay small.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && s.creationTime(keys[j]).Before(s.creationTime(keys[j-1])); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	if n < len(keys) {
		keys = keys[:n]
	}
	return keys
}

func (s *Session) creationTime(key string) time.Time {
	if t, ok := s.RecordCreationTimes[key]; ok {
		return t
	}
	// Unknown creation time sorts last, matching "never clean up what
	// we cannot age".
	return time.Unix(1<<60, 0)
}

// Resync replaces local tracking with server truth: keys unknown to
// the server are dropped, server-only keys are adopted with a fresh
// creation time.
func (s *Session) Resync(serverKeys, serverBlobKeys []string, now time.Time) {
	known := make(map[string]bool, len(serverKeys))
	for _, k := range serverKeys {
		known[k] = true
	}
	blob := make(map[string]bool, len(serverBlobKeys))
	for _, k := range serverBlobKeys {
		blob[k] = true
	}

	kept := s.RecordKeys[:0]
	for _, k := range s.RecordKeys {
		if known[k] {
			kept = append(kept, k)
		} else {
			delete(s.RecordCreationTimes, k)
		}
	}
	s.RecordKeys = kept

	keptBlobs := s.BlobRecordKeys[:0]
	for _, k := range s.BlobRecordKeys {
		if blob[k] {
			keptBlobs = append(keptBlobs, k)
		}
	}
	s.BlobRecordKeys = keptBlobs

	if s.RecordCreationTimes == nil {
		s.RecordCreationTimes = make(map[string]time.Time)
	}
	for _, k := range serverKeys {
		if !s.Tracks(k) {
			s.RecordKeys = append(s.RecordKeys, k)
			s.RecordCreationTimes[k] = now
		}
	}
	for _, k := range serverBlobKeys {
		if !contains(s.BlobRecordKeys, k) {
			s.BlobRecordKeys = append(s.BlobRecordKeys, k)
		}
	}
}

func remove(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
