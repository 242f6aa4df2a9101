// Package verify implements the content checks the simple driver runs
// against server responses. A failed check produces one Failure, which
// the driver reports as a synthetic failure event; execution continues.
package verify

import (
	"fmt"
	"strings"

	"github.com/opensaves/savesbench/internal/client"
)

// Check names, used as the event label on synthetic failures.
const (
	CheckRecordID        = "Record ID Verification"
	CheckRecordCount     = "Record Count Verification"
	CheckBlobRecordCount = "Blob Record Count Verification"
	CheckStoreDetails    = "Store Details Verification"
	CheckOwnerQuery      = "Owner ID Query Verification"
	CheckGameQuery       = "Game ID Query Verification"
	CheckBlobContent     = "Blob Content Verification"
	CheckSchema          = "Schema Verification"
)

// maxListedMismatches caps how many offending records a query failure
// message names before collapsing to "... and N more".
const maxListedMismatches = 5

// Failure is one verification mismatch.
type Failure struct {
	Check   string
	Message string
}

// RecordCount compares the locally tracked record count against the
// server-reported one.
func RecordCount(local, server int) *Failure {
	if local == server {
		return nil
	}
	return &Failure{
		Check: CheckRecordCount,
		Message: fmt.Sprintf("record count mismatch: server has %d records, client created %d",
			server, local),
	}
}

// BlobRecordCount compares blob-bearing record counts.
func BlobRecordCount(local, server int) *Failure {
	if local == server {
		return nil
	}
	return &Failure{
		Check: CheckBlobRecordCount,
		Message: fmt.Sprintf("blob record count mismatch: server has %d records with blobs, client created %d",
			server, local),
	}
}

// StoreDetails checks that a fetched store exactly matches the three
// fields sent at creation. All mismatched fields are folded into one
// Failure so a bad fetch raises exactly one event.
func StoreDetails(sent, got *client.Store) *Failure {
	var mismatches []string
	if got.StoreID != sent.StoreID {
		mismatches = append(mismatches,
			fmt.Sprintf("store_id: expected %q, got %q", sent.StoreID, got.StoreID))
	}
	if got.Name != sent.Name {
		mismatches = append(mismatches,
			fmt.Sprintf("name: expected %q, got %q", sent.Name, got.Name))
	}
	if got.OwnerID != sent.OwnerID {
		mismatches = append(mismatches,
			fmt.Sprintf("owner_id: expected %q, got %q", sent.OwnerID, got.OwnerID))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &Failure{
		Check:   CheckStoreDetails,
		Message: "store details mismatch: " + strings.Join(mismatches, ", "),
	}
}

// OwnerFilter checks that every record returned by an owner_id query
// actually has that owner. Violations are aggregated into one Failure.
func OwnerFilter(records []client.Record, ownerID string) *Failure {
	return filterMismatch(records, CheckOwnerQuery, "owner_id", ownerID,
		func(r client.Record) string { return r.OwnerID })
}

// GameFilter checks that every record returned by a game_id query
// actually has that game id.
func GameFilter(records []client.Record, gameID string) *Failure {
	return filterMismatch(records, CheckGameQuery, "game_id", gameID,
		func(r client.Record) string { return r.GameID })
}

// BlobContent compares a downloaded blob's digest against the digest
// recorded at upload time.
func BlobContent(recordID, wantDigest, gotDigest string) *Failure {
	if wantDigest == gotDigest {
		return nil
	}
	return &Failure{
		Check: CheckBlobContent,
		Message: fmt.Sprintf("blob content mismatch for record %s: uploaded digest %s, downloaded digest %s",
			recordID, wantDigest, gotDigest),
	}
}

func filterMismatch(records []client.Record, check, field, want string, get func(client.Record) string) *Failure {
	var mismatched []string
	for _, r := range records {
		if got := get(r); got != want {
			mismatched = append(mismatched,
				fmt.Sprintf("record %s has %s %q instead of %q", r.RecordID, field, got, want))
		}
	}
	if len(mismatched) == 0 {
		return nil
	}

	msg := fmt.Sprintf("%s query mismatch: %d of %d records have incorrect %s\n",
		field, len(mismatched), len(records), field)
	listed := mismatched
	if len(listed) > maxListedMismatches {
		listed = listed[:maxListedMismatches]
	}
	msg += strings.Join(listed, "\n")
	if extra := len(mismatched) - maxListedMismatches; extra > 0 {
		msg += fmt.Sprintf("\n... and %d more", extra)
	}
	return &Failure{Check: check, Message: msg}
}
