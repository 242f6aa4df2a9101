package verify

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensaves/savesbench/internal/client"
)

func TestStoreDetails(t *testing.T) {
	sent := &client.Store{StoreID: "s1", Name: "Load Test Store abc", OwnerID: "abc_owner"}

	t.Run("exact match passes", func(t *testing.T) {
		got := *sent
		assert.Nil(t, StoreDetails(sent, &got))
	})

	t.Run("single mismatch names the field", func(t *testing.T) {
		got := *sent
		got.Name = "tampered"
		f := StoreDetails(sent, &got)
		require.NotNil(t, f)
		assert.Equal(t, CheckStoreDetails, f.Check)
		assert.Contains(t, f.Message, "name:")
		assert.NotContains(t, f.Message, "owner_id:")
	})

	t.Run("multiple mismatches fold into one failure", func(t *testing.T) {
		got := client.Store{StoreID: "other", Name: "other", OwnerID: "other"}
		f := StoreDetails(sent, &got)
		require.NotNil(t, f)
		assert.Contains(t, f.Message, "store_id:")
		assert.Contains(t, f.Message, "name:")
		assert.Contains(t, f.Message, "owner_id:")
	})
}

func TestOwnerFilter(t *testing.T) {
	t.Run("all matching passes", func(t *testing.T) {
		records := []client.Record{
			{RecordID: "r1", OwnerID: "alice"},
			{RecordID: "r2", OwnerID: "alice"},
		}
		assert.Nil(t, OwnerFilter(records, "alice"))
	})

	t.Run("empty result passes", func(t *testing.T) {
		assert.Nil(t, OwnerFilter(nil, "alice"))
	})

	t.Run("violations aggregate into one failure", func(t *testing.T) {
		records := []client.Record{
			{RecordID: "r1", OwnerID: "alice"},
			{RecordID: "r2", OwnerID: "bob"},
			{RecordID: "r3", OwnerID: "carol"},
		}
		f := OwnerFilter(records, "alice")
		require.NotNil(t, f)
		assert.Equal(t, CheckOwnerQuery, f.Check)
		assert.Contains(t, f.Message, "2 of 3 records")
		assert.Contains(t, f.Message, "record r2")
		assert.Contains(t, f.Message, "record r3")
	})

	t.Run("lists at most five offenders", func(t *testing.T) {
		var records []client.Record
		for i := 0; i < 9; i++ {
			records = append(records, client.Record{
				RecordID: fmt.Sprintf("r%d", i), OwnerID: "intruder",
			})
		}
		f := OwnerFilter(records, "alice")
		require.NotNil(t, f)
		assert.Contains(t, f.Message, "... and 4 more")
		assert.Equal(t, 5, strings.Count(f.Message, "instead of"))
	})
}

func TestGameFilter(t *testing.T) {
	records := []client.Record{
		{RecordID: "r1", GameID: "game_1"},
		{RecordID: "r2", GameID: "game_2"},
	}
	f := GameFilter(records, "game_1")
	require.NotNil(t, f)
	assert.Equal(t, CheckGameQuery, f.Check)
	assert.Contains(t, f.Message, `game_id "game_2"`)
}

func TestRecordCount(t *testing.T) {
	assert.Nil(t, RecordCount(7, 7))

	f := RecordCount(7, 9)
	require.NotNil(t, f)
	assert.Equal(t, CheckRecordCount, f.Check)
	assert.Contains(t, f.Message, "server has 9")
	assert.Contains(t, f.Message, "client created 7")
}

func TestBlobRecordCount(t *testing.T) {
	assert.Nil(t, BlobRecordCount(3, 3))
	f := BlobRecordCount(3, 1)
	require.NotNil(t, f)
	assert.Equal(t, CheckBlobRecordCount, f.Check)
}

func TestBlobContent(t *testing.T) {
	assert.Nil(t, BlobContent("r1", "abc", "abc"))
	f := BlobContent("r1", "abc", "def")
	require.NotNil(t, f)
	assert.Equal(t, CheckBlobContent, f.Check)
	assert.Contains(t, f.Message, "record r1")
}
