package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GurakG/Enclave-PSSC/model"
	"github.com/GurakG/Enclave-PSSC/storage"
)

func TestBackfillOracleLastSeen(t *testing.T) {
	db, err := storage.New(&storage.Config{InMemory: true})
	require.NoError(t, err)
	defer db.Close()

	stale := &model.OracleEntry{Key: "old", Address: "addr-old", RegisteredAt: 1000}
	fresh := &model.OracleEntry{Key: "new", Address: "addr-new", RegisteredAt: 2000, LastSeenAt: 2500}

	for _, entry := range []*model.OracleEntry{stale, fresh} {
		data, err := entry.ToJSON()
		require.NoError(t, err)
		require.NoError(t, db.Set([]byte("oracle:"+entry.Key), data))
	}
	require.NoError(t, db.Set([]byte("oracle:junk"), []byte("not json")))

	updated, err := BackfillOracleLastSeen(db)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	data, err := db.GetKey([]byte("oracle:old"))
	require.NoError(t, err)
	got, err := model.OracleEntryFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.LastSeenAt, "must be backfilled from RegisteredAt")

	data, err = db.GetKey([]byte("oracle:new"))
	require.NoError(t, err)
	got, err = model.OracleEntryFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.LastSeenAt, "existing heartbeat must be untouched")
}
