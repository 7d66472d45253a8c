package migrations

import (
	"github.com/GurakG/Enclave-PSSC/model"
	"github.com/GurakG/Enclave-PSSC/storage"
)

// BackfillOracleLastSeen sets LastSeenAt on oracle entries written before the
// heartbeat field existed. Entries without it would otherwise read as never
// seen and could be treated as dead by future liveness pruning.
func BackfillOracleLastSeen(db storage.Storage) (int, error) {
	kvs, err := db.GetByPrefix([]byte("oracle:"))
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, kv := range kvs {
		entry, err := model.OracleEntryFromJSON(kv.Value)
		if err != nil {
			// undecodable entries are skipped, same as the registry does
			continue
		}

		if entry.LastSeenAt != 0 {
			continue
		}

		entry.LastSeenAt = entry.RegisteredAt
		data, err := entry.ToJSON()
		if err != nil {
			return updated, err
		}

		if err := db.Set(kv.Key, data); err != nil {
			return updated, err
		}
		updated++
	}

	return updated, nil
}
