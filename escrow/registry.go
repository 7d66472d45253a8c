package escrow

import (
	"time"

	"github.com/GurakG/Enclave-PSSC/model"
	"github.com/GurakG/Enclave-PSSC/storage"
)

var oraclePrefix = []byte("oracle:")

// OracleRegistry tracks the known oracle identities the orchestrator fans
// out to. Empty is a valid, common state.
type OracleRegistry struct {
	db    storage.Storage
	locks *storage.KeyLock
}

func NewOracleRegistry(db storage.Storage) *OracleRegistry {
	return &OracleRegistry{
		db:    db,
		locks: storage.NewKeyLock(),
	}
}

// Register stores a new oracle entry and returns true. A duplicate key is a
// reported no-op returning false: the identity and delivery fields of the
// existing entry are untouched, only the heartbeat timestamp moves.
func (r *OracleRegistry) Register(key, address, routingHint string) (bool, error) {
	registered := false
	now := time.Now().UnixMilli()

	err := r.locks.WithLock(key, func() error {
		dbKey := r.key(key)

		existing, err := r.db.GetKey(dbKey)
		if err == nil {
			entry, decodeErr := model.OracleEntryFromJSON(existing)
			if decodeErr != nil {
				return decodeErr
			}

			entry.LastSeenAt = now
			data, encodeErr := entry.ToJSON()
			if encodeErr != nil {
				return encodeErr
			}
			return r.db.Set(dbKey, data)
		}
		if err != storage.ErrKeyNotFound {
			return err
		}

		entry := &model.OracleEntry{
			Key:          key,
			Address:      address,
			RoutingHint:  routingHint,
			RegisteredAt: now,
			LastSeenAt:   now,
		}

		data, encodeErr := entry.ToJSON()
		if encodeErr != nil {
			return encodeErr
		}

		written, setErr := r.db.SetIfAbsent(dbKey, data)
		if setErr != nil {
			return setErr
		}
		registered = written
		return nil
	})

	return registered, err
}

// ListAll returns every registered oracle. Entries that fail to decode are
// skipped rather than failing the fan-out.
func (r *OracleRegistry) ListAll() []*model.OracleEntry {
	var entries []*model.OracleEntry

	kvs, err := r.db.GetByPrefix(oraclePrefix)
	if err != nil {
		return entries
	}

	for _, kv := range kvs {
		entry, err := model.OracleEntryFromJSON(kv.Value)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries
}

func (r *OracleRegistry) Count() int64 {
	n, err := r.db.CountKeysByPrefix(oraclePrefix)
	if err != nil {
		return 0
	}
	return n
}

func (r *OracleRegistry) key(k string) []byte {
	return append(oraclePrefix, []byte(k)...)
}
