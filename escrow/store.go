package escrow

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/GurakG/Enclave-PSSC/core/conditions"
	"github.com/GurakG/Enclave-PSSC/model"
	"github.com/GurakG/Enclave-PSSC/storage"
)

var secretPrefix = []byte("secret:")

// Secret ids and correlation ids live in distinct keyspaces so they cannot
// collide when carried over the same correlation channel.
const secretIDPrefix = "sec_"

// SecretStore owns the deposited records. There is no update or delete:
// records are immutable and never expire in the current design.
type SecretStore struct {
	db    storage.Storage
	locks *storage.KeyLock
}

func NewSecretStore(db storage.Storage) *SecretStore {
	return &SecretStore{
		db:    db,
		locks: storage.NewKeyLock(),
	}
}

// NewSecretID generates a fresh identifier that was never issued before.
// ULIDs give us that without coordination.
func NewSecretID() string {
	return secretIDPrefix + ulid.Make().String()
}

// Store persists the payload under a fresh id and returns it. The condition
// is kept in its tagged wire form; callers validate it before depositing.
func (s *SecretStore) Store(payload []byte, condition json.RawMessage) (string, error) {
	id := NewSecretID()

	record := &model.SecretRecord{
		ID:        id,
		Payload:   payload,
		Condition: condition,
		CreatedAt: time.Now().UnixMilli(),
	}

	data, err := record.ToJSON()
	if err != nil {
		return "", err
	}

	err = s.locks.WithLock(id, func() error {
		return s.db.Set(s.key(id), data)
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// GetCondition returns the decoded disclosure condition of a record.
func (s *SecretStore) GetCondition(id string) (conditions.Condition, error) {
	record, err := s.get(id)
	if err != nil {
		return nil, ErrNotFound
	}

	return conditions.Unmarshal(record.Condition)
}

// GetPayloadIfAuthorized releases the payload only when the caller already
// proved authorization. Unknown id and authorized=false intentionally fail
// with the same error kind.
func (s *SecretStore) GetPayloadIfAuthorized(id string, authorized bool) ([]byte, error) {
	record, err := s.get(id)
	if err != nil || !authorized {
		return nil, ErrNotFound
	}

	return record.Payload, nil
}

func (s *SecretStore) Count() int64 {
	n, err := s.db.CountKeysByPrefix(secretPrefix)
	if err != nil {
		return 0
	}
	return n
}

func (s *SecretStore) get(id string) (*model.SecretRecord, error) {
	data, err := s.db.GetKey(s.key(id))
	if err != nil {
		return nil, err
	}

	return model.SecretRecordFromJSON(data)
}

func (s *SecretStore) key(id string) []byte {
	return append(secretPrefix, []byte(id)...)
}
