package model

import (
	"encoding/json"
)

// SecretRecord is a deposited payload bound to its disclosure condition.
// Records are immutable once written and never expire in the current design.
// The condition stays in its tagged wire form here; the condition engine
// decodes it on demand.
type SecretRecord struct {
	ID        string          `json:"id"`
	Payload   []byte          `json:"payload"`
	Condition json.RawMessage `json:"condition"`
	CreatedAt int64           `json:"created_at"`
}

func (r *SecretRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func SecretRecordFromJSON(data []byte) (*SecretRecord, error) {
	r := &SecretRecord{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}
