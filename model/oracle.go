package model

import "encoding/json"

// OracleEntry is a registered oracle identity with the delivery info the
// orchestrator fans queries out to. The identity and delivery fields are
// immutable after registration; LastSeenAt is operational metadata bumped by
// heartbeats.
type OracleEntry struct {
	Key         string `json:"key"`
	Address     string `json:"address"`
	RoutingHint string `json:"routing_hint,omitempty"`

	RegisteredAt int64 `json:"registered_at"`
	LastSeenAt   int64 `json:"last_seen"`
}

func (o *OracleEntry) ToJSON() ([]byte, error) {
	return json.Marshal(o)
}

func OracleEntryFromJSON(data []byte) (*OracleEntry, error) {
	o := &OracleEntry{}
	if err := json.Unmarshal(data, o); err != nil {
		return nil, err
	}
	return o, nil
}
