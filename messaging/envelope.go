package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessage flags an inbound payload that doesn't decode into any
// known variant. The dispatcher converts it into an error response rather
// than dropping it silently.
var ErrUnknownMessage = errors.New("unknown message")

// Message type tags. These are the logical variants of the protocol; wire
// mechanics beyond this JSON shape belong to the substrate.
const (
	TypeSubmit             = "submit"
	TypeSubmitResp         = "submit_resp"
	TypeDisclose           = "disclose"
	TypeDiscloseResp       = "disclose_resp"
	TypeRegisterOracle     = "register_oracle"
	TypeRegisterOracleResp = "register_oracle_resp"
	TypeOracleQuery        = "oracle_query"
	TypeOracleResp         = "oracle_resp"
	TypeError              = "error"
)

type Envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

type SubmitRequest struct {
	Payload   []byte          `json:"payload"`
	Condition json.RawMessage `json:"condition"`
}

type SubmitResponse struct {
	ID string `json:"id"`
}

type DiscloseRequest struct {
	ID string `json:"id"`

	// Signature is the requester's personal-sign signature over the id text
	Signature string `json:"signature"`
}

type DiscloseResponse struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

type RegisterOracleRequest struct {
	Key         string `json:"key"`
	Address     string `json:"address"`
	RoutingHint string `json:"routing_hint,omitempty"`
}

type RegisterOracleResponse struct {
	Key string `json:"key"`

	// Registered is false when the key was already known; that's a reported
	// no-op, not an error.
	Registered bool `json:"registered"`
}

type OracleQueryRequest struct {
	CorrelationID   string   `json:"correlation_id"`
	ContractAddress string   `json:"contract"`
	Method          string   `json:"method"`
	Params          []string `json:"params"`
	ABI             string   `json:"abi"`
}

type OracleQueryResponse struct {
	CorrelationID string `json:"correlation_id"`
	OracleKey     string `json:"oracle_key"`

	// Output is the raw contract return data, hex encoded. The service
	// interprets it per the condition's output type schema.
	Output string `json:"output,omitempty"`
	Err    string `json:"err,omitempty"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// Encode wraps a message body under its type tag.
func Encode(msgType string, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: msgType, Body: raw})
}

// Decode parses an inbound payload into its envelope. Undecodable or untagged
// payloads come back as ErrUnknownMessage.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type tag", ErrUnknownMessage)
	}

	return &env, nil
}
