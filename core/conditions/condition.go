package conditions

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidCondition flags a condition variant the engine doesn't recognize.
// This is a data/programming error and is never collapsed into a plain
// unauthorized refusal.
var ErrInvalidCondition = errors.New("invalid disclosure condition")

type Kind string

const (
	KindPublicKey Kind = "public_key"
	KindContract  Kind = "contract"
)

// RequesterPlaceholder can appear in ContractCondition.Params. It is replaced
// with the verified requester address when the oracle query is built.
const RequesterPlaceholder = "${requester}"

// Condition is the closed set of disclosure condition variants. The evaluator
// switches over the concrete types exhaustively; anything else is
// ErrInvalidCondition.
type Condition interface {
	Kind() Kind
}

// PublicKeyCondition releases the secret only to the holder of a specific
// key. Satisfied iff the address recovered from the requester signature
// equals ExpectedAddress.
type PublicKeyCondition struct {
	ExpectedAddress common.Address `json:"expected_address"`
}

func (PublicKeyCondition) Kind() Kind { return KindPublicKey }

// ContractCondition gates disclosure on external contract state fetched by
// the oracle federation. ABI doubles as the output type schema: the service
// unpacks the oracle-returned data with it before running Predicate.
type ContractCondition struct {
	ContractAddress common.Address `json:"contract_address"`
	Method          string         `json:"method"`
	Params          []string       `json:"params"`
	ABI             string         `json:"abi"`

	// Predicate is an expr program over the unpacked outputs. When empty the
	// first output is taken as the decision (bool, or non-zero integer).
	Predicate string `json:"predicate,omitempty"`
}

func (ContractCondition) Kind() Kind { return KindContract }

type envelope struct {
	Kind Kind            `json:"kind"`
	Spec json.RawMessage `json:"spec"`
}

// Marshal encodes a condition with its kind tag.
func Marshal(c Condition) ([]byte, error) {
	if c == nil {
		return nil, ErrInvalidCondition
	}

	spec, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	return json.Marshal(envelope{Kind: c.Kind(), Spec: spec})
}

// Unmarshal decodes a tagged condition. An unknown tag is reported as
// ErrInvalidCondition, not treated as unauthorized.
func Unmarshal(data []byte) (Condition, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	switch env.Kind {
	case KindPublicKey:
		var c PublicKeyCondition
		if err := json.Unmarshal(env.Spec, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		return c, nil
	case KindContract:
		var c ContractCondition
		if err := json.Unmarshal(env.Spec, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		if c.Method == "" || c.ABI == "" {
			return nil, fmt.Errorf("%w: contract condition missing method or abi", ErrInvalidCondition)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidCondition, env.Kind)
	}
}
