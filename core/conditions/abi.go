package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
)

// PackCall builds the calldata for a contract query. Params come over the
// wire as strings; each one is coerced to the Go type the ABI argument wants.
func PackCall(contractABI string, method string, params []string) ([]byte, error) {
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("cannot parse contract abi: %w", err)
	}

	m, ok := parsedABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in abi", method)
	}

	if len(params) != len(m.Inputs) {
		return nil, fmt.Errorf("method %s wants %d params, got %d", method, len(m.Inputs), len(params))
	}

	args := make([]interface{}, len(params))
	for i, input := range m.Inputs {
		v, err := coerceArg(input.Type, params[i])
		if err != nil {
			return nil, fmt.Errorf("param %d (%s): %w", i, input.Type.String(), err)
		}
		args[i] = v
	}

	return parsedABI.Pack(method, args...)
}

// UnpackResult decodes the raw return data of a contract call per the same
// ABI that packed it. This is the output type schema interpretation step.
func UnpackResult(contractABI string, method string, output []byte) ([]interface{}, error) {
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("cannot parse contract abi: %w", err)
	}

	return parsedABI.Unpack(method, output)
}

func coerceArg(t abi.Type, raw string) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		return common.HexToAddress(raw), nil

	case abi.StringTy:
		return raw, nil

	case abi.BoolTy:
		return strconv.ParseBool(raw)

	case abi.UintTy:
		if t.Size > 64 {
			b, ok := ethmath.ParseBig256(raw)
			if !ok {
				return nil, fmt.Errorf("cannot parse %q as big integer", raw)
			}
			return b, nil
		}
		n, err := strconv.ParseUint(raw, 10, t.Size)
		if err != nil {
			return nil, err
		}
		switch t.Size {
		case 8:
			return uint8(n), nil
		case 16:
			return uint16(n), nil
		case 32:
			return uint32(n), nil
		default:
			return n, nil
		}

	case abi.IntTy:
		if t.Size > 64 {
			b, ok := ethmath.ParseBig256(raw)
			if !ok {
				return nil, fmt.Errorf("cannot parse %q as big integer", raw)
			}
			return b, nil
		}
		n, err := strconv.ParseInt(raw, 10, t.Size)
		if err != nil {
			return nil, err
		}
		switch t.Size {
		case 8:
			return int8(n), nil
		case 16:
			return int16(n), nil
		case 32:
			return int32(n), nil
		default:
			return n, nil
		}

	case abi.BytesTy:
		return common.FromHex(raw), nil

	case abi.FixedBytesTy:
		if t.Size != 32 {
			return nil, fmt.Errorf("unsupported fixed bytes size %d", t.Size)
		}
		var out [32]byte
		copy(out[:], common.FromHex(raw))
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported abi param type %s", t.String())
	}
}
