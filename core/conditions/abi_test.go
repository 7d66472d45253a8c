package conditions

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackCall(t *testing.T) {
	t.Run("address param", func(t *testing.T) {
		calldata, err := PackCall(balanceOfABI, "balanceOf", []string{requester.Hex()})
		require.NoError(t, err)

		parsed, err := abi.JSON(strings.NewReader(balanceOfABI))
		require.NoError(t, err)
		want, err := parsed.Pack("balanceOf", requester)
		require.NoError(t, err)

		assert.Equal(t, want, calldata)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := PackCall(balanceOfABI, "transfer", []string{requester.Hex()})
		assert.Error(t, err)
	})

	t.Run("wrong param count", func(t *testing.T) {
		_, err := PackCall(balanceOfABI, "balanceOf", nil)
		assert.Error(t, err)
	})

	t.Run("broken abi", func(t *testing.T) {
		_, err := PackCall("not json", "balanceOf", nil)
		assert.Error(t, err)
	})
}

func TestUnpackResult(t *testing.T) {
	output := packOutputs(t, balanceOfABI, "balanceOf", big.NewInt(42))

	outputs, err := UnpackResult(balanceOfABI, "balanceOf", output)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, 0, outputs[0].(*big.Int).Cmp(big.NewInt(42)))
}
