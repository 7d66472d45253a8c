package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GurakG/Enclave-PSSC/messaging"
)

const testABI = `[{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

func TestExecutorRejectsBadQueries(t *testing.T) {
	// the executor validates before touching the chain, so no client is needed
	e := NewExecutor(nil)

	t.Run("invalid contract address", func(t *testing.T) {
		_, err := e.Execute(context.Background(), &messaging.OracleQueryRequest{
			ContractAddress: "not-an-address",
			Method:          "balanceOf",
			Params:          []string{"0x1111111111111111111111111111111111111111"},
			ABI:             testABI,
		})
		assert.ErrorContains(t, err, "invalid contract address")
	})

	t.Run("unpackable call", func(t *testing.T) {
		_, err := e.Execute(context.Background(), &messaging.OracleQueryRequest{
			ContractAddress: "0x1111111111111111111111111111111111111111",
			Method:          "noSuchMethod",
			Params:          nil,
			ABI:             testABI,
		})
		assert.ErrorContains(t, err, "cannot pack contract call")
	})
}
