package oracle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/GurakG/Enclave-PSSC/core/conditions"
	"github.com/GurakG/Enclave-PSSC/messaging"
)

// Executor runs one contract check against the chain. It packs the call from
// the query's ABI, executes it read-only at the latest block, and hands back
// the raw return data. Interpreting the output stays on the escrow side.
type Executor struct {
	client *ethclient.Client
}

func NewExecutor(client *ethclient.Client) *Executor {
	return &Executor{client: client}
}

func (e *Executor) Execute(ctx context.Context, req *messaging.OracleQueryRequest) (string, error) {
	if !common.IsHexAddress(req.ContractAddress) {
		return "", fmt.Errorf("invalid contract address %q", req.ContractAddress)
	}

	calldata, err := conditions.PackCall(req.ABI, req.Method, req.Params)
	if err != nil {
		return "", fmt.Errorf("cannot pack contract call: %w", err)
	}

	contract := common.HexToAddress(req.ContractAddress)
	output, err := e.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: calldata,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("contract call failed: %w", err)
	}

	return hexutil.Encode(output), nil
}
