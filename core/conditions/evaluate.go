package conditions

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/expr-lang/expr"
)

// OracleQuery is the contract check handed to the oracle federation after
// placeholder substitution. The service keeps the ABI so it can interpret
// whatever comes back.
type OracleQuery struct {
	ContractAddress common.Address
	Method          string
	Params          []string
	ABI             string
}

// Outcome is the result of evaluating a condition against a verified
// requester. Either the decision is known immediately, or Deferred is set and
// Query must go through the oracle orchestrator.
type Outcome struct {
	Authorized bool
	Deferred   bool
	Query      *OracleQuery
}

// Evaluate determines authorization for the requester whose key was already
// verified by signature recovery. The switch is exhaustive over the closed
// condition set; an unknown variant falls through to ErrInvalidCondition.
func Evaluate(c Condition, requester common.Address) (*Outcome, error) {
	switch cond := c.(type) {
	case PublicKeyCondition:
		return &Outcome{Authorized: requester == cond.ExpectedAddress}, nil

	case ContractCondition:
		return &Outcome{
			Deferred: true,
			Query:    BuildQuery(cond, requester),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidCondition, c)
	}
}

// BuildQuery substitutes the requester placeholder into the condition params
// and returns the concrete oracle query.
func BuildQuery(cond ContractCondition, requester common.Address) *OracleQuery {
	params := make([]string, len(cond.Params))
	for i, p := range cond.Params {
		if p == RequesterPlaceholder {
			params[i] = requester.Hex()
		} else {
			params[i] = p
		}
	}

	return &OracleQuery{
		ContractAddress: cond.ContractAddress,
		Method:          cond.Method,
		Params:          params,
		ABI:             cond.ABI,
	}
}

// EvaluatePredicate applies the condition predicate to the raw return data of
// the oracle contract call. The data is unpacked per the condition ABI first,
// then the expr program runs over the outputs.
func EvaluatePredicate(cond ContractCondition, requester common.Address, output []byte) (bool, error) {
	outputs, err := UnpackResult(cond.ABI, cond.Method, output)
	if err != nil {
		return false, fmt.Errorf("cannot decode oracle output: %w", err)
	}

	if cond.Predicate == "" {
		return defaultPredicate(outputs)
	}

	env := predicateEnv(outputs, requester)

	program, err := expr.Compile(cond.Predicate, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("cannot compile predicate: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("predicate run error: %w", err)
	}

	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("predicate did not produce a boolean")
	}

	return ok, nil
}

// With no predicate configured the first output decides: a bool is taken as
// is, an integer authorizes when non-zero.
func defaultPredicate(outputs []interface{}) (bool, error) {
	if len(outputs) == 0 {
		return false, fmt.Errorf("contract call returned no outputs")
	}

	switch v := outputs[0].(type) {
	case bool:
		return v, nil
	case *big.Int:
		return v.Sign() != 0, nil
	default:
		return false, fmt.Errorf("no predicate configured and first output is %T, not bool or integer", v)
	}
}

func predicateEnv(outputs []interface{}, requester common.Address) map[string]interface{} {
	env := map[string]interface{}{
		"outputs":   outputs,
		"requester": requester.Hex(),

		"bigCmp":    func(a, b *big.Int) int { return a.Cmp(b) },
		"bigGt":     func(a, b *big.Int) bool { return a.Cmp(b) > 0 },
		"bigLt":     func(a, b *big.Int) bool { return a.Cmp(b) < 0 },
		"toBigInt":  toBigInt,
		"parseUnit": parseUnit,
	}

	if len(outputs) > 0 {
		env["output"] = outputs[0]
	}

	return env
}

func toBigInt(val string) *big.Int {
	// parse either decimal or hex
	b, ok := ethmath.ParseBig256(val)
	if !ok {
		return nil
	}

	return b
}

func parseUnit(val string, decimals uint) (*big.Int, error) {
	b, ok := ethmath.ParseBig256(val)
	if !ok {
		return nil, fmt.Errorf("cannot parse %q as a decimal or hex integer", val)
	}

	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(b, exp), nil
}
