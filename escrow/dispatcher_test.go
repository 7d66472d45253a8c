package escrow

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GurakG/Enclave-PSSC/core/conditions"
	"github.com/GurakG/Enclave-PSSC/core/config"
	"github.com/GurakG/Enclave-PSSC/messaging"
	"github.com/GurakG/Enclave-PSSC/metrics"
)

const serviceAddress = "escrow-service"

const testBalanceABI = `[{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

// testEnclave wires a full escrow instance over the in-process substrate,
// with a client inbox capturing every reply.
type testEnclave struct {
	t *testing.T

	substrate    *messaging.InProc
	store        *SecretStore
	registry     *OracleRegistry
	orchestrator *Orchestrator
	dispatcher   *Dispatcher

	clientAddress string

	// mu guards inbox and queriesSeen; substrate handlers run on whatever
	// goroutine sent the message
	mu          sync.Mutex
	inbox       []*messaging.Envelope
	queriesSeen map[string][]string
}

func newTestEnclave(t *testing.T, policy string, quorum int) *testEnclave {
	t.Helper()

	c := &config.Config{
		ServiceAddress:   serviceAddress,
		ResolutionPolicy: policy,
		QuorumSize:       quorum,
		PendingTimeout:   time.Minute,
		SweepInterval:    time.Second,
	}

	substrate := messaging.NewInProc()
	db := newTestDB(t)
	store := NewSecretStore(db)
	registry := NewOracleRegistry(db)

	m := metrics.NewEscrowMetrics(prometheus.NewRegistry())

	orchestrator, err := NewOrchestrator(c, store, registry, substrate, m)
	require.NoError(t, err)
	t.Cleanup(orchestrator.Stop)

	dispatcher := NewDispatcher(nil, store, registry, orchestrator, substrate, m)

	e := &testEnclave{
		t:             t,
		substrate:     substrate,
		store:         store,
		registry:      registry,
		orchestrator:  orchestrator,
		dispatcher:    dispatcher,
		clientAddress: "client-1",
		queriesSeen:   make(map[string][]string),
	}

	_, err = substrate.Subscribe(serviceAddress, dispatcher.OnMessage)
	require.NoError(t, err)

	_, err = substrate.Subscribe(e.clientAddress, func(payload []byte, hint string, topic string) {
		env, decodeErr := messaging.Decode(payload)
		if !assert.NoError(t, decodeErr) {
			return
		}
		e.mu.Lock()
		e.inbox = append(e.inbox, env)
		e.mu.Unlock()
	})
	require.NoError(t, err)

	return e
}

func (e *testEnclave) send(msgType string, body interface{}) {
	e.t.Helper()

	data, err := messaging.Encode(msgType, body)
	require.NoError(e.t, err)

	to := messaging.Recipient{Address: serviceAddress, RoutingHint: e.clientAddress}
	require.NoError(e.t, e.substrate.Send(context.Background(), to, "client-topic", data))
}

func (e *testEnclave) lastMessage() *messaging.Envelope {
	e.t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(e.t, e.inbox, "expected a reply in the client inbox")
	return e.inbox[len(e.inbox)-1]
}

func (e *testEnclave) decodeLast(msgType string, out interface{}) {
	e.t.Helper()

	env := e.lastMessage()
	require.Equal(e.t, msgType, env.Type, "unexpected reply type, body: %s", string(env.Body))
	require.NoError(e.t, json.Unmarshal(env.Body, out))
}

func (e *testEnclave) submit(payload []byte, cond conditions.Condition) string {
	e.t.Helper()

	condJSON, err := conditions.Marshal(cond)
	require.NoError(e.t, err)

	e.send(messaging.TypeSubmit, &messaging.SubmitRequest{Payload: payload, Condition: condJSON})

	var resp messaging.SubmitResponse
	e.decodeLast(messaging.TypeSubmitResp, &resp)
	require.NotEmpty(e.t, resp.ID)
	return resp.ID
}

func (e *testEnclave) disclose(id string, key *ecdsa.PrivateKey) {
	e.t.Helper()
	e.send(messaging.TypeDisclose, &messaging.DiscloseRequest{
		ID:        id,
		Signature: signID(e.t, key, id),
	})
}

// addOracle registers a federation member that answers every contract check
// with the given balance.
func (e *testEnclave) addOracle(key string, balance *big.Int) {
	e.t.Helper()

	parsed, err := abi.JSON(strings.NewReader(testBalanceABI))
	require.NoError(e.t, err)

	address := "substrate-" + key
	_, err = e.substrate.Subscribe(address, func(payload []byte, hint string, topic string) {
		env, decodeErr := messaging.Decode(payload)
		if !assert.NoError(e.t, decodeErr) {
			return
		}
		if env.Type != messaging.TypeOracleQuery {
			return
		}

		var query messaging.OracleQueryRequest
		if !assert.NoError(e.t, json.Unmarshal(env.Body, &query)) {
			return
		}

		e.mu.Lock()
		e.queriesSeen[key] = append(e.queriesSeen[key], query.CorrelationID)
		e.mu.Unlock()

		output, packErr := parsed.Methods[query.Method].Outputs.Pack(balance)
		if !assert.NoError(e.t, packErr) {
			return
		}

		data, encodeErr := messaging.Encode(messaging.TypeOracleResp, &messaging.OracleQueryResponse{
			CorrelationID: query.CorrelationID,
			OracleKey:     key,
			Output:        hexutil.Encode(output),
		})
		if !assert.NoError(e.t, encodeErr) {
			return
		}

		to := messaging.Recipient{Address: hint, RoutingHint: address}
		assert.NoError(e.t, e.substrate.Send(context.Background(), to, query.CorrelationID, data))
	})
	require.NoError(e.t, err)

	registered, err := e.registry.Register(key, address, address)
	require.NoError(e.t, err)
	require.True(e.t, registered)
}

// addSilentOracle registers a member that never answers.
func (e *testEnclave) addSilentOracle(key string) {
	e.t.Helper()

	address := "substrate-" + key
	_, err := e.substrate.Subscribe(address, func([]byte, string, string) {})
	require.NoError(e.t, err)

	_, err = e.registry.Register(key, address, address)
	require.NoError(e.t, err)
}

func signID(t *testing.T, key *ecdsa.PrivateKey, id string) string {
	t.Helper()

	sig, err := crypto.Sign(accounts.TextHash([]byte(id)), key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func newSigner(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestSubmitAndDiscloseWithPublicKeyCondition(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)

	owner := newSigner(t)
	id := e.submit([]byte("escrowed payload"), conditions.PublicKeyCondition{
		ExpectedAddress: crypto.PubkeyToAddress(owner.PublicKey),
	})

	t.Run("holder of the expected key gets the payload", func(t *testing.T) {
		e.disclose(id, owner)

		var resp messaging.DiscloseResponse
		e.decodeLast(messaging.TypeDiscloseResp, &resp)
		assert.Equal(t, id, resp.ID)
		assert.Equal(t, []byte("escrowed payload"), resp.Payload)
	})

	t.Run("any other key is refused as not found", func(t *testing.T) {
		e.disclose(id, newSigner(t))

		var msg messaging.ErrorMessage
		e.decodeLast(messaging.TypeError, &msg)
		assert.Contains(t, msg.Message, "secret not found")
	})
}

func TestDiscloseUnknownID(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)

	e.disclose("sec_DOES_NOT_EXIST", newSigner(t))

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "secret not found")
}

func TestDiscloseBadSignature(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)

	e.send(messaging.TypeDisclose, &messaging.DiscloseRequest{
		ID:        "sec_WHATEVER",
		Signature: "0xdeadbeef",
	})

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "invalid signature")
}

func TestSubmitInvalidCondition(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)

	e.send(messaging.TypeSubmit, &messaging.SubmitRequest{
		Payload:   []byte("x"),
		Condition: json.RawMessage(`{"kind":"time_lock","spec":{}}`),
	})

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "invalid disclosure condition")
	assert.Equal(t, int64(0), e.store.Count(), "invalid submission must not be stored")
}

func TestUnknownMessageType(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)

	e.send("renegotiate", map[string]string{"x": "y"})

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "unknown message")
}

func TestContractConditionWithoutOracles(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)

	requester := newSigner(t)
	id := e.submit([]byte("gated"), contractCondition("bigGt(output, toBigInt('100'))"))

	e.disclose(id, requester)

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "no oracles available")
	assert.Equal(t, 0, e.orchestrator.PendingCount(), "failed request must not leave pending state")
}

func contractCondition(predicate string) conditions.ContractCondition {
	return conditions.ContractCondition{
		ContractAddress: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Method:          "balanceOf",
		Params:          []string{conditions.RequesterPlaceholder},
		ABI:             testBalanceABI,
		Predicate:       predicate,
	}
}

func TestContractConditionFirstResponse(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)
	e.addOracle("oracle-1", big.NewInt(500))
	e.addOracle("oracle-2", big.NewInt(500))

	requester := newSigner(t)
	id := e.submit([]byte("token gated payload"), contractCondition("bigGt(output, toBigInt('100'))"))

	e.disclose(id, requester)

	// exactly one query per oracle, all under one correlation id
	require.Len(t, e.queriesSeen["oracle-1"], 1)
	require.Len(t, e.queriesSeen["oracle-2"], 1)
	assert.Equal(t, e.queriesSeen["oracle-1"][0], e.queriesSeen["oracle-2"][0])

	// both oracles answered synchronously; the first resolved the request and
	// the second response must read as stale with no second reply
	responses := 0
	for _, env := range e.inbox {
		if env.Type == messaging.TypeDiscloseResp {
			responses++
		}
	}
	require.Equal(t, 1, responses, "exactly one disclosure response expected")

	var resp messaging.DiscloseResponse
	e.decodeLast(messaging.TypeDiscloseResp, &resp)
	assert.Equal(t, []byte("token gated payload"), resp.Payload)
	assert.Equal(t, 0, e.orchestrator.PendingCount())
}

func TestContractConditionRefused(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)
	e.addOracle("oracle-1", big.NewInt(7))

	requester := newSigner(t)
	id := e.submit([]byte("gated"), contractCondition("bigGt(output, toBigInt('100'))"))

	e.disclose(id, requester)

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "secret not found",
		"a failed predicate must be indistinguishable from an unknown id")
}

func TestContractConditionQuorum(t *testing.T) {
	e := newTestEnclave(t, config.PolicyQuorum, 2)
	e.addOracle("oracle-1", big.NewInt(500))
	e.addOracle("oracle-2", big.NewInt(500))

	requester := newSigner(t)
	id := e.submit([]byte("quorum gated"), contractCondition("bigGt(output, toBigInt('100'))"))

	e.disclose(id, requester)

	var resp messaging.DiscloseResponse
	e.decodeLast(messaging.TypeDiscloseResp, &resp)
	assert.Equal(t, []byte("quorum gated"), resp.Payload)
	assert.Equal(t, 0, e.orchestrator.PendingCount())
}

func TestContractConditionQuorumNotReached(t *testing.T) {
	e := newTestEnclave(t, config.PolicyQuorum, 2)
	e.addOracle("oracle-1", big.NewInt(500))
	e.addOracle("oracle-2", big.NewInt(7))

	requester := newSigner(t)
	id := e.submit([]byte("quorum gated"), contractCondition("bigGt(output, toBigInt('100'))"))

	e.disclose(id, requester)

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "secret not found")
	assert.Equal(t, 0, e.orchestrator.PendingCount())
}

func TestPendingDisclosureTimeout(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)
	e.orchestrator.pendingTimeout = -time.Second
	e.addSilentOracle("oracle-mute")

	requester := newSigner(t)
	id := e.submit([]byte("gated"), contractCondition(""))

	e.disclose(id, requester)
	require.Equal(t, 1, e.orchestrator.PendingCount())

	e.orchestrator.sweepExpired(context.Background())

	var msg messaging.ErrorMessage
	e.decodeLast(messaging.TypeError, &msg)
	assert.Contains(t, msg.Message, "timed out")
	assert.Equal(t, 0, e.orchestrator.PendingCount())
}

func packBalance(t *testing.T, balance *big.Int) []byte {
	t.Helper()

	parsed, err := abi.JSON(strings.NewReader(testBalanceABI))
	require.NoError(t, err)

	output, err := parsed.Methods["balanceOf"].Outputs.Pack(balance)
	require.NoError(t, err)
	return output
}

// TestConcurrentContractDisclosures drives the whole pipeline from many
// goroutines at once. The in-process substrate delivers each chain on the
// goroutine that sent it, so every submission, fan-out and oracle response
// below hits the store, the registry and the pending table concurrently.
func TestConcurrentContractDisclosures(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)
	e.addOracle("oracle-1", big.NewInt(500))
	e.addOracle("oracle-2", big.NewInt(500))

	const clients = 24

	inboxes := make([][]*messaging.Envelope, clients)
	for i := 0; i < clients; i++ {
		i := i
		addr := fmt.Sprintf("concurrent-client-%d", i)
		_, err := e.substrate.Subscribe(addr, func(payload []byte, hint string, topic string) {
			env, decodeErr := messaging.Decode(payload)
			if !assert.NoError(t, decodeErr) {
				return
			}
			// delivery runs on client i's own goroutine, no locking needed
			inboxes[i] = append(inboxes[i], env)
		})
		require.NoError(t, err)
	}

	condJSON, err := conditions.Marshal(contractCondition("bigGt(output, toBigInt('100'))"))
	require.NoError(t, err)

	signers := make([]*ecdsa.PrivateKey, clients)
	for i := range signers {
		signers[i] = newSigner(t)
	}

	sendFrom := func(client int, msgType string, body interface{}) bool {
		data, encodeErr := messaging.Encode(msgType, body)
		if !assert.NoError(t, encodeErr) {
			return false
		}
		to := messaging.Recipient{
			Address:     serviceAddress,
			RoutingHint: fmt.Sprintf("concurrent-client-%d", client),
		}
		return assert.NoError(t, e.substrate.Send(context.Background(), to, "client-topic", data))
	}

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			payload := []byte(fmt.Sprintf("escrowed-%d", i))
			if !sendFrom(i, messaging.TypeSubmit, &messaging.SubmitRequest{
				Payload:   payload,
				Condition: condJSON,
			}) {
				return
			}

			// delivery is synchronous, so the submit response is already in
			// this client's inbox
			if !assert.NotEmpty(t, inboxes[i]) {
				return
			}
			var submitResp messaging.SubmitResponse
			last := inboxes[i][len(inboxes[i])-1]
			if !assert.Equal(t, messaging.TypeSubmitResp, last.Type, "body: %s", string(last.Body)) {
				return
			}
			if !assert.NoError(t, json.Unmarshal(last.Body, &submitResp)) {
				return
			}

			sig, signErr := crypto.Sign(accounts.TextHash([]byte(submitResp.ID)), signers[i])
			if !assert.NoError(t, signErr) {
				return
			}

			sendFrom(i, messaging.TypeDisclose, &messaging.DiscloseRequest{
				ID:        submitResp.ID,
				Signature: hexutil.Encode(sig),
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		disclosed := 0
		for _, env := range inboxes[i] {
			if env.Type != messaging.TypeDiscloseResp {
				continue
			}
			disclosed++

			var resp messaging.DiscloseResponse
			require.NoError(t, json.Unmarshal(env.Body, &resp))
			assert.Equal(t, []byte(fmt.Sprintf("escrowed-%d", i)), resp.Payload,
				"client %d must get back exactly the payload it escrowed", i)
		}
		assert.Equal(t, 1, disclosed, "client %d expected exactly one disclosure response", i)
	}

	assert.Equal(t, 0, e.orchestrator.PendingCount(),
		"every request must have left the pending table")
}

func TestQuorumDuplicateOracleResponseIgnored(t *testing.T) {
	e := newTestEnclave(t, config.PolicyQuorum, 2)
	e.addSilentOracle("oracle-1")
	e.addSilentOracle("oracle-2")

	requester := newSigner(t)
	id := e.submit([]byte("quorum gated"), contractCondition("bigGt(output, toBigInt('100'))"))

	e.disclose(id, requester)
	require.Equal(t, 1, e.orchestrator.PendingCount())

	pending := e.orchestrator.PendingSnapshot()
	require.Len(t, pending, 1)
	correlationID := pending[0].CorrelationID

	output := hexutil.Encode(packBalance(t, big.NewInt(500)))
	respond := func(oracle string) {
		e.send(messaging.TypeOracleResp, &messaging.OracleQueryResponse{
			CorrelationID: correlationID,
			OracleKey:     oracle,
			Output:        output,
		})
	}

	respond("oracle-1")
	respond("oracle-1") // redelivery must not count as a second vote
	require.Equal(t, 1, e.orchestrator.PendingCount(),
		"one oracle cannot satisfy a quorum of two")

	respond("oracle-2")

	var resp messaging.DiscloseResponse
	e.decodeLast(messaging.TypeDiscloseResp, &resp)
	assert.Equal(t, []byte("quorum gated"), resp.Payload)
	assert.Equal(t, 0, e.orchestrator.PendingCount())
}

func TestStaleOracleResponseIgnored(t *testing.T) {
	e := newTestEnclave(t, config.PolicyFirstResponse, 0)

	e.send(messaging.TypeOracleResp, &messaging.OracleQueryResponse{
		CorrelationID: "cor_NEVER_EXISTED",
		OracleKey:     "oracle-x",
		Output:        "0x",
	})

	assert.Empty(t, e.inbox, "an unknown correlation id must be dropped without a reply")
}
