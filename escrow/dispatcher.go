package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GurakG/Enclave-PSSC/core/auth"
	"github.com/GurakG/Enclave-PSSC/core/conditions"
	"github.com/GurakG/Enclave-PSSC/messaging"
	"github.com/GurakG/Enclave-PSSC/metrics"
	"github.com/GurakG/Enclave-PSSC/pkg/logger"
)

// Dispatcher is the protocol entry point: it decodes inbound payloads from
// the substrate, routes them by variant, and converts every failure into a
// single error response instead of letting anything propagate or drop.
type Dispatcher struct {
	logger       logger.Logger
	store        *SecretStore
	registry     *OracleRegistry
	orchestrator *Orchestrator
	substrate    messaging.Substrate
	metrics      *metrics.EscrowMetrics
}

func NewDispatcher(
	l logger.Logger,
	store *SecretStore,
	registry *OracleRegistry,
	orchestrator *Orchestrator,
	substrate messaging.Substrate,
	m *metrics.EscrowMetrics,
) *Dispatcher {
	return &Dispatcher{
		logger:       logger.EnsureLogger(l),
		store:        store,
		registry:     registry,
		orchestrator: orchestrator,
		substrate:    substrate,
		metrics:      m,
	}
}

// OnMessage is the substrate receive callback. The routing hint identifies
// the sender's reply path; the topic is the correlation channel the message
// arrived under.
func (d *Dispatcher) OnMessage(payload []byte, hint string, topic string) {
	ctx := context.Background()
	reply := messaging.Recipient{Address: hint}

	env, err := messaging.Decode(payload)
	if err != nil {
		d.sendError(ctx, reply, topic, err)
		return
	}

	switch env.Type {
	case messaging.TypeSubmit:
		err = d.handleSubmit(ctx, env.Body, reply, topic)
	case messaging.TypeDisclose:
		err = d.handleDisclose(ctx, env.Body, reply, topic)
	case messaging.TypeRegisterOracle:
		err = d.handleRegisterOracle(ctx, env.Body, reply, topic)
	case messaging.TypeOracleResp:
		err = d.handleOracleResponse(ctx, env.Body)
	default:
		err = fmt.Errorf("%w: type %q", messaging.ErrUnknownMessage, env.Type)
	}

	if err != nil {
		d.sendError(ctx, reply, topic, err)
	}
}

func (d *Dispatcher) handleSubmit(ctx context.Context, body json.RawMessage, reply messaging.Recipient, topic string) error {
	var req messaging.SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: bad submit body: %v", messaging.ErrUnknownMessage, err)
	}

	// reject a malformed condition at the door so the deposit can't become
	// undisclosable by construction
	if _, err := conditions.Unmarshal(req.Condition); err != nil {
		return err
	}

	id, err := d.store.Store(req.Payload, req.Condition)
	if err != nil {
		return err
	}

	d.metrics.IncSubmission()
	d.logger.Info("secret deposited", "id", id)

	return d.respond(ctx, reply, topic, messaging.TypeSubmitResp, &messaging.SubmitResponse{ID: id})
}

func (d *Dispatcher) handleDisclose(ctx context.Context, body json.RawMessage, reply messaging.Recipient, topic string) error {
	var req messaging.DiscloseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: bad disclose body: %v", messaging.ErrUnknownMessage, err)
	}

	requesterAddr, err := auth.RecoverAddress([]byte(req.ID), req.Signature)
	if err != nil {
		return err
	}

	cond, err := d.store.GetCondition(req.ID)
	if err != nil {
		return err
	}

	outcome, err := conditions.Evaluate(cond, requesterAddr)
	if err != nil {
		return err
	}

	if outcome.Deferred {
		contractCond, ok := cond.(conditions.ContractCondition)
		if !ok {
			return conditions.ErrInvalidCondition
		}

		// no immediate response: the verdict arrives from the orchestrator
		// once the oracle federation answers
		return d.orchestrator.Begin(ctx, req.ID, contractCond, outcome.Query, requesterAddr, reply, topic)
	}

	payload, err := d.store.GetPayloadIfAuthorized(req.ID, outcome.Authorized)
	if err != nil {
		d.metrics.IncDisclosure("refused")
		return err
	}

	d.metrics.IncDisclosure("granted")
	d.logger.Info("secret disclosed", "id", req.ID, "requester", requesterAddr.Hex())

	return d.respond(ctx, reply, topic, messaging.TypeDiscloseResp, &messaging.DiscloseResponse{
		ID:      req.ID,
		Payload: payload,
	})
}

func (d *Dispatcher) handleRegisterOracle(ctx context.Context, body json.RawMessage, reply messaging.Recipient, topic string) error {
	var req messaging.RegisterOracleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: bad registration body: %v", messaging.ErrUnknownMessage, err)
	}

	if req.Key == "" || req.Address == "" {
		return fmt.Errorf("%w: registration needs key and address", messaging.ErrUnknownMessage)
	}

	registered, err := d.registry.Register(req.Key, req.Address, req.RoutingHint)
	if err != nil {
		return err
	}

	if registered {
		d.logger.Info("oracle registered", "key", req.Key, "address", req.Address)
	}

	return d.respond(ctx, reply, topic, messaging.TypeRegisterOracleResp, &messaging.RegisterOracleResponse{
		Key:        req.Key,
		Registered: registered,
	})
}

func (d *Dispatcher) handleOracleResponse(ctx context.Context, body json.RawMessage) error {
	var resp messaging.OracleQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: bad oracle response body: %v", messaging.ErrUnknownMessage, err)
	}

	return d.orchestrator.HandleResponse(ctx, &resp)
}

func (d *Dispatcher) respond(ctx context.Context, to messaging.Recipient, topic string, msgType string, msg interface{}) error {
	data, err := messaging.Encode(msgType, msg)
	if err != nil {
		return err
	}

	if err := d.substrate.Send(ctx, to, topic, data); err != nil {
		// the handler already committed; a failed reply is logged, not
		// bounced back as another error message
		d.logger.Error("cannot deliver response", "type", msgType, "to", to.Address, "error", err)
	}

	return nil
}

func (d *Dispatcher) sendError(ctx context.Context, to messaging.Recipient, topic string, cause error) {
	kind := errorKind(cause)
	d.metrics.IncDispatchError(kind)
	d.logger.Warn("request failed", "kind", kind, "error", cause)

	data, err := messaging.Encode(messaging.TypeError, &messaging.ErrorMessage{Message: cause.Error()})
	if err != nil {
		return
	}

	if err := d.substrate.Send(ctx, to, topic, data); err != nil {
		d.logger.Error("cannot deliver error response", "to", to.Address, "error", err)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, conditions.ErrInvalidCondition):
		return "invalid_condition"
	case errors.Is(err, ErrNoOraclesAvailable):
		return "no_oracles"
	case errors.Is(err, messaging.ErrUnknownMessage):
		return "unknown_message"
	default:
		return "internal"
	}
}
