package escrow

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gocron "github.com/go-co-op/gocron/v2"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"github.com/GurakG/Enclave-PSSC/core/conditions"
	"github.com/GurakG/Enclave-PSSC/core/config"
	"github.com/GurakG/Enclave-PSSC/messaging"
	"github.com/GurakG/Enclave-PSSC/metrics"
	"github.com/GurakG/Enclave-PSSC/model"
	"github.com/GurakG/Enclave-PSSC/pkg/logger"
)

const correlationIDPrefix = "cor_"

// resolvedTTL bounds how long a resolved correlation id stays recognizable
// for staleness checks. Anything later than this is indistinguishable from an
// unknown id, which gets the same silent treatment anyway.
const resolvedTTL = 10 * time.Minute

func NewCorrelationID() string {
	return correlationIDPrefix + ulid.Make().String()
}

// PendingDisclosure is one in-flight contract-conditioned disclosure. It is
// created in AwaitingOracleResponse (the Created->Awaiting transition happens
// inside Begin before any query is sent) and leaves the table on Resolved,
// Failed or timeout. The requester delivery info is captured here so the
// final answer can go out long after the original request handler returned.
type PendingDisclosure struct {
	CorrelationID string
	SecretID      string

	Requester     messaging.Recipient
	ReplyTopic    string
	RequesterAddr common.Address

	Condition conditions.ContractCondition

	AwaitedOracleKeys map[string]bool

	CreatedAt time.Time
	Deadline  time.Time

	// claims marks oracles whose response is taken (possibly still being
	// evaluated); a second response from the same oracle is a duplicate.
	// votes collects per-oracle predicate results under the quorum policy.
	// Both are guarded by the entry's table shard.
	claims map[string]bool
	votes  map[string]bool
}

// PendingView is the read-only admin projection of a pending disclosure.
type PendingView struct {
	CorrelationID     string   `json:"correlation_id"`
	SecretID          string   `json:"secret_id"`
	AwaitedOracleKeys []string `json:"awaited_oracle_keys"`
	Responded         int      `json:"responded"`
	CreatedAt         int64    `json:"created_at"`
	Deadline          int64    `json:"deadline"`
}

const pendingShardCount = 64

type pendingShard struct {
	mu      sync.Mutex
	entries map[string]*PendingDisclosure
}

// pendingTable shards the pending disclosures by correlation id so unrelated
// requests never contend on one lock. Shard critical sections stay short;
// predicate evaluation happens outside them.
type pendingTable struct {
	shards [pendingShardCount]pendingShard
}

func newPendingTable() *pendingTable {
	t := &pendingTable{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*PendingDisclosure)
	}
	return t
}

func (t *pendingTable) shard(correlationID string) *pendingShard {
	h := fnv.New32a()
	h.Write([]byte(correlationID))
	return &t.shards[h.Sum32()%pendingShardCount]
}

// Orchestrator fans contract checks out to every registered oracle and
// correlates the eventual responses back to the original requester.
type Orchestrator struct {
	logger    logger.Logger
	store     *SecretStore
	registry  *OracleRegistry
	substrate messaging.Substrate
	metrics   *metrics.EscrowMetrics

	policy         string
	quorum         int
	pendingTimeout time.Duration
	sweepInterval  time.Duration
	serviceAddress string

	pending *pendingTable

	resolved  *bigcache.BigCache
	scheduler gocron.Scheduler
}

func NewOrchestrator(
	c *config.Config,
	store *SecretStore,
	registry *OracleRegistry,
	substrate messaging.Substrate,
	m *metrics.EscrowMetrics,
) (*Orchestrator, error) {
	resolved, err := bigcache.New(context.Background(), bigcache.DefaultConfig(resolvedTTL))
	if err != nil {
		return nil, fmt.Errorf("cannot initialize resolved correlation cache: %w", err)
	}

	policy := c.ResolutionPolicy
	if policy == "" {
		policy = config.PolicyFirstResponse
	}

	return &Orchestrator{
		logger:    logger.EnsureLogger(c.Logger),
		store:     store,
		registry:  registry,
		substrate: substrate,
		metrics:   m,

		policy:         policy,
		quorum:         c.QuorumSize,
		pendingTimeout: c.PendingTimeout,
		sweepInterval:  c.SweepInterval,
		serviceAddress: c.ServiceAddress,

		pending:  newPendingTable(),
		resolved: resolved,
	}, nil
}

// Start brings up the timeout sweeper. Without it a pending request whose
// oracles never answer would be stuck forever.
func (o *Orchestrator) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	o.scheduler = scheduler

	_, err = o.scheduler.NewJob(
		gocron.DurationJob(o.sweepInterval),
		gocron.NewTask(func() {
			o.sweepExpired(context.Background())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create timeout sweep job: %w", err)
	}

	o.scheduler.Start()
	return nil
}

func (o *Orchestrator) Stop() {
	if o.scheduler != nil {
		_ = o.scheduler.Shutdown()
	}
}

// Begin is the Created -> AwaitingOracleResponse transition. It records the
// pending disclosure first and only then sends the identical query to every
// registered oracle; nothing is sent while a lock is held. With an empty
// registry this fails immediately and records nothing.
func (o *Orchestrator) Begin(
	ctx context.Context,
	secretID string,
	cond conditions.ContractCondition,
	query *conditions.OracleQuery,
	requesterAddr common.Address,
	requester messaging.Recipient,
	replyTopic string,
) error {
	oracles := o.registry.ListAll()
	if len(oracles) == 0 {
		return ErrNoOraclesAvailable
	}

	correlationID := NewCorrelationID()
	now := time.Now()

	p := &PendingDisclosure{
		CorrelationID: correlationID,
		SecretID:      secretID,

		Requester:     requester,
		ReplyTopic:    replyTopic,
		RequesterAddr: requesterAddr,

		Condition: cond,

		AwaitedOracleKeys: lo.SliceToMap(oracles, func(e *model.OracleEntry) (string, bool) {
			return e.Key, true
		}),

		CreatedAt: now,
		Deadline:  now.Add(o.pendingTimeout),

		claims: make(map[string]bool),
		votes:  make(map[string]bool),
	}

	payload, err := messaging.Encode(messaging.TypeOracleQuery, &messaging.OracleQueryRequest{
		CorrelationID:   correlationID,
		ContractAddress: query.ContractAddress.Hex(),
		Method:          query.Method,
		Params:          query.Params,
		ABI:             query.ABI,
	})
	if err != nil {
		return err
	}

	shard := o.pending.shard(correlationID)
	shard.mu.Lock()
	shard.entries[correlationID] = p
	shard.mu.Unlock()

	for _, oc := range oracles {
		to := messaging.Recipient{Address: oc.Address, RoutingHint: o.serviceAddress}
		if err := o.substrate.Send(ctx, to, correlationID, payload); err != nil {
			o.logger.Warn("cannot deliver oracle query", "oracle", oc.Key, "error", err)
			continue
		}
		o.metrics.IncOracleQuerySent()
	}

	o.logger.Info("disclosure deferred to oracle federation",
		"secret_id", secretID,
		"correlation_id", correlationID,
		"oracles", len(oracles),
	)

	return nil
}

// HandleResponse consumes one inbound oracle response. A response whose
// correlation id matches nothing pending is stale (or junk) and is ignored
// without error, which makes redelivery and slow oracles harmless. Predicate
// evaluation runs outside the table shard, so responses for unrelated
// correlation ids proceed independently.
func (o *Orchestrator) HandleResponse(ctx context.Context, resp *messaging.OracleQueryResponse) error {
	shard := o.pending.shard(resp.CorrelationID)
	shard.mu.Lock()

	p, ok := shard.entries[resp.CorrelationID]
	if !ok {
		shard.mu.Unlock()

		if o.wasResolved(resp.CorrelationID) {
			o.metrics.IncOracleResponse("stale")
			o.logger.Debug("stale oracle response ignored",
				"correlation_id", resp.CorrelationID, "oracle", resp.OracleKey)
		} else {
			o.logger.Warn("oracle response with unknown correlation id",
				"correlation_id", resp.CorrelationID, "oracle", resp.OracleKey)
		}
		return nil
	}

	if !p.AwaitedOracleKeys[resp.OracleKey] {
		shard.mu.Unlock()
		o.logger.Warn("response from oracle that was never queried",
			"correlation_id", resp.CorrelationID, "oracle", resp.OracleKey)
		return nil
	}

	if p.claims[resp.OracleKey] {
		shard.mu.Unlock()
		return nil
	}

	if o.policy == config.PolicyQuorum {
		p.claims[resp.OracleKey] = true
		shard.mu.Unlock()

		vote, evalErr := o.evaluate(p, resp)

		shard.mu.Lock()
		if _, still := shard.entries[resp.CorrelationID]; !still {
			// resolved or timed out while this response was being evaluated
			shard.mu.Unlock()
			o.metrics.IncOracleResponse("stale")
			return nil
		}

		p.votes[resp.OracleKey] = vote && evalErr == nil

		yes := lo.Count(lo.Values(p.votes), true)
		allIn := len(p.votes) == len(p.AwaitedOracleKeys)

		switch {
		case yes >= o.quorum:
			delete(shard.entries, resp.CorrelationID)
			shard.mu.Unlock()
			o.finishResolved(ctx, p, true, nil)
		case allIn:
			delete(shard.entries, resp.CorrelationID)
			shard.mu.Unlock()
			o.finishResolved(ctx, p, false, nil)
		default:
			shard.mu.Unlock()
			o.metrics.IncOracleResponse("vote")
		}
		return nil
	}

	// first_response: the first correlated response consumes the entry; the
	// verdict is computed after the table is released
	delete(shard.entries, resp.CorrelationID)
	shard.mu.Unlock()

	vote, evalErr := o.evaluate(p, resp)
	o.finishResolved(ctx, p, vote, evalErr)
	return nil
}

func (o *Orchestrator) PendingCount() int {
	total := 0
	for i := range o.pending.shards {
		shard := &o.pending.shards[i]
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

func (o *Orchestrator) PendingSnapshot() []*PendingView {
	var views []*PendingView
	for i := range o.pending.shards {
		shard := &o.pending.shards[i]
		shard.mu.Lock()
		for _, p := range shard.entries {
			views = append(views, &PendingView{
				CorrelationID:     p.CorrelationID,
				SecretID:          p.SecretID,
				AwaitedOracleKeys: lo.Keys(p.AwaitedOracleKeys),
				Responded:         len(p.votes),
				CreatedAt:         p.CreatedAt.UnixMilli(),
				Deadline:          p.Deadline.UnixMilli(),
			})
		}
		shard.mu.Unlock()
	}
	return views
}

// sweepExpired is the AwaitingOracleResponse -> Failed transition for
// requests past their deadline.
func (o *Orchestrator) sweepExpired(ctx context.Context) {
	now := time.Now()

	var expired []*PendingDisclosure
	for i := range o.pending.shards {
		shard := &o.pending.shards[i]
		shard.mu.Lock()
		for id, p := range shard.entries {
			if now.After(p.Deadline) {
				delete(shard.entries, id)
				expired = append(expired, p)
			}
		}
		shard.mu.Unlock()
	}

	for _, p := range expired {
		o.markResolved(p.CorrelationID)
		o.metrics.IncDisclosure("timeout")
		o.logger.Warn("pending disclosure timed out",
			"correlation_id", p.CorrelationID, "secret_id", p.SecretID)
		o.sendError(ctx, p, "disclosure request timed out waiting for oracle responses")
	}
}

// evaluate runs the condition predicate over one oracle response. It reads
// only the immutable fields of p and must never be called under a shard lock.
func (o *Orchestrator) evaluate(p *PendingDisclosure, resp *messaging.OracleQueryResponse) (bool, error) {
	if resp.Err != "" {
		return false, fmt.Errorf("oracle %s reported: %s", resp.OracleKey, resp.Err)
	}

	raw, err := hexutil.Decode(resp.Output)
	if err != nil {
		return false, fmt.Errorf("oracle %s returned undecodable output: %w", resp.OracleKey, err)
	}

	return conditions.EvaluatePredicate(p.Condition, p.RequesterAddr, raw)
}

// finishResolved completes the AwaitingOracleResponse -> Resolved transition:
// the correlation id is remembered so later responses read as stale, then the
// verdict goes back to the requester captured at Created time.
func (o *Orchestrator) finishResolved(ctx context.Context, p *PendingDisclosure, authorized bool, evalErr error) {
	o.markResolved(p.CorrelationID)
	o.metrics.IncOracleResponse("resolved")

	if evalErr != nil {
		o.logger.Warn("cannot evaluate disclosure condition",
			"correlation_id", p.CorrelationID, "error", evalErr)
		o.metrics.IncDisclosure("failed")
		o.sendError(ctx, p, "cannot evaluate disclosure condition")
		return
	}

	payload, err := o.store.GetPayloadIfAuthorized(p.SecretID, authorized)
	if err != nil {
		o.metrics.IncDisclosure("refused")
		o.sendError(ctx, p, ErrNotFound.Error())
		return
	}

	o.metrics.IncDisclosure("granted")

	data, err := messaging.Encode(messaging.TypeDiscloseResp, &messaging.DiscloseResponse{
		ID:      p.SecretID,
		Payload: payload,
	})
	if err != nil {
		o.logger.Error("cannot encode disclosure response", "error", err)
		return
	}

	if err := o.substrate.Send(ctx, p.Requester, p.ReplyTopic, data); err != nil {
		o.logger.Error("cannot deliver disclosure response",
			"correlation_id", p.CorrelationID, "error", err)
	}
}

func (o *Orchestrator) sendError(ctx context.Context, p *PendingDisclosure, msg string) {
	data, err := messaging.Encode(messaging.TypeError, &messaging.ErrorMessage{Message: msg})
	if err != nil {
		return
	}

	if err := o.substrate.Send(ctx, p.Requester, p.ReplyTopic, data); err != nil {
		o.logger.Error("cannot deliver error response",
			"correlation_id", p.CorrelationID, "error", err)
	}
}

func (o *Orchestrator) markResolved(correlationID string) {
	if err := o.resolved.Set(correlationID, []byte{1}); err != nil {
		o.logger.Warn("cannot record resolved correlation id", "error", err)
	}
}

func (o *Orchestrator) wasResolved(correlationID string) bool {
	_, err := o.resolved.Get(correlationID)
	return err == nil
}
