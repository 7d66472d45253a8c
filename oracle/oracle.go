package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	gocron "github.com/go-co-op/gocron/v2"

	"github.com/GurakG/Enclave-PSSC/messaging"
	"github.com/GurakG/Enclave-PSSC/pkg/logger"
	"github.com/GurakG/Enclave-PSSC/version"
)

// Oracle is one federation member. It registers itself with the escrow
// service, listens for contract check queries on its own address, and answers
// each one with the raw chain output under the query's correlation id.
type Oracle struct {
	logger logger.Logger
	config *Config

	substrate messaging.Substrate
	client    *ethclient.Client
	executor  *Executor

	scheduler   gocron.Scheduler
	unsubscribe func()
}

func RunWithConfig(configPath string, substrate messaging.Substrate) error {
	c, err := NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to parse oracle config file %s: %w", configPath, err)
	}

	o, err := New(c, substrate)
	if err != nil {
		return err
	}

	return o.Run(context.Background())
}

func New(c *Config, substrate messaging.Substrate) (*Oracle, error) {
	client, err := ethclient.Dial(c.EthRpcUrl)
	if err != nil {
		return nil, fmt.Errorf("cannot dial eth rpc %s: %w", c.EthRpcUrl, err)
	}

	return &Oracle{
		logger:    logger.EnsureLogger(c.Logger),
		config:    c,
		substrate: substrate,
		client:    client,
		executor:  NewExecutor(client),
	}, nil
}

// Run starts the node and blocks until a termination signal.
func (o *Oracle) Run(ctx context.Context) error {
	o.logger.Infof("Starting oracle node %s key=%s", version.Get(), o.config.Key)

	if err := o.Start(ctx); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	o.logger.Infof("Shutting down oracle node...")
	o.Stop()

	return nil
}

// Start subscribes to the node's address, registers with the escrow service
// and begins the heartbeat re-registration loop.
func (o *Oracle) Start(ctx context.Context) error {
	unsubscribe, err := o.substrate.Subscribe(o.config.Address, o.onMessage)
	if err != nil {
		return fmt.Errorf("cannot subscribe to substrate: %w", err)
	}
	o.unsubscribe = unsubscribe

	if err := o.register(ctx); err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	o.scheduler = scheduler

	// re-registration doubles as the heartbeat: the escrow only bumps the
	// last-seen timestamp for a known key
	_, err = o.scheduler.NewJob(
		gocron.DurationJob(o.config.HeartbeatInterval),
		gocron.NewTask(func() {
			if err := o.register(context.Background()); err != nil {
				o.logger.Warn("heartbeat registration failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create heartbeat job: %w", err)
	}

	o.scheduler.Start()
	return nil
}

func (o *Oracle) Stop() {
	if o.scheduler != nil {
		_ = o.scheduler.Shutdown()
	}
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.client.Close()
	_ = o.logger.Sync()
}

func (o *Oracle) register(ctx context.Context) error {
	data, err := messaging.Encode(messaging.TypeRegisterOracle, &messaging.RegisterOracleRequest{
		Key:         o.config.Key,
		Address:     o.config.Address,
		RoutingHint: o.config.Address,
	})
	if err != nil {
		return err
	}

	to := messaging.Recipient{Address: o.config.EscrowAddress, RoutingHint: o.config.Address}
	if err := o.substrate.Send(ctx, to, "register", data); err != nil {
		return fmt.Errorf("cannot deliver registration: %w", err)
	}

	return nil
}

func (o *Oracle) onMessage(payload []byte, hint string, topic string) {
	ctx := context.Background()

	env, err := messaging.Decode(payload)
	if err != nil {
		o.logger.Warn("undecodable message dropped", "error", err)
		return
	}

	switch env.Type {
	case messaging.TypeOracleQuery:
		o.handleQuery(ctx, env.Body, hint)
	case messaging.TypeRegisterOracleResp:
		var resp messaging.RegisterOracleResponse
		if err := json.Unmarshal(env.Body, &resp); err != nil {
			return
		}
		if resp.Registered {
			o.logger.Info("registered with escrow service", "key", resp.Key)
		} else {
			o.logger.Debug("registration heartbeat acknowledged", "key", resp.Key)
		}
	case messaging.TypeError:
		var msg messaging.ErrorMessage
		if err := json.Unmarshal(env.Body, &msg); err != nil {
			return
		}
		o.logger.Warn("escrow service reported error", "message", msg.Message)
	default:
		o.logger.Debug("ignoring message", "type", env.Type)
	}
}

func (o *Oracle) handleQuery(ctx context.Context, body json.RawMessage, hint string) {
	var req messaging.OracleQueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		o.logger.Warn("bad oracle query body", "error", err)
		return
	}

	resp := &messaging.OracleQueryResponse{
		CorrelationID: req.CorrelationID,
		OracleKey:     o.config.Key,
	}

	output, err := o.executor.Execute(ctx, &req)
	if err != nil {
		o.logger.Warn("contract check failed",
			"correlation_id", req.CorrelationID, "method", req.Method, "error", err)
		resp.Err = err.Error()
	} else {
		resp.Output = output
	}

	data, err := messaging.Encode(messaging.TypeOracleResp, resp)
	if err != nil {
		return
	}

	// the response goes back on the correlation id topic to whoever asked
	to := messaging.Recipient{Address: hint, RoutingHint: o.config.Address}
	if err := o.substrate.Send(ctx, to, req.CorrelationID, data); err != nil {
		o.logger.Error("cannot deliver oracle response",
			"correlation_id", req.CorrelationID, "error", err)
	}
}
