package oracle

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/GurakG/Enclave-PSSC/pkg/logger"
)

const defaultHeartbeatInterval = time.Minute

type Config struct {
	Logger      logger.Logger
	Environment logger.Environment

	// Key is the stable oracle identity reported to the escrow service.
	Key string

	// Address is where this node receives oracle queries on the substrate.
	Address string

	// EscrowAddress is the escrow service's substrate address.
	EscrowAddress string

	// EthRpcUrl is the node the contract checks run against.
	EthRpcUrl string

	HeartbeatInterval time.Duration
}

type ConfigRaw struct {
	Environment string `yaml:"environment"`

	Key           string `yaml:"key" validate:"required"`
	Address       string `yaml:"address" validate:"required"`
	EscrowAddress string `yaml:"escrow_address" validate:"required"`
	EthRpcUrl     string `yaml:"eth_rpc_url" validate:"required,url"`

	HeartbeatInterval string `yaml:"heartbeat_interval"`
}

func NewConfig(path string) (*Config, error) {
	var configRaw ConfigRaw

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &configRaw); err != nil {
		return nil, fmt.Errorf("failed to parse oracle config file %s: %w", path, err)
	}

	if err := validator.New().Struct(&configRaw); err != nil {
		return nil, fmt.Errorf("invalid oracle config: %w", err)
	}

	env := logger.Production
	if configRaw.Environment == "development" {
		env = logger.Development
	}

	l, err := logger.NewZapLogger(env)
	if err != nil {
		return nil, err
	}

	heartbeat := defaultHeartbeatInterval
	if configRaw.HeartbeatInterval != "" {
		heartbeat, err = time.ParseDuration(configRaw.HeartbeatInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid heartbeat_interval: %w", err)
		}
	}

	return &Config{
		Logger:      l,
		Environment: env,

		Key:           configRaw.Key,
		Address:       configRaw.Address,
		EscrowAddress: configRaw.EscrowAddress,
		EthRpcUrl:     configRaw.EthRpcUrl,

		HeartbeatInterval: heartbeat,
	}, nil
}
