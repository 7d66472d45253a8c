package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/GurakG/Enclave-PSSC/pkg/logger"
)

// Resolution policies for multi-oracle disclosure requests.
const (
	PolicyFirstResponse = "first_response"
	PolicyQuorum        = "quorum"
)

const (
	defaultPendingTimeout = 2 * time.Minute
	defaultSweepInterval  = 15 * time.Second
	defaultBackupInterval = 6 * time.Hour
)

// Config is the runtime configuration of the escrow service instance.
type Config struct {
	Logger      logger.Logger
	Environment logger.Environment

	DbPath          string
	ServiceAddress  string
	HttpBindAddress string

	JwtSecret []byte
	SentryDsn string

	ResolutionPolicy string
	QuorumSize       int

	PendingTimeout time.Duration
	SweepInterval  time.Duration

	// BackupDir enables periodic database backups when set.
	BackupDir      string
	BackupInterval time.Duration
}

// ConfigRaw is what we read from the yaml file
type ConfigRaw struct {
	Production bool `yaml:"production"`

	DbPath          string `yaml:"db_path" validate:"required"`
	ServiceAddress  string `yaml:"service_address" validate:"required"`
	HttpBindAddress string `yaml:"http_bind_address"`

	JwtSecret string `yaml:"jwt_secret"`
	SentryDsn string `yaml:"sentry_dsn"`

	Resolution struct {
		Policy string `yaml:"policy" validate:"omitempty,oneof=first_response quorum"`
		Quorum int    `yaml:"quorum" validate:"gte=0"`
	} `yaml:"resolution"`

	PendingTimeout string `yaml:"pending_timeout"`
	SweepInterval  string `yaml:"sweep_interval"`

	BackupDir      string `yaml:"backup_dir"`
	BackupInterval string `yaml:"backup_interval"`
}

// NewConfig parses and validates the service config file, then builds the
// derived pieces (logger, durations, policy defaults).
func NewConfig(configFilePath string) (*Config, error) {
	raw := ConfigRaw{}

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", configFilePath, err)
	}

	if err := validator.New().Struct(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	env := logger.Development
	if raw.Production {
		env = logger.Production
	}

	l, err := logger.NewZapLogger(env)
	if err != nil {
		return nil, err
	}

	policy := raw.Resolution.Policy
	if policy == "" {
		policy = PolicyFirstResponse
	}

	quorum := raw.Resolution.Quorum
	if policy == PolicyQuorum && quorum < 1 {
		return nil, fmt.Errorf("invalid config: quorum policy needs resolution.quorum >= 1")
	}

	pendingTimeout, err := parseDurationOr(raw.PendingTimeout, defaultPendingTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid pending_timeout: %w", err)
	}

	sweepInterval, err := parseDurationOr(raw.SweepInterval, defaultSweepInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep_interval: %w", err)
	}

	backupInterval, err := parseDurationOr(raw.BackupInterval, defaultBackupInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid backup_interval: %w", err)
	}

	return &Config{
		Logger:      l,
		Environment: env,

		DbPath:          raw.DbPath,
		ServiceAddress:  raw.ServiceAddress,
		HttpBindAddress: raw.HttpBindAddress,

		JwtSecret: []byte(raw.JwtSecret),
		SentryDsn: raw.SentryDsn,

		ResolutionPolicy: policy,
		QuorumSize:       quorum,

		PendingTimeout: pendingTimeout,
		SweepInterval:  sweepInterval,

		BackupDir:      raw.BackupDir,
		BackupInterval: backupInterval,
	}, nil
}

func parseDurationOr(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}

	return time.ParseDuration(raw)
}
