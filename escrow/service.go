package escrow

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GurakG/Enclave-PSSC/core/backup"
	"github.com/GurakG/Enclave-PSSC/core/config"
	"github.com/GurakG/Enclave-PSSC/core/migrator"
	"github.com/GurakG/Enclave-PSSC/messaging"
	"github.com/GurakG/Enclave-PSSC/migrations"
	"github.com/GurakG/Enclave-PSSC/metrics"
	"github.com/GurakG/Enclave-PSSC/pkg/logger"
	"github.com/GurakG/Enclave-PSSC/storage"
	"github.com/GurakG/Enclave-PSSC/version"
)

type ServiceStatus string

const (
	initStatus     ServiceStatus = "init"
	runningStatus  ServiceStatus = "running"
	shutdownStatus ServiceStatus = "shutdown"
)

// Service is the escrow instance: it owns the storage, the registries and
// the protocol machinery, and binds them to the messaging substrate.
type Service struct {
	logger logger.Logger
	config *config.Config

	db           storage.Storage
	backup       *backup.Service
	store        *SecretStore
	registry     *OracleRegistry
	orchestrator *Orchestrator
	dispatcher   *Dispatcher

	substrate messaging.Substrate

	metricsReg *prometheus.Registry
	metrics    *metrics.EscrowMetrics

	status      ServiceStatus
	unsubscribe func()
}

// RunWithConfig boots a service from a config file and blocks until a
// termination signal. The in-process substrate here is the local single
// process mode; a deployment binds a real substrate through New.
func RunWithConfig(configPath string) error {
	c, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	service, err := New(c, messaging.NewInProc())
	if err != nil {
		return fmt.Errorf("cannot initialize escrow service from config: %w", err)
	}

	return service.Start(context.Background())
}

// New creates a service bound to the given substrate.
func New(c *config.Config, substrate messaging.Substrate) (*Service, error) {
	reg := prometheus.NewRegistry()

	return &Service{
		logger:     logger.EnsureLogger(c.Logger),
		config:     c,
		substrate:  substrate,
		metricsReg: reg,
		metrics:    metrics.NewEscrowMetrics(reg),
		status:     initStatus,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.logger.Infof("Starting escrow service %s", version.Get())

	s.initSentry()

	s.logger.Infof("Initialize storage")
	db, err := storage.NewWithPath(s.config.DbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	s.db = db

	if s.config.BackupDir != "" {
		s.backup = backup.NewService(s.logger, s.db, s.config.BackupDir)
	}

	m := migrator.NewMigrator(s.logger, s.db, s.backup, migrations.Migrations)
	if err := m.Run(); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	if s.backup != nil {
		if err := s.backup.StartPeriodicBackup(s.config.BackupInterval); err != nil {
			return fmt.Errorf("cannot start backup service: %w", err)
		}
	}

	s.store = NewSecretStore(s.db)
	s.registry = NewOracleRegistry(s.db)

	s.orchestrator, err = NewOrchestrator(s.config, s.store, s.registry, s.substrate, s.metrics)
	if err != nil {
		return err
	}

	s.dispatcher = NewDispatcher(s.logger, s.store, s.registry, s.orchestrator, s.substrate, s.metrics)

	s.logger.Infof("Starting oracle orchestrator")
	if err := s.orchestrator.Start(ctx); err != nil {
		return err
	}

	s.logger.Info("Binding messaging substrate", "address", s.config.ServiceAddress)
	s.unsubscribe, err = s.substrate.Subscribe(s.config.ServiceAddress, func(payload []byte, hint string, topic string) {
		// each inbound message runs on its own goroutine; the dispatcher and
		// everything under it serialize per-key, not globally
		goSafe(func() {
			s.dispatcher.OnMessage(payload, hint, topic)
		})
	})
	if err != nil {
		return fmt.Errorf("cannot subscribe to substrate: %w", err)
	}

	s.logger.Infof("Starting http server")
	s.startHttpServer(ctx)

	s.status = runningStatus

	// Setup wait signal
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan bool, 1)
	go func() {
		<-sigs
		done <- true
	}()

	<-done
	s.logger.Infof("Shutting down...")

	s.status = shutdownStatus
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.orchestrator.Stop()
	if s.backup != nil {
		s.backup.StopPeriodicBackup()
	}
	s.db.Close()

	sentryFlushSafely(2 * time.Second)
	_ = s.logger.Sync()

	return nil
}

func (s *Service) IsShutdown() bool {
	return s.status == shutdownStatus
}

func (s *Service) initSentry() {
	if s.config.SentryDsn == "" {
		s.logger.Info("Sentry DSN not configured, Sentry integration is disabled")
		return
	}

	env := "production"
	if s.config.Environment == logger.Development {
		env = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              s.config.SentryDsn,
		Release:          version.Get() + "@" + version.Commit(),
		Environment:      env,
		AttachStacktrace: true,
	})
	if err != nil {
		s.logger.Errorf("Sentry initialization failed: %v", err)
		return
	}

	s.logger.Infof("Sentry initialized for environment: %s", env)
}
