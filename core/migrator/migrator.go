package migrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/GurakG/Enclave-PSSC/core/backup"
	"github.com/GurakG/Enclave-PSSC/pkg/logger"
	"github.com/GurakG/Enclave-PSSC/storage"
)

// MigrationFunc performs one database migration. It returns the number of
// records updated.
type MigrationFunc func(db storage.Storage) (int, error)

type Migration struct {
	Name     string
	Function MigrationFunc
}

// Migrator applies pending migrations at startup. Applied migrations are
// recorded under "migration:<name>" so each one runs at most once per
// database. A backup is taken before the first pending migration runs.
type Migrator struct {
	logger     logger.Logger
	db         storage.Storage
	migrations []Migration
	backup     *backup.Service
	mu         sync.Mutex
}

func NewMigrator(l logger.Logger, db storage.Storage, backup *backup.Service, migrations []Migration) *Migrator {
	return &Migrator{
		logger:     logger.EnsureLogger(l),
		db:         db,
		migrations: migrations,
		backup:     backup,
	}
}

// Register adds a migration to the list.
func (m *Migrator) Register(name string, fn MigrationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrations = append(m.migrations, Migration{
		Name:     name,
		Function: fn,
	})
}

// Run executes every registered migration that hasn't been applied yet.
func (m *Migrator) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hasPending := false
	for _, migration := range m.migrations {
		applied, err := m.applied(migration.Name)
		if err != nil || !applied {
			hasPending = true
			break
		}
	}

	if hasPending && m.backup != nil {
		m.logger.Info("Pending migrations found, creating database backup before proceeding")
		backupFile, err := m.backup.PerformBackup()
		if err != nil {
			return fmt.Errorf("failed to create backup before migrations: %w", err)
		}
		m.logger.Info("Database backup created", "file", backupFile)
	}

	for _, migration := range m.migrations {
		applied, err := m.applied(migration.Name)
		if applied && err == nil {
			m.logger.Debug("Migration already applied, skipping", "name", migration.Name)
			continue
		}

		m.logger.Info("Running migration", "name", migration.Name)
		recordsUpdated, err := migration.Function(m.db)
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		m.logger.Info("Migration completed", "name", migration.Name, "records", recordsUpdated)

		value := fmt.Sprintf("records=%d,ts=%d", recordsUpdated, time.Now().UnixMilli())
		if err := m.db.Set(m.key(migration.Name), []byte(value)); err != nil {
			return fmt.Errorf("failed to mark migration as complete in database: %w", err)
		}
	}

	return nil
}

func (m *Migrator) applied(name string) (bool, error) {
	return m.db.Exist(m.key(name))
}

func (m *Migrator) key(name string) []byte {
	return []byte(fmt.Sprintf("migration:%s", name))
}
