// Package postgres implements storage.Storage on PostgreSQL via the pgx
// stdlib driver. Schema is managed with embedded golang-migrate migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agent-world/agentworld/pkg/storage"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is the PostgreSQL-backed storage implementation.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Open connects to the database described by cfg, verifies the connection
// and runs pending migrations.
func Open(ctx context.Context, cfg storage.PostgresConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "storage.postgres")}
	if err := s.migrate(cfg.Database); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("PostgreSQL storage ready",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return s, nil
}

// OpenDSN connects with a raw connection string. Used by integration tests
// against throwaway containers.
func OpenDSN(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &Store{db: db, logger: logger.With("component", "storage.postgres")}
	if err := s.migrate(""); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(dbName string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	dbDriver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, dbDriver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	// Close only the source; closing the migrator would close s.db with it.
	if err := sourceDriver.Close(); err != nil {
		s.logger.Warn("Failed to close migration source", "error", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
