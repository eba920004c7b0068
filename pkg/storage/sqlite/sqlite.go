// Package sqlite implements storage.Storage on a single SQLite database file
// using the pure-Go modernc.org/sqlite driver. Schema is managed with
// embedded golang-migrate migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/agent-world/agentworld/pkg/storage"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is the SQLite-backed storage implementation.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Open creates (or opens) the database file under rootDir, applies pragmas
// and runs pending migrations.
func Open(ctx context.Context, rootDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(rootDir, "agentworld.db")
	// _time_format makes the driver store time.Time as a parseable SQLite
	// timestamp instead of Go's String() form.
	db, err := sql.Open("sqlite", "file:"+path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// The driver is pure Go but SQLite still serializes writers; a single
	// connection avoids SQLITE_BUSY without a retry loop.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.With("component", "storage.sqlite")}
	if err := s.configure(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("SQLite storage ready", "path", path)
	return s, nil
}

func (s *Store) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("applying %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	dbDriver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "agentworld", dbDriver)
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

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
