package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations
var migrationsFS embed.FS

var (
	ErrNotFound     = errors.New("bet not found")
	ErrDuplicateBet = errors.New("bet already tracked for this message")
	ErrNotPending   = errors.New("bet is not pending")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
)

// Config selects the database backing the tracking store
type Config struct {
	Driver string // sqlite or postgres
	DSN    string // file path for sqlite, connection URL for postgres
}

// Open connects to the database, applies pending migrations and returns a ready store
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*SQLStore, error) {
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if err := migrateUp(db, cfg.Driver); err != nil {
		db.Close()
		return nil, err
	}

	s := NewSQLStore(db, logger)
	s.logger.Info().Str("driver", cfg.Driver).Msg("tracking store ready")
	return s, nil
}

func dataSourceName(cfg Config) (string, error) {
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.DSN == "" {
			return "", fmt.Errorf("sqlite store requires a database path")
		}
		if strings.Contains(cfg.DSN, "_pragma=") {
			return cfg.DSN, nil
		}
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		return cfg.DSN + sep + sqlitePragmas, nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("postgres store requires a DSN")
		}
		return cfg.DSN, nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// migrateUp applies the embedded migrations for the driver. The migrate instance is
// not closed because closing it also closes db.
func migrateUp(db *sqlx.DB, driver string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	var target database.Driver
	switch driver {
	case DriverSQLite:
		target, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	case DriverPostgres:
		target, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		err = fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
