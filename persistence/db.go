package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	pbun "github.com/goliatone/go-persistence-bun"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// DefaultDSN is a private in-memory SQLite database
const DefaultDSN = "file::memory:?cache=shared"

// MigrationsSourceLabel names the embedded migration tree in client reports
const MigrationsSourceLabel = "data/sql/migrations"

// Driver names the SQL driver and dialect a DSN maps to
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DriverFor picks the driver from the DSN scheme. Anything that is not a
// postgres URL is treated as SQLite.
func DriverFor(dsn string) Driver {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Config feeds the persistence client
type Config struct {
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c Config) GetDebug() bool {
	return c.Debug
}

func (c Config) GetDriver() string {
	if DriverFor(c.GetServer()) == DriverPostgres {
		return "pgx"
	}
	return sqliteshim.ShimName
}

func (c Config) GetServer() string {
	if strings.TrimSpace(c.DSN) == "" {
		return DefaultDSN
	}
	return c.DSN
}

func (c Config) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c Config) GetOtelIdentifier() string {
	return ""
}

// Open connects to dsn and returns the pool with its bun dialect
func Open(dsn string) (*sql.DB, schema.Dialect, error) {
	cfg := Config{DSN: dsn}
	dsn = cfg.GetServer()

	sqldb, err := sql.Open(cfg.GetDriver(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}

	if DriverFor(dsn) == DriverPostgres {
		return sqldb, pgdialect.New(), nil
	}

	if isMemory(dsn) {
		// every new connection would get its own empty database
		sqldb.SetMaxOpenConns(1)
	}
	return sqldb, sqlitedialect.New(), nil
}

// Connect opens the database described by cfg and applies the per dialect
// migrations in migrations, which holds one directory per dialect.
func Connect(ctx context.Context, cfg Config, migrations fs.FS, models ...any) (*bun.DB, error) {
	sqldb, dialect, err := Open(cfg.DSN)
	if err != nil {
		return nil, err
	}

	for _, model := range models {
		pbun.RegisterModel(model)
	}

	client, err := pbun.New(cfg, sqldb, dialect)
	if err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	client.RegisterDialectMigrations(
		migrations,
		pbun.WithDialectSourceLabel(MigrationsSourceLabel),
		pbun.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("validate migrations: %w", err)
	}

	if err := client.Migrate(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return client.DB(), nil
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
