package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airylvat/trivia-league/logging"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("db: not found")

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB is the durable store for users, weekly scores, wallets and payouts.
type DB struct {
	x      *sqlx.DB
	logger *logging.Logger
	now    func() time.Time
}

// Open connects to postgres when databaseURL is a postgres url, otherwise to
// the sqlite file at databasePath, and applies the embedded migrations.
func Open(ctx context.Context, databaseURL, databasePath string, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Component("db")

	driver, dialect, dsn := "sqlite3", "sqlite3", databasePath
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver, dialect, dsn = "postgres", "postgres", databaseURL
	} else {
		if dir := filepath.Dir(databasePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("error creating database directory: %w", err)
			}
		}
		dsn += "?_busy_timeout=5000"
	}

	logger.Info("opening database", "driver", driver)
	x, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one writer at a time; increments queue instead of failing with SQLITE_BUSY
		x.SetMaxOpenConns(1)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(migrationLogger{logger.With("migrator", "goose")})
	if err := goose.SetDialect(dialect); err != nil {
		x.Close()
		return nil, fmt.Errorf("error setting dialect: %w", err)
	}

	logger.Info("running database migrations")
	if err := goose.UpContext(ctx, x.DB, "migrations"); err != nil {
		x.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return New(x, logger), nil
}

// migrationLogger routes goose output through the structured logger.
type migrationLogger struct {
	logger *logging.Logger
}

func (m migrationLogger) Printf(format string, v ...any) {
	m.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (m migrationLogger) Fatalf(format string, v ...any) {
	m.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}

// New wraps an existing connection. Migrations are not applied.
func New(x *sqlx.DB, logger *logging.Logger) *DB {
	if logger == nil {
		logger = logging.Default()
	}
	return &DB{
		x:      x,
		logger: logger,
		now:    time.Now,
	}
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.x.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	d.logger.Info("closing database")
	return d.x.Close()
}

func (d *DB) clock() time.Time {
	return d.now().UTC()
}
