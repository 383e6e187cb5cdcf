package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/0xa1bed0/stagecache/internal/logs"
	_ "modernc.org/sqlite"
)

// ErrSchemaTooNew is returned by Open for a state database written by a
// newer stagecache.
var ErrSchemaTooNew = errors.New("state database schema is newer than this stagecache")

// migrations[i] moves the schema from version i to i+1. The version lives in
// PRAGMA user_version.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS layers (
	fingerprint TEXT PRIMARY KEY,
	artifact    TEXT NOT NULL,
	stage       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	last_used   INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS images (
	ref        TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	schema     TEXT NOT NULL,
	artifact   TEXT NOT NULL,
	history    TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`,
	},
	{
		`CREATE INDEX IF NOT EXISTS layers_last_used ON layers (last_used)`,
		`CREATE INDEX IF NOT EXISTS images_created_at ON images (created_at)`,
	},
}

// schemaVersion is the schema this binary reads and writes.
var schemaVersion = len(migrations)

type Config struct {
	// Path is the absolute path to the sqlite file.
	// Example: /Users/user/.config/stagecache/state.db
	Path string

	// BusyTimeout is how long another writer waits (in milliseconds)
	// before failing with "database is locked".
	// If zero, defaults to 5000 (5 seconds).
	BusyTimeout int

	// JournalMode, usually "WAL". If empty, defaults to "WAL".
	JournalMode string
}

type DB struct {
	sql  *sql.DB
	path string
}

// Open opens (or creates) the state database, configures WAL + busy timeout
// and brings the schema up to date.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db: Path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("db: create dir: %w", err)
	}

	escapedPath := url.PathEscape(cfg.Path)
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=foreign_keys(1)",
		escapedPath,
		cfg.BusyTimeout,
		url.QueryEscape(cfg.JournalMode),
	)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sqlDB.Close(); err != nil {
			logs.Errorf("db close error: %v", err)
		}
	}()

	// Fail early if the DB is not usable.
	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(timeoutCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	d := &DB{sql: sqlDB, path: cfg.Path}
	if err := d.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		var current int
		if err := tx.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
			return fmt.Errorf("db: read schema version: %w", err)
		}
		if current > schemaVersion {
			return fmt.Errorf("%w: v%d, want at most v%d", ErrSchemaTooNew, current, schemaVersion)
		}
		if current == schemaVersion {
			return nil
		}

		for v := current; v < schemaVersion; v++ {
			for _, stmt := range migrations[v] {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("db: migrate to v%d: %w", v+1, err)
				}
			}
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
			return fmt.Errorf("db: write schema version: %w", err)
		}
		logs.Debugf("state database %s migrated from v%d to v%d", d.path, current, schemaVersion)
		return nil
	})
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Raw exposes the underlying *sql.DB for the stores.
func (d *DB) Raw() *sql.DB {
	return d.sql
}

// WithTx runs fn inside a transaction. If fn returns an error,
// the transaction is rolled back. Otherwise it is committed.
func (d *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin tx: %w", err)
	}
	defer func() {
		// Safety net in case fn panics.
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit tx: %w", err)
	}
	return nil
}
