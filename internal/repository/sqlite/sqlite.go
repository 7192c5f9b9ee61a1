// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, so no C compiler is needed.
//
// TIMESTAMPS:
// Server timestamps are stored as INTEGER Unix milliseconds. That keeps the
// bump cooldown comparison (`last_bumped_at <= ?`) a plain integer compare
// inside SQLite, independent of how the driver formats time.Time values.
// Conversion to time.Time happens only in this package.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

// pragmas are passed in the DSN rather than run once with conn.Exec, so that
// every connection the pool opens gets them, not just the first one.
//
//   - foreign_keys: OFF by default in SQLite; server_tags relies on ON DELETE CASCADE
//   - busy_timeout: a second writer waits up to 5s for the lock instead of
//     failing immediately with SQLITE_BUSY (concurrent bumps hit this)
//   - journal_mode=WAL: readers don't block the single writer
const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// DB wraps a sql.DB connection pool and provides repository methods.
// It implements both repository.ServerRepository and repository.UserRepository.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/dishub.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is its own private database. Pin the
	// pool to one connection so every query sees the same tables.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate runs all database migrations.
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			discord_id  TEXT NOT NULL UNIQUE,
			username    TEXT NOT NULL,
			global_name TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			avatar_url  TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// The guilds a user could link, as of their last sign-in. Replaced
	// wholesale by every Upsert.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_guilds (
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			guild_id TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, guild_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_guilds table: %w", err)
	}

	// discord_guild_id is NULL when the owner hasn't linked a guild; SQLite
	// allows any number of NULLs under a UNIQUE constraint.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS servers (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			banner_url       TEXT NOT NULL DEFAULT '',
			invite_url       TEXT NOT NULL,
			member_count     INTEGER NOT NULL DEFAULT 0 CHECK (member_count >= 0),
			owner_id         TEXT NOT NULL,
			discord_guild_id TEXT UNIQUE,
			created_at       INTEGER NOT NULL,
			last_bumped_at   INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_servers_owner_id ON servers(owner_id);
		CREATE INDEX IF NOT EXISTS idx_servers_last_bumped_at ON servers(last_bumped_at);
	`)
	if err != nil {
		return fmt.Errorf("creating servers table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS server_tags (
			id        TEXT PRIMARY KEY,
			server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
			value     TEXT NOT NULL,
			position  INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_server_tags_server_id ON server_tags(server_id);
	`)
	if err != nil {
		return fmt.Errorf("creating server_tags table: %w", err)
	}

	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, so helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction: commit if fn returns nil, rollback
// on error or panic.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("sqlite: committing transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
