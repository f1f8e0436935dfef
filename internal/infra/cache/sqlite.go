package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

// DefaultDBPath is where the SQLite cache lives when no path is configured.
const DefaultDBPath = "data/metadata.db"

// migrations are applied in order; the schema version is the number applied.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS cache_meta (
		key        TEXT PRIMARY KEY,
		value      TEXT,
		updated_at TEXT
	);
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT
	);`,
}

// SchemaVersion is the schema version Open migrates to.
var SchemaVersion = len(migrations)

// DB is a Store backed by a SQLite database file.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewDB creates a store for the database at path. Call Open before use.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{path: path}
}

// Open creates the parent directory if needed, opens the file in WAL mode
// and migrates the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	from, err := migrate(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate cache schema: %w", err)
	}
	d.db = db

	log.Info().Str("path", d.path).Int("from", from).Int("schema", SchemaVersion).Msg("Cache database opened")
	return nil
}

// migrate applies pending migrations and returns the version found on disk.
func migrate(db *sql.DB) (int, error) {
	if _, err := db.Exec(migrations[0]); err != nil {
		return 0, err
	}

	current := 0
	if v, err := readMeta(db, "schema_version"); err != nil {
		return 0, err
	} else if v != "" {
		if current, err = strconv.Atoi(v); err != nil {
			return 0, fmt.Errorf("schema_version %q: %w", v, err)
		}
	}
	if current > SchemaVersion {
		return current, fmt.Errorf("schema version %d is newer than supported %d", current, SchemaVersion)
	}

	for i := max(current, 1); i < SchemaVersion; i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return current, fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	if current != SchemaVersion {
		if err := writeMeta(db, "schema_version", strconv.Itoa(SchemaVersion)); err != nil {
			return current, err
		}
	}
	return current, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, x execer, table, key, value string) error {
	_, err := x.ExecContext(ctx, `INSERT INTO `+table+` (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

func writeMeta(db *sql.DB, key, value string) error {
	return upsert(context.Background(), db, "cache_meta", key, value)
}

func readMeta(db *sql.DB, key string) (string, error) {
	var value sql.NullString
	err := db.QueryRow("SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value.String, err
}

// Close closes the database. The store can be reopened with Open.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Get returns the value stored under key.
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return "", false, ErrNotOpen
	}

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (d *DB) Set(ctx context.Context, key, value string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrNotOpen
	}

	if err := upsert(ctx, d.db, "kv", key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Keys lists keys starting with prefix in lexical order. The prefix is
// matched literally, so "_" and "%" carry no pattern meaning.
func (d *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key",
		len([]rune(prefix)), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes keys in one transaction and records when it happened.
func (d *DB) Delete(ctx context.Context, keys ...string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrNotOpen
	}
	if len(keys) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM kv WHERE key = ?")
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("delete %q: %w", k, err)
		}
	}
	if err := upsert(ctx, tx, "cache_meta", "last_cleared", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record clear: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// Stats implements StatsReporter.
func (d *DB) Stats(ctx context.Context) (Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return Stats{}, ErrNotOpen
	}

	stats := Stats{Backend: "sqlite"}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&stats.EntryCount); err != nil {
		return Stats{}, fmt.Errorf("count entries: %w", err)
	}
	stats.SchemaVersion, _ = readMeta(d.db, "schema_version")
	if lastCleared, _ := readMeta(d.db, "last_cleared"); lastCleared != "" {
		stats.LastCleared, _ = time.Parse(time.RFC3339, lastCleared)
	}
	return stats, nil
}
