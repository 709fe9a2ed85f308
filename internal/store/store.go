// Package store provides durable persistence for the bridge's deposit and
// credit lifecycle using SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable backing store for the bridge. All writes are
// serialized through a single connection; SQLite only supports one writer
// at a time and the bridge's own supervisory loop is already single-threaded
// per phase, so no further write concurrency is needed.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Config holds store configuration.
type Config struct {
	DataDir string
}

// New opens (creating if necessary) the bridge database at cfg.DataDir and
// initializes its schema.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "bridge.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection, for callers that need
// read-only ad hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS unprocessed_deposits_s (
		sig TEXT PRIMARY KEY,
		timestamp INTEGER,
		memo TEXT,
		from_address TEXT,
		amount_usdc_units INTEGER,
		status TEXT,
		txid TEXT,
		pending_reference INTEGER
	);

	CREATE TABLE IF NOT EXISTS processed_deposits_s (
		sig TEXT PRIMARY KEY,
		timestamp INTEGER,
		amount_usdc_units INTEGER,
		txid TEXT,
		amount_usdd_units INTEGER,
		status TEXT,
		reference INTEGER
	);

	CREATE TABLE IF NOT EXISTS refunded_deposits_s (
		sig TEXT PRIMARY KEY,
		timestamp INTEGER,
		from_address TEXT,
		amount_usdc_units INTEGER,
		memo TEXT,
		refund_sig TEXT,
		refunded_units INTEGER,
		status TEXT
	);

	CREATE TABLE IF NOT EXISTS quarantined_deposits_s (
		sig TEXT PRIMARY KEY,
		timestamp INTEGER,
		from_address TEXT,
		amount_usdc_units INTEGER,
		memo TEXT,
		quarantine_sig TEXT,
		quarantined_units INTEGER,
		status TEXT
	);

	CREATE TABLE IF NOT EXISTS unprocessed_credits_n (
		txid TEXT PRIMARY KEY,
		timestamp INTEGER,
		amount_usdd_units INTEGER,
		from_address TEXT,
		to_address TEXT,
		owner_from_address TEXT,
		confirmations INTEGER,
		status TEXT,
		receival_account TEXT,
		pending_sig TEXT,
		pending_usdc_units INTEGER
	);

	CREATE TABLE IF NOT EXISTS processed_credits_n (
		txid TEXT PRIMARY KEY,
		timestamp INTEGER,
		amount_usdd_units INTEGER,
		amount_usdc_units INTEGER,
		from_address TEXT,
		to_address TEXT,
		owner TEXT,
		sig TEXT,
		status TEXT
	);

	CREATE TABLE IF NOT EXISTS refunded_credits_n (
		txid TEXT PRIMARY KEY,
		timestamp INTEGER,
		amount_usdd_units INTEGER,
		from_address TEXT,
		to_address TEXT,
		owner_from_address TEXT,
		confirmations INTEGER,
		status TEXT,
		sig TEXT
	);

	CREATE TABLE IF NOT EXISTS quarantined_credits_n (
		txid TEXT PRIMARY KEY,
		timestamp INTEGER,
		amount_usdd_units INTEGER,
		from_address TEXT,
		to_address TEXT,
		owner TEXT,
		sig TEXT,
		status TEXT
	);

	CREATE TABLE IF NOT EXISTS accounts (
		nickname TEXT PRIMARY KEY,
		chain TEXT,
		ticker TEXT,
		name TEXT,
		address TEXT,
		balance_units INTEGER,
		timestamp INTEGER
	);

	CREATE TABLE IF NOT EXISTS heartbeat (
		name TEXT PRIMARY KEY,
		last_beat INTEGER,
		wline_s INTEGER,
		wline_n INTEGER
	);

	CREATE TABLE IF NOT EXISTS reservations (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (kind, key)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		action_key TEXT PRIMARY KEY,
		count INTEGER DEFAULT 0,
		last_timestamp INTEGER
	);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS waterline_proposals (
		chain TEXT PRIMARY KEY,
		proposed_timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fee_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sig TEXT,
		txid TEXT,
		kind TEXT NOT NULL,
		amount_usdc_units INTEGER,
		amount_usdd_units INTEGER,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fee_summary (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_collected_usdc INTEGER DEFAULT 0,
		total_collected_usdd INTEGER DEFAULT 0,
		last_updated INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_unprocessed_deposits_s_ts ON unprocessed_deposits_s(timestamp);
	CREATE INDEX IF NOT EXISTS idx_unprocessed_credits_n_ts ON unprocessed_credits_n(timestamp);
	CREATE INDEX IF NOT EXISTS idx_fee_entries_kind ON fee_entries(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// isUniqueConstraintError reports whether err is a SQLite unique/primary key
// constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed")
}
