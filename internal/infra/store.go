package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	storeDBName = "zenguard.db"

	// pollInterval bounds how long a subscriber waits to see a commit made
	// by another process (the CLI writing while the daemon runs).
	pollInterval = 2 * time.Second
)

// Store is the encrypted SQLite database behind every durable zenguard
// store: classifications, schedules, sessions, settings, grant history and
// daemon state. One Store is shared by the whole process.
type Store struct {
	db     *sql.DB
	dbPath string
	hub    *changeHub
	poll   time.Duration
}

// OpenStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func OpenStore(dataDir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
		dbPath, hex.EncodeToString(key))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// One connection: statements serialize in-process and PRAGMA state
	// (busy timeout, data_version) stays on a single handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
		hub:    newChangeHub(),
		poll:   pollInterval,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS apps (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		class TEXT NOT NULL DEFAULT 'GREEN',
		is_system INTEGER NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0,
		last_used INTEGER NOT NULL DEFAULT 0,
		hidden INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sessions (
		app_id TEXT PRIMARY KEY,
		start_elapsed_ms INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		expiry_elapsed_ms INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		boot_id INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		start_hour INTEGER NOT NULL,
		start_minute INTEGER NOT NULL,
		end_hour INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		days TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS grant_history (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		reason TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_grant_history_created ON grant_history(created_at);

	CREATE TABLE IF NOT EXISTS daemon_state (
		role TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// dataVersion changes whenever another connection commits.
func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v)
	return v, err
}

// watch drives a subscription: it calls load once, then again after every
// local commit on topic and every foreign commit seen by polling, and sends
// each snapshot to out. Load failures keep the previous snapshot. Until the
// first snapshot is delivered every poll tick retries the load.
func watch[T any](ctx context.Context, s *Store, topic changeTopic, load func(context.Context) (T, error), out chan<- T) {
	defer close(out)

	changed, unsubscribe := s.hub.subscribe(topic)
	defer unsubscribe()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	lastVersion, _ := s.dataVersion(ctx)
	delivered := false

	emit := func() bool {
		snap, err := load(ctx)
		if err != nil {
			return true
		}
		select {
		case out <- snap:
			delivered = true
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			if !emit() {
				return
			}
		case <-ticker.C:
			v, err := s.dataVersion(ctx)
			if err != nil {
				continue
			}
			if delivered && v == lastVersion {
				continue
			}
			lastVersion = v
			if !emit() {
				return
			}
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
