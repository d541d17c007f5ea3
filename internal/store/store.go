// Package store persists captured help text in a local SQLite database and
// serves it back for command lines whose dependency files are unchanged.
// Multiple processes may share one database; writes are transactional and a
// database on read-only media degrades to lookups only.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotCached is returned by Lookup when no entry with matching command
// fingerprint and unchanged dependency files exists.
var ErrNotCached = errors.New("command not cached")

// Store is a handle on one cache database.
type Store struct {
	db          *sql.DB
	path        string
	readOnly    bool
	schemaReady bool
	logger      *slog.Logger
}

// Entry is one replayable cache hit.
type Entry struct {
	ID         int64
	HelpText   []byte
	ExitStatus int
}

const schema = `
CREATE TABLE commands (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  argv        TEXT    NOT NULL,
  fingerprint TEXT    NOT NULL,
  ctime       INTEGER NOT NULL,
  atime       INTEGER NOT NULL,
  help_text   BLOB    NOT NULL,
  exit_status INTEGER NOT NULL
);

CREATE INDEX idx_commands_fingerprint ON commands(fingerprint);

CREATE TABLE files (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  path        TEXT NOT NULL,
  fingerprint TEXT NOT NULL UNIQUE
);

CREATE TABLE command_files (
  command_id INTEGER NOT NULL REFERENCES commands(id),
  file_id    INTEGER NOT NULL REFERENCES files(id),
  UNIQUE(command_id, file_id)
);
`

// Open opens (creating if necessary) the cache database at path. When the
// underlying file or filesystem refuses writes the store comes back in
// read-only mode: lookups work, inserts and atime updates are no-ops.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		// Best effort; a read-only filesystem fails here and is handled by
		// the read-only probe below.
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := openRW(path)
	readOnly := false
	if err != nil {
		if !isReadOnlyErr(err) {
			return nil, fmt.Errorf("open cache %s: %w", path, err)
		}
		if db, err = openRO(path); err != nil {
			return nil, fmt.Errorf("open cache %s read-only: %w", path, err)
		}
		readOnly = true
	}

	s := &Store{db: db, path: path, readOnly: readOnly, logger: logger}

	if !s.readOnly {
		// Probe writability the way the schema creation would exercise it;
		// some failures only surface at the first write.
		if _, err := s.db.Exec("PRAGMA user_version = 0"); err != nil {
			if !isReadOnlyErr(err) {
				db.Close()
				return nil, fmt.Errorf("probe cache %s: %w", path, err)
			}
			db.Close()
			if s.db, err = openRO(path); err != nil {
				return nil, fmt.Errorf("open cache %s read-only: %w", path, err)
			}
			s.readOnly = true
		}
	}

	var tables int
	row := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'")
	if err := row.Scan(&tables); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("inspect cache %s: %w", path, err)
	}
	s.schemaReady = tables > 0

	if !s.schemaReady && !s.readOnly {
		if _, err := s.db.Exec(schema); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("create schema in %s: %w", path, err)
		}
		s.schemaReady = true
	}

	return s, nil
}

func openRW(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	return open(dsn)
}

func openRO(path string) (*sql.DB, error) {
	// immutable: a WAL-mode database cannot be read at all when the -shm and
	// -wal siblings cannot be created, which is exactly the read-only-media
	// case this fallback exists for.
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1&_pragma=busy_timeout(5000)", path)
	return open(dsn)
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One connection: concurrency comes from SQLite's own locking, and a
	// single conn keeps transactions and nested statements on the same
	// handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// isReadOnlyErr matches the driver errors raised against write-protected
// database files.
func isReadOnlyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "readonly database") ||
		strings.Contains(msg, "unable to open database file") ||
		strings.Contains(msg, "read-only file system")
}

// ReadOnly reports whether the store refuses writes.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() int64 {
	return time.Now().Unix()
}
