// Package history persists a best-effort log of completed and failed
// transfers to a local SQLite database, for the caller's own UI/CLI to
// surface. It is never consulted by the live transfer state machines.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBFileName is the SQLite filename under the data directory.
const DefaultDBFileName = "history.db"

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS transfers (
  transfer_id     TEXT PRIMARY KEY,
  direction       TEXT NOT NULL CHECK(direction IN ('sent','received')),
  peer_device_id  TEXT NOT NULL,
  peer_alias      TEXT NOT NULL,
  total_files     INTEGER NOT NULL,
  total_size      INTEGER NOT NULL,
  status          TEXT NOT NULL CHECK(status IN ('completed','rejected','failed')),
  error           TEXT,
  started_at      INTEGER NOT NULL,
  finished_at     INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_transfers_finished_at ON transfers (finished_at);
`,
}

// Store is a handle to the transfer-history database.
type Store struct {
	db *sql.DB
}

// Record is one completed or failed transfer, as logged after the fact.
type Record struct {
	TransferID    string
	Direction     string // "sent" or "received"
	PeerDeviceID  string
	PeerAlias     string
	TotalFiles    int
	TotalSize     uint64
	Status        string // "completed", "rejected", or "failed"
	Error         string
	StartedAt     int64
	FinishedAt    int64
}

// Open opens (or creates) history.db under dataDir and applies migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("history: create data directory: %w", err)
	}
	return OpenPath(filepath.Join(dataDir, DefaultDBFileName))
}

// OpenPath opens SQLite at an explicit path and applies migrations.
func OpenPath(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.enableWALMode(); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("history: enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("history: enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("history: read schema version: %w", err)
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history: begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("history: apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("history: set schema version %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// Record inserts or replaces one transfer record.
func (s *Store) Record(r Record) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO transfers
		(transfer_id, direction, peer_device_id, peer_alias, total_files, total_size, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TransferID, r.Direction, r.PeerDeviceID, r.PeerAlias, r.TotalFiles, r.TotalSize, r.Status, r.Error, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("history: record transfer %s: %w", r.TransferID, err)
	}
	return nil
}

// Recent returns the most recently finished transfers, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT transfer_id, direction, peer_device_id, peer_alias, total_files, total_size, status, error, started_at, finished_at
		FROM transfers ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent transfers: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var errText sql.NullString
		if err := rows.Scan(&r.TransferID, &r.Direction, &r.PeerDeviceID, &r.PeerAlias, &r.TotalFiles, &r.TotalSize, &r.Status, &errText, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("history: scan transfer row: %w", err)
		}
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}
