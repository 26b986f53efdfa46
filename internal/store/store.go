// Package store persists the session signature and scan history in SQLite.
//
// Persistence is best-effort: the audit itself never depends on it. Callers
// log save failures and carry on with the in-memory signature.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"darksight/internal/audit"
	"darksight/internal/logging"
)

// historyCap bounds the audit_history table; older rows are pruned on insert.
const historyCap = 100

// HistoryEntry is one completed (or halted) scan run.
type HistoryEntry struct {
	RunID    string
	Target   string
	Status   audit.ViewportStatus
	Score    int
	Findings []audit.Finding
	Tiles    int
	Total    int
	Outcome  string
	Created  time.Time
}

// AuditStore is the SQLite-backed session store. Safe for concurrent use.
type AuditStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open initializes the database at path, creating the directory and schema
// as needed.
func Open(path string) (*AuditStore, error) {
	logging.Store("opening audit store at %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &AuditStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *AuditStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_signature (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		signature_json TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS audit_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		score INTEGER NOT NULL,
		findings_json TEXT NOT NULL,
		tiles INTEGER NOT NULL,
		total INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_created ON audit_history(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// LoadSignature returns the persisted session signature, reporting whether
// one exists.
func (s *AuditStore) LoadSignature() (audit.Signature, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow("SELECT signature_json FROM session_signature WHERE id = 1").Scan(&raw)
	if err == sql.ErrNoRows {
		return audit.Signature{}, false, nil
	}
	if err != nil {
		return audit.Signature{}, false, fmt.Errorf("failed to load signature: %w", err)
	}

	var sig audit.Signature
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		// A corrupt row is unrecoverable; treat it as absent.
		logging.Get(logging.CategoryStore).Warn("discarding corrupt signature row: %v", err)
		return audit.Signature{}, false, nil
	}
	logging.StoreDebug("loaded signature: %d anchors", len(sig.Anchors))
	return sig, true, nil
}

// SaveSignature upserts the single signature row.
func (s *AuditStore) SaveSignature(sig audit.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signature: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO session_signature (id, signature_json, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			signature_json = excluded.signature_json,
			updated_at = CURRENT_TIMESTAMP`, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save signature: %w", err)
	}
	return nil
}

// AppendHistory records a run and prunes the table to the most recent rows.
func (s *AuditStore) AppendHistory(entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	findings, err := json.Marshal(entry.Findings)
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO audit_history (run_id, target, status, score, findings_json, tiles, total, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Target, string(entry.Status), entry.Score,
		string(findings), entry.Tiles, entry.Total, entry.Outcome)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}

	_, err = tx.Exec(`
		DELETE FROM audit_history WHERE id NOT IN (
			SELECT id FROM audit_history ORDER BY id DESC LIMIT ?)`, historyCap)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	logging.StoreDebug("recorded run %s (%s, %d findings)", entry.RunID, entry.Status, len(entry.Findings))
	return nil
}

// History returns the most recent runs, newest first.
func (s *AuditStore) History(limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	rows, err := s.db.Query(`
		SELECT run_id, target, status, score, findings_json, tiles, total, outcome, created_at
		FROM audit_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var status, findings string
		if err := rows.Scan(&e.RunID, &e.Target, &status, &e.Score, &findings,
			&e.Tiles, &e.Total, &e.Outcome, &e.Created); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Status = audit.ViewportStatus(status)
		if err := json.Unmarshal([]byte(findings), &e.Findings); err != nil {
			logging.StoreDebug("skipping corrupt findings for run %s: %v", e.RunID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reset drops the persisted signature and history.
func (s *AuditStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range []string{
		"DELETE FROM session_signature",
		"DELETE FROM audit_history",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
	}
	logging.Store("store reset at %s", s.path)
	return nil
}
