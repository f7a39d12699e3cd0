// Package store persists operational counters that need to survive a
// restart: per-PID malformed-packet counts, ECM/EMM latency samples,
// and CI slot reset history. Adapted from internal/plex's
// database/sql + modernc.org/sqlite driver-registration idiom
// (internal/plex/epg.go), with the schema-introspecting EPG writer
// replaced by a small fixed schema of its own.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a single sqlite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pid_errors (
			pid INTEGER PRIMARY KEY,
			malformed_count INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS em_latency (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pnr INTEGER NOT NULL,
			kind TEXT NOT NULL,
			latency_ms INTEGER NOT NULL,
			observed_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slot_resets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slot INTEGER NOT NULL,
			reason TEXT NOT NULL,
			reset_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// IncrMalformed bumps the malformed-packet counter for pid by one.
func (s *Store) IncrMalformed(pid uint16) error {
	_, err := s.db.Exec(`
		INSERT INTO pid_errors (pid, malformed_count, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT(pid) DO UPDATE SET
			malformed_count = malformed_count + 1,
			updated_at = excluded.updated_at
	`, pid, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: incr malformed pid=%d: %w", pid, err)
	}
	return nil
}

// MalformedCount returns the current malformed-packet count for pid.
func (s *Store) MalformedCount(pid uint16) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT malformed_count FROM pid_errors WHERE pid = ?`, pid).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: malformed count pid=%d: %w", pid, err)
	}
	return n, nil
}

// RecordLatency logs one ECM or EMM round-trip sample for pnr.
func (s *Store) RecordLatency(pnr uint16, kind string, latency time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO em_latency (pnr, kind, latency_ms, observed_at) VALUES (?, ?, ?, ?)
	`, pnr, kind, latency.Milliseconds(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: record latency pnr=%d kind=%s: %w", pnr, kind, err)
	}
	return nil
}

// RecordSlotReset logs one CI slot reset with its cause.
func (s *Store) RecordSlotReset(slot int, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO slot_resets (slot, reason, reset_at) VALUES (?, ?, ?)
	`, slot, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: record slot reset slot=%d: %w", slot, err)
	}
	return nil
}

// SlotResetHistory returns the most recent n reset records for slot,
// newest first.
func (s *Store) SlotResetHistory(slot int, n int) ([]SlotReset, error) {
	rows, err := s.db.Query(`
		SELECT reason, reset_at FROM slot_resets
		WHERE slot = ? ORDER BY reset_at DESC LIMIT ?
	`, slot, n)
	if err != nil {
		return nil, fmt.Errorf("store: slot reset history slot=%d: %w", slot, err)
	}
	defer rows.Close()

	var out []SlotReset
	for rows.Next() {
		var r SlotReset
		var ts int64
		if err := rows.Scan(&r.Reason, &ts); err != nil {
			return nil, fmt.Errorf("store: scan slot reset: %w", err)
		}
		r.ResetAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SlotReset is one recorded CI slot reset.
type SlotReset struct {
	Reason  string
	ResetAt time.Time
}
