package db

import (
	"context"
	"strings"
)

const walPragma = "PRAGMA journal_mode=WAL"

// Tables lists the core tables in creation order.
var Tables = []string{"sessions", "rooms", "speakers", "measurements", "analysis_results"}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		room_id INTEGER,
		note TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		width REAL,
		height REAL,
		depth REAL
	)`,
	`CREATE TABLE IF NOT EXISTS speakers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		position_x REAL,
		position_y REAL,
		position_z REAL
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		speaker_id INTEGER,
		path TEXT,
		taken_at TEXT NOT NULL,
		note TEXT,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		measurement_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY(measurement_id) REFERENCES measurements(id)
	)`,
}

// EnsureSchema creates the core tables if they do not exist and switches the
// journal to WAL. It stops at the first failing CREATE; tables created before
// the failure remain, so it is safe to call again.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.IsOpen() {
		return ErrNotOpen
	}

	// In-memory databases report "memory" instead of failing, so the pragma
	// result is only logged.
	if err := s.exec(ctx, walPragma); err != nil {
		s.log.Warn().Err(err).Msg("could not enable WAL journal")
	}

	for _, stmt := range schemaStatements {
		if err := s.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func isKnownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

// compactSQL collapses whitespace so statements read well on one log line.
func compactSQL(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
