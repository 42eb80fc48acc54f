// Package store implements the pongogo persistence substrate: a single
// embedded SQLite file holding routing events, trigger dictionaries, the
// artifact and observation lifecycles, scan history, and guidance
// fulfillment. Schema application is idempotent; re-opening an existing
// database preserves every row.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pongogo/internal/logging"

	_ "modernc.org/sqlite"
)

// SchemaVersion is written to schema_info on every open. Migration is
// forward-only: the DDL adds missing tables and never drops existing ones.
const SchemaVersion = "3.1.0"

// Substrate wraps the embedded database. All write paths run inside a
// transaction; the mutex serializes writers while WAL keeps readers hot.
type Substrate struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path, creating the
// containing directory, applying the full DDL, and stamping the schema
// version.
func Open(path string) (*Substrate, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Substrate{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Substrate open: %s (schema %s)", path, SchemaVersion)
	return s, nil
}

// initialize applies the DDL and writes the schema version.
func (s *Substrate) initialize() error {
	schemaInfo := `
	CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	routingEvents := `
	CREATE TABLE IF NOT EXISTS routing_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		user_message TEXT NOT NULL,
		message_hash TEXT NOT NULL,
		routed_instructions TEXT NOT NULL DEFAULT '[]',
		instruction_count INTEGER NOT NULL DEFAULT 0,
		instruction_scores TEXT NOT NULL DEFAULT '{}',
		engine_version TEXT NOT NULL,
		session_id TEXT,
		context_snapshot TEXT,
		latency_ms REAL
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON routing_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_session ON routing_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_engine ON routing_events(engine_version);
	`

	routingTriggers := `
	CREATE TABLE IF NOT EXISTS routing_triggers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trigger_type TEXT NOT NULL,
		trigger_key TEXT NOT NULL,
		trigger_value TEXT,
		category TEXT,
		description TEXT,
		source TEXT NOT NULL DEFAULT 'builtin',
		confidence TEXT NOT NULL DEFAULT 'medium',
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(trigger_type, trigger_key)
	);
	CREATE INDEX IF NOT EXISTS idx_triggers_type ON routing_triggers(trigger_type);
	CREATE INDEX IF NOT EXISTS idx_triggers_enabled ON routing_triggers(enabled);
	`

	artifactImplemented := `
	CREATE TABLE IF NOT EXISTS artifact_implemented (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instruction_path TEXT NOT NULL,
		category TEXT,
		title TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_artifact_impl_status ON artifact_implemented(status);
	CREATE INDEX IF NOT EXISTS idx_artifact_impl_category ON artifact_implemented(category);
	`

	artifactDiscovered := `
	CREATE TABLE IF NOT EXISTS artifact_discovered (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_path TEXT NOT NULL,
		source_type TEXT NOT NULL,
		section_title TEXT,
		section_content TEXT,
		content_hash TEXT NOT NULL UNIQUE,
		keywords TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'discovered',
		promoted_to INTEGER REFERENCES artifact_implemented(id),
		discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_artifact_disc_status ON artifact_discovered(status);
	CREATE INDEX IF NOT EXISTS idx_artifact_disc_source_type ON artifact_discovered(source_type);
	`

	observationImplemented := `
	CREATE TABLE IF NOT EXISTS observation_implemented (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		implementation_type TEXT NOT NULL,
		reference TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_obs_impl_status ON observation_implemented(status);
	CREATE INDEX IF NOT EXISTS idx_obs_impl_type ON observation_implemented(implementation_type);
	`

	observationDiscovered := `
	CREATE TABLE IF NOT EXISTS observation_discovered (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		routing_event_id INTEGER REFERENCES routing_events(id),
		observation_type TEXT NOT NULL,
		content TEXT NOT NULL,
		target TEXT,
		guidance_type TEXT,
		persistence_scope TEXT,
		status TEXT NOT NULL DEFAULT 'discovered',
		promoted_to INTEGER REFERENCES observation_implemented(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_obs_disc_status ON observation_discovered(status);
	CREATE INDEX IF NOT EXISTS idx_obs_disc_type ON observation_discovered(observation_type);
	`

	scanHistory := `
	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_date DATETIME DEFAULT CURRENT_TIMESTAMP,
		source TEXT,
		files_scanned INTEGER NOT NULL DEFAULT 0,
		artifacts_found INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_scan_date ON scan_history(scan_date);
	`

	guidanceFulfillment := `
	CREATE TABLE IF NOT EXISTS guidance_fulfillment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		action TEXT NOT NULL,
		guidance_type TEXT,
		content TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_guidance_status ON guidance_fulfillment(status);
	CREATE INDEX IF NOT EXISTS idx_guidance_session ON guidance_fulfillment(session_id);
	CREATE INDEX IF NOT EXISTS idx_guidance_action ON guidance_fulfillment(action);
	`

	ddl := []string{
		schemaInfo,
		routingEvents,
		routingTriggers,
		artifactImplemented,
		artifactDiscovered,
		observationImplemented,
		observationDiscovered,
		scanHistory,
		guidanceFulfillment,
	}

	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO schema_info (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Substrate) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Substrate) Path() string {
	return s.dbPath
}

// StoredSchemaVersion reads the schema version stamped in schema_info.
func (s *Substrate) StoredSchemaVersion() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v string
	err := s.db.QueryRow(`SELECT value FROM schema_info WHERE key = 'schema_version'`).Scan(&v)
	if err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error.
func (s *Substrate) withTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Stats returns per-table row counts for diagnostics.
func (s *Substrate) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{
		"routing_events", "routing_triggers",
		"artifact_discovered", "artifact_implemented",
		"observation_discovered", "observation_implemented",
		"scan_history", "guidance_fulfillment",
	}
	for _, table := range tables {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			continue
		}
		stats[table] = count
	}
	return stats, nil
}
