package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open prepares the WAL-mode store: one writer (the agent), any number of
// concurrent readers (the query engine) without write-induced read blocking.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the append-only event log: cycle facts plus the per-cycle
// service detail rows, foreign-keyed to their cycle.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			cpu_pct REAL NOT NULL,
			ram_pct REAL NOT NULL,
			ram_used_mb REAL NOT NULL,
			disk_pct REAL NOT NULL,
			container_count INTEGER NOT NULL,
			internet_ok INTEGER NOT NULL,
			ping_ms INTEGER,
			worker_status INTEGER,
			cycle_duration_ms INTEGER NOT NULL,
			uptime_sec INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS service_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			service_name TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			latency_ms INTEGER,
			status_code INTEGER,
			error TEXT,
			FOREIGN KEY(cycle_id) REFERENCES cycles(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_service_checks_cycle ON service_checks(cycle_id);`,
		`CREATE INDEX IF NOT EXISTS idx_service_checks_name ON service_checks(service_name);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
