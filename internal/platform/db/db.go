// Package db opens the single SQLite database file that backs the archive and
// the dose caches, and applies the schema on startup.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open creates (if needed) and opens the database file, applying pragmas
// suitable for a single-writer batch process.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	dbh, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// the analyzers run sequentially and the dose controller is the single
	// writer, so one connection avoids SQLITE_BUSY entirely
	dbh.SetMaxOpenConns(1)
	return dbh, nil
}

// Schema statements for the five tables of the persistence layer. Execution
// is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS prescriptions (
		prescription_id     TEXT PRIMARY KEY,
		patient_national_id TEXT,
		patient_name        TEXT,
		prescription_blob   BLOB,
		analysis_blob       BLOB,
		decision            TEXT,
		created_at          TIMESTAMP,
		processed_at        TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS processing_logs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		prescription_id TEXT,
		action          TEXT,
		details         TEXT,
		timestamp       TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS drug_cache (
		drug_name         TEXT PRIMARY KEY,
		active_ingredient TEXT,
		cached_at         TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS report_dose_cache (
		report_code       TEXT,
		active_ingredient TEXT,
		authorized_dose   TEXT,
		cached_at         TIMESTAMP,
		PRIMARY KEY (report_code, active_ingredient)
	)`,
	`CREATE TABLE IF NOT EXISTS drug_message_cache (
		drug_name     TEXT PRIMARY KEY,
		message_codes TEXT,
		cached_at     TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_prescription
		ON processing_logs (prescription_id)`,
}

// Tables lists the tables the schema creates, for status reporting.
func Tables() []string {
	return []string{
		"prescriptions",
		"processing_logs",
		"drug_cache",
		"report_dose_cache",
		"drug_message_cache",
	}
}

// Migrate applies the schema.
func Migrate(ctx context.Context, dbh *sql.DB) error {
	for _, stmt := range schema {
		if _, err := dbh.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Health pings the database with a short timeout.
func Health(ctx context.Context, dbh *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return dbh.PingContext(ctx)
}
