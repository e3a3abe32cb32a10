// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides the tool-call audit trail with secret redaction.
// audit_store.go mirrors audit events into a queryable sqlite database.
package security

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// auditSchemaVersion tracks the store schema for migrations.
const auditSchemaVersion = 1

const auditSchema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    call_id TEXT NOT NULL UNIQUE,
    ts INTEGER NOT NULL,          -- Unix milliseconds
    tool TEXT NOT NULL,
    args TEXT NOT NULL,
    success INTEGER NOT NULL,
    error_class TEXT NOT NULL,
    error TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    truncated INTEGER NOT NULL,
    mac TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_ts ON calls(ts);
CREATE INDEX IF NOT EXISTS idx_calls_tool ON calls(tool);
`

// AuditStore is the sqlite mirror of the audit trail.
type AuditStore struct {
	db *sql.DB
}

// OpenAuditStore opens or creates the database at path.
func OpenAuditStore(path string) (*AuditStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)",
		fmt.Sprint(auditSchemaVersion),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to write schema version: %w", err)
	}

	// The database holds call arguments; keep it private like the log.
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	return &AuditStore{db: db}, nil
}

// Insert stores one event with its chain MAC.
func (s *AuditStore) Insert(ctx context.Context, ev AuditEvent, mac string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (call_id, ts, tool, args, success, error_class, error, duration_ms, truncated, mac)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.CallID, ev.Timestamp.UnixMilli(), ev.Tool, ev.Args, boolInt(ev.Success),
		ev.ErrorClass, ev.Error, ev.DurationMS, boolInt(ev.Truncated), mac)
	return err
}

// Recent returns the latest limit events, oldest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, ts, tool, args, success, error_class, error, duration_ms, truncated
		FROM (SELECT * FROM calls ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			ev                 AuditEvent
			ts                 int64
			success, truncated int
		)
		if err := rows.Scan(&ev.CallID, &ts, &ev.Tool, &ev.Args, &success,
			&ev.ErrorClass, &ev.Error, &ev.DurationMS, &truncated); err != nil {
			return nil, err
		}
		ev.Timestamp = time.UnixMilli(ts).UTC()
		ev.Success = success != 0
		ev.Truncated = truncated != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ToolStats aggregates calls for one tool.
type ToolStats struct {
	Tool          string
	Calls         int
	Failures      int
	AvgDurationMS float64
}

// Stats aggregates every stored call per tool, ordered by tool name.
func (s *AuditStore) Stats(ctx context.Context) ([]ToolStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), AVG(duration_ms)
		FROM calls
		GROUP BY tool
		ORDER BY tool
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ToolStats
	for rows.Next() {
		var st ToolStats
		if err := rows.Scan(&st.Tool, &st.Calls, &st.Failures, &st.AvgDurationMS); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Close closes the database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
