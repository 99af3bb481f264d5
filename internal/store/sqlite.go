// Package store is the sqlite persistence layer: tickets with their audit
// events, knowledge records, content gaps, queued jobs and analytics
// events all live in one metadata database.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			branch_code TEXT NOT NULL,
			issue_summary TEXT NOT NULL,
			company_name TEXT,
			full_name TEXT,
			phone TEXT,
			support_open INTEGER NOT NULL DEFAULT 0,
			source TEXT,
			sentiment REAL NOT NULL DEFAULT 0,
			quality_score REAL NOT NULL DEFAULT 0,
			handoff_attempts INTEGER NOT NULL DEFAULT 0,
			csat_rating INTEGER,
			chat_history_json TEXT NOT NULL DEFAULT '[]',
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL,
			last_handoff_at_unix INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_dedupe
			ON tickets (branch_code, issue_summary, created_at_unix DESC);`,
		`CREATE TABLE IF NOT EXISTS ticket_events (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT,
			meta_json TEXT,
			created_at_unix INTEGER NOT NULL,
			FOREIGN KEY(ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			vector_json TEXT NOT NULL DEFAULT '[]',
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS content_gaps (
			query TEXT PRIMARY KEY,
			hits INTEGER NOT NULL DEFAULT 1,
			first_seen_unix INTEGER NOT NULL,
			last_seen_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL,
			next_run_unix INTEGER NOT NULL,
			last_error TEXT,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_due
			ON jobs (status, next_run_unix);`,
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source TEXT NOT NULL,
			channel TEXT,
			detail_json TEXT,
			created_at_unix INTEGER NOT NULL
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
