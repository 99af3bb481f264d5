package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/destekhq/runtime/internal/knowledge"
)

// ReplaceKnowledgeRecords swaps the persisted knowledge base wholesale in
// one transaction; there is no partial update of the record set.
func (s *Store) ReplaceKnowledgeRecords(ctx context.Context, records []knowledge.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin knowledge replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_records`); err != nil {
		return fmt.Errorf("clear knowledge records: %w", err)
	}
	now := time.Now().UTC().Unix()
	for _, record := range records {
		vectorJSON, err := json.Marshal(record.Vector)
		if err != nil {
			return fmt.Errorf("marshal vector: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO knowledge_records (question, answer, vector_json, created_at_unix)
			 VALUES (?, ?, ?, ?)`,
			record.Question, record.Answer, string(vectorJSON), now,
		); err != nil {
			return fmt.Errorf("insert knowledge record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit knowledge replace: %w", err)
	}
	return nil
}

func (s *Store) ListKnowledgeRecords(ctx context.Context) ([]knowledge.Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, question, answer, vector_json FROM knowledge_records ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list knowledge records: %w", err)
	}
	defer rows.Close()

	records := []knowledge.Record{}
	for rows.Next() {
		var record knowledge.Record
		var vectorJSON string
		if err := rows.Scan(&record.ID, &record.Question, &record.Answer, &vectorJSON); err != nil {
			return nil, err
		}
		if vectorJSON != "" && vectorJSON != "[]" {
			if err := json.Unmarshal([]byte(vectorJSON), &record.Vector); err != nil {
				return nil, fmt.Errorf("decode vector: %w", err)
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// RecordContentGap upserts a no-hit query with a hit counter for analytics.
func (s *Store) RecordContentGap(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO content_gaps (query, hits, first_seen_unix, last_seen_unix)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT(query) DO UPDATE SET hits = hits + 1, last_seen_unix = excluded.last_seen_unix`,
		query, now, now,
	)
	if err != nil {
		return fmt.Errorf("record content gap: %w", err)
	}
	return nil
}

func (s *Store) ListContentGaps(ctx context.Context, limit int) ([]knowledge.ContentGap, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT query, hits, first_seen_unix, last_seen_unix
		 FROM content_gaps ORDER BY hits DESC, last_seen_unix DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list content gaps: %w", err)
	}
	defer rows.Close()

	gaps := []knowledge.ContentGap{}
	for rows.Next() {
		var gap knowledge.ContentGap
		var firstSeen, lastSeen int64
		if err := rows.Scan(&gap.Query, &gap.Hits, &firstSeen, &lastSeen); err != nil {
			return nil, err
		}
		gap.FirstSeen = time.Unix(firstSeen, 0).UTC()
		gap.LastSeen = time.Unix(lastSeen, 0).UTC()
		gaps = append(gaps, gap)
	}
	return gaps, rows.Err()
}
