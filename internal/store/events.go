package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AnalyticsEvent struct {
	ID        string
	SessionID string
	Source    string
	Channel   string
	Detail    map[string]any
	CreatedAt time.Time
}

// RecordAnalyticsEvent persists one pipeline turn outcome tagged with its
// reply source.
func (s *Store) RecordAnalyticsEvent(ctx context.Context, sessionID, source, channel string, detail map[string]any) error {
	detailJSON := "{}"
	if len(detail) > 0 {
		encoded, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal analytics detail: %w", err)
		}
		detailJSON = string(encoded)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analytics_events (id, session_id, source, channel, detail_json, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, source, nullIfEmpty(channel), detailJSON,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

func (s *Store) CountAnalyticsBySource(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source, COUNT(*) FROM analytics_events WHERE created_at_unix >= ? GROUP BY source`,
		since.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("count analytics: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		counts[source] = count
	}
	return counts, rows.Err()
}

// PruneAnalyticsEvents deletes events older than the cutoff, returning the
// number removed.
func (s *Store) PruneAnalyticsEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM analytics_events WHERE created_at_unix < ?`,
		before.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune analytics events: %w", err)
	}
	return result.RowsAffected()
}
