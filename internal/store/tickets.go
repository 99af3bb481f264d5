package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/destekhq/runtime/internal/chat"
)

var (
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrUnknownHandoffResult = errors.New("unknown handoff result code")
	ErrMissingRequiredField = errors.New("branch code and issue summary are required")
)

type TicketStatus string

const (
	StatusHandoffPending         TicketStatus = "handoff_pending"
	StatusQueuedAfterHours       TicketStatus = "queued_after_hours"
	StatusHandoffSuccess         TicketStatus = "handoff_success"
	StatusHandoffFailed          TicketStatus = "handoff_failed"
	StatusHandoffParentPosted    TicketStatus = "handoff_parent_posted"
	StatusHandoffOpenedNoSummary TicketStatus = "handoff_opened_no_summary"
)

// DedupeWindow is how long an active ticket shadows new tickets with the
// same branch code and issue summary.
const DedupeWindow = 20 * time.Minute

// maxHistorySnapshot bounds the chat history stored on a ticket.
const maxHistorySnapshot = 40

// activeStatuses are the statuses that still shadow duplicates; everything
// else is terminal for deduplication purposes.
var activeStatuses = []TicketStatus{
	StatusHandoffPending,
	StatusQueuedAfterHours,
	StatusHandoffFailed,
	StatusHandoffOpenedNoSummary,
}

func IsActiveStatus(status TicketStatus) bool {
	for _, candidate := range activeStatuses {
		if status == candidate {
			return true
		}
	}
	return false
}

type Ticket struct {
	ID              string         `json:"id"`
	Status          TicketStatus   `json:"status"`
	BranchCode      string         `json:"branchCode"`
	IssueSummary    string         `json:"issueSummary"`
	CompanyName     string         `json:"companyName,omitempty"`
	FullName        string         `json:"fullName,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	SupportOpen     bool           `json:"supportOpen"`
	Source          string         `json:"source,omitempty"`
	Sentiment       float64        `json:"sentiment"`
	QualityScore    float64        `json:"qualityScore"`
	HandoffAttempts int            `json:"handoffAttempts"`
	CSATRating      int            `json:"csatRating,omitempty"`
	ChatHistory     []chat.Message `json:"chatHistory,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	LastHandoffAt   time.Time      `json:"lastHandoffAt,omitempty"`
}

type TicketInput struct {
	BranchCode   string
	IssueSummary string
	CompanyName  string
	FullName     string
	Phone        string
	SupportOpen  bool
	Source       string
	Sentiment    float64
	QualityScore float64
	History      []chat.Message
}

type TicketEvent struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticketId"`
	Kind      string         `json:"kind"`
	Detail    string         `json:"detail,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewTicketID builds ids of the form TK-<unix-timestamp>-<4-digit-random>.
func NewTicketID(now time.Time) string {
	return fmt.Sprintf("TK-%d-%04d", now.Unix(), rand.Intn(10000))
}

// CreateOrReuseTicket returns the most recent active ticket with the same
// branch code and issue summary created inside the dedupe window, merging
// in the latest chat-history snapshot; otherwise it creates a new ticket
// whose status reflects whether support is currently open.
func (s *Store) CreateOrReuseTicket(ctx context.Context, input TicketInput) (Ticket, bool, error) {
	branch := strings.TrimSpace(input.BranchCode)
	summary := strings.TrimSpace(input.IssueSummary)
	if branch == "" || summary == "" {
		return Ticket{}, false, ErrMissingRequiredField
	}

	existing, found, err := s.FindRecentDuplicateTicket(ctx, branch, summary, time.Now().UTC())
	if err != nil {
		return Ticket{}, false, err
	}
	if found {
		if err := s.mergeChatHistory(ctx, existing.ID, input.History); err != nil {
			return Ticket{}, false, err
		}
		return existing, false, nil
	}

	now := time.Now().UTC()
	ticket := Ticket{
		ID:           NewTicketID(now),
		Status:       StatusQueuedAfterHours,
		BranchCode:   branch,
		IssueSummary: summary,
		CompanyName:  strings.TrimSpace(input.CompanyName),
		FullName:     strings.TrimSpace(input.FullName),
		Phone:        strings.TrimSpace(input.Phone),
		SupportOpen:  input.SupportOpen,
		Source:       strings.TrimSpace(input.Source),
		Sentiment:    input.Sentiment,
		QualityScore: input.QualityScore,
		ChatHistory:  boundHistory(input.History),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.SupportOpen {
		ticket.Status = StatusHandoffPending
	}

	historyJSON, err := json.Marshal(ticket.ChatHistory)
	if err != nil {
		return Ticket{}, false, fmt.Errorf("marshal chat history: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tickets (
			id, status, branch_code, issue_summary, company_name, full_name, phone,
			support_open, source, sentiment, quality_score, chat_history_json,
			created_at_unix, updated_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID,
		string(ticket.Status),
		ticket.BranchCode,
		ticket.IssueSummary,
		nullIfEmpty(ticket.CompanyName),
		nullIfEmpty(ticket.FullName),
		nullIfEmpty(ticket.Phone),
		boolToInt(ticket.SupportOpen),
		nullIfEmpty(ticket.Source),
		ticket.Sentiment,
		ticket.QualityScore,
		string(historyJSON),
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return Ticket{}, false, fmt.Errorf("insert ticket: %w", err)
	}
	if err := s.AppendTicketEvent(ctx, ticket.ID, "ticket_created", "", map[string]any{
		"status": string(ticket.Status),
		"source": ticket.Source,
	}); err != nil {
		return Ticket{}, false, err
	}
	return ticket, true, nil
}

// FindRecentDuplicateTicket scans active tickets newest-first for a match
// on (branch code, issue summary) created within the dedupe window.
func (s *Store) FindRecentDuplicateTicket(ctx context.Context, branchCode, issueSummary string, now time.Time) (Ticket, bool, error) {
	cutoff := now.Add(-DedupeWindow).Unix()
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE branch_code = ? AND issue_summary = ?
		   AND status IN (?, ?, ?, ?)
		   AND created_at_unix >= ?
		 ORDER BY created_at_unix DESC
		 LIMIT 1`,
		strings.TrimSpace(branchCode),
		strings.TrimSpace(issueSummary),
		string(StatusHandoffPending),
		string(StatusQueuedAfterHours),
		string(StatusHandoffFailed),
		string(StatusHandoffOpenedNoSummary),
		cutoff,
	)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, false, nil
	}
	if err != nil {
		return Ticket{}, false, err
	}
	return ticket, true, nil
}

// handoffResultStatus maps external handoff result codes onto ticket
// statuses. Unknown codes are an error, never silently dropped.
func handoffResultStatus(resultCode string) (TicketStatus, error) {
	switch strings.ToLower(strings.TrimSpace(resultCode)) {
	case "success", "posted":
		return StatusHandoffSuccess, nil
	case "failed", "error":
		return StatusHandoffFailed, nil
	case "parent_posted":
		return StatusHandoffParentPosted, nil
	case "opened_no_summary":
		return StatusHandoffOpenedNoSummary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownHandoffResult, resultCode)
	}
}

// UpdateTicketHandoffResult applies an external handoff result: status
// change, attempt counter, handoff timestamp and an audit event.
func (s *Store) UpdateTicketHandoffResult(ctx context.Context, id, resultCode, detail string, meta map[string]any) (Ticket, error) {
	status, err := handoffResultStatus(resultCode)
	if err != nil {
		return Ticket{}, err
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE tickets
		 SET status = ?, handoff_attempts = handoff_attempts + 1,
		     last_handoff_at_unix = ?, updated_at_unix = ?
		 WHERE id = ?`,
		string(status),
		now.Unix(),
		now.Unix(),
		id,
	)
	if err != nil {
		return Ticket{}, fmt.Errorf("update handoff result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Ticket{}, err
	}
	if affected == 0 {
		return Ticket{}, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
	}
	if err := s.AppendTicketEvent(ctx, id, "handoff_result", detail, mergeMeta(meta, map[string]any{
		"result_code": resultCode,
		"status":      string(status),
	})); err != nil {
		return Ticket{}, err
	}
	return s.GetTicket(ctx, id)
}

// SetCSATRating records a 1-5 satisfaction rating on a ticket.
func (s *Store) SetCSATRating(ctx context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("csat rating out of range: %d", rating)
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE tickets SET csat_rating = ?, updated_at_unix = ? WHERE id = ?`,
		rating, now.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update csat rating: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrTicketNotFound, id)
	}
	return s.AppendTicketEvent(ctx, id, "csat_rating", "", map[string]any{"rating": rating})
}

func (s *Store) GetTicket(ctx context.Context, id string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
	}
	return ticket, err
}

func (s *Store) ListRecentTickets(ctx context.Context, limit int) ([]Ticket, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+ticketColumns+` FROM tickets ORDER BY created_at_unix DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]Ticket, 0, limit)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

// AdminSummary aggregates ticket counts for the admin surface.
type AdminSummary struct {
	Total         int                  `json:"total"`
	ByStatus      map[TicketStatus]int `json:"byStatus"`
	CreatedLast24 int                  `json:"createdLast24h"`
	AverageCSAT   float64              `json:"averageCsat"`
}

func (s *Store) GetAdminSummary(ctx context.Context) (AdminSummary, error) {
	summary := AdminSummary{ByStatus: make(map[TicketStatus]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return AdminSummary{}, fmt.Errorf("summary by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return AdminSummary{}, err
		}
		summary.ByStatus[TicketStatus(status)] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return AdminSummary{}, err
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour).Unix()
	if err := s.db.QueryRowContext(
		ctx, `SELECT COUNT(*) FROM tickets WHERE created_at_unix >= ?`, cutoff,
	).Scan(&summary.CreatedLast24); err != nil {
		return AdminSummary{}, err
	}

	var average sql.NullFloat64
	if err := s.db.QueryRowContext(
		ctx, `SELECT AVG(csat_rating) FROM tickets WHERE csat_rating IS NOT NULL`,
	).Scan(&average); err != nil {
		return AdminSummary{}, err
	}
	if average.Valid {
		summary.AverageCSAT = average.Float64
	}
	return summary, nil
}

func (s *Store) AppendTicketEvent(ctx context.Context, ticketID, kind, detail string, meta map[string]any) error {
	metaJSON := "{}"
	if len(meta) > 0 {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal event meta: %w", err)
		}
		metaJSON = string(encoded)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ticket_events (id, ticket_id, kind, detail, meta_json, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		ticketID,
		kind,
		nullIfEmpty(strings.TrimSpace(detail)),
		metaJSON,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert ticket event: %w", err)
	}
	return nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]TicketEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, ticket_id, kind, COALESCE(detail, ''), COALESCE(meta_json, '{}'), created_at_unix
		 FROM ticket_events WHERE ticket_id = ? ORDER BY created_at_unix ASC`,
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ticket events: %w", err)
	}
	defer rows.Close()

	events := []TicketEvent{}
	for rows.Next() {
		var event TicketEvent
		var metaJSON string
		var createdUnix int64
		if err := rows.Scan(&event.ID, &event.TicketID, &event.Kind, &event.Detail, &metaJSON, &createdUnix); err != nil {
			return nil, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &event.Meta); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}
		event.CreatedAt = time.Unix(createdUnix, 0).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) mergeChatHistory(ctx context.Context, ticketID string, history []chat.Message) error {
	if len(history) == 0 {
		return nil
	}
	historyJSON, err := json.Marshal(boundHistory(history))
	if err != nil {
		return fmt.Errorf("marshal chat history: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE tickets SET chat_history_json = ?, updated_at_unix = ? WHERE id = ?`,
		string(historyJSON),
		time.Now().UTC().Unix(),
		ticketID,
	)
	if err != nil {
		return fmt.Errorf("merge chat history: %w", err)
	}
	return nil
}

func boundHistory(history []chat.Message) []chat.Message {
	if len(history) <= maxHistorySnapshot {
		return history
	}
	return history[len(history)-maxHistorySnapshot:]
}

const ticketColumns = `id, status, branch_code, issue_summary,
	COALESCE(company_name, ''), COALESCE(full_name, ''), COALESCE(phone, ''),
	support_open, COALESCE(source, ''), sentiment, quality_score,
	handoff_attempts, COALESCE(csat_rating, 0), chat_history_json,
	created_at_unix, updated_at_unix, COALESCE(last_handoff_at_unix, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (Ticket, error) {
	var ticket Ticket
	var status string
	var supportOpen int
	var historyJSON string
	var createdUnix, updatedUnix, handoffUnix int64
	err := row.Scan(
		&ticket.ID, &status, &ticket.BranchCode, &ticket.IssueSummary,
		&ticket.CompanyName, &ticket.FullName, &ticket.Phone,
		&supportOpen, &ticket.Source, &ticket.Sentiment, &ticket.QualityScore,
		&ticket.HandoffAttempts, &ticket.CSATRating, &historyJSON,
		&createdUnix, &updatedUnix, &handoffUnix,
	)
	if err != nil {
		return Ticket{}, err
	}
	ticket.Status = TicketStatus(status)
	ticket.SupportOpen = supportOpen != 0
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &ticket.ChatHistory); err != nil {
			return Ticket{}, fmt.Errorf("decode chat history: %w", err)
		}
	}
	ticket.CreatedAt = time.Unix(createdUnix, 0).UTC()
	ticket.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	if handoffUnix != 0 {
		ticket.LastHandoffAt = time.Unix(handoffUnix, 0).UTC()
	}
	return ticket, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func mergeMeta(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}
