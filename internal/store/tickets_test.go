package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/destekhq/runtime/internal/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.sqlite")
	s, err := New(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestCreateTicketAssignsIDAndStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ticket, created, err := s.CreateOrReuseTicket(ctx, TicketInput{
		BranchCode:   "IST01",
		IssueSummary: "kasa yazicisi bozuldu",
		SupportOpen:  true,
		Source:       "memory-template",
		History:      []chat.Message{{Role: chat.RoleUser, Content: "kasa yazıcısı bozuldu"}},
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if !created {
		t.Fatal("expected a new ticket")
	}
	if !strings.HasPrefix(ticket.ID, "TK-") {
		t.Fatalf("unexpected ticket id %q", ticket.ID)
	}
	if ticket.Status != StatusHandoffPending {
		t.Fatalf("support open should produce handoff_pending, got %q", ticket.Status)
	}

	events, err := s.ListTicketEvents(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "ticket_created" {
		t.Fatalf("expected a ticket_created audit event, got %+v", events)
	}
}

func TestCreateTicketAfterHours(t *testing.T) {
	s := newTestStore(t)

	ticket, _, err := s.CreateOrReuseTicket(context.Background(), TicketInput{
		BranchCode:   "IST01",
		IssueSummary: "kasa yazicisi bozuldu",
		SupportOpen:  false,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if ticket.Status != StatusQueuedAfterHours {
		t.Fatalf("support closed should queue after hours, got %q", ticket.Status)
	}
}

func TestCreateTicketRequiresFields(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.CreateOrReuseTicket(context.Background(), TicketInput{BranchCode: "IST01"})
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField, got %v", err)
	}
}

func TestDuplicateWithinWindowIsReused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	input := TicketInput{
		BranchCode:   "IST01",
		IssueSummary: "kasa yazicisi bozuldu",
		SupportOpen:  true,
	}

	first, created, err := s.CreateOrReuseTicket(ctx, input)
	if err != nil || !created {
		t.Fatalf("first create failed: %v %v", created, err)
	}

	input.History = []chat.Message{{Role: chat.RoleUser, Content: "hala bozuk"}}
	second, created, err := s.CreateOrReuseTicket(ctx, input)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Fatal("duplicate inside the window must be reused, not created")
	}
	if second.ID != first.ID {
		t.Fatalf("expected reuse of %s, got %s", first.ID, second.ID)
	}

	merged, err := s.GetTicket(ctx, first.ID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if len(merged.ChatHistory) != 1 || merged.ChatHistory[0].Content != "hala bozuk" {
		t.Fatalf("latest history snapshot should be merged, got %+v", merged.ChatHistory)
	}
}

func TestDuplicateOutsideWindowCreatesNew(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	input := TicketInput{BranchCode: "IST01", IssueSummary: "kasa yazicisi bozuldu", SupportOpen: true}

	first, _, err := s.CreateOrReuseTicket(ctx, input)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	backdate := time.Now().UTC().Add(-DedupeWindow - time.Minute).Unix()
	if _, err := s.db.Exec(`UPDATE tickets SET created_at_unix = ? WHERE id = ?`, backdate, first.ID); err != nil {
		t.Fatalf("backdate ticket: %v", err)
	}

	second, created, err := s.CreateOrReuseTicket(ctx, input)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatalf("expired window must produce a new ticket, got created=%v id=%s", created, second.ID)
	}
}

func TestDuplicateAfterTerminalStatusCreatesNew(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	input := TicketInput{BranchCode: "IST01", IssueSummary: "kasa yazicisi bozuldu", SupportOpen: true}

	first, _, err := s.CreateOrReuseTicket(ctx, input)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.UpdateTicketHandoffResult(ctx, first.ID, "success", "agent resolved", nil); err != nil {
		t.Fatalf("handoff result: %v", err)
	}

	second, created, err := s.CreateOrReuseTicket(ctx, input)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatal("terminal status must stop shadowing duplicates")
	}
}

func TestUpdateTicketHandoffResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ticket, _, err := s.CreateOrReuseTicket(ctx, TicketInput{
		BranchCode: "IST01", IssueSummary: "kasa yazicisi bozuldu", SupportOpen: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.UpdateTicketHandoffResult(ctx, ticket.ID, "failed", "queue timeout", map[string]any{"queue": "ops"})
	if err != nil {
		t.Fatalf("handoff result: %v", err)
	}
	if updated.Status != StatusHandoffFailed {
		t.Fatalf("expected handoff_failed, got %q", updated.Status)
	}
	if updated.HandoffAttempts != 1 {
		t.Fatalf("expected one handoff attempt, got %d", updated.HandoffAttempts)
	}
	if updated.LastHandoffAt.IsZero() {
		t.Fatal("expected last handoff timestamp")
	}

	events, err := s.ListTicketEvents(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[1].Kind != "handoff_result" {
		t.Fatalf("expected handoff_result audit event, got %+v", events)
	}
}

func TestUpdateTicketHandoffResultUnknownCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticket, _, err := s.CreateOrReuseTicket(ctx, TicketInput{
		BranchCode: "IST01", IssueSummary: "kasa yazicisi bozuldu",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.UpdateTicketHandoffResult(ctx, ticket.ID, "exploded", "", nil); !errors.Is(err, ErrUnknownHandoffResult) {
		t.Fatalf("expected ErrUnknownHandoffResult, got %v", err)
	}
}

func TestUpdateTicketHandoffResultMissingTicket(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpdateTicketHandoffResult(context.Background(), "TK-0-0000", "success", "", nil); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestSetCSATRating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticket, _, err := s.CreateOrReuseTicket(ctx, TicketInput{
		BranchCode: "IST01", IssueSummary: "kasa yazicisi bozuldu",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetCSATRating(ctx, ticket.ID, 4); err != nil {
		t.Fatalf("set csat: %v", err)
	}
	updated, err := s.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.CSATRating != 4 {
		t.Fatalf("expected rating 4, got %d", updated.CSATRating)
	}
	if err := s.SetCSATRating(ctx, ticket.ID, 9); err == nil {
		t.Fatal("out-of-range rating must be rejected")
	}
}

func TestGetAdminSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, summary := range []string{"kasa yazicisi bozuldu", "pos cihazi acilmiyor"} {
		if _, _, err := s.CreateOrReuseTicket(ctx, TicketInput{
			BranchCode: "IST01", IssueSummary: summary, SupportOpen: true,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	summary, err := s.GetAdminSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total != 2 {
		t.Fatalf("expected 2 tickets, got %d", summary.Total)
	}
	if summary.ByStatus[StatusHandoffPending] != 2 {
		t.Fatalf("expected 2 pending, got %+v", summary.ByStatus)
	}
	if summary.CreatedLast24 != 2 {
		t.Fatalf("expected 2 created in last 24h, got %d", summary.CreatedLast24)
	}
}
