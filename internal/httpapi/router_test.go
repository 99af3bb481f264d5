package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/destekhq/runtime/internal/agentqueue"
	"github.com/destekhq/runtime/internal/config"
	"github.com/destekhq/runtime/internal/pipeline"
	"github.com/destekhq/runtime/internal/store"
)

type fakeBot struct {
	response pipeline.Response
	err      error
	turns    []pipeline.Turn
}

func (f *fakeBot) Handle(_ context.Context, turn pipeline.Turn) (pipeline.Response, error) {
	f.turns = append(f.turns, turn)
	if f.err != nil {
		return pipeline.Response{}, f.err
	}
	return f.response, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, bot *fakeBot) (http.Handler, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	handler := NewRouter(Dependencies{
		Config: config.Config{JobMaxAttempts: 3},
		Store:  s,
		Bot:    bot,
		Jobs:   s,
		Queue:  agentqueue.New(nil, testLogger()),
		Logger: testLogger(),
	})
	return handler, s
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	bot := &fakeBot{response: pipeline.Response{Reply: "Merhaba!", Source: pipeline.SourceRuleEngine}}
	handler, _ := newTestRouter(t, bot)

	rec := postJSON(t, handler, "/api/v1/chat", `{
		"sessionId": "s1",
		"messages": [{"role": "user", "content": "merhaba"}]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var response pipeline.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Reply != "Merhaba!" || response.Source != pipeline.SourceRuleEngine {
		t.Fatalf("unexpected response %+v", response)
	}
	if bot.turns[0].Channel != "web" {
		t.Fatalf("empty channel must default to web, got %q", bot.turns[0].Channel)
	}
}

func TestChatEndpointRequiresSession(t *testing.T) {
	handler, _ := newTestRouter(t, &fakeBot{})
	rec := postJSON(t, handler, "/api/v1/chat", `{"messages": [{"role": "user", "content": "hi"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatEndpointDegradesGracefully(t *testing.T) {
	bot := &fakeBot{err: errors.New("store exploded")}
	handler, _ := newTestRouter(t, bot)

	rec := postJSON(t, handler, "/api/v1/chat", `{
		"sessionId": "s1",
		"messages": [{"role": "user", "content": "merhaba"}]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("failures must not leak as 5xx, got %d", rec.Code)
	}
	var response pipeline.Response
	json.Unmarshal(rec.Body.Bytes(), &response)
	if response.Reply != fallbackReply || !response.HandoffReady {
		t.Fatalf("expected deterministic fallback, got %+v", response)
	}
	if !strings.Contains(response.Warning, "pipeline-error") {
		t.Fatalf("operators need the warning field, got %q", response.Warning)
	}
}

func TestHandoffResultEndpoint(t *testing.T) {
	handler, s := newTestRouter(t, &fakeBot{})
	ctx := context.Background()

	ticket, _, err := s.CreateOrReuseTicket(ctx, store.TicketInput{
		BranchCode: "IST01", IssueSummary: "yazici bozuk", SupportOpen: true,
	})
	if err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	rec := postJSON(t, handler, "/api/v1/tickets/handoff-result",
		`{"ticketId": "`+ticket.ID+`", "resultCode": "success"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	updated, err := s.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if updated.Status != store.StatusHandoffSuccess {
		t.Fatalf("status not updated: %s", updated.Status)
	}

	counts, err := s.CountJobsByStatus(ctx)
	if err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if counts[store.JobStatusQueued] != 1 {
		t.Fatalf("handoff result must enqueue a notification job, got %+v", counts)
	}

	rec = postJSON(t, handler, "/api/v1/tickets/handoff-result",
		`{"ticketId": "`+ticket.ID+`", "resultCode": "nonsense"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown result code must be 400, got %d", rec.Code)
	}

	rec = postJSON(t, handler, "/api/v1/tickets/handoff-result",
		`{"ticketId": "TK-0-0000", "resultCode": "success"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing ticket must be 404, got %d", rec.Code)
	}
}

func TestCSATEndpoint(t *testing.T) {
	handler, s := newTestRouter(t, &fakeBot{})
	ctx := context.Background()

	ticket, _, err := s.CreateOrReuseTicket(ctx, store.TicketInput{
		BranchCode: "IST01", IssueSummary: "pos acilmiyor", SupportOpen: true,
	})
	if err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	rec := postJSON(t, handler, "/api/v1/tickets/csat", `{"ticketId": "`+ticket.ID+`", "rating": 5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	updated, _ := s.GetTicket(ctx, ticket.ID)
	if updated.CSATRating != 5 {
		t.Fatalf("rating not stored: %+v", updated)
	}

	rec = postJSON(t, handler, "/api/v1/tickets/csat", `{"ticketId": "`+ticket.ID+`", "rating": 9}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range rating must be 400, got %d", rec.Code)
	}
}

func TestAgentClaimFlow(t *testing.T) {
	bot := &fakeBot{}
	handler, _ := newTestRouter(t, bot)

	rec := postJSON(t, handler, "/api/v1/agents/claim", `{"sessionId": "s1", "agentId": "a1"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("claiming an unqueued session must be 404, got %d", rec.Code)
	}
}

func TestTicketListAndSummary(t *testing.T) {
	handler, s := newTestRouter(t, &fakeBot{})
	ctx := context.Background()
	if _, _, err := s.CreateOrReuseTicket(ctx, store.TicketInput{
		BranchCode: "ANK02", IssueSummary: "kasa kilitlendi", SupportOpen: true,
	}); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ANK02") {
		t.Fatalf("ticket listing failed: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tickets/summary", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "handoff_pending") {
		t.Fatalf("summary failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestChatWebsocketSession(t *testing.T) {
	bot := &fakeBot{response: pipeline.Response{Reply: "Hoş geldiniz!", Source: pipeline.SourceRuleEngine}}
	handler, _ := newTestRouter(t, bot)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(map[string]string{"text": "merhaba"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var response pipeline.Response
	if err := conn.ReadJSON(&response); err != nil {
		t.Fatalf("read: %v", err)
	}
	if response.Reply != "Hoş geldiniz!" {
		t.Fatalf("unexpected reply %+v", response)
	}
	if len(bot.turns) != 1 || !strings.HasPrefix(bot.turns[0].SessionID, "web:") {
		t.Fatalf("websocket must mint a web session, got %+v", bot.turns)
	}
}
