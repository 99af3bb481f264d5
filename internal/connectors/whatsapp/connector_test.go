package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/pipeline"
)

type fakeBot struct {
	turns    []pipeline.Turn
	response pipeline.Response
}

func (f *fakeBot) Handle(_ context.Context, turn pipeline.Turn) (pipeline.Response, error) {
	f.turns = append(f.turns, turn)
	return f.response, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerificationChallenge(t *testing.T) {
	hook := New(Config{VerifyToken: "secret"}, &fakeBot{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	hook.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token must be rejected, got %d", rec.Code)
	}
}

func TestInboundMessageRoundTrip(t *testing.T) {
	var sent map[string]any
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/55501/messages") {
			t.Errorf("unexpected graph path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer access" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&sent)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(graph.Close)

	bot := &fakeBot{response: pipeline.Response{Reply: "Subenizin kodunu alabilir miyim?"}}
	hook := New(Config{
		VerifyToken:   "secret",
		AccessToken:   "access",
		PhoneNumberID: "55501",
		APIBase:       graph.URL,
	}, bot, testLogger())

	payload := `{"entry":[{"changes":[{"value":{"messages":[{"from":"905551112233","type":"text","text":{"body":"yazici bozuk"}}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook must ack with 200, got %d", rec.Code)
	}

	if len(bot.turns) != 1 {
		t.Fatalf("expected one pipeline turn, got %d", len(bot.turns))
	}
	turn := bot.turns[0]
	if turn.SessionID != "whatsapp:905551112233" || turn.Channel != chat.ChannelWhatsApp {
		t.Fatalf("unexpected turn identity %+v", turn)
	}
	if sent["type"] != "text" {
		t.Fatalf("plain reply must send a text message: %+v", sent)
	}
}

func TestQuickRepliesRenderButtons(t *testing.T) {
	var sent map[string]any
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(graph.Close)

	bot := &fakeBot{response: pipeline.Response{
		Reply:        "Hangisi?",
		QuickReplies: []string{"Kurulum", "Ariza"},
	}}
	hook := New(Config{PhoneNumberID: "55501", APIBase: graph.URL}, bot, testLogger())

	msg := inboundMessage{From: "1", Type: "text"}
	msg.Text.Body = "yardim"
	if err := hook.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sent["type"] != "interactive" {
		t.Fatalf("quick replies must render interactive buttons: %+v", sent)
	}
}

func TestButtonReplyFeedsTranscript(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(graph.Close)

	bot := &fakeBot{response: pipeline.Response{Reply: "ok"}}
	hook := New(Config{PhoneNumberID: "1", APIBase: graph.URL}, bot, testLogger())

	msg := inboundMessage{From: "2", Type: "interactive"}
	msg.Interactive = &struct {
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
	}{}
	msg.Interactive.ButtonReply.Title = "Kurulum"
	if err := hook.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if bot.turns[0].Messages[0].Content != "Kurulum" {
		t.Fatalf("button title must become the user turn, got %+v", bot.turns[0].Messages)
	}
}
