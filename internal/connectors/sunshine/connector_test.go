package sunshine

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

func TestUserMessageRoundTrip(t *testing.T) {
	var sent map[string]any
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v2/apps/app-1/conversations/conv-9/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
			t.Error("missing basic auth")
		}
		json.NewDecoder(r.Body).Decode(&sent)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(api.Close)

	bot := &fakeBot{response: pipeline.Response{
		Reply:        "Size nasil yardimci olabilirim?",
		QuickReplies: []string{"Fatura", "Iade"},
	}}
	hook := New(Config{AppID: "app-1", KeyID: "key", KeySecret: "secret", APIBase: api.URL}, bot, testLogger())

	payload := `{"events":[{"type":"conversation:message","payload":{
		"conversation":{"id":"conv-9"},
		"message":{"author":{"type":"user"},"content":{"type":"text","text":"merhaba"}}
	}}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sunshine", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook must ack with 200, got %d", rec.Code)
	}

	if len(bot.turns) != 1 {
		t.Fatalf("expected one pipeline turn, got %d", len(bot.turns))
	}
	if bot.turns[0].SessionID != "sunshine:conv-9" || bot.turns[0].Channel != chat.ChannelSunshine {
		t.Fatalf("unexpected turn identity %+v", bot.turns[0])
	}

	content, ok := sent["content"].(map[string]any)
	if !ok || content["text"] != "Size nasil yardimci olabilirim?" {
		t.Fatalf("reply not delivered: %+v", sent)
	}
	if content["actions"] == nil {
		t.Fatal("quick replies must render reply actions")
	}
}

func TestBusinessEchoesIgnored(t *testing.T) {
	bot := &fakeBot{}
	hook := New(Config{}, bot, testLogger())

	payload := `{"events":[{"type":"conversation:message","payload":{
		"conversation":{"id":"conv-9"},
		"message":{"author":{"type":"business"},"content":{"type":"text","text":"echo"}}
	}}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sunshine", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)

	if len(bot.turns) != 0 {
		t.Fatal("business-authored events must not reach the pipeline")
	}
}

func TestEmptyReplySendsNothing(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no message should be sent")
	}))
	t.Cleanup(api.Close)

	bot := &fakeBot{response: pipeline.Response{}}
	hook := New(Config{APIBase: api.URL}, bot, testLogger())
	if err := hook.handleMessage(context.Background(), "conv-1", "merhaba"); err != nil {
		t.Fatalf("handle: %v", err)
	}
}
