package telegram

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

func TestPollOnceRelaysMessageAndReply(t *testing.T) {
	var sent map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "getUpdates"):
			json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"result": []map[string]any{{
					"update_id": 7,
					"message": map[string]any{
						"message_id": 1,
						"chat":       map[string]any{"id": 42, "type": "private"},
						"text":       "pos cihazim acilmiyor",
					},
				}},
			})
		case strings.Contains(r.URL.Path, "sendMessage"):
			json.NewDecoder(r.Body).Decode(&sent)
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		default:
			t.Errorf("unexpected call %s", r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	bot := &fakeBot{response: pipeline.Response{
		Reply:        "Hangi modeli kullaniyorsunuz?",
		QuickReplies: []string{"Ingenico", "Verifone"},
	}}
	connector := New("test-token", server.URL, 1, bot, testLogger())

	if err := connector.pollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if len(bot.turns) != 1 {
		t.Fatalf("expected one pipeline turn, got %d", len(bot.turns))
	}
	turn := bot.turns[0]
	if turn.SessionID != "telegram:42" || turn.Channel != chat.ChannelTelegram {
		t.Fatalf("unexpected turn identity %+v", turn)
	}
	if len(turn.Messages) != 1 || turn.Messages[0].Content != "pos cihazim acilmiyor" {
		t.Fatalf("unexpected transcript %+v", turn.Messages)
	}
	if connector.offset != 8 {
		t.Fatalf("offset must advance past the update, got %d", connector.offset)
	}

	if sent["text"] != "Hangi modeli kullaniyorsunuz?" {
		t.Fatalf("reply not delivered: %+v", sent)
	}
	if sent["reply_markup"] == nil {
		t.Fatal("quick replies must render a keyboard")
	}
}

func TestTranscriptAccumulatesAcrossTurns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(server.Close)

	bot := &fakeBot{response: pipeline.Response{Reply: "tamam"}}
	connector := New("test-token", server.URL, 1, bot, testLogger())

	msg := telegramMessage{Chat: telegramChat{ID: 9, Type: "private"}}
	msg.Text = "merhaba"
	if err := connector.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	msg.Text = "yazici calismiyor"
	if err := connector.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	last := bot.turns[len(bot.turns)-1]
	if len(last.Messages) != 3 {
		t.Fatalf("expected user+assistant+user transcript, got %+v", last.Messages)
	}
	if last.Messages[1].Role != chat.RoleAssistant {
		t.Fatal("assistant reply must be replayed into the transcript")
	}
}
