package convutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userTurns(texts ...string) []chat.Message {
	messages := make([]chat.Message, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, chat.Message{Role: chat.RoleUser, Content: text})
	}
	return messages
}

func TestSentimentScore(t *testing.T) {
	if score := SentimentScore(userTurns("tesekkurler harika oldu")); score <= 0 {
		t.Fatalf("positive history must score positive, got %v", score)
	}
	if score := SentimentScore(userTurns("berbat bir hizmet, rezalet")); score >= 0 {
		t.Fatalf("negative history must score negative, got %v", score)
	}
	if score := SentimentScore(userTurns("kasa fisi lazim")); score != 0 {
		t.Fatalf("neutral history must score zero, got %v", score)
	}
	if score := SentimentScore(nil); score != 0 {
		t.Fatalf("empty history must score zero, got %v", score)
	}
}

func TestQualityScoreRewardsSubstantiveDialogue(t *testing.T) {
	dialogue := []chat.Message{
		{Role: chat.RoleUser, Content: "kasa yazicisi kagit sikistiriyor"},
		{Role: chat.RoleAssistant, Content: "hangi model?"},
		{Role: chat.RoleUser, Content: "model ZX-300, kirmizi isik yaniyor"},
	}
	noise := userTurns("ok", "hmm", "evet")

	if QualityScore(dialogue) <= QualityScore(noise) {
		t.Fatal("substantive dialogue must outscore acknowledgement noise")
	}
	if QualityScore(nil) != 0 {
		t.Fatal("empty history scores zero")
	}
}

func TestCompressHistoryKeepsHeadAndTail(t *testing.T) {
	history := make([]chat.Message, 30)
	for index := range history {
		history[index] = chat.Message{Role: chat.RoleUser, Content: strings.Repeat("m", index+1)}
	}

	compressed := CompressHistory(history, 10)
	if len(compressed) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(compressed))
	}
	if compressed[0] != history[0] || compressed[1] != history[1] {
		t.Fatal("opening turns must survive compression")
	}
	if compressed[2].Content != compressMarker {
		t.Fatalf("expected marker after the head, got %q", compressed[2].Content)
	}
	if compressed[len(compressed)-1] != history[len(history)-1] {
		t.Fatal("most recent turn must survive compression")
	}
}

func TestCompressHistoryShortInputUnchanged(t *testing.T) {
	history := userTurns("bir", "iki")
	compressed := CompressHistory(history, 10)
	if len(compressed) != 2 {
		t.Fatalf("short history must pass through, got %d messages", len(compressed))
	}
}

type fakeResponder struct {
	reply    string
	err      error
	lastSeen llm.Request
}

func (f *fakeResponder) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.lastSeen = req
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply}, nil
}

func TestEscalationSummaryUsesModel(t *testing.T) {
	responder := &fakeResponder{reply: "Yazici arizasi, yeniden baslatma denendi."}
	summarizer := NewSummarizer(responder, testLogger())

	summary := summarizer.EscalationSummary(context.Background(), userTurns("yazici bozuk"), "user_requested")
	if summary != "Yazici arizasi, yeniden baslatma denendi." {
		t.Fatalf("unexpected summary %q", summary)
	}
}

func TestEscalationSummaryMasksCredentials(t *testing.T) {
	responder := &fakeResponder{reply: "ozet"}
	summarizer := NewSummarizer(responder, testLogger())

	history := userTurns("anydesk sifrem 12345678 baglanabilir misiniz")
	summarizer.EscalationSummary(context.Background(), history, "anydesk_credentials")

	for _, message := range responder.lastSeen.Messages {
		if strings.Contains(message.Content, "12345678") {
			t.Fatal("password-like token must be masked before the model call")
		}
	}
	// The caller's slice stays untouched.
	if !strings.Contains(history[0].Content, "12345678") {
		t.Fatal("masking must copy, not mutate")
	}
}

func TestEscalationSummaryFallsBackOnModelFailure(t *testing.T) {
	summarizer := NewSummarizer(&fakeResponder{err: errors.New("down")}, testLogger())
	summary := summarizer.EscalationSummary(context.Background(), userTurns("kasa acilmiyor"), "user_requested")
	if !strings.Contains(summary, "kasa acilmiyor") {
		t.Fatalf("fallback summary must carry the last user turn, got %q", summary)
	}
}

func TestFallbackSummaryEmptyHistory(t *testing.T) {
	if FallbackSummary(nil) == "" {
		t.Fatal("fallback summary must never be empty")
	}
}
