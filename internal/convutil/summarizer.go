package convutil

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/llm"
)

const summarySystemPrompt = `Asagidaki destek konusmasini bir musteri temsilcisi icin ozetle. En fazla uc cumle, Turkce, sadece sorunun kendisi ve su ana kadar denenenler. Selamlasma ve dolgu cumleleri atla.`

var credentialTokenPattern = regexp.MustCompile(`\b\d{6,10}\b`)

// Summarizer produces the human-agent escalation summary. It is the one
// place conversation text is sent to the model outside the reply path, so
// credential-leak escalations mask password-like tokens before the call.
type Summarizer struct {
	responder llm.Responder
	logger    *slog.Logger
}

func NewSummarizer(responder llm.Responder, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		responder: responder,
		logger:    logger.With("component", "summarizer"),
	}
}

// EscalationSummary summarizes history for the agent taking over. A model
// failure degrades to the deterministic fallback summary, never to an error.
func (s *Summarizer) EscalationSummary(ctx context.Context, history []chat.Message, reason string) string {
	if maskCredentials(reason) {
		history = maskHistory(history)
	}

	if s.responder == nil {
		return FallbackSummary(history)
	}

	res, err := s.responder.Complete(ctx, llm.Request{
		System:    summarySystemPrompt,
		Messages:  CompressHistory(history, 20),
		MaxTokens: 200,
	})
	if err != nil {
		s.logger.Warn("escalation summary fell back to template", "reason", reason, "error", err)
		return FallbackSummary(history)
	}

	summary := strings.TrimSpace(res.Content)
	if summary == "" {
		return FallbackSummary(history)
	}
	return summary
}

func maskCredentials(reason string) bool {
	return strings.HasSuffix(reason, "_credentials")
}

func maskHistory(history []chat.Message) []chat.Message {
	masked := make([]chat.Message, len(history))
	for index, message := range history {
		message.Content = credentialTokenPattern.ReplaceAllString(message.Content, "******")
		masked[index] = message
	}
	return masked
}
