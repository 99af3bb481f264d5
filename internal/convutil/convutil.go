// Package convutil scores and summarizes conversations: sentiment and
// quality heuristics stamped onto tickets, history compression for long
// sessions, and the LLM-generated escalation summary.
package convutil

import (
	"fmt"
	"strings"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/normalize"
)

var positiveWords = map[string]struct{}{
	"tesekkur": {}, "tesekkurler": {}, "sagol": {}, "sagolun": {}, "harika": {},
	"mukemmel": {}, "super": {}, "guzel": {}, "memnunum": {}, "cozuldu": {},
	"tamamdir": {}, "yardimci": {},
}

var negativeWords = map[string]struct{}{
	"kotu": {}, "berbat": {}, "rezalet": {}, "sikayet": {}, "sinirli": {},
	"bikti": {}, "biktim": {}, "yeter": {}, "sacma": {}, "calismiyor": {},
	"bozuk": {}, "bozuldu": {}, "hata": {}, "sorun": {}, "acil": {},
	"magdur": {}, "iptal": {},
}

// SentimentScore walks the user turns and returns a score in [-1, 1] from
// a small Turkish polarity lexicon. Zero means neutral or no signal.
func SentimentScore(history []chat.Message) float64 {
	positives, negatives := 0, 0
	for _, message := range history {
		if message.Role != chat.RoleUser {
			continue
		}
		for _, word := range normalize.Normalize(message.Content).Words() {
			if _, ok := positiveWords[word]; ok {
				positives++
			}
			if _, ok := negativeWords[word]; ok {
				negatives++
			}
		}
	}
	total := positives + negatives
	if total == 0 {
		return 0
	}
	return float64(positives-negatives) / float64(total)
}

// QualityScore grades a conversation in [0, 1]: substantive user turns and
// balanced back-and-forth score high, one-sided or noise-heavy sessions low.
func QualityScore(history []chat.Message) float64 {
	userTurns, substantive, assistantTurns := 0, 0, 0
	for _, message := range history {
		switch message.Role {
		case chat.RoleUser:
			userTurns++
			if normalize.IsSubstantive(normalize.Normalize(message.Content)) {
				substantive++
			}
		case chat.RoleAssistant:
			assistantTurns++
		}
	}
	if userTurns == 0 {
		return 0
	}

	score := float64(substantive) / float64(userTurns)
	if assistantTurns == 0 {
		score *= 0.5
	}
	if score > 1 {
		score = 1
	}
	return score
}

const (
	compressKeepHead = 2
	compressMarker   = "[onceki mesajlar ozetlendi]"
)

// CompressHistory bounds a long history to maxMessages by keeping the
// opening turns and the most recent tail, with a marker where the middle
// was dropped. Short histories come back unchanged.
func CompressHistory(history []chat.Message, maxMessages int) []chat.Message {
	if maxMessages < compressKeepHead+2 || len(history) <= maxMessages {
		return history
	}

	tail := maxMessages - compressKeepHead - 1
	compressed := make([]chat.Message, 0, maxMessages)
	compressed = append(compressed, history[:compressKeepHead]...)
	compressed = append(compressed, chat.Message{Role: chat.RoleAssistant, Content: compressMarker})
	compressed = append(compressed, history[len(history)-tail:]...)
	return compressed
}

// FallbackSummary is the deterministic escalation summary used when the
// model is unavailable: the latest meaningful user turn, bounded.
func FallbackSummary(history []chat.Message) string {
	last := strings.TrimSpace(chat.LastUserMessage(history))
	if last == "" {
		return "Musteri temsilci ile gorusmek istiyor."
	}
	const maxLen = 200
	if runes := []rune(last); len(runes) > maxLen {
		last = string(runes[:maxLen])
	}
	return fmt.Sprintf("Musteri talebi: %s", last)
}
