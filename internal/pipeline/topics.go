package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/convstate"
	"github.com/destekhq/runtime/internal/llm"
	"github.com/destekhq/runtime/internal/normalize"
)

// topicKeywords drives the cheap first-pass topic match. The model
// classifier only runs when no keyword hits.
var topicKeywords = map[string][]string{
	"pos":     {"pos", "yazar kasa", "kasa", "odeme cihazi", "odeme terminali"},
	"yazici":  {"yazici", "fis", "etiket", "barkod", "rulo"},
	"fatura":  {"fatura", "efatura", "earsiv", "irsaliye"},
	"iade":    {"iade", "degisim", "iptal"},
	"stok":    {"stok", "envanter", "sayim", "depo"},
	"kurulum": {"kurulum", "guncelleme", "lisans", "yukleme", "versiyon"},
}

const (
	keywordTopicConfidence = 0.9
	modelTopicConfidence   = 0.6
)

const topicSystemPrompt = `Asagidaki musteri mesajini su konu basliklarindan birine ata: pos, yazici, fatura, iade, stok, kurulum. Mesaj hicbirine uymuyorsa "yok" yaz. Sadece tek kelime cevap ver.`

// matchTopicKeywords returns the topic with the most keyword hits, ties
// broken alphabetically so classification stays deterministic.
func matchTopicKeywords(text normalize.Text) (string, float64) {
	raw := text.String()
	bestTopic := ""
	bestHits := 0

	topicIDs := make([]string, 0, len(topicKeywords))
	for topicID := range topicKeywords {
		topicIDs = append(topicIDs, topicID)
	}
	sort.Strings(topicIDs)

	for _, topicID := range topicIDs {
		hits := 0
		for _, keyword := range topicKeywords[topicID] {
			if strings.Contains(raw, keyword) {
				hits++
			}
		}
		if hits > bestHits {
			bestTopic = topicID
			bestHits = hits
		}
	}
	if bestTopic == "" {
		return "", 0
	}
	return bestTopic, keywordTopicConfidence
}

// classifyTopic combines the keyword pass with a bounded model call. The
// model answer only counts when it names a known topic id verbatim.
func (p *Pipeline) classifyTopic(ctx context.Context, phase convstate.Phase, text normalize.Text, raw string) (string, float64) {
	if topicID, confidence := matchTopicKeywords(text); topicID != "" {
		return topicID, confidence
	}
	if p.responder == nil || !normalize.IsSubstantive(text) || !topicPhase(phase) {
		return "", 0
	}

	res, err := p.responder.Complete(ctx, llm.Request{
		System:    topicSystemPrompt,
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: raw}},
		MaxTokens: 8,
	})
	if err != nil {
		p.logger.Warn("topic classification failed", "error", err)
		return "", 0
	}
	answer := strings.ToLower(strings.TrimSpace(res.Content))
	if _, ok := topicKeywords[answer]; ok {
		return answer, modelTopicConfidence
	}
	return "", 0
}

func topicPhase(phase convstate.Phase) bool {
	switch phase {
	case convstate.PhaseWelcome, convstate.PhaseTopicDetection, convstate.PhaseTopicGuidedSupport, convstate.PhaseClosedFollowup:
		return true
	}
	return false
}
