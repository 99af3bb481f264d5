package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/destekhq/runtime/internal/knowledge"
	"github.com/destekhq/runtime/internal/store"
)

const (
	replyGibberish = "Üzgünüm, mesajınızı anlayamadım. Sorununuzu birkaç kelimeyle yazabilir misiniz?"

	replyWelcome = "Merhaba! Size yardımcı olabilmem için şube kodunuzu ve yaşadığınız sorunu yazabilir misiniz?"

	replyAskBranch = "Size yardımcı olabilmem için şube kodunuza ihtiyacım var. Mağaza girişindeki kodu yazabilir misiniz? (örn. IST01)"

	replyAskIssue = "Teşekkürler! Şimdi yaşadığınız sorunu kısaca anlatabilir misiniz?"

	replyFieldHelp = "Kayıt açabilmem için iki bilgi yeterli: şube kodunuz (mağaza girişindeki kod, örn. IST01) ve sorununuzun kısa bir özeti."

	replyAnythingElse = "Başka bir konuda yardımcı olabilir miyim?"

	replyClosing = "Görüşmemizi sonlandırıyorum, iyi günler dilerim! Hizmetimizi 1-5 arasında puanlamak ister misiniz?"

	replyEscalation = "Sizi bir müşteri temsilcisine aktarıyorum. Görüşme özetiniz temsilciye iletildi, en kısa sürede size dönüş yapılacak."

	replyStillQueued = "Talebiniz temsilci kuyruğunda bekliyor, sırası geldiğinde size dönüş yapılacak. Bu sırada başka bir konuda yardımcı olabilir miyim?"

	replyModelTrouble = "Şu anda sizi anlamakta zorlanıyorum, sizi bir müşteri temsilcisine aktarıyorum."
)

func ticketCreatedReply(ticket store.Ticket) string {
	if ticket.Status == store.StatusQueuedAfterHours {
		return fmt.Sprintf(
			"Kaydınızı oluşturdum. Talep numaranız: %s. Şu anda mesai saatleri dışında olduğumuz için talebiniz sabah ilk iş ele alınacak.",
			ticket.ID,
		)
	}
	return fmt.Sprintf(
		"Kaydınızı oluşturdum. Talep numaranız: %s. Ekibimiz en kısa sürede sizinle iletişime geçecek.",
		ticket.ID,
	)
}

var ticketStatusText = map[store.TicketStatus]string{
	store.StatusHandoffPending:         "temsilci kuyruğunda bekliyor",
	store.StatusQueuedAfterHours:       "mesai saatleri içinde ele alınmak üzere sırada",
	store.StatusHandoffSuccess:         "temsilciye iletildi",
	store.StatusHandoffFailed:          "aktarım sırasında bir sorun yaşandı, tekrar deniyoruz",
	store.StatusHandoffParentPosted:    "mevcut kaydınızla birleştirildi",
	store.StatusHandoffOpenedNoSummary: "temsilciye açıldı, özet bekleniyor",
}

func statusFollowupReply(ticket store.Ticket) string {
	text, ok := ticketStatusText[ticket.Status]
	if !ok {
		text = "işlemde"
	}
	return fmt.Sprintf("%s numaralı talebiniz %s. Yeni bir sorun için şube kodunuzla birlikte yazmanız yeterli.", ticket.ID, text)
}

const maxQuickReplies = 3

var quickRepliesPattern = regexp.MustCompile(`\[QUICK_REPLIES:\s*([^\]]+)\]`)

// parseQuickReplies pulls an inline [QUICK_REPLIES: a | b | c] marker out
// of a model reply, returning the cleaned text and at most three options.
func parseQuickReplies(reply string) (string, []string) {
	match := quickRepliesPattern.FindStringSubmatch(reply)
	if match == nil {
		return reply, nil
	}

	options := []string{}
	for _, option := range strings.Split(match[1], "|") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		options = append(options, option)
		if len(options) == maxQuickReplies {
			break
		}
	}

	cleaned := strings.TrimSpace(quickRepliesPattern.ReplaceAllString(reply, ""))
	return cleaned, options
}

const (
	minReplyRunes   = 2
	maxReplyRunes   = 1500
	shortReplyRunes = 80
)

var hallucinationMarkers = []string{
	"bir yapay zeka", "dil modeli olarak", "as an ai", "language model",
	"i cannot browse", "bilgi kesim tarih",
}

var promptLeakMarkers = []string{
	"system prompt", "sistem komutu", "[quick_replies", "asagidaki kurallara gore",
}

// validateReply applies the output heuristics: length bounds, repeated
// lines, hallucination markers and prompt leakage. A false return sends
// the turn to the deterministic fallback.
func validateReply(reply string) bool {
	runes := []rune(strings.TrimSpace(reply))
	if len(runes) < minReplyRunes || len(runes) > maxReplyRunes {
		return false
	}

	lower := strings.ToLower(reply)
	for _, marker := range hallucinationMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, marker := range promptLeakMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}

	seen := map[string]int{}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.ToLower(line))
		if len(line) < 10 {
			continue
		}
		seen[line]++
		if seen[line] >= 3 {
			return false
		}
	}
	return true
}

// escalationAnnouncementPattern catches model replies that promise a human
// handoff, so the ticket side effect fires even when the model, not the
// rule engine, decided to escalate.
var escalationAnnouncementPattern = regexp.MustCompile(`(?i)(temsilciye aktar|temsilcine aktar|müşteri temsilcisine|canlı desteğe aktar)`)

func announcesEscalation(reply string) bool {
	return escalationAnnouncementPattern.MatchString(reply)
}

// knowledgeBlock renders retrieval matches into the system prompt.
func knowledgeBlock(matches []knowledge.Match) string {
	if len(matches) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("Bilgi tabanından ilgili kayıtlar:\n")
	for _, match := range matches {
		fmt.Fprintf(&builder, "Soru: %s\nCevap: %s\n", match.Question, match.Answer)
	}
	return builder.String()
}
