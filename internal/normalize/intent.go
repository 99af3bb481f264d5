package normalize

import (
	"regexp"
	"strings"
)

var clarificationPhrases = []string{
	"hangi bilgiler", "ne gerekiyor", "neler lazim", "nereden bulurum",
	"sube kodu nedir", "sube kodu ne", "sube kodumu nereden",
	"what do you need", "which information",
}

var statusQueryPhrases = []string{
	"ne durumda", "durumu nedir", "durum nedir", "talebim ne oldu",
	"kaydim ne oldu", "ticket durumu", "talep durumu", "ne zaman cozulecek",
	"hala cozulmedi", "any update", "ticket status",
}

var newTicketIntentPhrases = []string{
	"yeni talep", "yeni kayit", "yeni bir sorun", "baska bir sorun",
	"baska bir konu", "farkli bir konu", "farkli bir sorun", "yeni ariza",
	"new ticket", "new issue", "another problem",
}

var escalationRequestPhrases = []string{
	"temsilci", "musteri temsilcisi", "yetkili", "canli destek",
	"gercek biri", "insanla gorusmek", "operator", "human agent",
	"bir insana", "yetkiliye baglan",
}

var acknowledgementTokens = map[string]struct{}{
	"tamam": {}, "ok": {}, "okey": {}, "tmm": {}, "evet": {}, "peki": {},
	"anladim": {}, "olur": {}, "oldu": {}, "tesekkurler": {}, "sagol": {},
}

func IsClarificationQuestion(t Text) bool {
	return containsAny(string(t), clarificationPhrases)
}

func IsStatusQuery(t Text) bool {
	return containsAny(string(t), statusQueryPhrases)
}

func HasNewTicketIntent(t Text) bool {
	return containsAny(string(t), newTicketIntentPhrases)
}

func IsEscalationRequest(t Text) bool {
	return containsAny(string(t), escalationRequestPhrases)
}

// IsSubstantive reports whether a message adds new content to a
// conversation, as opposed to greetings, farewells, bare acknowledgements
// and mash input. The closed-ticket followup check relies on it.
func IsSubstantive(t Text) bool {
	if IsGibberish(t) || IsGreeting(t) || IsFarewell(t) {
		return false
	}
	words := t.Words()
	if len(words) == 0 {
		return false
	}
	if len(words) <= 2 {
		substantive := false
		for _, word := range words {
			if _, ok := acknowledgementTokens[word]; !ok {
				substantive = true
			}
		}
		if !substantive {
			return false
		}
	}
	return true
}

var passwordTokenPattern = regexp.MustCompile(`\b\d{6,10}\b`)

// DetectCredentialLeak flags messages that pair a remote-support tool name
// with a password-like numeric token, independent of the active topic. The
// tool list is configuration, not a constant, because deployments differ in
// which remote tools their field staff use.
func DetectCredentialLeak(t Text, tools []string) (string, bool) {
	text := string(t)
	for _, tool := range tools {
		tool = strings.ToLower(strings.TrimSpace(tool))
		if tool == "" {
			continue
		}
		if strings.Contains(text, tool) && passwordTokenPattern.MatchString(text) {
			return tool, true
		}
	}
	return "", false
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
