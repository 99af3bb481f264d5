package normalize

import (
	"regexp"
	"strings"
)

var summaryStripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsube kodu?\s+[a-z0-9-]{2,12}\b`),
	regexp.MustCompile(`\bbranch code\s+[a-z0-9-]{2,12}\b`),
	regexp.MustCompile(`\bmagaza kodu?\s+[a-z0-9-]{2,12}\b`),
	regexp.MustCompile(`\b(?:telefon(?: numaram| no)?|gsm|cep)\s+0?5[\d\s]{9,13}\b`),
	regexp.MustCompile(`\b(?:adim|ismim)\s+[a-z]+(?: [a-z]+){0,2}\b`),
	regexp.MustCompile(`\bfirma(?: adi| ismi)?\s+\S+\b`),
}

var summaryGreetingPrefixes = []string{
	"merhaba", "selam", "selamlar", "gunaydin", "iyi gunler", "hello", "hi", "kolay gelsin",
}

var letterPattern = regexp.MustCompile(`[a-z]`)

// ExtractIssueSummary reduces one user message to its problem statement by
// stripping branch/contact fragments and greeting prefixes. Returns false
// when the remainder is too short to stand as a summary (under 8 chars or
// letterless), which keeps the required-fields gate closed.
func ExtractIssueSummary(t Text) (string, bool) {
	text := string(t)
	for _, pattern := range summaryStripPatterns {
		text = pattern.ReplaceAllString(text, " ")
	}
	text = strings.Join(strings.Fields(text), " ")
	for changed := true; changed; {
		changed = false
		for _, prefix := range summaryGreetingPrefixes {
			if text == prefix {
				text = ""
				break
			}
			if strings.HasPrefix(text, prefix+" ") {
				text = strings.TrimSpace(strings.TrimPrefix(text, prefix+" "))
				changed = true
			}
		}
	}
	text = strings.TrimSpace(text)
	if len(text) < 8 || !letterPattern.MatchString(text) {
		return "", false
	}
	return text, true
}
