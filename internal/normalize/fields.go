package normalize

import (
	"regexp"
	"strings"
)

var (
	branchLabeledPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bsube kodu?\s+([a-z0-9-]{2,12})\b`),
		regexp.MustCompile(`\bbranch code\s+([a-z0-9-]{2,12})\b`),
		regexp.MustCompile(`\bmagaza kodu?\s+([a-z0-9-]{2,12})\b`),
	}
	branchStandalonePattern = regexp.MustCompile(`^([a-z]{2,4}[0-9]{1,4})$`)
	branchTokenPattern      = regexp.MustCompile(`^[a-z0-9-]{2,8}$`)

	companyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bfirma(?: adi| ismi)?\s+(.{2,48}?)(?:\s+(?:sube|telefon|adim|isim)\b|$)`),
		regexp.MustCompile(`\bsirket(?: adi| ismi)?\s+(.{2,48}?)(?:\s+(?:sube|telefon|adim|isim)\b|$)`),
		regexp.MustCompile(`\bcompany(?: name)?\s+(.{2,48}?)$`),
	}

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:adim|ismim)\s+([a-z]+(?: [a-z]+){0,2})\b`),
		regexp.MustCompile(`\bad soyad\s+([a-z]+(?: [a-z]+){0,2})\b`),
		regexp.MustCompile(`\bmy name is\s+([a-z]+(?: [a-z]+){0,2})\b`),
	}

	phoneLabeledPattern  = regexp.MustCompile(`\b(?:telefon(?: numaram| no)?|gsm|cep)\s+(0?5\d{2}\s?\d{3}\s?\d{2}\s?\d{2}|0?5\d{9})\b`)
	phoneFallbackPattern = regexp.MustCompile(`\b(0?5\d{2}\s?\d{3}\s?\d{2}\s?\d{2})\b`)

	digitPattern = regexp.MustCompile(`[0-9]`)
)

// Words that signal the message is describing a malfunction. The token scan
// for unlabeled branch codes only runs when one of these is present, so a
// random order number in small talk is not mistaken for a branch code.
var issueContextKeywords = []string{
	"ariza", "arizali", "bozuk", "bozuldu", "calismiyor", "acilmiyor",
	"sorun", "problem", "hata", "yazici", "kasa", "pos", "terminal",
	"baglanmiyor", "donuyor", "kitlendi", "yazmiyor", "okumuyor",
}

// ExtractBranchCode tries labeled patterns first, then a standalone token,
// then a digit-bearing token scan gated on issue-context keywords. The
// returned code is upper-cased.
func ExtractBranchCode(t Text) (string, bool) {
	text := string(t)
	for _, pattern := range branchLabeledPatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return strings.ToUpper(match[1]), true
		}
	}
	if match := branchStandalonePattern.FindStringSubmatch(text); match != nil {
		return strings.ToUpper(match[1]), true
	}
	if hasIssueContext(text) {
		for _, token := range t.Words() {
			if len(token) < 9 && branchTokenPattern.MatchString(token) && digitPattern.MatchString(token) && !isPhoneLike(token) {
				return strings.ToUpper(token), true
			}
		}
	}
	return "", false
}

func hasIssueContext(text string) bool {
	for _, keyword := range issueContextKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func isPhoneLike(token string) bool {
	digits := 0
	for _, r := range token {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7
}

func ExtractCompanyName(t Text) (string, bool) {
	text := string(t)
	for _, pattern := range companyPatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			value := strings.TrimSpace(match[1])
			if value != "" {
				return value, true
			}
		}
	}
	return "", false
}

func ExtractFullName(t Text) (string, bool) {
	text := string(t)
	for _, pattern := range namePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			value := strings.TrimSpace(match[1])
			if value != "" {
				return value, true
			}
		}
	}
	return "", false
}

func ExtractPhone(t Text) (string, bool) {
	text := string(t)
	if match := phoneLabeledPattern.FindStringSubmatch(text); match != nil {
		return compactDigits(match[1]), true
	}
	if match := phoneFallbackPattern.FindStringSubmatch(text); match != nil {
		return compactDigits(match[1]), true
	}
	return "", false
}

func compactDigits(value string) string {
	return strings.ReplaceAll(value, " ", "")
}
