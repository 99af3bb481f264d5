package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var shortTokenWhitelist = map[string]struct{}{
	"ok":    {},
	"evet":  {},
	"hayir": {},
	"tamam": {},
	"tmm":   {},
	"yes":   {},
	"no":    {},
	"hi":    {},
	"selam": {},
	"mrb":   {},
	"sagol": {},
	"peki":  {},
	"olur":  {},
	"oldu":  {},
	"iyi":   {},
	"yok":   {},
	"var":   {},
}

var consonantRunPattern = regexp.MustCompile(`[bcdfghjklmnpqrstvwxyz]{6,}`)

// hasRepeatedCharRun reports whether text contains a run of 5 or more
// identical characters. Go's regexp (RE2) has no backreferences, so the
// equivalent pattern `(.)\1{4,}` cannot be compiled.
func hasRepeatedCharRun(text string) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= 5 {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// IsGibberish reports whether the message carries no usable content:
// single characters, symbol/emoji-only input, long repeated-character or
// consonant-only runs, or short mash tokens outside a small whitelist.
func IsGibberish(t Text) bool {
	text := string(t)
	if text == "" {
		return true
	}
	if len([]rune(text)) == 1 {
		return true
	}
	if !containsLetterOrDigit(text) {
		return true
	}
	if hasRepeatedCharRun(text) {
		return true
	}
	if consonantRunPattern.MatchString(strings.ReplaceAll(text, " ", "")) {
		return true
	}
	// Short single tokens without digits are almost always keyboard mash;
	// digit-bearing tokens are kept because bare branch codes arrive this way.
	if !strings.Contains(text, " ") && len([]rune(text)) <= 5 && !containsDigit(text) {
		if _, ok := shortTokenWhitelist[text]; !ok {
			return true
		}
	}
	return false
}

func containsLetterOrDigit(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func containsDigit(text string) bool {
	for _, r := range text {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
