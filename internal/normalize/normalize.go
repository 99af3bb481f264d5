// Package normalize holds the pure text heuristics the chat pipeline runs
// before any model call: Turkish-aware normalization, gibberish and farewell
// detection, and field extraction from free-form support messages.
package normalize

import (
	"regexp"
	"strings"
)

var diacriticFolder = strings.NewReplacer(
	"ç", "c", "Ç", "c",
	"ğ", "g", "Ğ", "g",
	"ı", "i", "I", "i",
	"İ", "i",
	"ö", "o", "Ö", "o",
	"ş", "s", "Ş", "s",
	"ü", "u", "Ü", "u",
)

var punctuationPattern = regexp.MustCompile(`[.,!?;:"'()\[\]{}<>*_~` + "`" + `]+`)

// Text is a message string after Turkish folding, lower-casing and
// punctuation stripping. Heuristic predicates take Text, not raw input,
// so every caller normalizes exactly once.
type Text string

func Normalize(input string) Text {
	folded := diacriticFolder.Replace(strings.TrimSpace(input))
	folded = strings.ToLower(folded)
	folded = punctuationPattern.ReplaceAllString(folded, " ")
	return Text(strings.Join(strings.Fields(folded), " "))
}

func (t Text) String() string { return string(t) }

func (t Text) Words() []string { return strings.Fields(string(t)) }
