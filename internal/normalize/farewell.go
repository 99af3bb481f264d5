package normalize

import "strings"

var farewellPhrases = []string{
	"gorusuruz",
	"hosca kal",
	"hoscakal",
	"iyi gunler",
	"iyi aksamlar",
	"iyi calismalar",
	"tesekkurler yardimci oldunuz",
	"sagolun gorusuruz",
	"bye",
	"goodbye",
	"bay bay",
	"kapatabilirsiniz",
	"baska sorum yok",
	"yardiminiz icin tesekkurler",
}

var greetingPhrases = []string{
	"merhaba",
	"selam",
	"selamlar",
	"gunaydin",
	"iyi gunler dilerim",
	"hello",
	"hi",
	"hey",
	"mrb",
	"slm",
}

// IsFarewell reports whether the message matches or contains a known
// closing phrase.
func IsFarewell(t Text) bool {
	text := string(t)
	if text == "" {
		return false
	}
	for _, phrase := range farewellPhrases {
		if text == phrase || strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// IsGreeting reports whether the message is a plain greeting with no other
// content beyond pleasantries.
func IsGreeting(t Text) bool {
	text := string(t)
	if text == "" {
		return false
	}
	words := t.Words()
	if len(words) > 4 {
		return false
	}
	for _, phrase := range greetingPhrases {
		if text == phrase || strings.HasPrefix(text, phrase+" ") {
			return true
		}
	}
	return false
}
