package knowledge

import (
	"sort"
	"strings"

	"github.com/destekhq/runtime/internal/normalize"
)

const (
	fullQueryScore    = 10
	questionWordScore = 2
	answerWordScore   = 1
	minWordLength     = 3
)

type lexicalHit struct {
	record Record
	score  int
}

// lexicalRank scores every record against the query: a full-query substring
// match in question or answer is worth 10, each query word (3+ chars) found
// in the question 2 and in the answer 1. Zero-score records are dropped.
func lexicalRank(records []Record, query string, limit int) []lexicalHit {
	normalized := normalize.Normalize(query).String()
	if normalized == "" || limit < 1 {
		return nil
	}
	words := make([]string, 0, 8)
	for _, word := range strings.Fields(normalized) {
		if len(word) >= minWordLength {
			words = append(words, word)
		}
	}

	hits := make([]lexicalHit, 0, len(records))
	for _, record := range records {
		question := normalize.Normalize(record.Question).String()
		answer := normalize.Normalize(record.Answer).String()

		score := 0
		if strings.Contains(question, normalized) || strings.Contains(answer, normalized) {
			score += fullQueryScore
		}
		for _, word := range words {
			if strings.Contains(question, word) {
				score += questionWordScore
			}
			if strings.Contains(answer, word) {
				score += answerWordScore
			}
		}
		if score > 0 {
			hits = append(hits, lexicalHit{record: record, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
