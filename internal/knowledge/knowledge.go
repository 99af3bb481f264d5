// Package knowledge implements hybrid retrieval over the support knowledge
// base: lexical keyword scoring and vector nearest-neighbor search, merged
// by reciprocal rank fusion. Retrieval output grounds model calls and is
// never served as a final answer on its own.
package knowledge

import "time"

// Record is one question/answer pair with its embedding. Records are
// immutable once ingested; re-ingestion replaces the whole set.
type Record struct {
	ID       int64
	Question string
	Answer   string
	Vector   []float32
}

// Match is a scored retrieval hit handed to prompt assembly and, in
// trimmed form, back to the caller as a source reference.
type Match struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// ContentGap is a query that produced no hits, counted for analytics so
// operators can see what the knowledge base is missing.
type ContentGap struct {
	Query     string
	Hits      int
	FirstSeen time.Time
	LastSeen  time.Time
}
