package knowledge

import (
	"context"
	"log/slog"
	"sort"
)

// rrfK is the standard reciprocal-rank-fusion constant.
const rrfK = 60

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type GapRecorder interface {
	RecordContentGap(ctx context.Context, query string) error
}

// Retriever runs the hybrid search: lexical and vector rankings, each
// capped at twice the requested size, fused by reciprocal rank fusion when
// both produced hits.
type Retriever struct {
	index    *Index
	embedder Embedder
	gaps     GapRecorder
	logger   *slog.Logger
}

func NewRetriever(index *Index, embedder Embedder, gaps GapRecorder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, embedder: embedder, gaps: gaps, logger: logger}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) []Match {
	if topK < 1 {
		topK = 3
	}
	candidateLimit := 2 * topK

	lexical := lexicalRank(r.index.Records(), query, candidateLimit)

	var vector []vectorHit
	if r.embedder != nil {
		queryVector, err := r.embedder.Embed(ctx, query)
		if err != nil {
			r.logger.Warn("query embedding failed, lexical-only retrieval", "error", err)
		} else {
			vector = r.index.nearest(queryVector, candidateLimit)
		}
	}

	matches := fuse(lexical, vector, topK)
	if len(matches) == 0 {
		if r.gaps != nil {
			if err := r.gaps.RecordContentGap(ctx, query); err != nil {
				r.logger.Warn("content gap record failed", "error", err)
			}
		}
		r.logger.Info("knowledge content gap", "query", query)
	}
	return matches
}

// fuse merges the two rankings. With both lists populated each record
// scores sum(1/(rrfK+rank+1)) across the lists it appears in, so a record
// present in both always outranks one present in only one list at equal
// rank. A single populated list passes through on its own order.
func fuse(lexical []lexicalHit, vector []vectorHit, topK int) []Match {
	switch {
	case len(lexical) == 0 && len(vector) == 0:
		return nil
	case len(vector) == 0:
		matches := make([]Match, 0, topK)
		for _, hit := range lexical {
			if len(matches) == topK {
				break
			}
			matches = append(matches, Match{Question: hit.record.Question, Answer: hit.record.Answer, Score: float64(hit.score)})
		}
		return matches
	case len(lexical) == 0:
		matches := make([]Match, 0, topK)
		for _, hit := range vector {
			if len(matches) == topK {
				break
			}
			matches = append(matches, Match{Question: hit.record.Question, Answer: hit.record.Answer, Score: 1 - hit.distance})
		}
		return matches
	}

	type fused struct {
		record Record
		score  float64
		order  int
	}
	byID := make(map[int64]*fused, len(lexical)+len(vector))
	order := 0
	add := func(record Record, rank int) {
		entry, ok := byID[record.ID]
		if !ok {
			entry = &fused{record: record, order: order}
			order++
			byID[record.ID] = entry
		}
		entry.score += 1.0 / float64(rrfK+rank+1)
	}
	for rank, hit := range lexical {
		add(hit.record, rank)
	}
	for rank, hit := range vector {
		add(hit.record, rank)
	}

	merged := make([]*fused, 0, len(byID))
	for _, entry := range byID {
		merged = append(merged, entry)
	}
	sort.SliceStable(merged, func(a, b int) bool {
		if merged[a].score != merged[b].score {
			return merged[a].score > merged[b].score
		}
		return merged[a].order < merged[b].order
	})

	matches := make([]Match, 0, topK)
	for _, entry := range merged {
		if len(matches) == topK {
			break
		}
		matches = append(matches, Match{Question: entry.record.Question, Answer: entry.record.Answer, Score: entry.score})
	}
	return matches
}
