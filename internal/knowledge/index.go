package knowledge

import (
	"math"
	"sort"
	"sync/atomic"
)

// maxVectorDistance is the cut-off for vector candidates; anything farther
// is noise rather than a near neighbor.
const maxVectorDistance = 1.0

// Index is the in-memory search index over the knowledge records. Rebuilds
// swap the whole snapshot through an atomic pointer, so readers see either
// the old set or the new set, never a partial one.
type Index struct {
	snapshot atomic.Pointer[indexSnapshot]
}

type indexSnapshot struct {
	records []Record
}

func NewIndex() *Index {
	index := &Index{}
	index.snapshot.Store(&indexSnapshot{})
	return index
}

// Swap replaces the indexed record set wholesale.
func (i *Index) Swap(records []Record) {
	copied := make([]Record, len(records))
	copy(copied, records)
	i.snapshot.Store(&indexSnapshot{records: copied})
}

func (i *Index) Records() []Record {
	return i.snapshot.Load().records
}

func (i *Index) Len() int {
	return len(i.snapshot.Load().records)
}

type vectorHit struct {
	record   Record
	distance float64
}

// nearest returns records within maxVectorDistance of the query vector,
// closest first, capped at limit.
func (i *Index) nearest(query []float32, limit int) []vectorHit {
	records := i.snapshot.Load().records
	if len(query) == 0 || len(records) == 0 || limit < 1 {
		return nil
	}
	hits := make([]vectorHit, 0, len(records))
	for _, record := range records {
		if len(record.Vector) != len(query) {
			continue
		}
		distance := cosineDistance(query, record.Vector)
		if distance < maxVectorDistance {
			hits = append(hits, vectorHit{record: record, distance: distance})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].distance < hits[b].distance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for index := range a {
		dot += float64(a[index]) * float64(b[index])
		normA += float64(a[index]) * float64(a[index])
		normB += float64(b[index]) * float64(b[index])
	}
	if normA == 0 || normB == 0 {
		return maxVectorDistance
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
