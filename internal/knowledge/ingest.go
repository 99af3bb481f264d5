package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Repository persists the ingested record set between restarts.
type Repository interface {
	ReplaceKnowledgeRecords(ctx context.Context, records []Record) error
	ListKnowledgeRecords(ctx context.Context) ([]Record, error)
}

// Ingestor loads question/answer pairs into the repository and the live
// index. Ingestion replaces the whole set; there is no incremental path.
type Ingestor struct {
	repo     Repository
	embedder Embedder
	index    *Index
	logger   *slog.Logger
}

func NewIngestor(repo Repository, embedder Embedder, index *Index, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{repo: repo, embedder: embedder, index: index, logger: logger.With("component", "knowledge-ingest")}
}

type ingestEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// IngestFile reads a JSON array of {"question","answer"} objects and
// ingests it. Entries missing either field are skipped.
func (g *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read knowledge file: %w", err)
	}
	var entries []ingestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("decode knowledge file %s: %w", path, err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		question := strings.TrimSpace(entry.Question)
		answer := strings.TrimSpace(entry.Answer)
		if question == "" || answer == "" {
			g.logger.Warn("skipping incomplete knowledge entry", "question", entry.Question)
			continue
		}
		records = append(records, Record{Question: question, Answer: answer})
	}
	return g.Ingest(ctx, records)
}

// Ingest embeds the records, replaces the persisted set and swaps the
// live index. A failed embedding leaves that record lexical-only rather
// than failing the whole batch.
func (g *Ingestor) Ingest(ctx context.Context, records []Record) (int, error) {
	embedFailures := 0
	for i := range records {
		if g.embedder == nil || len(records[i].Vector) > 0 {
			continue
		}
		vector, err := g.embedder.Embed(ctx, records[i].Question)
		if err != nil {
			embedFailures++
			g.logger.Warn("embedding failed, record stays lexical-only", "question", records[i].Question, "error", err)
			continue
		}
		records[i].Vector = vector
	}

	if err := g.repo.ReplaceKnowledgeRecords(ctx, records); err != nil {
		return 0, err
	}

	// Re-read so in-memory IDs match the persisted rows.
	stored, err := g.repo.ListKnowledgeRecords(ctx)
	if err != nil {
		return 0, err
	}
	g.index.Swap(stored)

	g.logger.Info("knowledge base ingested", "records", len(stored), "embed_failures", embedFailures)
	return len(stored), nil
}

// LoadIndex hydrates the index from the repository at startup.
func (g *Ingestor) LoadIndex(ctx context.Context) (int, error) {
	records, err := g.repo.ListKnowledgeRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("load knowledge index: %w", err)
	}
	g.index.Swap(records)
	return len(records), nil
}
