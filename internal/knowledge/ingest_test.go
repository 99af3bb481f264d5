package knowledge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

type memoryRepo struct {
	records []Record
}

func (m *memoryRepo) ReplaceKnowledgeRecords(_ context.Context, records []Record) error {
	m.records = make([]Record, len(records))
	copy(m.records, records)
	for i := range m.records {
		m.records[i].ID = int64(i + 1)
	}
	return nil
}

func (m *memoryRepo) ListKnowledgeRecords(context.Context) ([]Record, error) {
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

type stubEmbedder struct {
	fail bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedding backend down")
	}
	return []float32{float32(len(text)), 1}, nil
}

func ingestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	body := `[
		{"question": "Yazici kagit sikismasi nasil giderilir?", "answer": "Kapagi acip kagidi cikarin."},
		{"question": "", "answer": "eksik"},
		{"question": "POS cihazi acilmiyor", "answer": "Guc kablosunu kontrol edin."}
	]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	repo := &memoryRepo{}
	index := NewIndex()
	ingestor := NewIngestor(repo, &stubEmbedder{}, index, ingestLogger())

	count, err := ingestor.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected the incomplete entry skipped, got %d records", count)
	}
	if index.Len() != 2 {
		t.Fatalf("index not swapped, len=%d", index.Len())
	}
	for _, record := range index.Records() {
		if record.ID == 0 {
			t.Fatal("index must hold persisted IDs")
		}
		if len(record.Vector) == 0 {
			t.Fatalf("record %q missing embedding", record.Question)
		}
	}
}

func TestIngestSurvivesEmbeddingFailure(t *testing.T) {
	repo := &memoryRepo{}
	index := NewIndex()
	ingestor := NewIngestor(repo, &stubEmbedder{fail: true}, index, ingestLogger())

	count, err := ingestor.Ingest(context.Background(), []Record{
		{Question: "iade nasil yapilir", Answer: "Fatura ile magazaya basvurun."},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}
	if len(index.Records()[0].Vector) != 0 {
		t.Fatal("failed embedding must leave the record lexical-only")
	}
}

func TestLoadIndex(t *testing.T) {
	repo := &memoryRepo{records: []Record{{ID: 1, Question: "q", Answer: "a"}}}
	index := NewIndex()
	ingestor := NewIngestor(repo, nil, index, ingestLogger())

	count, err := ingestor.LoadIndex(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if count != 1 || index.Len() != 1 {
		t.Fatalf("index not hydrated: count=%d len=%d", count, index.Len())
	}
}
