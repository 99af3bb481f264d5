package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/destekhq/runtime/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.FromEnv()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.DataDir = dir
	cfg.DBPath = filepath.Join(dir, "meta.sqlite")
	cfg.PromptsDir = filepath.Join(dir, "prompts")
	// Point the model client at a dead local endpoint so nothing leaves
	// the machine during tests.
	cfg.LLMBaseURL = "http://127.0.0.1:1/v1"
	cfg.JobPollSec = 1
	return cfg
}

func TestBootstrap(t *testing.T) {
	runtime, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { runtime.Close() })

	if runtime.Pipeline() == nil {
		t.Fatal("pipeline must be wired")
	}
	if runtime.httpServer == nil || runtime.worker == nil || runtime.maintenance == nil {
		t.Fatal("supporting loops must be wired")
	}
	if len(runtime.connectors) != 0 {
		t.Fatal("no connector tokens configured, none should start")
	}
}

func TestTelegramConnectorWiredWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelegramToken = "token"
	runtime, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { runtime.Close() })

	if len(runtime.connectors) != 1 || runtime.connectors[0].Name() != "telegram" {
		t.Fatalf("telegram connector must be wired, got %+v", runtime.connectors)
	}
}

func TestIngestKnowledgeFile(t *testing.T) {
	runtime, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { runtime.Close() })

	path := filepath.Join(t.TempDir(), "kb.json")
	body := `[{"question": "iade suresi nedir", "answer": "14 gun icinde iade edebilirsiniz."}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	count, err := runtime.IngestKnowledge(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if count != 1 || runtime.index.Len() != 1 {
		t.Fatalf("knowledge not indexed: count=%d len=%d", count, runtime.index.Len())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	runtime, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { runtime.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runtime.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop on cancel")
	}
}
