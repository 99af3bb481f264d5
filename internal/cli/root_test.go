package cli

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVersionCommand(t *testing.T) {
	root := NewRoot(testLogger())
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestChatSingleMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"reply":"Merhaba!","quickReplies":["Kurulum","Arıza"]}`))
	}))
	t.Cleanup(server.Close)
	t.Setenv("DESTEK_API_URL", server.URL)

	root := NewRoot(testLogger())
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"chat", "-m", "merhaba"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "Merhaba!") || !strings.Contains(out.String(), "Kurulum | Arıza") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
