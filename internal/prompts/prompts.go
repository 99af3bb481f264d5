// Package prompts holds the persona, policy and per-topic prompt fragments
// the pipeline assembles into system prompts. The file-backed registry
// reloads on disk changes and hands out immutable versioned snapshots.
package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Snapshot is one immutable view of the prompt set. Version increases on
// every successful reload so callers can tell whether they hold stale text.
type Snapshot struct {
	Version int64
	Persona string
	Policy  string
	Topics  map[string]string
}

type Registry interface {
	Snapshot() Snapshot
	Reload() error
}

const defaultPersona = `Sen bir perakende destek asistanisin. Kisa, net ve nazik Turkce cevaplar verirsin. Bilmedigin konularda tahmin yurutmez, musteriyi temsilciye yonlendirirsin.`

const defaultPolicy = `Kural: sube kodu ve sorun ozeti olmadan kayit acma. Kural: sifre, kart numarasi gibi bilgileri asla isteme ve tekrarlama. Kural: cevabin sonuna en fazla uc secenekli [QUICK_REPLIES: ...] ekleyebilirsin.`

// FileRegistry reads persona.md, policy.md and topics/<id>.md from a
// directory. Missing files fall back to built-in defaults so the pipeline
// always has something to assemble.
type FileRegistry struct {
	dir      string
	logger   *slog.Logger
	version  atomic.Int64
	snapshot atomic.Pointer[Snapshot]
}

func NewFileRegistry(dir string, logger *slog.Logger) (*FileRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := &FileRegistry{
		dir:    dir,
		logger: logger.With("component", "prompt-registry"),
	}
	if err := registry.Reload(); err != nil {
		return nil, err
	}
	return registry, nil
}

func (r *FileRegistry) Snapshot() Snapshot {
	return *r.snapshot.Load()
}

func (r *FileRegistry) Reload() error {
	snapshot := Snapshot{
		Version: r.version.Add(1),
		Persona: defaultPersona,
		Policy:  defaultPolicy,
		Topics:  map[string]string{},
	}

	if text, ok := r.readFragment("persona.md"); ok {
		snapshot.Persona = text
	}
	if text, ok := r.readFragment("policy.md"); ok {
		snapshot.Policy = text
	}

	topicsDir := filepath.Join(r.dir, "topics")
	entries, err := os.ReadDir(topicsDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read topics dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		topicID := strings.TrimSuffix(entry.Name(), ".md")
		if text, ok := r.readFragment(filepath.Join("topics", entry.Name())); ok {
			snapshot.Topics[topicID] = text
		}
	}

	r.snapshot.Store(&snapshot)
	r.logger.Info("prompts loaded", "version", snapshot.Version, "topics", len(snapshot.Topics))
	return nil
}

func (r *FileRegistry) readFragment(name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("read prompt fragment failed", "file", name, "error", err)
		}
		return "", false
	}
	text := strings.TrimSpace(string(data))
	return text, text != ""
}

// Watch reloads the registry whenever a markdown file under the prompt
// directory changes. It blocks until ctx is cancelled.
func (r *FileRegistry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("watch prompt dir: %w", err)
	}
	topicsDir := filepath.Join(r.dir, "topics")
	if info, err := os.Stat(topicsDir); err == nil && info.IsDir() {
		if err := watcher.Add(topicsDir); err != nil {
			return fmt.Errorf("watch topics dir: %w", err)
		}
	}
	r.logger.Info("prompt watcher started", "dir", r.dir)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("prompt watcher stopped")
			return nil
		case event := <-watcher.Events:
			if filepath.Ext(event.Name) != ".md" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.logger.Info("prompt changed", "path", event.Name, "op", event.Op.String())
			if err := r.Reload(); err != nil {
				r.logger.Error("prompt reload failed", "error", err)
			}
		case err := <-watcher.Errors:
			if err != nil {
				r.logger.Error("prompt watcher error", "error", err)
			}
		}
	}
}
