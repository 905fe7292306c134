package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bigkaa/lanshare/internal/domain/model"
	"github.com/bigkaa/lanshare/internal/events"
	"github.com/bigkaa/lanshare/internal/storage/filestore"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordedEvent — событие, перехваченное recorder.
type recordedEvent struct {
	Type events.Type
	File model.FileView
}

// recorder — Publisher для тестов, запоминает события.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(eventType events.Type, file model.FileView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, File: file})
}

func (r *recorder) list() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

// setupTestEnv создаёт директорию хранения, FileStore и Registry.
func setupTestEnv(t *testing.T) (string, *filestore.FileStore, *registry.Registry) {
	t.Helper()

	dir := t.TempDir()
	store, err := filestore.New(dir)
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}
	return dir, store, registry.New(testLogger())
}
