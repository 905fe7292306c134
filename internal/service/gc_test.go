package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setOld выставляет время модификации файла в прошлое.
func setOld(t *testing.T, path string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Ошибка изменения времени файла: %v", err)
	}
}

func TestGCRunOnce_DeletesOldOrphans(t *testing.T) {
	dir, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	rec := uploadFixture(t, up, "keep.txt", "keep")

	oldOrphan := filepath.Join(dir, "old-orphan.bin")
	newOrphan := filepath.Join(dir, "new-orphan.bin")
	oldTemp := filepath.Join(dir, "abandoned.bin.tmp")
	for _, p := range []string{oldOrphan, newOrphan, oldTemp} {
		if err := os.WriteFile(p, []byte("x"), 0o640); err != nil {
			t.Fatalf("Ошибка записи файла: %v", err)
		}
	}
	setOld(t, oldOrphan, 2*time.Hour)
	setOld(t, oldTemp, 2*time.Hour)
	// Файл записи тоже старый, но на него ссылается реестр
	setOld(t, filepath.Join(dir, rec.StorageKey), 2*time.Hour)

	gc := NewGCService(store, reg, time.Hour, time.Hour, testLogger())
	result := gc.RunOnce()

	if result.OrphansDeleted != 1 || result.TempDeleted != 1 || result.Errors != 0 {
		t.Errorf("ожидалось 1 orphan и 1 temp, получено %+v", result)
	}
	if _, err := os.Stat(oldOrphan); !os.IsNotExist(err) {
		t.Error("старый orphaned-файл должен быть удалён")
	}
	if _, err := os.Stat(oldTemp); !os.IsNotExist(err) {
		t.Error("старый временный файл должен быть удалён")
	}
	if _, err := os.Stat(newOrphan); err != nil {
		t.Error("свежий orphaned-файл не должен удаляться")
	}
	if _, err := os.Stat(filepath.Join(dir, rec.StorageKey)); err != nil {
		t.Error("файл записи реестра не должен удаляться")
	}
}

func TestGCRunOnce_Disabled(t *testing.T) {
	dir, store, reg := setupTestEnv(t)

	orphan := filepath.Join(dir, "orphan.bin")
	_ = os.WriteFile(orphan, []byte("x"), 0o640)
	setOld(t, orphan, 24*time.Hour)

	gc := NewGCService(store, reg, time.Hour, 0, testLogger())
	if gc.Enabled() {
		t.Error("GC с нулевым TTL должен быть выключен")
	}
	result := gc.RunOnce()

	if result.OrphansDeleted != 0 {
		t.Errorf("выключенный GC не должен удалять файлы: %+v", result)
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Error("файл не должен удаляться")
	}
}

func TestGCRunOnce_InjectedClock(t *testing.T) {
	dir, store, reg := setupTestEnv(t)

	orphan := filepath.Join(dir, "orphan.bin")
	_ = os.WriteFile(orphan, []byte("x"), 0o640)

	gc := NewGCService(store, reg, time.Hour, time.Minute, testLogger())
	gc.now = func() time.Time { return time.Now().Add(time.Hour) }

	if result := gc.RunOnce(); result.OrphansDeleted != 1 {
		t.Errorf("ожидался 1 удалённый файл, получено %+v", result)
	}
}

func TestGCStartStop(t *testing.T) {
	_, store, reg := setupTestEnv(t)

	gc := NewGCService(store, reg, 10*time.Millisecond, time.Hour, testLogger())
	gc.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	gc.Stop()

	// Повторный Stop и Stop выключенного GC не блокируются
	gc.Stop()
	NewGCService(store, reg, time.Hour, 0, testLogger()).Stop()
}
