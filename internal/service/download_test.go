package service

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apierrors "github.com/bigkaa/lanshare/internal/api/errors"
	"github.com/bigkaa/lanshare/internal/domain/model"
	"github.com/bigkaa/lanshare/internal/events"
)

// uploadFixture загружает файл через UploadService и возвращает запись.
func uploadFixture(t *testing.T, svc *UploadService, name, content string) *model.FileRecord {
	t.Helper()
	rec, uerr := svc.Upload(UploadParams{
		Reader:      strings.NewReader(content),
		Filename:    name,
		ContentType: "text/plain",
	})
	if uerr != nil {
		t.Fatalf("ошибка загрузки %s: %v", name, uerr)
	}
	return rec
}

// TestServe_Success проверяет отдачу содержимого и заголовков.
func TestServe_Success(t *testing.T) {
	_, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	dl := NewDownloadService(store, reg, nil, testLogger())

	rec := uploadFixture(t, up, "notes.txt", "hello lan")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/download/"+rec.ID, nil)
	if derr := dl.Serve(w, r, rec.ID); derr != nil {
		t.Fatalf("ошибка скачивания: %v", derr)
	}

	if w.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получено %d", w.Code)
	}
	if w.Body.String() != "hello lan" {
		t.Errorf("тело: получено %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename=notes.txt` {
		t.Errorf("Content-Disposition: получено %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "text/plain" {
		t.Errorf("Content-Type: получено %q", got)
	}
	if got := w.Header().Get("ETag"); got != `"`+rec.Checksum+`"` {
		t.Errorf("ETag: получено %q", got)
	}
	for k, vs := range w.Header() {
		for _, v := range vs {
			if strings.Contains(v, rec.StorageKey) {
				t.Errorf("ключ хранения попал в заголовок %s: %s", k, v)
			}
		}
	}
}

// TestServe_NotModified проверяет ответ 304 по If-None-Match.
func TestServe_NotModified(t *testing.T) {
	_, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	dl := NewDownloadService(store, reg, nil, testLogger())

	rec := uploadFixture(t, up, "a.txt", "data")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/download/"+rec.ID, nil)
	r.Header.Set("If-None-Match", `"`+rec.Checksum+`"`)
	if derr := dl.Serve(w, r, rec.ID); derr != nil {
		t.Fatalf("ошибка скачивания: %v", derr)
	}
	if w.Code != http.StatusNotModified {
		t.Errorf("ожидался статус 304, получено %d", w.Code)
	}
}

// TestServe_Range проверяет частичную отдачу.
func TestServe_Range(t *testing.T) {
	_, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	dl := NewDownloadService(store, reg, nil, testLogger())

	rec := uploadFixture(t, up, "a.txt", "0123456789")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/download/"+rec.ID, nil)
	r.Header.Set("Range", "bytes=2-4")
	if derr := dl.Serve(w, r, rec.ID); derr != nil {
		t.Fatalf("ошибка скачивания: %v", derr)
	}
	if w.Code != http.StatusPartialContent || w.Body.String() != "234" {
		t.Errorf("ожидалось 206 и 234, получено %d %q", w.Code, w.Body.String())
	}
}

// TestServe_UnicodeName проверяет кодирование не-ASCII имени.
func TestServe_UnicodeName(t *testing.T) {
	_, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	dl := NewDownloadService(store, reg, nil, testLogger())

	rec := uploadFixture(t, up, "отчёт.txt", "x")

	w := httptest.NewRecorder()
	if derr := dl.Serve(w, httptest.NewRequest(http.MethodGet, "/", nil), rec.ID); derr != nil {
		t.Fatalf("ошибка скачивания: %v", derr)
	}
	got := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(got, "attachment; filename*=utf-8''") {
		t.Errorf("ожидалось RFC 2231 кодирование, получено %q", got)
	}
}

// TestServe_EmptyNameFallsBackToID проверяет имя для файла без имени.
func TestServe_EmptyNameFallsBackToID(t *testing.T) {
	_, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	dl := NewDownloadService(store, reg, nil, testLogger())

	rec := uploadFixture(t, up, "...", "x")

	w := httptest.NewRecorder()
	if derr := dl.Serve(w, httptest.NewRequest(http.MethodGet, "/", nil), rec.ID); derr != nil {
		t.Fatalf("ошибка скачивания: %v", derr)
	}
	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename="+rec.ID {
		t.Errorf("Content-Disposition: получено %q", got)
	}
}

// TestServe_NotFound проверяет неизвестный идентификатор.
func TestServe_NotFound(t *testing.T) {
	_, store, reg := setupTestEnv(t)
	rec := &recorder{}
	dl := NewDownloadService(store, reg, rec, testLogger())

	w := httptest.NewRecorder()
	derr := dl.Serve(w, httptest.NewRequest(http.MethodGet, "/", nil), "unknown")
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if derr.StatusCode != http.StatusNotFound || derr.Code != apierrors.CodeNotFound {
		t.Errorf("ожидалась 404 NOT_FOUND, получено %d %s", derr.StatusCode, derr.Code)
	}
	if w.Body.Len() != 0 {
		t.Error("сервис не должен писать тело ответа при ошибке")
	}
	if len(rec.list()) != 0 {
		t.Error("событие не должно публиковаться")
	}
}

// TestServe_SelfHeal проверяет удаление записи, файл которой пропал.
func TestServe_SelfHeal(t *testing.T) {
	dir, store, reg := setupTestEnv(t)
	pub := &recorder{}
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	dl := NewDownloadService(store, reg, pub, testLogger())

	gone := uploadFixture(t, up, "gone.txt", "bye")
	kept := uploadFixture(t, up, "kept.txt", "stay")

	if err := os.Remove(filepath.Join(dir, gone.StorageKey)); err != nil {
		t.Fatalf("ошибка удаления файла: %v", err)
	}

	derr := dl.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), gone.ID)
	if derr == nil || derr.StatusCode != http.StatusNotFound {
		t.Fatalf("ожидалась 404, получено %v", derr)
	}

	if _, ok := reg.FindByID(gone.ID); ok {
		t.Error("запись должна быть удалена из реестра")
	}
	if _, ok := reg.FindByID(kept.ID); !ok {
		t.Error("другие записи не должны затрагиваться")
	}

	evs := pub.list()
	if len(evs) != 1 || evs[0].File.ID != gone.ID {
		t.Errorf("ожидалось событие file.removed для %s, получено %+v", gone.ID, evs)
	}

	// Повторный запрос — обычный 404 без побочных эффектов
	derr = dl.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), gone.ID)
	if derr == nil || derr.StatusCode != http.StatusNotFound {
		t.Errorf("ожидалась 404, получено %v", derr)
	}
	if len(pub.list()) != 1 {
		t.Error("повторное событие не должно публиковаться")
	}
}

// TestServe_SelfHealLogsPath проверяет, что лог самовосстановления
// содержит пройденный путь автомата выдачи.
func TestServe_SelfHealLogsPath(t *testing.T) {
	dir, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())

	var logs bytes.Buffer
	dl := NewDownloadService(store, reg, nil, slog.New(slog.NewJSONHandler(&logs, nil)))

	gone := uploadFixture(t, up, "gone.txt", "bye")
	if err := os.Remove(filepath.Join(dir, gone.StorageKey)); err != nil {
		t.Fatalf("ошибка удаления файла: %v", err)
	}
	_ = dl.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), gone.ID)

	want := `"path":["lookup","found","missing","removed"]`
	if !strings.Contains(logs.String(), want) {
		t.Errorf("в логе нет %s: %s", want, logs.String())
	}
}

// TestServe_IOErrorKeepsRecord проверяет, что ошибка чтения не удаляет запись.
func TestServe_IOErrorKeepsRecord(t *testing.T) {
	dir, store, reg := setupTestEnv(t)
	dl := NewDownloadService(store, reg, nil, testLogger())

	// Вместо файла — директория: открывается, но не является обычным файлом
	reg.Insert(&model.FileRecord{ID: "dir-id", DisplayName: "d", StorageKey: "dir-id"})
	if err := os.Mkdir(filepath.Join(dir, "dir-id"), 0o750); err != nil {
		t.Fatalf("ошибка создания директории: %v", err)
	}

	derr := dl.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "dir-id")
	if derr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if derr.StatusCode != http.StatusInternalServerError || derr.Code != apierrors.CodeInternalError {
		t.Errorf("ожидалась 500 INTERNAL_ERROR, получено %d %s", derr.StatusCode, derr.Code)
	}

	if _, ok := reg.FindByID("dir-id"); !ok {
		t.Error("запись не должна удаляться при ошибке ввода-вывода")
	}
}

// TestContentDisposition проверяет формирование заголовка.
func TestContentDisposition(t *testing.T) {
	cases := []struct {
		rec  model.FileRecord
		want string
	}{
		{model.FileRecord{ID: "i", DisplayName: "a.txt"}, "attachment; filename=a.txt"},
		{model.FileRecord{ID: "i", DisplayName: "my_file(1).txt"}, `attachment; filename="my_file(1).txt"`},
		{model.FileRecord{ID: "id-1"}, "attachment; filename=id-1"},
	}
	for _, tc := range cases {
		if got := contentDisposition(&tc.rec); got != tc.want {
			t.Errorf("%+v: ожидалось %q, получено %q", tc.rec, tc.want, got)
		}
	}
}

// TestServe_ByteIdentical проверяет побайтовое совпадение двоичного файла.
func TestServe_ByteIdentical(t *testing.T) {
	_, store, reg := setupTestEnv(t)
	up := NewUploadService(store, reg, nil, nil, false, testLogger())
	dl := NewDownloadService(store, reg, nil, testLogger())

	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	rec, uerr := up.Upload(UploadParams{Reader: bytes.NewReader(payload), Filename: "blob.bin"})
	if uerr != nil {
		t.Fatalf("ошибка загрузки: %v", uerr)
	}

	w := httptest.NewRecorder()
	if derr := dl.Serve(w, httptest.NewRequest(http.MethodGet, "/", nil), rec.ID); derr != nil {
		t.Fatalf("ошибка скачивания: %v", derr)
	}
	if !bytes.Equal(w.Body.Bytes(), payload) {
		t.Error("скачанные данные не совпадают с загруженными")
	}
	if rec.SizeBytes != int64(len(payload)) {
		t.Errorf("SizeBytes: ожидалось %d, получено %d", len(payload), rec.SizeBytes)
	}
}

var _ events.Publisher = (*recorder)(nil)
