package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/lanshare/internal/config"
	"github.com/bigkaa/lanshare/internal/domain/filename"
	"github.com/bigkaa/lanshare/internal/service"
	"github.com/bigkaa/lanshare/internal/storage/filestore"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — окружение handler-тестов поверх реального хранилища.
type testEnv struct {
	dir    string
	reg    *registry.Registry
	router http.Handler
}

// envOptions — параметры тестового окружения.
type envOptions struct {
	maxRequestSize  int64
	multipartMemory int64
	policy          filename.ExtensionPolicy
	reconciler      ReconcileRunner
}

// setupEnv собирает сервисы, обработчики и chi-роутер.
func setupEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := filestore.New(dir)
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}
	reg := registry.New(testLogger())

	if opts.maxRequestSize == 0 {
		opts.maxRequestSize = 10 << 20
	}
	if opts.multipartMemory == 0 {
		opts.multipartMemory = 1 << 20
	}
	if opts.reconciler == nil {
		opts.reconciler = service.NewReconcileService(store, reg, nil, 0, testLogger())
	}

	uploadSvc := service.NewUploadService(store, reg, opts.policy, nil, false, testLogger())
	downloadSvc := service.NewDownloadService(store, reg, nil, testLogger())

	files := NewFilesHandler(uploadSvc, downloadSvc, reg, FilesOptions{
		MaxRequestSize:  opts.maxRequestSize,
		MultipartMemory: opts.multipartMemory,
	}, testLogger())
	cfg := &config.Config{
		StorageDir:        dir,
		MaxRequestSize:    opts.maxRequestSize,
		AllowedExtensions: []string{"txt"},
	}
	system := NewSystemHandler(cfg, reg, testLogger())
	health := NewHealthHandler(dir, testLogger())
	maintenance := NewMaintenanceHandler(opts.reconciler)

	r := chi.NewRouter()
	r.Get("/health/live", health.HealthLive)
	r.Get("/health/ready", health.HealthReady)
	r.Get("/api/hello", system.Hello)
	r.Get("/api/info", system.GetInfo)
	r.Post("/api/upload", files.Upload)
	r.Get("/api/files", files.List)
	r.Get("/api/download/{id}", files.Download)
	r.Post("/api/maintenance/reconcile", maintenance.Reconcile)

	return &testEnv{dir: dir, reg: reg, router: r}
}

// do выполняет запрос к роутеру.
func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

// part — часть multipart-запроса.
type part struct {
	field    string
	filename string
	content  []byte
}

// fileParts формирует части files из пар имя/содержимое.
func fileParts(pairs ...string) []part {
	parts := make([]part, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, part{field: filesField, filename: pairs[i], content: []byte(pairs[i+1])})
	}
	return parts
}

// multipartRequest формирует POST /api/upload с указанными частями.
func multipartRequest(t *testing.T, parts []part) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.filename == "" {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename=""`)
		} else {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		}
		h.Set("Content-Type", "application/octet-stream")
		pw, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("Ошибка создания части: %v", err)
		}
		if _, err := pw.Write(p.content); err != nil {
			t.Fatalf("Ошибка записи части: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Ошибка закрытия multipart: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

// decodeJSON разбирает тело ответа.
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Ошибка разбора JSON: %v (тело: %s)", err, w.Body.String())
	}
}

// errorCode извлекает code из тела ошибки.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, w, &body)
	return body.Error.Code
}
