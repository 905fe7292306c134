package middleware

import (
	"bytes"
	"encoding/json"
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

// TestNormalizePath проверяет схлопывание путей в шаблоны маршрутов.
func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/files", "/api/files"},
		{"/api/upload", "/api/upload"},
		{"/health/ready", "/health/ready"},
		{"/api/maintenance/reconcile", "/api/maintenance/reconcile"},
		{"/api/download/a1b2c3d4-e5f6-4890-abcd-ef1234567890", "/api/download/{id}"},
		{"/api/download/not-a-uuid", "/api/download/{id}"},
		{"/api/download/", "other"},
		{"/api/download/a/b", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Errorf("normalizePath(%q): ожидалось %q, получено %q", tc.path, tc.want, got)
		}
	}
}

// TestRequestLogger проверяет запись статуса и размера ответа в лог.
func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/x", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("некорректная запись лога: %v (%s)", err, buf.String())
	}
	if entry["level"] != "WARN" {
		t.Errorf("для 404 ожидался уровень WARN, получено %v", entry["level"])
	}
	if entry["status"] != float64(404) {
		t.Errorf("status: ожидалось 404, получено %v", entry["status"])
	}
	if entry["bytes"] != float64(4) {
		t.Errorf("bytes: ожидалось 4, получено %v", entry["bytes"])
	}
}

// TestRecoverer проверяет преобразование panic в 500.
func TestRecoverer(t *testing.T) {
	h := Recoverer(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("сбой")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидался статус 500, получено %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("ожидался код INTERNAL_ERROR в теле: %s", rec.Body.String())
	}
}

// TestCORS_Preflight проверяет ответ на preflight от разрешённого origin.
func TestCORS_Preflight(t *testing.T) {
	opts := CORSOptions{Origins: []string{"http://localhost:3000"}}
	h := CORS(opts)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin: ожидалось http://localhost:3000, получено %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("чужой origin не должен получать разрешение, получено %q", got)
	}
}

// TestOriginAllowed проверяет проверку origin для WebSocket.
func TestOriginAllowed(t *testing.T) {
	check := OriginAllowed(CORSOptions{Origins: []string{"http://192.168.1.5:3000"}})
	if !check("http://192.168.1.5:3000") {
		t.Error("разрешённый origin отклонён")
	}
	if check("http://192.168.1.6:3000") {
		t.Error("чужой origin разрешён")
	}

	allowAny := OriginAllowed(CORSOptions{AllowAny: true})
	if !allowAny("http://anything") {
		t.Error("AllowAny должен разрешать любой origin")
	}
}
