// metrics.go — Prometheus HTTP метрики LANShare.
// Регистрирует метрики: lanshare_http_requests_total, lanshare_http_request_duration_seconds.
// Бизнес-метрики (lanshare_files_total, lanshare_stored_bytes и др.)
// экспортируются отсюда и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanshare_http_requests_total",
			Help: "Общее количество HTTP-запросов к LANShare",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lanshare_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к LANShare в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// FilesTotal — текущее количество записей в реестре (gauge).
	FilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanshare_files_total",
			Help: "Текущее количество файлов в реестре",
		},
	)

	// StoredBytes — суммарный размер файлов из реестра (gauge).
	StoredBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanshare_stored_bytes",
			Help: "Суммарный размер файлов в реестре в байтах",
		},
	)

	// OperationsTotal — общее количество файловых операций.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanshare_operations_total",
			Help: "Общее количество файловых операций",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификатор файла на {id})
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// knownPaths — фиксированные маршруты, попадающие в лейблы как есть.
var knownPaths = map[string]struct{}{
	"/health/live":               {},
	"/health/ready":              {},
	"/metrics":                   {},
	"/api/hello":                 {},
	"/api/info":                  {},
	"/api/files":                 {},
	"/api/upload":                {},
	"/api/events":                {},
	"/api/maintenance/reconcile": {},
}

// downloadPrefix — префикс маршрута скачивания.
const downloadPrefix = "/api/download/"

// normalizePath приводит путь к шаблону маршрута для предотвращения
// взрывного роста кардинальности метрик.
// /api/download/a1b2c3d4-e5f6-7890-abcd-ef1234567890 → /api/download/{id}
// Неизвестные пути схлопываются в "other".
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	if rest, ok := strings.CutPrefix(path, downloadPrefix); ok && rest != "" && !strings.Contains(rest, "/") {
		return downloadPrefix + "{id}"
	}
	return "other"
}
