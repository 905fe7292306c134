// health.go — обработчики health endpoints для проб оркестратора.
package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/lanshare/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// serviceName — имя сервиса в ответах health и info.
const serviceName = "lanshare"

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// storageDir — путь к директории хранения (для проверки FS)
	storageDir string
	logger     *slog.Logger
}

// NewHealthHandler создаёт обработчик health endpoints.
// Пустой storageDir отключает проверку файловой системы.
func NewHealthHandler(storageDir string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		storageDir: storageDir,
		logger:     logger.With(slog.String("component", "health_handler")),
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет доступность директории хранения на запись.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks": map[string]any{
			"filesystem": fsCheck,
		},
	})
}

// checkFilesystem проверяет доступность директории хранения на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.storageDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.storageDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		// Путь к директории остаётся в логе, в ответ не попадает
		h.logger.Error("Директория хранения недоступна для записи", slog.String("error", err.Error()))
		return map[string]any{
			"status":  statusFail,
			"message": "Директория хранения недоступна для записи",
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}
