// system.go — обработчики GET /api/hello и GET /api/info.
// Публичные endpoints для проверки связности и мониторинга.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/lanshare/internal/config"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

// helloMessage — ответ GET /api/hello, его проверяет фронтенд.
const helloMessage = "Hello from LANShare Backend!"

// infoResponse — ответ GET /api/info.
type infoResponse struct {
	Service           string     `json:"service"`
	Version           string     `json:"version"`
	Files             int        `json:"files"`
	StoredBytes       int64      `json:"storedBytes"`
	MaxRequestSize    int64      `json:"maxRequestSize"`
	AllowedExtensions []string   `json:"allowedExtensions"`
	Disk              *diskUsage `json:"disk,omitempty"`
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg    *config.Config
	reg    *registry.Registry
	logger *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config, reg *registry.Registry, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		cfg:    cfg,
		reg:    reg,
		logger: logger.With(slog.String("component", "system_handler")),
	}
}

// Hello обрабатывает GET /api/hello.
func (h *SystemHandler) Hello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": helloMessage})
}

// GetInfo обрабатывает GET /api/info.
// allowedExtensions = null, если фильтр расширений выключен.
// disk отсутствует, если statfs завершился ошибкой.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	resp := infoResponse{
		Service:           serviceName,
		Version:           config.Version,
		Files:             h.reg.Count(),
		StoredBytes:       h.reg.TotalBytes(),
		MaxRequestSize:    h.cfg.MaxRequestSize,
		AllowedExtensions: h.cfg.ExtensionPolicy().Extensions(),
	}

	disk, err := getDiskUsage(h.cfg.StorageDir)
	if err != nil {
		h.logger.Warn("Не удалось получить ёмкость диска", slog.String("error", err.Error()))
	} else {
		resp.Disk = disk
	}

	writeJSON(w, http.StatusOK, resp)
}
