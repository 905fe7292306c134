// Пакет config — загрузка и валидация конфигурации LANShare
// из переменных окружения (и необязательного файла .env).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/bigkaa/lanshare/internal/domain/filename"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации LANShare.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Адрес привязки (0.0.0.0 — все интерфейсы, доступ из LAN)
	Host string
	// Директория хранения файлов, создаётся при старте
	StorageDir string
	// Максимальный размер тела запроса загрузки в байтах
	MaxRequestSize int64
	// Объём multipart-данных в памяти, остальное — во временных файлах
	MultipartMemory int64
	// Порт веб-интерфейса для формирования CORS origins
	FrontendPort int
	// Дополнительные разрешённые origins (LS_ALLOWED_ORIGINS)
	AllowedOrigins []string
	// Разрешить любой origin (LS_ALLOWED_ORIGINS=*)
	AllowAnyOrigin bool
	// Разрешённые расширения; nil — фильтрация выключена
	AllowedExtensions []string
	// Определять MIME-тип по содержимому, если клиент его не указал
	SniffContentType bool
	// Брать адрес загрузившего из X-Forwarded-For
	TrustProxy bool
	// Интервал фоновой сверки (0 — выключена)
	ReconcileInterval time.Duration
	// Интервал GC orphaned-файлов
	GCInterval time.Duration
	// Возраст, после которого orphaned-файл удаляется (0 — GC выключен)
	OrphanTTL time.Duration
	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера (0 — без ограничения, нужно для больших файлов)
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration
}

// LoadDotEnv загружает переменные из файлов .env (по умолчанию ./.env).
// Уже заданные переменные окружения не перезаписываются.
// Отсутствие файла — не ошибка.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("ошибка чтения %s: %w", p, err)
		}
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// LS_PORT — порт HTTP-сервера (по умолчанию 5000)
	cfg.Port, err = getEnvInt("LS_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("LS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("LS_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	// LS_HOST — адрес привязки
	cfg.Host = getEnvDefault("LS_HOST", "0.0.0.0")

	// LS_STORAGE_DIR — директория хранения
	cfg.StorageDir = getEnvDefault("LS_STORAGE_DIR", "uploads")

	// LS_MAX_REQUEST_SIZE — потолок тела запроса (по умолчанию 1 GiB)
	cfg.MaxRequestSize, err = getEnvInt64("LS_MAX_REQUEST_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("LS_MAX_REQUEST_SIZE: %w", err)
	}
	if cfg.MaxRequestSize <= 0 {
		return nil, fmt.Errorf("LS_MAX_REQUEST_SIZE: значение должно быть положительным")
	}

	// LS_MULTIPART_MEMORY — буфер multipart в памяти (по умолчанию 32 MiB)
	cfg.MultipartMemory, err = getEnvInt64("LS_MULTIPART_MEMORY", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("LS_MULTIPART_MEMORY: %w", err)
	}
	if cfg.MultipartMemory <= 0 {
		return nil, fmt.Errorf("LS_MULTIPART_MEMORY: значение должно быть положительным")
	}

	// LS_FRONTEND_PORT — порт веб-интерфейса (по умолчанию 3000)
	cfg.FrontendPort, err = getEnvInt("LS_FRONTEND_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("LS_FRONTEND_PORT: %w", err)
	}
	if cfg.FrontendPort < 1 || cfg.FrontendPort > 65535 {
		return nil, fmt.Errorf("LS_FRONTEND_PORT: значение %d вне диапазона 1-65535", cfg.FrontendPort)
	}

	// LS_ALLOWED_ORIGINS — дополнительные origins через запятую, "*" — любые
	origins := splitList(getEnvDefault("LS_ALLOWED_ORIGINS", ""))
	if lo.Contains(origins, "*") {
		cfg.AllowAnyOrigin = true
	}
	cfg.AllowedOrigins = lo.Without(origins, "*")

	// LS_ALLOWED_EXTENSIONS — "" (все), "default" (встроенный список) или CSV
	switch exts := getEnvDefault("LS_ALLOWED_EXTENSIONS", ""); strings.ToLower(strings.TrimSpace(exts)) {
	case "":
		cfg.AllowedExtensions = nil
	case "default":
		cfg.AllowedExtensions = filename.DefaultAllowedExtensions
	default:
		cfg.AllowedExtensions = splitList(exts)
		if len(cfg.AllowedExtensions) == 0 {
			return nil, fmt.Errorf("LS_ALLOWED_EXTENSIONS: пустой список расширений")
		}
	}

	// LS_SNIFF_CONTENT_TYPE — определение MIME по содержимому (по умолчанию выключено)
	cfg.SniffContentType, err = getEnvBool("LS_SNIFF_CONTENT_TYPE", false)
	if err != nil {
		return nil, fmt.Errorf("LS_SNIFF_CONTENT_TYPE: %w", err)
	}

	// LS_TRUST_PROXY — доверять X-Forwarded-For (по умолчанию нет)
	cfg.TrustProxy, err = getEnvBool("LS_TRUST_PROXY", false)
	if err != nil {
		return nil, fmt.Errorf("LS_TRUST_PROXY: %w", err)
	}

	// LS_RECONCILE_INTERVAL — интервал сверки (по умолчанию 5m, 0 — выключена)
	cfg.ReconcileInterval, err = getEnvDuration("LS_RECONCILE_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LS_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileInterval < 0 {
		return nil, fmt.Errorf("LS_RECONCILE_INTERVAL: значение не может быть отрицательным")
	}

	// LS_GC_INTERVAL — интервал GC (по умолчанию 1h)
	cfg.GCInterval, err = getEnvDuration("LS_GC_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("LS_GC_INTERVAL: %w", err)
	}
	if cfg.GCInterval <= 0 {
		return nil, fmt.Errorf("LS_GC_INTERVAL: значение должно быть положительным")
	}

	// LS_ORPHAN_TTL — возраст orphaned-файлов для удаления (по умолчанию 0 — GC выключен)
	cfg.OrphanTTL, err = getEnvDuration("LS_ORPHAN_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("LS_ORPHAN_TTL: %w", err)
	}
	if cfg.OrphanTTL < 0 {
		return nil, fmt.Errorf("LS_ORPHAN_TTL: значение не может быть отрицательным")
	}

	// LS_TLS_CERT / LS_TLS_KEY — задаются вместе или не задаются
	cfg.TLSCert = getEnvDefault("LS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("LS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("LS_TLS_CERT и LS_TLS_KEY должны задаваться вместе")
	}

	// LS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LS_LOG_LEVEL: %w", err)
	}

	// LS_LOG_FORMAT — формат логов (по умолчанию text)
	cfg.LogFormat = getEnvDefault("LS_LOG_FORMAT", "text")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// LS_HTTP_READ_TIMEOUT / LS_HTTP_WRITE_TIMEOUT — по умолчанию без ограничения
	cfg.HTTPReadTimeout, err = getEnvDuration("LS_HTTP_READ_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("LS_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("LS_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("LS_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// LS_HTTP_IDLE_TIMEOUT — по умолчанию 120s
	cfg.HTTPIdleTimeout, err = getEnvDuration("LS_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// LS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("LS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// Addr возвращает адрес для net.Listen.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExtensionPolicy строит политику расширений из конфигурации.
func (c *Config) ExtensionPolicy() filename.ExtensionPolicy {
	if c.AllowedExtensions == nil {
		return filename.AllowAll{}
	}
	return filename.NewAllowList(c.AllowedExtensions)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 5m, 1h)", val)
	}
	return d, nil
}

// splitList разбирает список через запятую, отбрасывая пустые элементы.
func splitList(val string) []string {
	parts := lo.Map(strings.Split(val, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Compact(parts)
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
