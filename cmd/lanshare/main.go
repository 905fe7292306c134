// Точка входа LANShare — сервиса обмена файлами в локальной сети.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/lanshare/internal/api/handlers"
	"github.com/bigkaa/lanshare/internal/api/middleware"
	"github.com/bigkaa/lanshare/internal/config"
	"github.com/bigkaa/lanshare/internal/events"
	"github.com/bigkaa/lanshare/internal/server"
	"github.com/bigkaa/lanshare/internal/service"
	"github.com/bigkaa/lanshare/internal/storage/filestore"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

func main() {
	// .env в рабочей директории; реальное окружение имеет приоритет
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки .env: %v\n", err)
		os.Exit(1)
	}

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("LANShare запускается",
		slog.String("version", config.Version),
		slog.String("addr", cfg.Addr()),
		slog.String("storage_dir", cfg.StorageDir),
		slog.Int64("max_request_size", cfg.MaxRequestSize),
	)

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище
	store, err := filestore.New(cfg.StorageDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Реестр записей. Живёт только в памяти процесса.
	reg := registry.New(logger)

	// 3. CORS и поток событий с общей политикой origins
	localIP := config.DetectLocalIP()
	corsOpts := middleware.CORSOptions{
		Origins:  cfg.CORSOrigins(localIP),
		AllowAny: cfg.AllowAnyOrigin,
	}
	logger.Info("Политика CORS настроена",
		slog.String("local_ip", localIP),
		slog.Any("origins", corsOpts.Origins),
		slog.Bool("allow_any", corsOpts.AllowAny),
	)
	hub := events.NewHub(middleware.OriginAllowed(corsOpts), logger)

	// 4. Сервисы
	uploadSvc := service.NewUploadService(store, reg, cfg.ExtensionPolicy(), hub, cfg.SniffContentType, logger)
	downloadSvc := service.NewDownloadService(store, reg, hub, logger)

	// 5. Фоновые процессы
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconcileSvc := service.NewReconcileService(store, reg, hub, cfg.ReconcileInterval, logger)
	reconcileSvc.Start(ctx)

	gcSvc := service.NewGCService(store, reg, cfg.GCInterval, cfg.OrphanTTL, logger)
	gcSvc.Start(ctx)

	// 6. Handlers
	h := server.Handlers{
		Files: handlers.NewFilesHandler(uploadSvc, downloadSvc, reg, handlers.FilesOptions{
			MaxRequestSize:  cfg.MaxRequestSize,
			MultipartMemory: cfg.MultipartMemory,
			TrustProxy:      cfg.TrustProxy,
		}, logger),
		System:      handlers.NewSystemHandler(cfg, reg, logger),
		Health:      handlers.NewHealthHandler(store.Dir(), logger),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc),
		Events:      hub,
	}

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, corsOpts)

	runErr := srv.Run()

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	hub.Close()
	cancel()
	gcSvc.Stop()
	reconcileSvc.Stop()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("LANShare остановлен")
}
