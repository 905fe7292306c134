// gc.go — сервис фоновой очистки (Garbage Collection) директории хранения.
//
// GC удаляет файлы, которые не принадлежат ни одной записи реестра:
//  1. orphaned-файлы старше LS_ORPHAN_TTL
//  2. незавершённые временные файлы (*.tmp) старше LS_ORPHAN_TTL
//
// Файлы, на которые ссылается запись реестра, не затрагиваются.
// Запускается как горутина с периодическим тикером (LS_GC_INTERVAL),
// только если LS_ORPHAN_TTL > 0.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/lanshare/internal/storage/filestore"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

// Prometheus метрики GC
var (
	// gcRunsTotal — количество запусков GC.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanshare_gc_runs_total",
		Help: "Общее количество запусков GC",
	})

	// gcFilesDeletedTotal — количество удалённых файлов по виду.
	gcFilesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanshare_gc_files_deleted_total",
		Help: "Общее количество файлов, удалённых GC",
	}, []string{"kind"})

	// gcDurationSeconds — длительность выполнения GC.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lanshare_gc_duration_seconds",
		Help:    "Длительность выполнения GC в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// GCResult — результат одного запуска GC.
type GCResult struct {
	// OrphansDeleted — количество удалённых orphaned-файлов
	OrphansDeleted int
	// TempDeleted — количество удалённых временных файлов
	TempDeleted int
	// Errors — количество ошибок удаления
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// GCService — сервис фоновой очистки файлов.
type GCService struct {
	store    *filestore.FileStore
	reg      *registry.Registry
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger

	// now подменяется в тестах
	now func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGCService создаёт сервис GC.
func NewGCService(
	store *filestore.FileStore,
	reg *registry.Registry,
	interval time.Duration,
	ttl time.Duration,
	logger *slog.Logger,
) *GCService {
	return &GCService{
		store:    store,
		reg:      reg,
		interval: interval,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "gc")),
		now:      time.Now,
	}
}

// Enabled возвращает true, если GC включён (ttl > 0).
func (gc *GCService) Enabled() bool {
	return gc.ttl > 0 && gc.interval > 0
}

// Start запускает фоновую горутину GC с периодическим тикером.
// Вызывается один раз при старте приложения.
func (gc *GCService) Start(ctx context.Context) {
	if !gc.Enabled() {
		gc.logger.Info("GC orphaned-файлов выключен (LS_ORPHAN_TTL=0)")
		return
	}

	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel
	gc.done = make(chan struct{})

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
		slog.String("ttl", gc.ttl.String()),
	)
}

// Stop останавливает фоновый процесс GC и ждёт завершения горутины.
func (gc *GCService) Stop() {
	if gc.cancel == nil {
		return
	}
	gc.cancel()
	<-gc.done
	gc.logger.Info("GC остановлен")
}

// run — основной цикл фоновой горутины.
func (gc *GCService) run(ctx context.Context) {
	defer close(gc.done)

	// Первый запуск — сразу после старта
	gc.RunOnce()

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл GC.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (gc *GCService) RunOnce() *GCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &GCResult{}
	if gc.ttl <= 0 {
		return result
	}

	gc.logger.Debug("GC запуск начат")

	entries, err := gc.store.List()
	if err != nil {
		gc.logger.Error("GC: ошибка чтения директории хранения",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result
	}

	keys := gc.reg.StorageKeys()
	cutoff := gc.now().Add(-gc.ttl)

	for _, e := range entries {
		if !e.Temp {
			if _, ok := keys[e.Name]; ok {
				continue
			}
		}
		if e.ModTime.After(cutoff) {
			continue
		}

		if err := gc.store.Remove(e.Name); err != nil {
			gc.logger.Error("GC: ошибка удаления файла",
				slog.String("file", e.Name),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		kind := "orphan"
		if e.Temp {
			kind = "temp"
			result.TempDeleted++
		} else {
			result.OrphansDeleted++
		}
		gcFilesDeletedTotal.WithLabelValues(kind).Inc()

		gc.logger.Info("GC: файл удалён",
			slog.String("file", e.Name),
			slog.String("kind", kind),
			slog.Int64("size", e.Size),
		)
	}

	result.Duration = time.Since(start)

	gcRunsTotal.Inc()
	gcDurationSeconds.Observe(result.Duration.Seconds())

	gc.logger.Info("GC завершён",
		slog.Int("orphans_deleted", result.OrphansDeleted),
		slog.Int("temp_deleted", result.TempDeleted),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
