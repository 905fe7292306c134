// reconcile.go — сервис фоновой сверки (Reconciliation) реестра с диском.
//
// Reconciliation сравнивает записи реестра с файлами директории хранения.
//
// Обнаруживает проблемы:
//   - missing_file: запись в реестре, файла нет — запись удаляется
//   - orphaned_file: файл на диске без записи — только отчёт (удаляет GC)
//   - size_mismatch: размер на диске не совпадает с записью — только отчёт
//
// Запускается как горутина с периодическим тикером (LS_RECONCILE_INTERVAL)
// и по запросу POST /api/maintenance/reconcile.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/lanshare/internal/api/middleware"
	"github.com/bigkaa/lanshare/internal/events"
	"github.com/bigkaa/lanshare/internal/storage/filestore"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanshare_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanshare_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lanshare_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// IssueType — тип проблемы, найденной при сверке.
type IssueType string

const (
	// IssueMissingFile — запись без файла на диске
	IssueMissingFile IssueType = "missing_file"
	// IssueOrphanedFile — файл без записи
	IssueOrphanedFile IssueType = "orphaned_file"
	// IssueSizeMismatch — размер на диске отличается от записи
	IssueSizeMismatch IssueType = "size_mismatch"
)

// ReconcileIssue — одна найденная проблема.
type ReconcileIssue struct {
	Type IssueType `json:"type"`
	// FileID — идентификатор записи (для missing_file и size_mismatch)
	FileID string `json:"fileId,omitempty"`
	// Name — отображаемое имя записи или имя файла на диске для orphaned_file
	Name        string `json:"name,omitempty"`
	Description string `json:"description"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	Ok             int `json:"ok"`
	MissingFiles   int `json:"missingFiles"`
	OrphanedFiles  int `json:"orphanedFiles"`
	SizeMismatches int `json:"sizeMismatches"`
}

// ReconcileResult — результат одного запуска сверки.
type ReconcileResult struct {
	StartedAt      time.Time        `json:"startedAt"`
	CompletedAt    time.Time        `json:"completedAt"`
	FilesChecked   int              `json:"filesChecked"`
	RemovedRecords int              `json:"removedRecords"`
	Issues         []ReconcileIssue `json:"issues"`
	Summary        ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	store     *filestore.FileStore
	reg       *registry.Registry
	publisher events.Publisher
	interval  time.Duration
	logger    *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис reconciliation.
// interval == 0 выключает периодический запуск; RunOnce доступен всегда.
func NewReconcileService(
	store *filestore.FileStore,
	reg *registry.Registry,
	publisher events.Publisher,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:     store,
		reg:       reg,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину reconciliation с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Периодическая reconciliation выключена")
		return
	}

	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновый процесс и ждёт завершения горутины.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true.
//
// Возвращает:
//   - *ReconcileResult — результат сверки
//   - bool — true если reconciliation уже выполнялась (skipped)
func (rs *ReconcileService) RunOnce() (*ReconcileResult, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	result := &ReconcileResult{
		StartedAt: time.Now().UTC(),
		Issues:    []ReconcileIssue{},
	}
	rs.logger.Debug("Reconciliation начата")

	rs.checkRecords(result)
	rs.checkOrphans(result)

	result.CompletedAt = time.Now().UTC()
	duration := result.CompletedAt.Sub(result.StartedAt)

	// Подсчитываем summary
	for _, issue := range result.Issues {
		switch issue.Type {
		case IssueMissingFile:
			result.Summary.MissingFiles++
		case IssueOrphanedFile:
			result.Summary.OrphanedFiles++
		case IssueSizeMismatch:
			result.Summary.SizeMismatches++
		}
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	result.Summary.Ok = max(result.FilesChecked-result.Summary.MissingFiles-result.Summary.SizeMismatches, 0)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	if result.RemovedRecords > 0 {
		syncRegistryGauges(rs.reg)
	}

	level := slog.LevelDebug
	if len(result.Issues) > 0 {
		level = slog.LevelInfo
	}
	rs.logger.Log(context.Background(), level, "Reconciliation завершена",
		slog.Int("files_checked", result.FilesChecked),
		slog.Int("issues", len(result.Issues)),
		slog.Int("removed_records", result.RemovedRecords),
		slog.Int("ok", result.Summary.Ok),
		slog.Duration("duration", duration),
	)

	return result, false
}

// checkRecords проверяет наличие и размер файла каждой записи.
// Записи без файла удаляются из реестра.
func (rs *ReconcileService) checkRecords(result *ReconcileResult) {
	for _, rec := range rs.reg.List() {
		result.FilesChecked++

		info, err := rs.store.Stat(rec.StorageKey)
		if err != nil {
			if !errors.Is(err, filestore.ErrNotFound) {
				rs.logger.Warn("Ошибка проверки файла",
					slog.String("file_id", rec.ID),
					slog.String("error", err.Error()),
				)
				continue
			}

			result.Issues = append(result.Issues, ReconcileIssue{
				Type:        IssueMissingFile,
				FileID:      rec.ID,
				Name:        rec.DisplayName,
				Description: "Запись без файла на диске, удалена из реестра",
			})
			if rs.reg.Remove(rec.ID) {
				result.RemovedRecords++
				middleware.OperationsTotal.WithLabelValues("reconcile", "self_heal").Inc()
				if rs.publisher != nil {
					rs.publisher.Publish(events.FileRemoved, rec.View())
				}
				rs.logger.Warn("Файл отсутствует на диске, запись удалена из реестра",
					slog.String("file_id", rec.ID),
					slog.String("filename", rec.DisplayName),
				)
			}
			continue
		}

		if info.Size() != rec.SizeBytes {
			result.Issues = append(result.Issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				FileID:      rec.ID,
				Name:        rec.DisplayName,
				Description: "Размер файла на диске не совпадает с записью",
			})
		}
	}
}

// checkOrphans находит файлы на диске без записи в реестре.
// Временные файлы (*.tmp) пропускаются: ими занимается GC.
func (rs *ReconcileService) checkOrphans(result *ReconcileResult) {
	entries, err := rs.store.List()
	if err != nil {
		rs.logger.Error("Ошибка чтения директории хранения",
			slog.String("error", err.Error()),
		)
		return
	}

	keys := rs.reg.StorageKeys()
	for _, e := range entries {
		if e.Temp {
			continue
		}
		if _, ok := keys[e.Name]; ok {
			continue
		}
		result.Issues = append(result.Issues, ReconcileIssue{
			Type:        IssueOrphanedFile,
			Name:        e.Name,
			Description: "Файл на диске без записи в реестре",
		})
	}
}
