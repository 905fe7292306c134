// download.go — сервис скачивания файлов.
// Каждый запрос проходит автомат retrieval.Flow; запись, файл которой
// пропал с диска, удаляется из реестра (самовосстановление).
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/lanshare/internal/api/errors"
	"github.com/bigkaa/lanshare/internal/api/middleware"
	"github.com/bigkaa/lanshare/internal/domain/model"
	"github.com/bigkaa/lanshare/internal/domain/retrieval"
	"github.com/bigkaa/lanshare/internal/events"
	"github.com/bigkaa/lanshare/internal/storage/filestore"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

// retrievalTransitionsTotal — переходы автомата выдачи файла.
var retrievalTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lanshare_retrieval_transitions_total",
	Help: "Общее количество переходов автомата выдачи файла",
}, []string{"from", "to"})

// DownloadError — ошибка скачивания с HTTP-кодом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DownloadService — сервис скачивания файлов.
type DownloadService struct {
	store     *filestore.FileStore
	reg       *registry.Registry
	publisher events.Publisher
	logger    *slog.Logger
}

// NewDownloadService создаёт сервис скачивания файлов.
func NewDownloadService(
	store *filestore.FileStore,
	reg *registry.Registry,
	publisher events.Publisher,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		store:     store,
		reg:       reg,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт файл клиенту через http.ServeContent.
// Поддерживает Range requests (206 Partial Content) и ETag (If-None-Match).
// При ошибке ответ не записан: его формирует обработчик по DownloadError.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, fileID string) *DownloadError {
	flow := retrieval.Start()

	// 1. Поиск записи
	rec, ok := s.reg.FindByID(fileID)
	if !ok {
		s.step(flow, retrieval.StateAbsent, fileID)
		middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
		return &DownloadError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Файл %s не найден", fileID),
		}
	}
	s.step(flow, retrieval.StateFound, fileID)

	// 2. Открытие файла
	file, err := s.store.Open(rec.StorageKey)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return s.selfHeal(flow, rec)
		}
		return s.fail(flow, rec, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return s.fail(flow, rec, err)
	}
	if !stat.Mode().IsRegular() {
		return s.fail(flow, rec, fmt.Errorf("%s: не обычный файл", rec.StorageKey))
	}
	s.step(flow, retrieval.StateVerified, fileID)

	// 3. Заголовки. Ключ хранения в ответ не попадает.
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(rec))
	if rec.Checksum != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", rec.Checksum))
	}

	// 4. http.ServeContent автоматически обрабатывает:
	//    - Range requests (206 Partial Content)
	//    - If-None-Match (304 Not Modified через ETag)
	//    - Content-Length
	http.ServeContent(w, r, "", stat.ModTime(), file)
	s.step(flow, retrieval.StateServed, fileID)

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Debug("Файл скачан",
		slog.String("file_id", rec.ID),
		slog.String("filename", rec.DisplayName),
		slog.Int64("size", rec.SizeBytes),
	)

	return nil
}

// selfHeal удаляет запись, файл которой отсутствует на диске.
func (s *DownloadService) selfHeal(flow *retrieval.Flow, rec *model.FileRecord) *DownloadError {
	s.step(flow, retrieval.StateMissing, rec.ID)

	if s.reg.Remove(rec.ID) {
		syncRegistryGauges(s.reg)
		if s.publisher != nil {
			s.publisher.Publish(events.FileRemoved, rec.View())
		}
	}
	s.step(flow, retrieval.StateRemoved, rec.ID)

	middleware.OperationsTotal.WithLabelValues("download", "self_heal").Inc()
	s.logger.Warn("Файл отсутствует на диске, запись удалена из реестра",
		slog.String("file_id", rec.ID),
		slog.String("filename", rec.DisplayName),
		slog.String("storage_key", rec.StorageKey),
		slog.Any("path", flow.Path()),
	)

	return &DownloadError{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf("Файл %s больше недоступен", rec.ID),
	}
}

// fail завершает выдачу с ошибкой ввода-вывода. Запись сохраняется.
func (s *DownloadService) fail(flow *retrieval.Flow, rec *model.FileRecord, err error) *DownloadError {
	s.step(flow, retrieval.StateFailed, rec.ID)

	middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
	s.logger.Error("Ошибка чтения файла",
		slog.String("file_id", rec.ID),
		slog.String("storage_key", rec.StorageKey),
		slog.Any("path", flow.Path()),
		slog.String("error", err.Error()),
	)

	return &DownloadError{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    "Ошибка чтения файла",
	}
}

// step выполняет переход автомата и учитывает его в метриках.
func (s *DownloadService) step(flow *retrieval.Flow, to retrieval.State, fileID string) {
	from := flow.Current()
	if err := flow.To(to); err != nil {
		s.logger.Error("Недопустимый переход автомата выдачи",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return
	}
	retrievalTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	if flow.Terminal() {
		s.logger.Debug("Выдача завершена",
			slog.String("file_id", fileID),
			slog.Any("path", flow.Path()),
		)
	}
}

// contentDisposition формирует заголовок attachment с исходным именем файла.
// Не-ASCII имена кодируются по RFC 2231 (filename*=utf-8''...).
func contentDisposition(rec *model.FileRecord) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": rec.SuggestedName()}); v != "" {
		return v
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": rec.ID})
}
