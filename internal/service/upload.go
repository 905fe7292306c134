// Пакет service — бизнес-логика LANShare.
// upload.go — сервис приёма одного файла: очистка имени, политика
// расширений, запись на диск, регистрация в реестре.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/lanshare/internal/api/errors"
	"github.com/bigkaa/lanshare/internal/api/middleware"
	"github.com/bigkaa/lanshare/internal/domain/filename"
	"github.com/bigkaa/lanshare/internal/domain/model"
	"github.com/bigkaa/lanshare/internal/events"
	"github.com/bigkaa/lanshare/internal/storage/filestore"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

// sniffLimit — сколько байт начала файла читается для определения MIME.
const sniffLimit = 3072

// maxIDAttempts — попытки сгенерировать свободный идентификатор.
const maxIDAttempts = 3

// UploadParams — параметры загрузки одного файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Filename — имя файла, как его прислал клиент
	Filename string
	// ContentType — MIME-тип из заголовка части multipart
	ContentType string
	// UploaderAddress — адрес клиента
	UploaderAddress string
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	store     *filestore.FileStore
	reg       *registry.Registry
	policy    filename.ExtensionPolicy
	publisher events.Publisher
	sniff     bool
	logger    *slog.Logger

	// newID и now подменяются в тестах
	newID func() string
	now   func() time.Time
}

// NewUploadService создаёт сервис загрузки файлов.
// sniff включает определение MIME-типа по содержимому, если клиент его не указал.
func NewUploadService(
	store *filestore.FileStore,
	reg *registry.Registry,
	policy filename.ExtensionPolicy,
	publisher events.Publisher,
	sniff bool,
	logger *slog.Logger,
) *UploadService {
	if policy == nil {
		policy = filename.AllowAll{}
	}
	return &UploadService{
		store:     store,
		reg:       reg,
		policy:    policy,
		publisher: publisher,
		sniff:     sniff,
		logger:    logger.With(slog.String("component", "upload_service")),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Upload принимает один файл.
//
// Поток:
//  1. Очистка имени и проверка расширения
//  2. Генерация ID и ключа хранения
//  3. Запись на диск (temp → fsync → rename)
//  4. stat итогового файла
//  5. Запись в реестр и событие file.uploaded
//
// Запись в реестр появляется только после успешной записи на диск.
// При ошибке на шагах 3-4 файл удаляется, запись не создаётся.
func (s *UploadService) Upload(params UploadParams) (*model.FileRecord, *UploadError) {
	// 1. Имя и политика расширений
	displayName := filename.Sanitize(params.Filename)
	ext := filename.Extension(displayName)
	if !s.policy.Allows(ext) {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		s.logger.Info("Расширение файла запрещено",
			slog.String("filename", displayName),
			slog.String("extension", ext),
		)
		return nil, &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeExtensionNotAllowed,
			Message:    fmt.Sprintf("Тип файла %q не разрешён", ext),
		}
	}

	contentType, reader := s.contentType(params.ContentType, params.Reader)

	// 2-3. ID, ключ хранения, запись
	var (
		id    string
		saved *filestore.SaveResult
		err   error
	)
	for i := 0; i < maxIDAttempts; i++ {
		id = s.newID()
		saved, err = s.store.Save(reader, filename.StorageKey(id, displayName))
		if !errors.Is(err, filestore.ErrExists) {
			break
		}
		s.logger.Warn("Ключ хранения занят, повторная генерация ID", slog.String("file_id", id))
	}
	if err != nil {
		return nil, s.writeFailed(id, displayName, err)
	}

	// 4. Размер берётся с диска, а не из заявленного клиентом
	info, err := s.store.Stat(saved.StorageKey)
	if err == nil && info.Size() != saved.Written {
		err = fmt.Errorf("размер на диске %d не совпадает с записанным %d", info.Size(), saved.Written)
	}
	if err != nil {
		_ = s.store.Remove(saved.StorageKey)
		return nil, s.writeFailed(id, displayName, err)
	}

	// 5. Запись в реестр
	rec := &model.FileRecord{
		ID:              id,
		DisplayName:     displayName,
		StorageKey:      saved.StorageKey,
		SizeBytes:       info.Size(),
		SizeDisplay:     model.FormatSize(info.Size()),
		ContentType:     contentType,
		UploadedAt:      s.now(),
		UploaderAddress: params.UploaderAddress,
		Checksum:        saved.Checksum,
	}
	s.reg.Insert(rec)

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	syncRegistryGauges(s.reg)
	if s.publisher != nil {
		s.publisher.Publish(events.FileUploaded, rec.View())
	}

	s.logger.Info("Файл загружен",
		slog.String("file_id", id),
		slog.String("filename", displayName),
		slog.Int64("size", rec.SizeBytes),
		slog.String("content_type", contentType),
		slog.String("checksum", rec.Checksum),
		slog.String("uploader", params.UploaderAddress),
	)

	return rec, nil
}

// writeFailed логирует ошибку записи и формирует ответ без путей файловой системы.
func (s *UploadService) writeFailed(id, displayName string, err error) *UploadError {
	middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
	s.logger.Error("Ошибка сохранения файла",
		slog.String("file_id", id),
		slog.String("filename", displayName),
		slog.String("error", err.Error()),
	)
	return &UploadError{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeWriteFailed,
		Message:    "Ошибка сохранения файла на диск",
	}
}

// contentType определяет MIME-тип файла.
// Заявленный клиентом тип используется без параметров. Если тип не указан
// (или указан application/octet-stream) и включено определение по содержимому,
// читается начало потока; возвращается reader, отдающий поток целиком.
func (s *UploadService) contentType(declared string, r io.Reader) (string, io.Reader) {
	ct := detectContentType(declared)
	if !s.sniff || ct != model.DefaultContentType {
		return ct, r
	}

	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(r, head)
	head = head[:n]
	rest := io.MultiReader(bytes.NewReader(head), r)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		// Ошибка чтения проявится при записи
		return ct, io.MultiReader(bytes.NewReader(head), &errReader{err: err})
	}
	if n == 0 {
		return ct, rest
	}

	detected := mimetype.Detect(head)
	if mt, _, perr := mime.ParseMediaType(detected.String()); perr == nil {
		return mt, rest
	}
	return ct, rest
}

// errReader возвращает сохранённую ошибку чтения.
type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}

// detectContentType нормализует Content-Type из заголовка части multipart.
// Если не указан или некорректен — используется application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return model.DefaultContentType
	}
	// Убираем параметры (charset и т.д.)
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return model.DefaultContentType
	}
	return mt
}

// syncRegistryGauges обновляет gauge-метрики по состоянию реестра.
func syncRegistryGauges(reg *registry.Registry) {
	middleware.FilesTotal.Set(float64(reg.Count()))
	middleware.StoredBytes.Set(float64(reg.TotalBytes()))
}
