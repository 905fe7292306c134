// files.go — HTTP handlers для файловых операций LANShare.
// Upload, List, Download.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	apierrors "github.com/bigkaa/lanshare/internal/api/errors"
	"github.com/bigkaa/lanshare/internal/domain/model"
	"github.com/bigkaa/lanshare/internal/service"
	"github.com/bigkaa/lanshare/internal/storage/registry"
)

// filesField — имя поля multipart с файлами.
const filesField = "files"

// FilesOptions — ограничения обработки запросов.
type FilesOptions struct {
	// MaxRequestSize — потолок размера тела запроса загрузки
	MaxRequestSize int64
	// MultipartMemory — объём multipart-данных в памяти
	MultipartMemory int64
	// TrustProxy — брать адрес клиента из X-Forwarded-For
	TrustProxy bool
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	reg         *registry.Registry
	opts        FilesOptions
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	reg *registry.Registry,
	opts FilesOptions,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		reg:         reg,
		opts:        opts,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// uploadFailure — файл, который не удалось принять.
type uploadFailure struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// uploadResponse — ответ на успешную (хотя бы частично) загрузку.
type uploadResponse struct {
	Message string           `json:"message"`
	Files   []model.FileView `json:"files"`
	Failed  []uploadFailure  `json:"failed,omitempty"`
}

// Upload обрабатывает POST /api/upload.
// Multipart form: одна или несколько частей files.
//
// Части читаются потоково (MultipartReader), поэтому единственное
// ограничение на запрос — LS_MAX_REQUEST_SIZE; число частей не ограничено.
// Каждый файл обрабатывается независимо: ответ 201 содержит принятые
// файлы и, если были, отклонённые. Если не принят ни один файл — 400
// (только отказы политики) или 500 (была ошибка записи).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.opts.MaxRequestSize {
		h.tooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxRequestSize)

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается тело multipart/form-data")
		return
	}

	parts, unnamed, err := h.spoolParts(mr)
	// Буферы частей освобождаются после обработки запроса
	defer func() {
		for _, sp := range parts {
			sp.release(h.logger)
		}
	}()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(w)
			return
		}
		h.logger.Warn("Некорректное тело multipart", slog.String("error", err.Error()))
		apierrors.ValidationError(w, "Некорректное тело multipart/form-data")
		return
	}

	switch {
	case len(parts) == 0 && unnamed == 0:
		apierrors.NoFiles(w, "В запросе нет части files")
		return
	case len(parts) == 0:
		apierrors.NoFiles(w, "Файлы не выбраны")
		return
	case unnamed > 0:
		apierrors.InvalidFileEntry(w, "Часть files без имени файла")
		return
	}

	uploader := clientAddress(r, h.opts.TrustProxy)

	var (
		accepted    []model.FileView
		failed      []uploadFailure
		writeFailed bool
	)
	for _, sp := range parts {
		rec, uerr := h.uploadOne(sp, uploader)
		if uerr != nil {
			failed = append(failed, uploadFailure{Name: sp.filename, Code: uerr.Code, Message: uerr.Message})
			if uerr.StatusCode >= http.StatusInternalServerError {
				writeFailed = true
			}
			continue
		}
		accepted = append(accepted, rec.View())
	}

	if len(accepted) == 0 {
		if writeFailed {
			apierrors.InternalError(w, "Не удалось сохранить файлы")
			return
		}
		apierrors.ExtensionNotAllowed(w, "Тип файлов не разрешён: "+
			strings.Join(lo.Map(failed, func(f uploadFailure, _ int) string { return f.Name }), ", "))
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Message: fmt.Sprintf("%d file(s) uploaded successfully", len(accepted)),
		Files:   accepted,
		Failed:  failed,
	})
}

// tooLarge отвечает 413 REQUEST_TOO_LARGE.
func (h *FilesHandler) tooLarge(w http.ResponseWriter) {
	apierrors.RequestTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %d байт", h.opts.MaxRequestSize))
}

// spoolParts читает все части запроса. Части files с именем файла
// буферизуются (в памяти до MultipartMemory суммарно, дальше — во
// временных файлах), части files без имени только подсчитываются,
// остальные поля пропускаются.
// Уже прочитанные части возвращаются и при ошибке: их нужно освободить.
func (h *FilesHandler) spoolParts(mr *multipart.Reader) ([]*spooledPart, int, error) {
	var (
		parts   []*spooledPart
		unnamed int
	)
	memLeft := h.opts.MultipartMemory

	for {
		p, err := mr.NextPart()
		if err == io.EOF { //nolint:errorlint // обрыв тела NextPart оборачивает io.EOF
			return parts, unnamed, nil
		}
		if err != nil {
			return parts, unnamed, err
		}

		if p.FormName() != filesField {
			_, err = io.Copy(io.Discard, p)
		} else if p.FileName() == "" {
			unnamed++
			_, err = io.Copy(io.Discard, p)
		} else {
			var sp *spooledPart
			sp, err = spool(p, &memLeft)
			if sp != nil {
				parts = append(parts, sp)
			}
		}
		p.Close()
		if err != nil {
			return parts, unnamed, err
		}
	}
}

// uploadOne передаёт буферизованную часть в UploadService.
func (h *FilesHandler) uploadOne(sp *spooledPart, uploader string) (*model.FileRecord, *service.UploadError) {
	file, err := sp.open()
	if err != nil {
		h.logger.Error("Ошибка открытия буфера части multipart",
			slog.String("filename", sp.filename),
			slog.String("error", err.Error()),
		)
		return nil, &service.UploadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeWriteFailed,
			Message:    "Ошибка чтения загруженных данных",
		}
	}
	defer file.Close()

	return h.uploadSvc.Upload(service.UploadParams{
		Reader:          file,
		Filename:        sp.filename,
		ContentType:     sp.contentType,
		UploaderAddress: uploader,
	})
}

// List обрабатывает GET /api/files.
// Возвращает все записи, новые первыми.
func (h *FilesHandler) List(w http.ResponseWriter, _ *http.Request) {
	views := lo.Map(h.reg.List(), func(rec *model.FileRecord, _ int) model.FileView {
		return rec.View()
	})
	writeJSON(w, http.StatusOK, views)
}

// Download обрабатывает GET /api/download/{id}.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")
	if derr := h.downloadSvc.Serve(w, r, fileID); derr != nil {
		apierrors.WriteError(w, derr.StatusCode, derr.Code, derr.Message)
	}
}

// clientAddress возвращает адрес клиента: первый адрес X-Forwarded-For
// при trustProxy, иначе host из RemoteAddr.
func clientAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
