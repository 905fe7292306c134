// Пакет errors — конструкторы стандартных ошибок LANShare.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNoFiles             = "NO_FILES"
	CodeInvalidFileEntry    = "INVALID_FILE_ENTRY"
	CodeNotFound            = "NOT_FOUND"
	CodeRequestTooLarge     = "REQUEST_TOO_LARGE"
	CodeExtensionNotAllowed = "EXTENSION_NOT_ALLOWED"
	CodeWriteFailed         = "WRITE_FAILED"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeInternalError       = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NoFiles — 400 в запросе нет выбранных файлов.
func NoFiles(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeNoFiles, message)
}

// InvalidFileEntry — 400 структурно некорректная часть multipart.
func InvalidFileEntry(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidFileEntry, message)
}

// RequestTooLarge — 413 тело запроса превышает лимит.
func RequestTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, message)
}

// ExtensionNotAllowed — 400 расширение запрещено политикой.
func ExtensionNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeExtensionNotAllowed, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
