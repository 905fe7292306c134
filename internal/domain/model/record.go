// Пакет model — доменные модели LANShare.
// FileRecord — запись о файле в реестре, FileView — её публичное
// представление в JSON-ответах.
package model

import (
	"fmt"
	"time"
)

// DefaultContentType — MIME-тип, если клиент его не указал.
const DefaultContentType = "application/octet-stream"

// FileRecord — метаданные успешно сохранённого файла.
// Создаётся один раз после записи на диск и больше не изменяется.
type FileRecord struct {
	// ID — уникальный идентификатор (UUID v4), внешний ключ для скачивания
	ID string

	// DisplayName — очищенное имя файла от клиента.
	// Может быть пустым, если после очистки ничего не осталось.
	DisplayName string

	// StorageKey — имя файла на диске: {id}.{ext} или {id}.
	// Никогда не отдаётся клиенту.
	StorageKey string

	// SizeBytes — фактический размер после записи (stat), а не заявленный клиентом
	SizeBytes int64

	// SizeDisplay — человекочитаемый размер, производное от SizeBytes
	SizeDisplay string

	// ContentType — MIME-тип файла
	ContentType string

	// UploadedAt — момент приёма записи (UTC)
	UploadedAt time.Time

	// UploaderAddress — сетевой адрес загрузившего клиента
	UploaderAddress string

	// Checksum — SHA-256 содержимого, используется как ETag
	Checksum string
}

// SuggestedName возвращает имя для Content-Disposition.
// Для файлов без имени используется идентификатор.
func (r *FileRecord) SuggestedName() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.ID
}

// FileView — публичное представление записи.
// Набор полей фиксирован контрактом API; StorageKey и Checksum не входят.
type FileView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Size       string `json:"size"`
	RawSize    int64  `json:"rawSize"`
	Type       string `json:"type"`
	UploadedAt string `json:"uploadedAt"`
	Uploader   string `json:"uploader"`
}

// View преобразует запись в публичное представление.
func (r *FileRecord) View() FileView {
	return FileView{
		ID:         r.ID,
		Name:       r.DisplayName,
		Size:       r.SizeDisplay,
		RawSize:    r.SizeBytes,
		Type:       r.ContentType,
		UploadedAt: r.UploadedAt.UTC().Format(time.RFC3339Nano),
		Uploader:   r.UploaderAddress,
	}
}

// sizeUnits — единицы с двоичным множителем 1024.
var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize форматирует размер в байтах: "0 B", "512.00 B", "1.50 KB".
// Старшая единица — TB, большие значения остаются в TB.
func FormatSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}

	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}
