// spool.go — буферизация файловых частей multipart до обработки запроса.
package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
)

// spoolPattern — шаблон имени временного файла буфера.
const spoolPattern = "lanshare-upload-*"

// spooledPart — прочитанная файловая часть: данные в памяти или во
// временном файле.
type spooledPart struct {
	filename    string
	contentType string
	data        []byte
	tmpPath     string
}

// spool читает часть целиком. Пока суммарный бюджет памяти *memLeft не
// исчерпан, данные остаются в памяти, иначе пишутся во временный файл.
// При ошибке после создания временного файла возвращается часть, которую
// нужно освободить.
func spool(p *multipart.Part, memLeft *int64) (*spooledPart, error) {
	sp := &spooledPart{
		filename:    p.FileName(),
		contentType: p.Header.Get("Content-Type"),
	}

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, p, *memLeft+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n <= *memLeft {
		*memLeft -= n
		sp.data = buf.Bytes()
		return sp, nil
	}

	tmp, err := os.CreateTemp("", spoolPattern)
	if err != nil {
		return nil, err
	}
	sp.tmpPath = tmp.Name()

	_, err = io.Copy(tmp, io.MultiReader(&buf, p))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	return sp, err
}

// open возвращает reader с содержимым части.
func (sp *spooledPart) open() (io.ReadCloser, error) {
	if sp.tmpPath == "" {
		return io.NopCloser(bytes.NewReader(sp.data)), nil
	}
	return os.Open(sp.tmpPath)
}

// release удаляет временный файл, если он был создан.
func (sp *spooledPart) release(logger *slog.Logger) {
	if sp.tmpPath == "" {
		return
	}
	if err := os.Remove(sp.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Ошибка удаления временного файла multipart", slog.String("error", err.Error()))
	}
}
