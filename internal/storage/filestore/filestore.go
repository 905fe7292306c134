// Пакет filestore — операции с физическими файлами в директории хранения.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// чтение, удаление и обход директории.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TmpSuffix — суффикс временных файлов, которые ещё пишутся.
const TmpSuffix = ".tmp"

var (
	// ErrNotFound — файл отсутствует на диске.
	ErrNotFound = errors.New("файл не найден")
	// ErrExists — файл с таким ключом уже существует.
	ErrExists = errors.New("файл уже существует")
	// ErrInvalidKey — ключ содержит разделители пути или пуст.
	ErrInvalidKey = errors.New("некорректный ключ хранения")
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// dir — корневая директория хранения (LS_STORAGE_DIR)
	dir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StorageKey — имя файла в директории хранения
	StorageKey string
	// Written — количество байт, переданных в файл
	Written int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// Entry — файл в директории хранения (для reconciliation и GC).
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	// Temp — незавершённая запись (*.tmp)
	Temp bool
}

// New создаёт FileStore. Создаёт директорию, если её нет.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранения %s: %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// Save записывает данные из reader в файл storageKey с подсчётом SHA-256.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → rename.
// При любой ошибке temp файл удаляется, поэтому частично записанные
// данные не остаются на диске.
func (s *FileStore) Save(reader io.Reader, storageKey string) (*SaveResult, error) {
	fullPath, err := s.path(storageKey)
	if err != nil {
		return nil, err
	}
	tmpPath := fullPath + TmpSuffix

	if _, err := os.Lstat(fullPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, storageKey)
	}

	// O_EXCL: параллельная запись того же ключа невозможна
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, storageKey)
		}
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	hasher := sha256.New()
	written, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StorageKey: storageKey,
		Written:    written,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
// Если файла нет, ошибка оборачивает ErrNotFound.
func (s *FileStore) Open(storageKey string) (*os.File, error) {
	fullPath, err := s.path(storageKey)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storageKey)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storageKey, err)
	}

	return f, nil
}

// Stat возвращает информацию о файле.
// Если файла нет, ошибка оборачивает ErrNotFound.
func (s *FileStore) Stat(storageKey string) (fs.FileInfo, error) {
	fullPath, err := s.path(storageKey)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storageKey)
		}
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", storageKey, err)
	}
	return info, nil
}

// Remove удаляет файл. Возвращает nil, если файла уже нет.
func (s *FileStore) Remove(name string) error {
	fullPath, err := s.path(name)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", name, err)
	}
	return nil
}

// List возвращает обычные файлы директории хранения.
// Скрытые файлы (служебные, например .health_check) пропускаются.
func (s *FileStore) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}

		info, err := de.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}

		entries = append(entries, Entry{
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Temp:    strings.HasSuffix(name, TmpSuffix),
		})
	}
	return entries, nil
}

// Dir возвращает путь к директории хранения.
func (s *FileStore) Dir() string {
	return s.dir
}

// path строит полный путь и отвергает ключи, выходящие за пределы директории.
func (s *FileStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	return filepath.Join(s.dir, name), nil
}
