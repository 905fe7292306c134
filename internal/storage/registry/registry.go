// Пакет registry — потокобезопасный in-memory реестр записей о файлах.
//
// Реестр — единственное разделяемое изменяемое состояние сервиса.
// Не персистентный: при рестарте процесса записи теряются, файлы на
// диске остаются (их подхватывает reconciliation как orphaned).
//
// Экземпляр создаётся явно и передаётся по ссылке, глобального
// состояния нет.
package registry

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/bigkaa/lanshare/internal/domain/model"
)

// Registry — реестр записей о файлах.
// Использует sync.RWMutex: чтения выполняются параллельно,
// Insert/Remove — эксклюзивно.
type Registry struct {
	mu      sync.RWMutex
	records []*model.FileRecord // в порядке вставки
	logger  *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		records: make([]*model.FileRecord, 0),
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Insert добавляет запись. Уникальность ID не проверяется —
// вызывающий код обязан передать уже уникальный идентификатор.
func (r *Registry) Insert(rec *model.FileRecord) {
	// Копия, чтобы внешние изменения не влияли на реестр
	copied := *rec

	r.mu.Lock()
	r.records = append(r.records, &copied)
	total := len(r.records)
	r.mu.Unlock()

	r.logger.Debug("Запись добавлена",
		slog.String("file_id", rec.ID),
		slog.Int("total", total),
	)
}

// List возвращает копии всех записей, отсортированные по UploadedAt
// (новые первые). Сортировка стабильная: записи с одинаковым временем
// остаются в порядке вставки.
func (r *Registry) List() []*model.FileRecord {
	r.mu.RLock()
	result := make([]*model.FileRecord, len(r.records))
	for i, rec := range r.records {
		copied := *rec
		result[i] = &copied
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UploadedAt.After(result[j].UploadedAt)
	})
	return result
}

// FindByID возвращает копию записи по ID.
// Линейный поиск: реестр рассчитан на сотни-тысячи записей.
func (r *Registry) FindByID(id string) (*model.FileRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.ID == id {
			copied := *rec
			return &copied, true
		}
	}
	return nil, false
}

// Remove удаляет запись по ID. Идемпотентна: удаление отсутствующей
// записи — не ошибка. Возвращает true, если запись была удалена.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, rec := range r.records {
		if rec.ID == id {
			r.records = slices.Delete(r.records, i, i+1)
			return true
		}
	}
	return false
}

// Count возвращает количество записей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// TotalBytes возвращает суммарный размер всех файлов в реестре.
func (r *Registry) TotalBytes() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, rec := range r.records {
		total += rec.SizeBytes
	}
	return total
}

// StorageKeys возвращает множество storage key всех записей.
// Используется reconciliation и GC для поиска orphaned-файлов.
func (r *Registry) StorageKeys() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make(map[string]struct{}, len(r.records))
	for _, rec := range r.records {
		keys[rec.StorageKey] = struct{}{}
	}
	return keys
}
