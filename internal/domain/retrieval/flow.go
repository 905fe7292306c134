// Пакет retrieval — конечный автомат выдачи файла по идентификатору.
//
// Каждый запрос на скачивание проходит один из путей:
//   - lookup → absent                       (записи нет, 404)
//   - lookup → found → verified → served    (файл отдан)
//   - lookup → found → missing → removed    (файла нет на диске: запись удаляется, 404)
//   - lookup → found → failed               (ошибка ввода-вывода, 500, запись сохраняется)
//   - lookup → found → verified → failed    (ошибка после открытия)
//
// Самовосстановление реестра (missing → removed) — часть контракта,
// а не побочный эффект обработки ошибки.
package retrieval

import (
	"fmt"
)

// State — состояние выдачи файла.
type State string

const (
	// StateLookup — начальное состояние, поиск записи в реестре
	StateLookup State = "lookup"
	// StateAbsent — записи с таким ID нет
	StateAbsent State = "absent"
	// StateFound — запись найдена, файл ещё не открыт
	StateFound State = "found"
	// StateVerified — файл открыт и готов к отдаче
	StateVerified State = "verified"
	// StateServed — файл отдан клиенту
	StateServed State = "served"
	// StateMissing — запись есть, файла на диске нет
	StateMissing State = "missing"
	// StateRemoved — устаревшая запись удалена из реестра
	StateRemoved State = "removed"
	// StateFailed — ошибка ввода-вывода, запись не тронута
	StateFailed State = "failed"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateLookup:   {StateAbsent: true, StateFound: true},
	StateFound:    {StateVerified: true, StateMissing: true, StateFailed: true},
	StateVerified: {StateServed: true, StateFailed: true},
	StateMissing:  {StateRemoved: true},
	StateAbsent:   {},
	StateServed:   {},
	StateRemoved:  {},
	StateFailed:   {},
}

// Flow — автомат одного запроса. Не разделяется между горутинами.
type Flow struct {
	current State
	path    []State
}

// Start создаёт автомат в состоянии lookup.
func Start() *Flow {
	return &Flow{
		current: StateLookup,
		path:    []State{StateLookup},
	}
}

// Current возвращает текущее состояние.
func (f *Flow) Current() State {
	return f.current
}

// To выполняет переход. Недопустимый переход возвращает *TransitionError
// и не меняет состояние.
func (f *Flow) To(target State) error {
	if !validTransitions[f.current][target] {
		return &TransitionError{
			From: f.current,
			To:   target,
		}
	}

	f.current = target
	f.path = append(f.path, target)
	return nil
}

// Path возвращает пройденные состояния (копия).
func (f *Flow) Path() []State {
	result := make([]State, len(f.path))
	copy(result, f.path)
	return result
}

// Terminal возвращает true, если автомат в конечном состоянии.
func (f *Flow) Terminal() bool {
	return IsTerminal(f.current)
}

// IsTerminal проверяет, что из состояния нет переходов.
func IsTerminal(s State) bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}

// TransitionError — недопустимый переход.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: переход %s → %s недопустим", e.From, e.To)
}
