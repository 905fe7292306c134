// Пакет filename — чистые функции работы с именами файлов:
// очистка клиентского имени, извлечение расширения и построение
// имени файла на диске (storage key).
package filename

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxNameBytes — предел длины очищенного имени в байтах.
const maxNameBytes = 200

// forbidden — символы, недопустимые в именах файлов на распространённых ФС.
const forbidden = `<>:"/\|?*`

// Sanitize очищает имя файла, присланное клиентом.
//
// Отбрасывает компоненты пути (и "/", и "\"), управляющие и
// невидимые форматирующие символы, символы из forbidden.
// Пробельные последовательности заменяются на "_", ведущие и
// завершающие "." и "_" удаляются, поэтому "..", ".env" и
// "../../etc/passwd" не могут выйти за пределы директории хранения.
//
// Пустой результат допустим: файл сохраняется под одним идентификатором.
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	// Только последний компонент пути
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			continue
		case strings.ContainsRune(forbidden, r):
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.Join(strings.Fields(b.String()), "_")
	cleaned = strings.Trim(cleaned, "._")

	return truncate(cleaned, maxNameBytes)
}

// Extension возвращает расширение имени в нижнем регистре без точки.
// Пустая строка, если точки нет или она последняя.
func Extension(displayName string) string {
	i := strings.LastIndex(displayName, ".")
	if i < 0 || i == len(displayName)-1 {
		return ""
	}
	return strings.ToLower(displayName[i+1:])
}

// StorageKey строит имя файла на диске: {id}.{ext} или {id}.
// Зависит только от идентификатора и расширения, поэтому два файла
// с одинаковыми именами никогда не конфликтуют на диске.
func StorageKey(id, displayName string) string {
	if ext := Extension(displayName); ext != "" {
		return id + "." + ext
	}
	return id
}

// truncate укорачивает имя до limit байт, сохраняя расширение
// и не разрезая многобайтовые символы.
func truncate(name string, limit int) string {
	if len(name) <= limit {
		return name
	}

	ext := ""
	if i := strings.LastIndex(name, "."); i > 0 && len(name)-i <= 16 {
		ext = name[i:]
		name = name[:i]
	}

	cut := limit - len(ext)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return strings.TrimRight(name[:cut], "._") + ext
}
