package filename

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// DefaultAllowedExtensions — встроенный список расширений для режима
// LS_ALLOWED_EXTENSIONS=default.
var DefaultAllowedExtensions = []string{
	"txt", "pdf", "png", "jpg", "jpeg", "gif", "zip", "rar", "tar", "gz",
	"doc", "docx", "xls", "xlsx", "ppt", "pptx",
	"mp3", "wav", "ogg", "mp4", "mov", "avi", "mkv", "webm",
	"md", "csv", "json", "xml", "html", "css", "js", "ts",
	"py", "java", "c", "cpp", "cs", "go", "rb", "php", "swift", "kt",
	"log", "iso", "dmg", "exe", "apk", "ttf", "otf", "woff", "woff2",
}

// ExtensionPolicy решает, можно ли принять файл с данным расширением.
// ext — результат Extension (нижний регистр, без точки, может быть пустым).
type ExtensionPolicy interface {
	Allows(ext string) bool
	// Extensions возвращает отсортированный список разрешённых расширений
	// или nil, если фильтрация выключена.
	Extensions() []string
}

// AllowAll — политика по умолчанию: фильтрация выключена.
type AllowAll struct{}

// Allows всегда разрешает.
func (AllowAll) Allows(string) bool { return true }

// Extensions возвращает nil.
func (AllowAll) Extensions() []string { return nil }

// AllowList разрешает только перечисленные расширения.
// Файлы без расширения отклоняются.
type AllowList struct {
	set map[string]struct{}
}

// NewAllowList создаёт политику из списка расширений.
// Точки и регистр нормализуются: ".JPG" и "jpg" эквивалентны.
func NewAllowList(exts []string) *AllowList {
	normalized := lo.FilterMap(exts, func(e string, _ int) (string, bool) {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		return e, e != ""
	})
	return &AllowList{
		set: lo.SliceToMap(normalized, func(e string) (string, struct{}) {
			return e, struct{}{}
		}),
	}
}

// Allows проверяет расширение по списку.
func (a *AllowList) Allows(ext string) bool {
	if ext == "" {
		return false
	}
	_, ok := a.set[ext]
	return ok
}

// Extensions возвращает отсортированный список разрешённых расширений.
func (a *AllowList) Extensions() []string {
	exts := lo.Keys(a.set)
	sort.Strings(exts)
	return exts
}
