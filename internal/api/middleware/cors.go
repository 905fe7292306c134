package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSOptions — параметры политики CORS.
type CORSOptions struct {
	// Origins — разрешённые origins (точное совпадение)
	Origins []string
	// AllowAny — разрешить любой origin
	AllowAny bool
}

// CORS возвращает middleware с политикой для браузерного интерфейса в LAN.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	origins := opts.Origins
	if opts.AllowAny {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Range", "If-None-Match"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", "ETag"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// OriginAllowed возвращает функцию проверки origin для WebSocket upgrade
// по той же политике, что и CORS.
func OriginAllowed(opts CORSOptions) func(origin string) bool {
	if opts.AllowAny {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(opts.Origins))
	for _, o := range opts.Origins {
		set[o] = struct{}{}
	}
	return func(origin string) bool {
		_, ok := set[origin]
		return ok
	}
}
