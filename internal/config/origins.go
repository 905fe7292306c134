package config

import (
	"fmt"
	"net"

	"github.com/samber/lo"
)

// DetectLocalIP определяет адрес машины в локальной сети.
// UDP-"соединение" не отправляет пакетов, а только выбирает исходящий
// интерфейс. При ошибке возвращается 127.0.0.1.
func DetectLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// CORSOrigins формирует список разрешённых origins:
// http://localhost:<frontend>, http://<localIP>:<frontend> и LS_ALLOWED_ORIGINS.
// Дубликаты удаляются с сохранением порядка.
func (c *Config) CORSOrigins(localIP string) []string {
	origins := []string{
		fmt.Sprintf("http://localhost:%d", c.FrontendPort),
	}
	if localIP != "" {
		origins = append(origins, fmt.Sprintf("http://%s:%d", localIP, c.FrontendPort))
	}
	origins = append(origins, c.AllowedOrigins...)
	return lo.Uniq(origins)
}
