// Пакет events — рассылка событий об изменении списка файлов
// браузерам в локальной сети через WebSocket.
//
// Каждый клиент получает собственную очередь и горутину записи.
// Publish не блокируется: клиент с переполненной очередью отключается.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/lanshare/internal/domain/model"
)

// Type — тип события.
type Type string

const (
	// FileUploaded — файл загружен и доступен в списке
	FileUploaded Type = "file.uploaded"
	// FileRemoved — запись удалена из реестра (файл пропал с диска)
	FileRemoved Type = "file.removed"
)

const (
	// clientQueueSize — размер очереди сообщений одного клиента
	clientQueueSize = 16
	// writeWait — таймаут записи одного сообщения
	writeWait = 10 * time.Second
	// pongWait — время ожидания pong от клиента
	pongWait = 60 * time.Second
	// pingPeriod — период отправки ping (меньше pongWait)
	pingPeriod = pongWait * 9 / 10
)

var (
	// eventsClients — количество подключённых клиентов.
	eventsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lanshare_events_clients",
		Help: "Количество подключённых WebSocket-клиентов",
	})

	// eventsPublishedTotal — количество опубликованных событий по типу.
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanshare_events_published_total",
		Help: "Общее количество опубликованных событий",
	}, []string{"type"})

	// eventsDroppedClientsTotal — клиенты, отключённые из-за переполнения очереди.
	eventsDroppedClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanshare_events_dropped_clients_total",
		Help: "Количество клиентов, отключённых из-за медленного чтения",
	})
)

// Event — сообщение, отправляемое клиентам.
type Event struct {
	Type      Type           `json:"type"`
	File      model.FileView `json:"file"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher — получатель событий. Реализуется Hub.
type Publisher interface {
	Publish(eventType Type, file model.FileView)
}

// client — подключённый WebSocket-клиент.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub — реестр WebSocket-клиентов и рассылка событий.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub создаёт Hub. checkOrigin проверяет заголовок Origin при upgrade;
// nil разрешает любой origin.
func NewHub(checkOrigin func(origin string) bool, logger *slog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With(slog.String("component", "events")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Не-браузерные клиенты не передают Origin
			if origin == "" || checkOrigin == nil {
				return true
			}
			return checkOrigin(origin)
		},
	}
	return h
}

// ServeHTTP выполняет upgrade соединения и регистрирует клиента.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже записал ответ с ошибкой
		h.logger.Debug("Ошибка upgrade WebSocket",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientQueueSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	eventsClients.Inc()

	h.logger.Debug("WebSocket-клиент подключён", slog.String("remote_addr", r.RemoteAddr))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish рассылает событие всем клиентам. Не блокируется.
func (h *Hub) Publish(eventType Type, file model.FileView) {
	data, err := json.Marshal(Event{
		Type:      eventType,
		File:      file,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Ошибка сериализации события", slog.String("error", err.Error()))
		return
	}
	eventsPublishedTotal.WithLabelValues(string(eventType)).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			eventsDroppedClientsTotal.Inc()
			h.logger.Warn("WebSocket-клиент не успевает читать, отключение",
				slog.String("remote_addr", c.conn.RemoteAddr().String()),
			)
			h.dropLocked(c)
		}
	}
}

// ClientCount возвращает количество подключённых клиентов.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close отключает всех клиентов. Новые подключения после Close отклоняются.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// drop удаляет клиента из реестра. Идемпотентен.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked — drop под удерживаемым h.mu.
// Закрытие send завершает writeLoop, который закрывает соединение.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	eventsClients.Dec()
}

// writeLoop отправляет сообщения из очереди и периодический ping.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop читает входящие кадры (только control) до разрыва соединения.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
