package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sand/whitetriangle/backend/internal/core/ports"
	"github.com/sand/whitetriangle/backend/internal/entities"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberSend = 16
)

var _ ports.OrderEventPublisher = (*OrderHub)(nil)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// OrderHub fans order events out to WebSocket subscribers. A subscriber whose
// buffer is full is dropped instead of blocking the publisher.
type OrderHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

func NewOrderHub(logger *slog.Logger) *OrderHub {
	return &OrderHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

func (h *OrderHub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

// Publish implements ports.OrderEventPublisher.
func (h *OrderHub) Publish(event entities.OrderEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Error encoding order event", "error", err, "order_id", event.Order.ID)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subscribers {
		select {
		case s.send <- payload:
		default:
			h.logger.Warn("Dropping slow order feed subscriber", "remote", s.conn.RemoteAddr().String())
			h.removeLocked(s)
		}
	}
}

func (h *OrderHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Serve registers conn and blocks until the client goes away.
func (h *OrderHub) Serve(conn *websocket.Conn) {
	s := &subscriber{conn: conn, send: make(chan []byte, subscriberSend)}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()

	go h.writePump(s)
	h.readPump(s)
}

// Close disconnects every subscriber.
func (h *OrderHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subscribers {
		h.removeLocked(s)
	}
}

func (h *OrderHub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *OrderHub) removeLocked(s *subscriber) {
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.send)
}

// readPump discards client messages; it only exists to notice disconnects and pongs.
func (h *OrderHub) readPump(s *subscriber) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket connection closed", "error", err)
			}
			return
		}
	}
}

func (h *OrderHub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("Order feed write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
