package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type WebSocketHandler struct {
	logger *slog.Logger
	hub    *OrderHub
}

func NewWebSocketHandler(logger *slog.Logger, hub *OrderHub) *WebSocketHandler {
	return &WebSocketHandler{
		logger: logger,
		hub:    hub,
	}
}

func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/orders", h.HandleConnection)
}

// HandleConnection streams order.created and order.status_changed events.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.hub.Upgrade(w, r)
	if err != nil {
		h.logger.Error("Error upgrading connection", "error", err)
		return
	}

	h.logger.Info("New order feed subscriber", "remote", conn.RemoteAddr().String())
	h.hub.Serve(conn)
	h.logger.Info("Order feed subscriber left", "remote", conn.RemoteAddr().String())
}
