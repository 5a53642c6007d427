package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sand/whitetriangle/backend/internal/core/ports"
	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/support"
	"github.com/sand/whitetriangle/backend/internal/usecases"
)

var (
	_ ports.OrderService = (*usecases.OrderService)(nil)
	_ SupportService     = (*support.SupportService)(nil)
)

var errBadRequest = errors.New("malformed request body")

type HTTPHandler struct {
	logger         *slog.Logger
	orderService   ports.OrderService
	authService    ports.AuthService
	supportService SupportService
}

func NewHTTPHandler(logger *slog.Logger, orderService ports.OrderService, authService ports.AuthService, supportService SupportService) *HTTPHandler {
	return &HTTPHandler{
		logger:         logger,
		orderService:   orderService,
		authService:    authService,
		supportService: supportService,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")

	// Auth
	router.HandleFunc("/auth/login", h.Login).Methods("POST")
	router.HandleFunc("/auth/otp/start", h.StartOTPLogin).Methods("POST")
	router.HandleFunc("/auth/otp/verify", h.VerifyOTPLogin).Methods("POST")
	router.HandleFunc("/auth/logout", h.requireUser(h.Logout)).Methods("POST")

	// Account security
	router.HandleFunc("/me", h.requireUser(h.Me)).Methods("GET")
	router.HandleFunc("/me/2fa/toggle", h.requireUser(h.Toggle2FA)).Methods("POST")
	router.HandleFunc("/me/sessions/{sessionId}", h.requireUser(h.RevokeSession)).Methods("DELETE")

	// Orders. /orders/my must be registered before /orders/{orderId}.
	router.HandleFunc("/orders", h.ListOrders).Methods("GET")
	router.HandleFunc("/orders/my", h.requireUser(h.ListMyOrders)).Methods("GET")
	router.HandleFunc("/orders", h.requireUser(h.CreateOrder)).Methods("POST")
	router.HandleFunc("/orders/{orderId}", h.GetOrder).Methods("GET")
	router.HandleFunc("/orders/{orderId}/escrow", h.requireUser(h.LockEscrow)).Methods("POST")
	router.HandleFunc("/orders/{orderId}/cancel", h.requireUser(h.CancelOrder)).Methods("POST")

	// Admin
	router.HandleFunc("/admin/orders", h.requireAdmin(h.ListOrders)).Methods("GET")
	router.HandleFunc("/admin/orders/stats", h.requireAdmin(h.OrderStats)).Methods("GET")
	router.HandleFunc("/admin/orders/{orderId}/verify", h.requireAdmin(h.VerifyOrder)).Methods("POST")
	router.HandleFunc("/admin/orders/{orderId}/dispute", h.requireAdmin(h.DisputeOrder)).Methods("POST")

	// Support
	router.HandleFunc("/support/messages", h.identify(h.AskSupport)).Methods("POST")
	router.HandleFunc("/support/messages", h.identify(h.SupportHistory)).Methods("GET")
}

func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadRequest
	}
	return nil
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Error encoding response", "error", err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	writeJSON(h.logger, w, status, map[string]string{"error": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, usecases.ErrInvalidOrder),
		errors.Is(err, usecases.ErrInvalidEmail),
		errors.Is(err, usecases.ErrInvalidCode),
		errors.Is(err, support.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, usecases.ErrUnauthenticated),
		errors.Is(err, usecases.ErrInvalidToken),
		errors.Is(err, usecases.ErrSessionNotActive),
		errors.Is(err, usecases.ErrChallengeNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, usecases.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrOrderNotFound),
		errors.Is(err, entities.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrInvalidTransition),
		errors.Is(err, usecases.ErrEscrowLockInProgress),
		errors.Is(err, usecases.ErrCurrentSession),
		errors.Is(err, entities.ErrOrderExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
