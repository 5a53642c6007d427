package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"

	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/usecases"
)

const filterAll = "ALL"

type createOrderRequest struct {
	Type     entities.OrderType `json:"type"`
	Amount   decimal.Decimal    `json:"amount"`
	Currency string             `json:"currency"`
	Price    decimal.Decimal    `json:"price"`
}

// parseOrderFilter reads ?type=&currency=&status=. Empty or ALL means no filter.
func parseOrderFilter(q url.Values) (entities.OrderFilter, error) {
	var filter entities.OrderFilter

	if v := filterValue(q, "type"); v != "" {
		t := entities.OrderType(v)
		if !t.Valid() {
			return filter, usecases.ErrInvalidOrder
		}
		filter.Type = &t
	}
	if v := filterValue(q, "currency"); v != "" {
		filter.Currency = pointy.String(v)
	}
	if v := filterValue(q, "status"); v != "" {
		s := entities.OrderStatus(v)
		if !s.Valid() {
			return filter, usecases.ErrInvalidOrder
		}
		filter.Status = &s
	}

	return filter, nil
}

func filterValue(q url.Values, key string) string {
	v := strings.ToUpper(strings.TrimSpace(q.Get(key)))
	if v == filterAll {
		return ""
	}
	return v
}

// ListOrders serves both the marketplace and the admin view.
func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	orders, err := h.orderService.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, orders)
}

// OrderStats feeds the admin dashboard counters.
func (h *HTTPHandler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orderService.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, stats)
}

// ListMyOrders is the dashboard view, scoped to the caller's orders.
func (h *HTTPHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.CreatorID = pointy.String(UserFromContext(r.Context()).ID)

	orders, err := h.orderService.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, orders)
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user := UserFromContext(r.Context())
	order, err := h.orderService.CreateOrder(r.Context(), user, entities.OrderType(strings.ToUpper(string(req.Type))), req.Amount, req.Currency, req.Price)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("[Create Order] Order created successfully", "order_id", order.ID, "user_id", user.ID)
	writeJSON(h.logger, w, http.StatusCreated, order)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, order)
}

// LockEscrow blocks for the simulated payment confirmation.
func (h *HTTPHandler) LockEscrow(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.LockEscrow(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, order)
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.CancelOrder(r.Context(), UserFromContext(r.Context()), mux.Vars(r)["orderId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, order)
}

func (h *HTTPHandler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.Verify(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, order)
}

func (h *HTTPHandler) DisputeOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.Dispute(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, order)
}
