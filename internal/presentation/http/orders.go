package httppresentation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
)

const headerIdempotencyKey = "Idempotency-Key"

type createOrderRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	ShippingAddress *addressDTO `json:"shipping_address"`
	IdempotencyKey  string      `json:"idempotency_key"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get(headerIdempotencyKey)
	}

	items := make([]appOrder.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, appOrder.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	result, err := h.deps.CreateOrder.Execute(r.Context(), appOrder.CreateOrderInput{
		Actor:           actorFrom(r),
		Items:           items,
		ShippingAddress: req.ShippingAddress.domain(),
		IdempotencyKey:  key,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, orderFrom(result.Order, h.deps.Currency))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Orders.List(r.Context(), actorFrom(r))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderFrom(o, h.deps.Currency))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.deps.Orders.Get(r.Context(), actorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderFrom(o, h.deps.Currency))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	result, err := h.deps.UpdateStatus.Execute(r.Context(), appOrder.UpdateStatusInput{
		Actor:   actorFrom(r),
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":   orderFrom(result.Order, h.deps.Currency),
		"changed": result.Changed,
	})
}
