package httppresentation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	domainPayment "github.com/Zhima-Mochi/storefront/internal/domain/payment"
)

type createPaymentRequest struct {
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
	// Amount is a decimal string in major units, e.g. "20.00".
	Amount string `json:"amount"`
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	method, err := domainPayment.ParseMethod(req.Method)
	if err != nil {
		h.writeAppError(w, r, apperr.Validation("METHOD_INVALID", "method must be card or cod"))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.writeAppError(w, r, apperr.Validation("AMOUNT_INVALID", err.Error()))
		return
	}

	result, err := h.deps.CreatePayment.Execute(r.Context(), appPayment.CreatePaymentInput{
		Actor:   actorFrom(r),
		OrderID: req.OrderID,
		Method:  method,
		Amount:  amount,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, paymentFrom(result.Payment))
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Payments.Get(r.Context(), actorFrom(r), chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentFrom(p))
}

func (h *Handler) handleGetOrderPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Payments.GetByOrder(r.Context(), actorFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentFrom(p))
}

type settlementResponse struct {
	Payment     paymentResponse `json:"payment"`
	OrderStatus string          `json:"order_status,omitempty"`
	Changed     bool            `json:"changed"`
}

func settlementFrom(res *appPayment.Result) settlementResponse {
	out := settlementResponse{Payment: paymentFrom(res.Payment), Changed: res.Changed}
	if res.Order != nil {
		out.OrderStatus = string(res.Order.Status)
	}
	return out
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.ConfirmPayment.Execute(r.Context(), appPayment.ConfirmPaymentInput{
		Actor:     actorFrom(r),
		PaymentID: chi.URLParam(r, "paymentID"),
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementFrom(res))
}

type collectCashRequest struct {
	Collected bool   `json:"collected"`
	Reason    string `json:"reason"`
}

func (h *Handler) handleCollectCash(w http.ResponseWriter, r *http.Request) {
	var req collectCashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	res, err := h.deps.CollectCash.Execute(r.Context(), appPayment.CollectCashInput{
		Actor:     actorFrom(r),
		PaymentID: chi.URLParam(r, "paymentID"),
		Collected: req.Collected,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementFrom(res))
}
