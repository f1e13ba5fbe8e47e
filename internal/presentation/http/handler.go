// Package httppresentation is the JSON-over-HTTP surface of the storefront.
package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	domainPayment "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	maxBodyBytes         = 1 << 20
)

// Simulator lets a development deployment play the customer against the fake
// processor.
type Simulator interface {
	Settle(ref string, outcome domainPayment.Outcome, reason string) error
	Webhook(ref string) (payload []byte, header string, err error)
}

// Deps are the application entry points the handlers call.
type Deps struct {
	CreateOrder    application.UseCase[appOrder.CreateOrderInput, *appOrder.CreateOrderResult]
	UpdateStatus   application.UseCase[appOrder.UpdateStatusInput, *appOrder.UpdateStatusResult]
	Orders         *appOrder.Queries
	CreatePayment  application.UseCase[appPayment.CreatePaymentInput, *appPayment.CreatePaymentResult]
	ConfirmPayment application.UseCase[appPayment.ConfirmPaymentInput, *appPayment.Result]
	CollectCash    application.UseCase[appPayment.CollectCashInput, *appPayment.Result]
	Webhook        application.UseCase[appPayment.WebhookInput, *appPayment.WebhookResult]
	Payments       *appPayment.Queries
	Products       catalog.Reader

	// Currency labels rendered amounts.
	Currency string
	// Checks back /health; each must return within the request deadline.
	Checks map[string]func(context.Context) error
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Simulator mounts /dev routes when set.
	Simulator Simulator
}

type Handler struct {
	deps Deps
	log  observability.Logger
	tel  observability.Observability
}

func NewHandler(deps Deps, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	if logger == nil {
		logger = tel.Logger()
	}
	return &Handler{
		deps: deps,
		log:  logger.With(observability.F("component", componentHTTPHandler)),
		tel:  tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics)
	}

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.handleListProducts)
		r.Get("/{productID}", h.handleGetProduct)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handleCreateOrder)
		r.Get("/", h.handleListOrders)
		r.Get("/{orderID}", h.handleGetOrder)
		r.Patch("/{orderID}/status", h.handleUpdateStatus)
		r.Get("/{orderID}/payment", h.handleGetOrderPayment)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.handleCreatePayment)
		r.Get("/{paymentID}", h.handleGetPayment)
		r.Post("/{paymentID}/confirm", h.handleConfirmPayment)
	})

	r.Post("/admin/payments/{paymentID}/collect", h.handleCollectCash)
	r.Post("/webhooks/payments", h.handleWebhook)

	if h.deps.Simulator != nil {
		r.Post("/dev/intents/{ref}/settle", h.handleSimulateSettle)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

var errBodyInvalid = apperr.Validation("BODY_INVALID", "request body is not valid JSON for this endpoint")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, errBodyInvalid.Code, errBodyInvalid.Message, err)
	}
	if decoder.More() {
		return apperr.Validation(errBodyInvalid.Code, "request body holds more than one JSON value")
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "BODY_UNREADABLE", "request body could not be read", err)
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	Retryable bool               `json:"retryable,omitempty"`
	Lines     []apperr.LineError `json:"lines,omitempty"`
	Details   map[string]any     `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInsufficientStock, apperr.KindIdempotencyConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeAppError renders err in the shared error body. Internal errors never
// leak their cause to the client.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("INTERNAL", err)
	}
	if errors.Is(err, context.DeadlineExceeded) && e.Kind == apperr.KindInternal {
		e = apperr.Gateway("TIMEOUT", err)
	}
	if e.Kind == apperr.KindInternal {
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error",
			observability.F("route", routePattern(r)),
			observability.F("code", e.Code),
			observability.Err(err),
		)
	}
	writeJSON(w, statusFor(e.Kind), errorResponse{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Kind.Retryable(),
		Lines:     e.Lines,
		Details:   e.Details,
	})
}

func (h *Handler) handleSimulateSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
		Reason  string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	outcome := domainPayment.Outcome(req.Outcome)
	if outcome != domainPayment.OutcomeSucceeded && outcome != domainPayment.OutcomeFailed {
		writeError(w, http.StatusBadRequest, "OUTCOME_INVALID", fmt.Sprintf("outcome must be %q or %q",
			domainPayment.OutcomeSucceeded, domainPayment.OutcomeFailed))
		return
	}
	ref := chi.URLParam(r, "ref")
	if err := h.deps.Simulator.Settle(ref, outcome, req.Reason); err != nil {
		writeError(w, http.StatusConflict, "SETTLE_REJECTED", err.Error())
		return
	}
	payload, header, err := h.deps.Simulator.Webhook(ref)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payload":   string(payload),
		"signature": header,
	})
}
