package httppresentation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	appInventory "github.com/Zhima-Mochi/storefront/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/fake"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/signature"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	httppresentation "github.com/Zhima-Mochi/storefront/internal/presentation/http"
)

const webhookSecret = "whsec_http"

type HandlerSuite struct {
	suite.Suite

	products *memory.ProductRepository
	gateway  *fake.Gateway
	checkErr error
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.products = memory.NewProductRepository(
		catalog.Product{ID: "widget", Name: "Widget", UnitPrice: 1000, Stock: 10},
		catalog.Product{ID: "gadget", Name: "Gadget", UnitPrice: 2500, Stock: 1},
	)
	s.gateway = fake.New(webhookSecret)
	s.checkErr = nil

	orders := memory.NewOrderRepository()
	payments := memory.NewPaymentRepository()
	gw := gateway.Instrument(s.gateway, "fake", nil)
	restock := appInventory.NewRestockOnCancelUseCase(s.products, true, nil)
	reconciler := appPayment.NewReconciler(payments, orders, gw, restock, nil, nil)

	deps := httppresentation.Deps{
		CreateOrder:  appOrder.NewCreateOrderUseCase(orders, s.products, s.products, id.NewPrefixed("ord_"), nil, nil),
		UpdateStatus: appOrder.NewUpdateStatusUseCase(orders, restock, nil, nil),
		Orders:       appOrder.NewQueries(orders, nil),
		CreatePayment: appPayment.NewCreatePaymentUseCase(payments, orders, gw, id.NewPrefixed("pay_"),
			appPayment.Settings{Currency: "usd", GatewayTimeout: time.Second}, nil),
		ConfirmPayment: appPayment.NewConfirmPaymentUseCase(payments, gw, reconciler, time.Second, nil),
		CollectCash:    appPayment.NewCollectCashUseCase(payments, reconciler, nil),
		Webhook: appPayment.NewWebhookUseCase(fake.NewVerifier(webhookSecret, signature.DefaultTolerance),
			payments, reconciler, memory.NewDeliveryStore(time.Hour), nil),
		Payments: appPayment.NewQueries(payments, orders, nil),
		Products: s.products,
		Currency: "usd",
		Checks: map[string]func(context.Context) error{
			"store": func(context.Context) error { return s.checkErr },
		},
		Simulator: s.gateway,
	}
	s.router = httppresentation.NewHandler(deps, nil, nil).Router()
}

type response struct {
	status int
	header http.Header
	body   map[string]any
}

func (s *HandlerSuite) do(method, path string, body any, headers map[string]string) response {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		s.Require().NoError(json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	out := response{status: rec.Code, header: rec.Header()}
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out.body), rec.Body.String())
	}
	return out
}

func as(user string) map[string]string { return map[string]string{"X-User-ID": user} }

func asAdmin() map[string]string {
	return map[string]string{"X-User-ID": "ops", "X-User-Role": "Admin"}
}

func (s *HandlerSuite) placeOrder(user string, items ...map[string]any) map[string]any {
	res := s.do(http.MethodPost, "/orders", map[string]any{"items": items}, as(user))
	s.Require().Equal(http.StatusCreated, res.status, res.body)
	return res.body
}

func item(productID string, qty int) map[string]any {
	return map[string]any{"product_id": productID, "quantity": qty}
}

func (s *HandlerSuite) TestCardCheckout() {
	order := s.placeOrder("alice", item("widget", 2))
	orderID := order["id"].(string)
	s.Equal("pending", order["status"])
	s.Equal("20.00", order["total"].(map[string]any)["amount"])

	res := s.do(http.MethodPost, "/payments", map[string]any{"order_id": orderID, "method": "card", "amount": "20.00"}, as("alice"))
	s.Require().Equal(http.StatusCreated, res.status, res.body)
	paymentID := res.body["id"].(string)
	ref := res.body["transaction_ref"].(string)
	s.Equal("pending", res.body["status"])
	s.NotEmpty(res.body["client_secret"])

	settled := s.do(http.MethodPost, "/dev/intents/"+ref+"/settle", map[string]any{"outcome": "succeeded"}, nil)
	s.Require().Equal(http.StatusOK, settled.status, settled.body)
	payload := settled.body["payload"].(string)
	sigHeader := map[string]string{"X-Signature": settled.body["signature"].(string)}

	hook := s.do(http.MethodPost, "/webhooks/payments", payload, sigHeader)
	s.Require().Equal(http.StatusOK, hook.status, hook.body)
	s.Equal(true, hook.body["received"])
	s.Equal(true, hook.body["changed"])

	again := s.do(http.MethodPost, "/webhooks/payments", payload, sigHeader)
	s.Require().Equal(http.StatusOK, again.status)
	s.Equal(true, again.body["duplicate"])
	s.Equal(false, again.body["changed"])

	got := s.do(http.MethodGet, "/orders/"+orderID, nil, as("alice"))
	s.Equal("processing", got.body["status"])

	confirm := s.do(http.MethodPost, "/payments/"+paymentID+"/confirm", nil, as("alice"))
	s.Require().Equal(http.StatusOK, confirm.status, confirm.body)
	s.Equal(false, confirm.body["changed"])
	s.Equal("processing", confirm.body["order_status"])
	s.Equal("completed", confirm.body["payment"].(map[string]any)["status"])

	byOrder := s.do(http.MethodGet, "/orders/"+orderID+"/payment", nil, as("alice"))
	s.Equal(paymentID, byOrder.body["id"])
	s.NotEmpty(byOrder.body["paid_at"])
}

func (s *HandlerSuite) TestCardDeclined() {
	order := s.placeOrder("alice", item("widget", 1))
	res := s.do(http.MethodPost, "/payments", map[string]any{"order_id": order["id"], "method": "stripe", "amount": "10"}, as("alice"))
	s.Require().Equal(http.StatusCreated, res.status, res.body)
	ref := res.body["transaction_ref"].(string)

	settled := s.do(http.MethodPost, "/dev/intents/"+ref+"/settle", map[string]any{"outcome": "failed", "reason": "card_declined"}, nil)
	s.Require().Equal(http.StatusOK, settled.status)
	hook := s.do(http.MethodPost, "/webhooks/payments", settled.body["payload"].(string),
		map[string]string{"Stripe-Signature": settled.body["signature"].(string)})
	s.Require().Equal(http.StatusOK, hook.status, hook.body)

	got := s.do(http.MethodGet, "/payments/"+res.body["id"].(string), nil, as("alice"))
	s.Equal("failed", got.body["status"])
	s.Equal("card_declined", got.body["failure_reason"])

	o := s.do(http.MethodGet, "/orders/"+order["id"].(string), nil, as("alice"))
	s.Equal("cancelled", o.body["status"])

	p, err := s.products.Get(context.Background(), "widget")
	s.Require().NoError(err)
	s.Equal(10, p.Stock)

	conflict := s.do(http.MethodPost, "/dev/intents/"+ref+"/settle", map[string]any{"outcome": "succeeded"}, nil)
	s.Equal(http.StatusConflict, conflict.status)
	s.Equal("SETTLE_REJECTED", conflict.body["code"])
}

func (s *HandlerSuite) TestCashOnDelivery() {
	order := s.placeOrder("alice", item("gadget", 1))
	res := s.do(http.MethodPost, "/payments", map[string]any{"order_id": order["id"], "method": "cod", "amount": "25.00"}, as("alice"))
	s.Require().Equal(http.StatusCreated, res.status, res.body)
	paymentID := res.body["id"].(string)
	s.Equal("cod_"+order["id"].(string), res.body["transaction_ref"])

	forbidden := s.do(http.MethodPost, "/admin/payments/"+paymentID+"/collect", map[string]any{"collected": true}, as("alice"))
	s.Equal(http.StatusForbidden, forbidden.status)

	collected := s.do(http.MethodPost, "/admin/payments/"+paymentID+"/collect", map[string]any{"collected": true}, asAdmin())
	s.Require().Equal(http.StatusOK, collected.status, collected.body)
	s.Equal(true, collected.body["changed"])
	s.Equal("processing", collected.body["order_status"])

	confirm := s.do(http.MethodPost, "/payments/"+paymentID+"/confirm", nil, as("alice"))
	s.Equal(http.StatusBadRequest, confirm.status)
	s.Equal("PAYMENT_METHOD_UNSUPPORTED", confirm.body["code"])
}

func (s *HandlerSuite) TestOrderReplayAndStatus() {
	headers := map[string]string{"X-User-ID": "alice", "Idempotency-Key": "cart-1"}
	body := map[string]any{"items": []map[string]any{item("widget", 1)}}

	first := s.do(http.MethodPost, "/orders", body, headers)
	s.Require().Equal(http.StatusCreated, first.status, first.body)
	second := s.do(http.MethodPost, "/orders", body, headers)
	s.Require().Equal(http.StatusOK, second.status)
	s.Equal(first.body["id"], second.body["id"])

	p, err := s.products.Get(context.Background(), "widget")
	s.Require().NoError(err)
	s.Equal(9, p.Stock)

	path := "/orders/" + first.body["id"].(string) + "/status"
	denied := s.do(http.MethodPatch, path, map[string]any{"status": "processing"}, as("alice"))
	s.Equal(http.StatusForbidden, denied.status)

	moved := s.do(http.MethodPatch, path, map[string]any{"status": "processing"}, asAdmin())
	s.Require().Equal(http.StatusOK, moved.status, moved.body)
	s.Equal(true, moved.body["changed"])
	s.Equal("processing", moved.body["order"].(map[string]any)["status"])

	cancelled := s.do(http.MethodPatch, path, map[string]any{"status": "cancelled"}, asAdmin())
	s.Require().Equal(http.StatusOK, cancelled.status, cancelled.body)
	p, err = s.products.Get(context.Background(), "widget")
	s.Require().NoError(err)
	s.Equal(10, p.Stock)

	list := s.do(http.MethodGet, "/orders", nil, as("alice"))
	s.Len(list.body["orders"], 1)
}

func (s *HandlerSuite) TestErrorBodies() {
	order := s.placeOrder("alice", item("widget", 2))
	orderID := order["id"].(string)

	short := s.do(http.MethodPost, "/orders", map[string]any{"items": []map[string]any{item("widget", 1), item("gadget", 5)}}, as("alice"))
	s.Equal(http.StatusConflict, short.status)
	s.Equal("INSUFFICIENT_STOCK", short.body["code"])
	s.Equal("Gadget has only 1 items left", short.body["message"])
	s.EqualValues(1, short.body["details"].(map[string]any)["available"])

	invalid := s.do(http.MethodPost, "/orders", map[string]any{"items": []map[string]any{item("nope", 1), item("widget", -1)}}, as("alice"))
	s.Equal(http.StatusBadRequest, invalid.status)
	s.Len(invalid.body["lines"], 2)

	unknownField := s.do(http.MethodPost, "/orders", `{"items":[],"coupon":"FREE"}`, as("alice"))
	s.Equal(http.StatusBadRequest, unknownField.status)
	s.Equal("BODY_INVALID", unknownField.body["code"])

	anonymous := s.do(http.MethodPost, "/orders", map[string]any{"items": []map[string]any{item("widget", 1)}}, nil)
	s.Equal(http.StatusForbidden, anonymous.status)

	for _, amount := range []string{"20.001", "1e30", "-92233720368547758.09", "twenty"} {
		bad := s.do(http.MethodPost, "/payments", map[string]any{"order_id": orderID, "method": "card", "amount": amount}, as("alice"))
		s.Equal(http.StatusBadRequest, bad.status, amount)
		s.Equal("AMOUNT_INVALID", bad.body["code"], amount)
	}

	mismatch := s.do(http.MethodPost, "/payments", map[string]any{"order_id": orderID, "method": "card", "amount": "19.99"}, as("alice"))
	s.Equal(http.StatusBadRequest, mismatch.status)
	s.Equal("AMOUNT_MISMATCH", mismatch.body["code"])
	s.EqualValues(2000, mismatch.body["details"].(map[string]any)["order_total"])

	method := s.do(http.MethodPost, "/payments", map[string]any{"order_id": orderID, "method": "iou", "amount": "20.00"}, as("alice"))
	s.Equal("METHOD_INVALID", method.body["code"])

	other := s.do(http.MethodGet, "/orders/"+orderID, nil, as("bob"))
	s.Equal(http.StatusForbidden, other.status)

	missing := s.do(http.MethodGet, "/orders/ord_missing", nil, as("alice"))
	s.Equal(http.StatusNotFound, missing.status)
	s.Equal("ORDER_NOT_FOUND", missing.body["code"])

	unsigned := s.do(http.MethodPost, "/webhooks/payments", `{"id":"evt_1"}`, map[string]string{"X-Signature": "t=1,v1=00"})
	s.Equal(http.StatusForbidden, unsigned.status)
	s.Equal("SIGNATURE_INVALID", unsigned.body["code"])

	route := s.do(http.MethodGet, "/nowhere", nil, nil)
	s.Equal(http.StatusNotFound, route.status)
	s.Equal("ROUTE_NOT_FOUND", route.body["code"])
	s.NotEmpty(route.header.Get("X-Request-ID"))
}

func (s *HandlerSuite) TestGatewayOutageIsRetryable() {
	order := s.placeOrder("alice", item("widget", 1))
	s.gateway.SetUnavailable(errors.New("connection reset"))

	res := s.do(http.MethodPost, "/payments", map[string]any{"order_id": order["id"], "method": "card", "amount": "10.00"}, as("alice"))
	s.Equal(http.StatusBadGateway, res.status)
	s.Equal(true, res.body["retryable"])

	s.gateway.SetUnavailable(nil)
	res = s.do(http.MethodPost, "/payments", map[string]any{"order_id": order["id"], "method": "card", "amount": "10.00"}, as("alice"))
	s.Equal(http.StatusCreated, res.status)
}

func (s *HandlerSuite) TestProductsAndHealth() {
	list := s.do(http.MethodGet, "/products", nil, nil)
	s.Require().Equal(http.StatusOK, list.status)
	s.Len(list.body["products"], 2)

	one := s.do(http.MethodGet, "/products/widget", nil, nil)
	s.Equal("10.00", one.body["unit_price"].(map[string]any)["amount"])

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/products/nope", nil, nil).status)

	healthy := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, healthy.status)
	s.Equal("ok", healthy.body["status"])

	s.checkErr = errors.New("connection refused")
	degraded := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusServiceUnavailable, degraded.status)
	s.Equal("degraded", degraded.body["status"])
}
