package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	appInventory "github.com/Zhima-Mochi/storefront/internal/application/inventory"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/fake"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/signature"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

var (
	alice = application.Actor{UserID: "alice"}
	bob   = application.Actor{UserID: "bob"}
	admin = application.Actor{UserID: "ops", Admin: true}
)

type recorder struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (r *recorder) Publish(_ context.Context, e domoutbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) named(name string) []domoutbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	orders     *memory.OrderRepository
	products   *memory.ProductRepository
	payments   *memory.PaymentRepository
	deliveries *memory.DeliveryStore
	gateway    *fake.Gateway
	events     *recorder

	reconciler *appPayment.Reconciler
	create     *appPayment.CreatePaymentUseCase
	confirm    *appPayment.ConfirmPaymentUseCase
	collect    *appPayment.CollectCashUseCase
	webhook    *appPayment.WebhookUseCase
	queries    *appPayment.Queries
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders:     memory.NewOrderRepository(),
		products:   memory.NewProductRepository(catalog.Product{ID: "widget", Name: "Widget", UnitPrice: 1000, Stock: 10}),
		payments:   memory.NewPaymentRepository(),
		deliveries: memory.NewDeliveryStore(time.Hour),
		gateway:    fake.New(webhookSecret),
		events:     &recorder{},
	}
	f.reconciler = appPayment.NewReconciler(f.payments, f.orders, f.gateway,
		appInventory.NewRestockOnCancelUseCase(f.products, true, nil), f.events, nil)
	f.create = appPayment.NewCreatePaymentUseCase(f.payments, f.orders, f.gateway, id.NewPrefixed("pay_"),
		appPayment.Settings{Currency: "usd", GatewayTimeout: time.Second}, nil)
	f.confirm = appPayment.NewConfirmPaymentUseCase(f.payments, f.gateway, f.reconciler, time.Second, nil)
	f.collect = appPayment.NewCollectCashUseCase(f.payments, f.reconciler, nil)
	f.webhook = appPayment.NewWebhookUseCase(fake.NewVerifier(webhookSecret, signature.DefaultTolerance),
		f.payments, f.reconciler, f.deliveries, nil)
	f.queries = appPayment.NewQueries(f.payments, f.orders, nil)
	return f
}

// placeOrder stores a pending order for user worth 2000 minor units.
func (f *fixture) placeOrder(t *testing.T, orderID, user string) *domorder.Order {
	t.Helper()
	o, err := domorder.New(orderID, user, "", []domorder.Line{
		{ProductID: "widget", ProductName: "Widget", Quantity: 2, UnitPrice: 1000},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, f.orders.Insert(context.Background(), o))
	return o
}

func (f *fixture) pay(t *testing.T, orderID string, method dompay.Method) *dompay.Payment {
	t.Helper()
	res, err := f.create.Execute(context.Background(), appPayment.CreatePaymentInput{
		Actor:   alice,
		OrderID: orderID,
		Method:  method,
		Amount:  2000,
	})
	require.NoError(t, err)
	return res.Payment
}

func (f *fixture) orderStatus(t *testing.T, orderID string) domorder.Status {
	t.Helper()
	o, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	return o.Status
}

func (f *fixture) paymentStatus(t *testing.T, paymentID string) dompay.Status {
	t.Helper()
	p, err := f.payments.Get(context.Background(), paymentID)
	require.NoError(t, err)
	return p.Status
}

func (f *fixture) widgetStock(t *testing.T) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), "widget")
	require.NoError(t, err)
	return p.Stock
}

// settledWebhook settles ref at the processor and returns the signed notification.
func (f *fixture) settledWebhook(t *testing.T, ref string, outcome dompay.Outcome, reason string) appPayment.WebhookInput {
	t.Helper()
	require.NoError(t, f.gateway.Settle(ref, outcome, reason))
	payload, header, err := f.gateway.Webhook(ref)
	require.NoError(t, err)
	return appPayment.WebhookInput{Payload: payload, Signature: header}
}
